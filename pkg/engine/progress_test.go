package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
)

func TestProgressSnapshotNilWhenAllIdle(t *testing.T) {
	tr := NewProgressTracker(zerolog.Nop())
	if snap := tr.Snapshot(); snap != nil {
		t.Fatalf("snapshot = %+v for all-idle tracker, want nil", snap)
	}
}

func TestProgressWeightedAggregate(t *testing.T) {
	tr := NewProgressTracker(zerolog.Nop())

	tr.ReportProgress(StagePrimary, 50, 100)
	snap := tr.Snapshot()
	if snap == nil {
		t.Fatal("snapshot nil with an active stage")
	}
	if math.Abs(snap.Fraction-0.30) > 1e-9 {
		t.Errorf("fraction = %v, want 0.30 (half of the 0.60 primary weight)", snap.Fraction)
	}
	if snap.Label != "Syncing messages" {
		t.Errorf("label = %q, want the primary stage label", snap.Label)
	}

	tr.CompleteStage(StagePrimary)
	tr.ReportProgress(StageSecondary, 1, 4)
	tr.ReportProgress(StageCategorize, 1, 2)
	snap = tr.Snapshot()
	want := 0.60 + 0.25*0.25 + 0.15*0.5
	if math.Abs(snap.Fraction-want) > 1e-9 {
		t.Errorf("fraction = %v, want %v", snap.Fraction, want)
	}
	// Two active stages: the heavier one names the bar.
	if snap.Label != "Syncing older messages" {
		t.Errorf("label = %q, want the secondary stage label", snap.Label)
	}

	tr.CompleteStage(StageSecondary)
	tr.CompleteStage(StageCategorize)
	snap = tr.Snapshot()
	if snap.Fraction != 1 {
		t.Errorf("fraction = %v after completion, want 1", snap.Fraction)
	}
	if snap.Label != "Sync complete" {
		t.Errorf("label = %q, want completion label", snap.Label)
	}
}

func TestProgressUnknownTotalContributesNothing(t *testing.T) {
	tr := NewProgressTracker(zerolog.Nop())
	tr.ReportProgress(StageSecondary, 500, 0)
	snap := tr.Snapshot()
	if snap.Fraction != 0 {
		t.Errorf("fraction = %v with unknown total, want 0", snap.Fraction)
	}
}

func TestProgressErrorOverrideAndDismiss(t *testing.T) {
	tr := NewProgressTracker(zerolog.Nop())
	tr.ReportProgress(StagePrimary, 50, 100)
	tr.ReportProgress(StageSecondary, 1, 4)
	tr.FailStage(StageSecondary, errors.New("backfill socket closed"))

	snap := tr.Snapshot()
	if !snap.HasError {
		t.Fatal("has_error not set after stage failure")
	}
	if snap.Label != "Syncing older messages failed" {
		t.Errorf("label = %q, want the failure label", snap.Label)
	}
	// The failed stage's last progress still counts toward the bar.
	want := 0.60*0.5 + 0.25*0.25
	if math.Abs(snap.Fraction-want) > 1e-9 {
		t.Errorf("fraction = %v, want %v", snap.Fraction, want)
	}

	tr.DismissError(StageSecondary)
	snap = tr.Snapshot()
	if snap.HasError {
		t.Error("has_error still set after dismissal")
	}
	if snap.Label != "Syncing messages" {
		t.Errorf("label = %q after dismissal, want the active primary label", snap.Label)
	}
}

func TestProgressRetryInvokesCallback(t *testing.T) {
	tr := NewProgressTracker(zerolog.Nop())
	called := false
	tr.SetRetry(StagePrimary, func() { called = true })

	// Retry on a non-failed stage is a no-op.
	tr.Retry(StagePrimary)
	if called {
		t.Fatal("retry callback fired for a non-failed stage")
	}

	tr.FailStage(StagePrimary, errors.New("boom"))
	tr.Retry(StagePrimary)
	if !called {
		t.Fatal("retry callback not invoked")
	}
	snap := tr.Snapshot()
	if snap.HasError {
		t.Error("error flag survives retry")
	}
	if st := snap.Stages[StagePrimary]; st.State != StageActive || st.Progress != 0 {
		t.Errorf("stage after retry = %+v, want active from zero", st)
	}
}

func TestProgressToggleExpanded(t *testing.T) {
	tr := NewProgressTracker(zerolog.Nop())
	tr.ReportProgress(StagePrimary, 1, 2)
	if tr.Snapshot().Expanded {
		t.Fatal("expanded by default")
	}
	tr.ToggleExpanded()
	if !tr.Snapshot().Expanded {
		t.Fatal("toggle did not expand")
	}
	tr.ToggleExpanded()
	if tr.Snapshot().Expanded {
		t.Fatal("second toggle did not collapse")
	}
}
