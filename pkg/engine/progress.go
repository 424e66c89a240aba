package engine

import (
	"sync"

	"github.com/rs/zerolog"
)

// SyncStage identifies one of the background sync stages feeding the
// aggregate progress signal.
type SyncStage int

const (
	// StagePrimary is the recent-history backfill for the rich channel.
	StagePrimary SyncStage = iota
	// StageSecondary is the deep-history backfill.
	StageSecondary
	// StageCategorize is conversation grouping and categorization.
	StageCategorize
)

var allStages = []SyncStage{StagePrimary, StageSecondary, StageCategorize}

func (s SyncStage) String() string {
	switch s {
	case StagePrimary:
		return "primary_sync"
	case StageSecondary:
		return "secondary_sync"
	case StageCategorize:
		return "categorization"
	default:
		return "unknown"
	}
}

func (s SyncStage) label() string {
	switch s {
	case StagePrimary:
		return "Syncing messages"
	case StageSecondary:
		return "Syncing older messages"
	case StageCategorize:
		return "Organizing conversations"
	default:
		return "Syncing"
	}
}

// stageWeights fixes each stage's share of the aggregate bar. Primary sync
// dominates because it is what unblocks the user.
var stageWeights = map[SyncStage]float64{
	StagePrimary:    0.60,
	StageSecondary:  0.25,
	StageCategorize: 0.15,
}

// StageState is a stage's lifecycle position.
type StageState int

const (
	StageIdle StageState = iota
	StageActive
	StageComplete
	StageError
)

func (s StageState) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageActive:
		return "active"
	case StageComplete:
		return "complete"
	case StageError:
		return "error"
	default:
		return "unknown"
	}
}

// StageStatus is one stage's reported position.
type StageStatus struct {
	State     StageState `json:"state"`
	Progress  float64    `json:"progress"`
	Processed int        `json:"processed"`
	Total     int        `json:"total"`
	Error     string     `json:"error,omitempty"`
}

// ProgressSnapshot is the aggregate view published to the UI.
type ProgressSnapshot struct {
	// Fraction is the weighted sum over all stages in [0, 1].
	Fraction float64                   `json:"fraction"`
	Label    string                    `json:"label"`
	HasError bool                      `json:"has_error"`
	Expanded bool                      `json:"expanded"`
	Stages   map[SyncStage]StageStatus `json:"stages"`
}

// ProgressTracker aggregates the per-stage sync reports into one weighted
// signal. Stage updates come from the sync pipeline goroutines; snapshot
// reads come from the UI. Errors stick until explicitly dismissed or the
// stage is retried.
type ProgressTracker struct {
	log zerolog.Logger

	mu       sync.Mutex
	stages   map[SyncStage]*StageStatus
	expanded bool
	retry    map[SyncStage]func()
}

// NewProgressTracker creates a tracker with all stages idle.
func NewProgressTracker(log zerolog.Logger) *ProgressTracker {
	stages := make(map[SyncStage]*StageStatus, len(allStages))
	for _, stage := range allStages {
		stages[stage] = &StageStatus{State: StageIdle}
	}
	return &ProgressTracker{
		log:    log.With().Str("component", "sync_progress").Logger(),
		stages: stages,
		retry:  map[SyncStage]func(){},
	}
}

// ReportProgress marks a stage active with processed/total counters.
// total <= 0 means the stage's extent is unknown and its fractional
// progress stays at zero until counted.
func (t *ProgressTracker) ReportProgress(stage SyncStage, processed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stages[stage]
	st.State = StageActive
	st.Processed = processed
	st.Total = total
	st.Error = ""
	if total > 0 {
		st.Progress = clamp01(float64(processed) / float64(total))
	} else {
		st.Progress = 0
	}
}

// CompleteStage marks a stage finished; it contributes its full weight
// from now on.
func (t *ProgressTracker) CompleteStage(stage SyncStage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stages[stage]
	st.State = StageComplete
	st.Progress = 1
	st.Error = ""
	t.log.Info().Stringer("stage", stage).Msg("Sync stage complete")
}

// FailStage records a stage failure. The failure overrides the aggregate
// label and raises HasError until dismissed or retried; the stage's last
// fractional progress keeps counting toward the bar.
func (t *ProgressTracker) FailStage(stage SyncStage, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stages[stage]
	st.State = StageError
	st.Error = err.Error()
	t.log.Error().Err(err).Stringer("stage", stage).Msg("Sync stage failed")
}

// DismissError acknowledges a stage failure, returning the stage to idle.
func (t *ProgressTracker) DismissError(stage SyncStage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stages[stage]
	if st.State != StageError {
		return
	}
	st.State = StageIdle
	st.Progress = 0
	st.Error = ""
}

// SetRetry registers the callback Retry invokes for a stage.
func (t *ProgressTracker) SetRetry(stage SyncStage, fn func()) {
	t.mu.Lock()
	t.retry[stage] = fn
	t.mu.Unlock()
}

// Retry clears a failed stage back to active-from-zero and invokes its
// registered retry callback, if any.
func (t *ProgressTracker) Retry(stage SyncStage) {
	t.mu.Lock()
	st := t.stages[stage]
	if st.State != StageError {
		t.mu.Unlock()
		return
	}
	st.State = StageActive
	st.Progress = 0
	st.Processed = 0
	st.Error = ""
	fn := t.retry[stage]
	t.mu.Unlock()
	t.log.Info().Stringer("stage", stage).Msg("Retrying sync stage")
	if fn != nil {
		fn()
	}
}

// ToggleExpanded flips the detail-view flag carried on snapshots.
func (t *ProgressTracker) ToggleExpanded() {
	t.mu.Lock()
	t.expanded = !t.expanded
	t.mu.Unlock()
}

// Snapshot computes the aggregate. Returns nil when every stage is idle,
// which is the signal to show no progress UI at all.
func (t *ProgressTracker) Snapshot() *ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	allIdle := true
	for _, st := range t.stages {
		if st.State != StageIdle {
			allIdle = false
			break
		}
	}
	if allIdle {
		return nil
	}

	snap := &ProgressSnapshot{
		Expanded: t.expanded,
		Stages:   make(map[SyncStage]StageStatus, len(t.stages)),
	}
	var errorStage SyncStage
	var labelStage SyncStage
	labelWeight := -1.0
	for _, stage := range allStages {
		st := t.stages[stage]
		snap.Stages[stage] = *st
		w := stageWeights[stage]
		switch st.State {
		case StageActive:
			snap.Fraction += st.Progress * w
			if w > labelWeight {
				labelWeight = w
				labelStage = stage
			}
		case StageComplete:
			snap.Fraction += w
		case StageError:
			snap.Fraction += st.Progress * w
			if !snap.HasError {
				snap.HasError = true
				errorStage = stage
			}
		}
	}
	snap.Fraction = clamp01(snap.Fraction)

	switch {
	case snap.HasError:
		snap.Label = errorStage.label() + " failed"
	case labelWeight >= 0:
		snap.Label = labelStage.label()
	default:
		snap.Label = "Sync complete"
	}
	return snap
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
