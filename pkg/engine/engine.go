package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lrhodin/unichat/pkg/identity"
	"github.com/lrhodin/unichat/pkg/models"
	"github.com/lrhodin/unichat/pkg/store"
)

// Engine is the top-level facade: it owns the list controller, the
// grouping index, the sync-progress tracker and the background change
// observer, and exposes the UI-facing command surface.
type Engine struct {
	log      zerolog.Logger
	cfg      *Config
	store    *store.Store
	groups   *GroupIndex
	list     *ListController
	progress *ProgressTracker
	observer *ChangeObserver

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles the engine over an open store and starts the change
// observer. push may be nil when no realtime feed exists. The engine's
// background work stops when Close is called; closing the store remains
// the caller's job.
func New(ctx context.Context, cfg *Config, st *store.Store, push <-chan PushEvent, log zerolog.Logger) (*Engine, error) {
	cfg.applyDefaults()

	asm, err := NewAssembler(cfg.DisplaynameTemplate, log)
	if err != nil {
		return nil, err
	}
	fetch := NewBatchFetcher(st, log)
	list := NewListController(st, fetch, asm, cfg.PageSize, cfg.DisplayCount, log)
	norm := identity.Normalizer{DefaultPrefix: cfg.DefaultDialingPrefix}
	groups := NewGroupIndex(st, norm, log)
	progress := NewProgressTracker(log)

	debounce := time.Duration(cfg.DebounceMS) * time.Millisecond
	observer := NewChangeObserver(list, st.Changes(), push, debounce, log)

	runCtx, cancel := context.WithCancel(ctx)
	e := &Engine{
		log:      log.With().Str("component", "engine").Logger(),
		cfg:      cfg,
		store:    st,
		groups:   groups,
		list:     list,
		progress: progress,
		observer: observer,
		cancel:   cancel,
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		observer.Run(runCtx)
	}()
	return e, nil
}

// Close stops all background work and waits for it to wind down.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
	e.log.Debug().Msg("Engine closed")
}

// LoadInitial loads the first page of the unified list.
func (e *Engine) LoadInitial(ctx context.Context) error {
	return e.list.LoadInitial(ctx)
}

// LoadMore extends the list by one page per category.
func (e *Engine) LoadMore(ctx context.Context) error {
	return e.list.LoadMore(ctx)
}

// Refresh re-fetches the loaded window, optionally narrowed by a filter
// string. The filter sticks for background refreshes until changed.
func (e *Engine) Refresh(ctx context.Context, filter string) error {
	e.observer.SetFilter(filter)
	return e.list.Refresh(ctx, filter)
}

// List returns the current published list snapshot.
func (e *Engine) List() *ListSnapshot {
	return e.list.Snapshot()
}

// Progress returns the aggregate sync progress, or nil when no sync
// activity exists.
func (e *Engine) Progress() *ProgressSnapshot {
	return e.progress.Snapshot()
}

// Tracker exposes the progress tracker for the sync pipeline to report
// into.
func (e *Engine) Tracker() *ProgressTracker {
	return e.progress
}

// RetryFailedStage restarts a failed sync stage.
func (e *Engine) RetryFailedStage(stage SyncStage) {
	e.progress.Retry(stage)
}

// DismissStageError acknowledges a stage failure without retrying.
func (e *Engine) DismissStageError(stage SyncStage) {
	e.progress.DismissError(stage)
}

// ToggleProgressExpanded flips the progress detail view.
func (e *Engine) ToggleProgressExpanded() {
	e.progress.ToggleExpanded()
}

// IngestConversation upserts a channel conversation and guarantees it is
// assigned to a unified group. Returns the group id.
func (e *Engine) IngestConversation(ctx context.Context, conv *models.ChannelConversation) (string, error) {
	created, err := e.store.UpsertConversation(ctx, conv)
	if err != nil {
		return "", err
	}
	if created {
		e.log.Debug().Str("conversation_id", conv.ID).Msg("New channel conversation")
	}
	return e.groups.AssignGroup(ctx, conv)
}

// IngestMessage upserts a message and keeps its conversation grouped.
func (e *Engine) IngestMessage(ctx context.Context, msg *models.Message) error {
	if err := e.store.UpsertMessage(ctx, msg); err != nil {
		return err
	}
	_, err := e.groups.EnsureAssigned(ctx, msg.ConversationID)
	return err
}

// MarkRead flips a conversation's read state in the store and patches the
// published list optimistically.
func (e *Engine) MarkRead(ctx context.Context, conversationID string, read bool) error {
	if err := e.store.SetConversationRead(ctx, conversationID, read); err != nil {
		return err
	}
	e.list.ApplyReadStatus(conversationID, read)
	return nil
}
