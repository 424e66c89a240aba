package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ChangeObserver bridges change signals into list refreshes. Store
// invalidations and typing churn are debounced; new-message pushes refresh
// immediately; read-status pushes patch the published list in place with
// no refetch at all.
//
// Refreshes coalesce rather than queue: a signal arriving while a refresh
// is running marks it dirty, and exactly one follow-up refresh runs after
// the current one finishes no matter how many signals arrived meanwhile.
type ChangeObserver struct {
	log      zerolog.Logger
	list     *ListController
	changes  <-chan struct{}
	push     <-chan PushEvent
	debounce time.Duration

	mu       sync.Mutex
	filter   string
	timer    *time.Timer
	inFlight bool
	dirty    bool
}

// NewChangeObserver wires the observer to a list controller, the store's
// invalidation channel and a push-event feed. Either channel may be nil.
func NewChangeObserver(list *ListController, changes <-chan struct{}, push <-chan PushEvent, debounce time.Duration, log zerolog.Logger) *ChangeObserver {
	return &ChangeObserver{
		log:      log.With().Str("component", "change_observer").Logger(),
		list:     list,
		changes:  changes,
		push:     push,
		debounce: debounce,
	}
}

// SetFilter records the active list filter so background refreshes keep
// honoring it.
func (o *ChangeObserver) SetFilter(filter string) {
	o.mu.Lock()
	o.filter = filter
	o.mu.Unlock()
}

// Run consumes change signals until the context is cancelled. Call it on
// its own goroutine.
func (o *ChangeObserver) Run(ctx context.Context) {
	o.log.Debug().Msg("Change observer started")
	defer o.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-o.changes:
			if !ok {
				o.changes = nil
				continue
			}
			o.scheduleRefresh(ctx)
		case evt, ok := <-o.push:
			if !ok {
				o.push = nil
				continue
			}
			o.handlePush(ctx, evt)
		}
	}
}

func (o *ChangeObserver) handlePush(ctx context.Context, evt PushEvent) {
	o.log.Debug().
		Stringer("type", evt.Type).
		Str("conversation_id", evt.ConversationID).
		Msg("Push event")
	switch evt.Type {
	case EventNewMessage, EventMessageUpdated:
		o.requestRefresh(ctx)
	case EventChatReadStatus:
		o.list.ApplyReadStatus(evt.ConversationID, evt.IsRead)
	case EventTyping:
		o.list.SetTyping(evt.ConversationID, evt.IsTyping)
	}
}

// scheduleRefresh arms the debounce timer if it isn't already armed.
// Signals landing inside the window fold into the pending refresh.
func (o *ChangeObserver) scheduleRefresh(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		return
	}
	o.timer = time.AfterFunc(o.debounce, func() {
		o.mu.Lock()
		o.timer = nil
		o.mu.Unlock()
		o.requestRefresh(ctx)
	})
}

// requestRefresh starts a refresh now, or marks the running one dirty so
// one more follows it.
func (o *ChangeObserver) requestRefresh(ctx context.Context) {
	o.mu.Lock()
	if o.inFlight {
		o.dirty = true
		o.mu.Unlock()
		return
	}
	o.inFlight = true
	o.mu.Unlock()
	go o.runRefresh(ctx)
}

func (o *ChangeObserver) runRefresh(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			o.mu.Lock()
			o.inFlight = false
			o.dirty = false
			o.mu.Unlock()
			return
		}
		o.mu.Lock()
		filter := o.filter
		o.mu.Unlock()

		err := o.list.Refresh(ctx, filter)
		if errors.Is(err, ErrLoadInProgress) {
			// A user-initiated load owns the controller; try again shortly.
			select {
			case <-ctx.Done():
			case <-time.After(o.debounce):
				continue
			}
		} else if err != nil {
			o.log.Warn().Err(err).Msg("Background refresh failed")
		}

		o.mu.Lock()
		if o.dirty && ctx.Err() == nil {
			o.dirty = false
			o.mu.Unlock()
			continue
		}
		o.inFlight = false
		o.dirty = false
		o.mu.Unlock()
		return
	}
}

func (o *ChangeObserver) stopTimer() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}
