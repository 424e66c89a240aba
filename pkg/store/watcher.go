package store

import (
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/lrhodin/unichat/pkg/models"
)

// InvalidationSnapshot is a point-in-time copy of the per-category write
// counters. The change observer compares snapshots to decide whether a
// refresh is needed.
type InvalidationSnapshot struct {
	Grouped         uint64
	UngroupedGroup  uint64
	UngroupedDirect uint64
}

// Counter returns the counter value for one category.
func (s InvalidationSnapshot) Counter(cat models.Category) uint64 {
	switch cat {
	case models.CategoryGrouped:
		return s.Grouped
	case models.CategoryUngroupedGroup:
		return s.UngroupedGroup
	default:
		return s.UngroupedDirect
	}
}

type invalidation struct {
	grouped         atomic.Uint64
	ungroupedGroup  atomic.Uint64
	ungroupedDirect atomic.Uint64

	mu   sync.Mutex
	subs []chan struct{}
}

func newInvalidation() *invalidation {
	return &invalidation{}
}

// bumpAll advances every category counter. Write paths can't cheaply tell
// which category a row ends up in, and over-invalidation is always safe:
// the observer debounces and the refresh is a no-op when nothing changed.
func (i *invalidation) bumpAll() {
	i.grouped.Add(1)
	i.ungroupedGroup.Add(1)
	i.ungroupedDirect.Add(1)
	i.notify()
}

func (i *invalidation) notify() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, ch := range i.subs {
		// Non-blocking: a full buffer already means "change pending".
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Invalidation returns the current counter snapshot.
func (s *Store) Invalidation() InvalidationSnapshot {
	return InvalidationSnapshot{
		Grouped:         s.inval.grouped.Load(),
		UngroupedGroup:  s.inval.ungroupedGroup.Load(),
		UngroupedDirect: s.inval.ungroupedDirect.Load(),
	}
}

// Changes returns a channel that receives a signal whenever any counter
// advances. The channel is buffered and signals coalesce; consumers must
// re-read Invalidation() after each receive.
func (s *Store) Changes() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.inval.mu.Lock()
	s.inval.subs = append(s.inval.subs, ch)
	s.inval.mu.Unlock()
	return ch
}

// WatchFile watches the database file for writes made by another process
// (e.g. the channel bridges importing directly) and bumps all counters when
// one lands. This is the self-heal path for changes that bypass this
// process's write methods. No-op for in-memory stores.
func (s *Store) WatchFile() error {
	if s.path == ":memory:" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return err
	}
	s.watcherMu.Lock()
	s.watcher = watcher
	s.watcherMu.Unlock()
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
					s.inval.bumpAll()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn().Err(err).Msg("Database file watcher error")
			}
		}
	}()
	s.log.Info().Str("path", s.path).Msg("Watching database file for external writes")
	return nil
}

func (s *Store) stopWatcher() {
	s.watcherMu.Lock()
	defer s.watcherMu.Unlock()
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
}
