package engine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lrhodin/unichat/pkg/models"
)

// ErrLoadInProgress is returned when a load is requested while another is
// still in flight. Callers coalesce instead of queueing.
var ErrLoadInProgress = errors.New("a load is already in progress")

// ListStore is the subset of store operations the controller needs.
type ListStore interface {
	ListGroups(ctx context.Context, cat models.Category, limit, offset int) ([]models.ConversationGroup, error)
	CountGroups(ctx context.Context, cat models.Category) (int, error)
	MembersByGroup(ctx context.Context, groupIDs []string) (map[string][]models.ChannelConversation, error)
}

// ControllerState is the load/more/refresh state machine position.
type ControllerState int

const (
	StateIdle ControllerState = iota
	StateLoadingInitial
	StateReady
	StateLoadingMore
	StateError
)

func (s ControllerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingInitial:
		return "loading_initial"
	case StateReady:
		return "ready"
	case StateLoadingMore:
		return "loading_more"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ListController owns pagination over the three conversation categories and
// publishes immutable list snapshots. All loads catch failures internally
// and surface them as an Error state with a message; nothing propagates
// out of the engine.
type ListController struct {
	log          zerolog.Logger
	store        ListStore
	fetch        *BatchFetcher
	asm          *Assembler
	pageSize     int
	displayCount int

	mu       sync.Mutex
	state    ControllerState
	snapshot *ListSnapshot
	loaded   map[models.Category]int
	hasMore  map[models.Category]bool
	typing   map[string]bool
	version  uint64
}

// NewListController creates the controller. pageSize bounds each category's
// per-page fetch; displayCount is the initial list truncation target.
func NewListController(store ListStore, fetch *BatchFetcher, asm *Assembler, pageSize, displayCount int, log zerolog.Logger) *ListController {
	return &ListController{
		log:          log.With().Str("component", "list_controller").Logger(),
		store:        store,
		fetch:        fetch,
		asm:          asm,
		pageSize:     pageSize,
		displayCount: displayCount,
		state:        StateIdle,
		snapshot:     &ListSnapshot{},
		loaded:       map[models.Category]int{},
		hasMore:      map[models.Category]bool{},
		typing:       map[string]bool{},
	}
}

// Snapshot returns the current published list. The returned value is
// immutable; callers must not modify it.
func (c *ListController) Snapshot() *ListSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// State returns the current state machine position.
func (c *ListController) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// categoryPage holds one category's fetch result during a load.
type categoryPage struct {
	groups []models.ConversationGroup
	total  int
	err    error
}

// LoadInitial concurrently fetches the first page of every category,
// assembles the merged list and publishes it truncated to the display
// target.
func (c *ListController) LoadInitial(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateLoadingInitial || c.state == StateLoadingMore {
		c.mu.Unlock()
		return ErrLoadInProgress
	}
	c.state = StateLoadingInitial
	c.publishLocked(func(s *ListSnapshot) { s.IsLoadingInitial = true; s.LastError = "" })
	c.mu.Unlock()

	start := time.Now()
	pages := c.fetchPages(ctx, func(models.Category) (limit, offset int) {
		return c.pageSize, 0
	})
	groupCat := make(map[string]models.Category)
	for cat, page := range pages {
		if page.err != nil {
			c.fail("initial load", page.err)
			return nil
		}
		for _, g := range page.groups {
			groupCat[g.ID] = cat
		}
	}

	previews, err := c.assemble(ctx, pages)
	if err != nil {
		c.fail("initial load", err)
		return nil
	}
	if len(previews) > c.displayCount {
		previews = previews[:c.displayCount]
	}

	// Loaded counts track published rows, not fetched rows, so truncated
	// rows remain reachable through LoadMore.
	published := make(map[models.Category]int, len(pages))
	for _, p := range previews {
		published[groupCat[p.GroupID]]++
	}

	c.mu.Lock()
	for cat, page := range pages {
		c.loaded[cat] = published[cat]
		c.hasMore[cat] = published[cat] < page.total
	}
	c.state = StateReady
	more := c.anyHasMoreLocked()
	c.publishLocked(func(s *ListSnapshot) {
		s.Chats = previews
		s.IsLoadingInitial = false
		s.HasMore = more
		s.LastError = ""
	})
	c.mu.Unlock()

	c.log.Info().
		Int("chats", len(previews)).
		Bool("has_more", more).
		Dur("elapsed", time.Since(start)).
		Msg("Initial load complete")
	return nil
}

// LoadMore fetches the next page per category at the advancing offsets and
// merges it into the published list, de-duplicated by group id and
// re-sorted. Returns ErrLoadInProgress while another load runs; a no-op
// when no category has more data.
func (c *ListController) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateLoadingInitial || c.state == StateLoadingMore {
		c.mu.Unlock()
		return ErrLoadInProgress
	}
	if !c.anyHasMoreLocked() {
		c.mu.Unlock()
		return nil
	}
	offsets := make(map[models.Category]int, len(c.loaded))
	for cat, n := range c.loaded {
		offsets[cat] = n
	}
	hasMore := make(map[models.Category]bool, len(c.hasMore))
	for cat, m := range c.hasMore {
		hasMore[cat] = m
	}
	c.state = StateLoadingMore
	c.publishLocked(func(s *ListSnapshot) { s.IsLoadingMore = true })
	c.mu.Unlock()

	pages := c.fetchPages(ctx, func(cat models.Category) (limit, offset int) {
		if !hasMore[cat] {
			return 0, 0
		}
		return c.pageSize, offsets[cat]
	})
	for _, page := range pages {
		if page.err != nil {
			c.fail("load more", page.err)
			return nil
		}
	}

	previews, err := c.assemble(ctx, pages)
	if err != nil {
		c.fail("load more", err)
		return nil
	}

	c.mu.Lock()
	for cat, page := range pages {
		c.loaded[cat] += len(page.groups)
		c.hasMore[cat] = c.loaded[cat] < page.total
	}
	merged := mergePreviews(c.snapshot.Chats, previews)
	c.state = StateReady
	more := c.anyHasMoreLocked()
	c.publishLocked(func(s *ListSnapshot) {
		s.Chats = merged
		s.IsLoadingMore = false
		s.HasMore = more
		s.LastError = ""
	})
	c.mu.Unlock()

	c.log.Info().Int("chats", len(merged)).Bool("has_more", more).Msg("Load more complete")
	return nil
}

// Refresh re-fetches everything up to the currently loaded count per
// category (not a delta) so the list self-heals from any missed
// invalidation signal. filter optionally narrows the published list by a
// display-name/address substring match.
func (c *ListController) Refresh(ctx context.Context, filter string) error {
	c.mu.Lock()
	if c.state == StateLoadingInitial || c.state == StateLoadingMore {
		c.mu.Unlock()
		return ErrLoadInProgress
	}
	if c.state == StateIdle {
		c.mu.Unlock()
		return c.LoadInitial(ctx)
	}
	limits := make(map[models.Category]int, len(models.Categories))
	for _, cat := range models.Categories {
		limit := c.loaded[cat]
		if limit < c.pageSize {
			// Floor at one page so recovery from a failed initial load
			// still fetches something.
			limit = c.pageSize
		}
		limits[cat] = limit
	}
	c.mu.Unlock()

	pages := c.fetchPages(ctx, func(cat models.Category) (limit, offset int) {
		return limits[cat], 0
	})
	for _, page := range pages {
		if page.err != nil {
			c.fail("refresh", page.err)
			return nil
		}
	}

	previews, err := c.assemble(ctx, pages)
	if err != nil {
		c.fail("refresh", err)
		return nil
	}
	if filter != "" {
		previews = filterPreviews(previews, filter)
	}

	c.mu.Lock()
	for cat, page := range pages {
		c.loaded[cat] = len(page.groups)
		c.hasMore[cat] = len(page.groups) < page.total
	}
	c.state = StateReady
	more := c.anyHasMoreLocked()
	c.publishLocked(func(s *ListSnapshot) {
		s.Chats = previews
		s.HasMore = more
		s.LastError = ""
	})
	c.mu.Unlock()
	return nil
}

// ApplyReadStatus patches the unread count of the row containing the given
// conversation without a refetch, the optimistic low-latency path for
// read-status push events.
func (c *ListController) ApplyReadStatus(conversationID string, isRead bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOfMemberLocked(conversationID)
	if idx < 0 {
		return
	}
	chats := copyPreviews(c.snapshot.Chats)
	if isRead {
		chats[idx].UnreadCount = 0
	} else if chats[idx].UnreadCount == 0 {
		chats[idx].UnreadCount = 1
	}
	c.publishLocked(func(s *ListSnapshot) { s.Chats = chats })
}

// SetTyping updates the typing-indicator set and patches the affected row.
func (c *ListController) SetTyping(conversationID string, isTyping bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isTyping {
		c.typing[conversationID] = true
	} else {
		delete(c.typing, conversationID)
	}
	idx := c.indexOfMemberLocked(conversationID)
	if idx < 0 {
		return
	}
	chats := copyPreviews(c.snapshot.Chats)
	chats[idx].Typing = c.anyMemberTypingLocked(chats[idx].MemberIDs)
	c.publishLocked(func(s *ListSnapshot) { s.Chats = chats })
}

// fetchPages issues the three per-category group queries concurrently and
// awaits them together, bounding peak memory to one page's worth of data.
func (c *ListController) fetchPages(ctx context.Context, plan func(models.Category) (limit, offset int)) map[models.Category]*categoryPage {
	pages := make(map[models.Category]*categoryPage, len(models.Categories))
	var wg sync.WaitGroup
	for _, cat := range models.Categories {
		page := &categoryPage{}
		pages[cat] = page
		limit, offset := plan(cat)
		wg.Add(1)
		go func(cat models.Category) {
			defer wg.Done()
			page.total, page.err = c.store.CountGroups(ctx, cat)
			if page.err != nil || limit == 0 {
				return
			}
			page.groups, page.err = c.store.ListGroups(ctx, cat, limit, offset)
		}(cat)
	}
	wg.Wait()
	return pages
}

// assemble batch-fetches supporting data for the fetched groups and builds
// sorted previews.
func (c *ListController) assemble(ctx context.Context, pages map[models.Category]*categoryPage) ([]ChatPreview, error) {
	var groups []models.ConversationGroup
	for _, cat := range models.Categories {
		groups = append(groups, pages[cat].groups...)
	}
	groupIDs := make([]string, len(groups))
	for i, g := range groups {
		groupIDs[i] = g.ID
	}
	members, err := c.store.MembersByGroup(ctx, groupIDs)
	if err != nil {
		return nil, err
	}
	var conversationIDs []string
	for _, ms := range members {
		for _, m := range ms {
			conversationIDs = append(conversationIDs, m.ID)
		}
	}
	data, err := c.fetch.Fetch(ctx, conversationIDs)
	if err != nil {
		return nil, err
	}
	previews := c.asm.AssembleAll(groups, members, data)

	c.mu.Lock()
	for i := range previews {
		previews[i].Typing = c.anyMemberTypingLocked(previews[i].MemberIDs)
	}
	c.mu.Unlock()

	sortPreviews(previews)
	return dedupePreviews(previews), nil
}

// fail transitions to the Error state, retaining the previously published
// chats so the UI keeps showing stale-but-usable data behind the banner.
func (c *ListController) fail(op string, err error) {
	c.log.Error().Err(err).Str("op", op).Msg("List load failed")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateError
	msg := err.Error()
	c.publishLocked(func(s *ListSnapshot) {
		s.IsLoadingInitial = false
		s.IsLoadingMore = false
		s.LastError = msg
	})
}

func (c *ListController) anyHasMoreLocked() bool {
	for _, more := range c.hasMore {
		if more {
			return true
		}
	}
	return false
}

func (c *ListController) indexOfMemberLocked(conversationID string) int {
	for i, chat := range c.snapshot.Chats {
		for _, id := range chat.MemberIDs {
			if id == conversationID {
				return i
			}
		}
	}
	return -1
}

func (c *ListController) anyMemberTypingLocked(memberIDs []string) bool {
	for _, id := range memberIDs {
		if c.typing[id] {
			return true
		}
	}
	return false
}

// publishLocked replaces the published snapshot with a mutated copy.
// Callers must hold c.mu. Chats slices are never mutated in place.
func (c *ListController) publishLocked(mutate func(*ListSnapshot)) {
	next := *c.snapshot
	mutate(&next)
	c.version++
	next.Version = c.version
	c.snapshot = &next
}

// sortPreviews applies the canonical total order: pinned first, then
// last-message timestamp descending, with group id as the final stable key.
func sortPreviews(previews []ChatPreview) {
	sort.SliceStable(previews, func(i, j int) bool {
		a, b := previews[i], previews[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if a.TimestampMS != b.TimestampMS {
			return a.TimestampMS > b.TimestampMS
		}
		return a.GroupID < b.GroupID
	})
}

func dedupePreviews(previews []ChatPreview) []ChatPreview {
	seen := make(map[string]bool, len(previews))
	out := previews[:0]
	for _, p := range previews {
		if seen[p.GroupID] {
			continue
		}
		seen[p.GroupID] = true
		out = append(out, p)
	}
	return out
}

// mergePreviews folds freshly loaded previews into the existing list,
// keeping existing entries on conflict and re-sorting. The result is never
// smaller than the existing list.
func mergePreviews(existing, fresh []ChatPreview) []ChatPreview {
	seen := make(map[string]bool, len(existing))
	merged := make([]ChatPreview, 0, len(existing)+len(fresh))
	merged = append(merged, existing...)
	for _, p := range existing {
		seen[p.GroupID] = true
	}
	for _, p := range fresh {
		if !seen[p.GroupID] {
			merged = append(merged, p)
			seen[p.GroupID] = true
		}
	}
	sortPreviews(merged)
	return merged
}

func filterPreviews(previews []ChatPreview, filter string) []ChatPreview {
	needle := strings.ToLower(filter)
	out := make([]ChatPreview, 0, len(previews))
	for _, p := range previews {
		if strings.Contains(strings.ToLower(p.DisplayName), needle) {
			out = append(out, p)
			continue
		}
		for _, id := range p.MemberIDs {
			if strings.Contains(strings.ToLower(id), needle) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func copyPreviews(previews []ChatPreview) []ChatPreview {
	out := make([]ChatPreview, len(previews))
	copy(out, previews)
	return out
}
