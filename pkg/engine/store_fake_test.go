package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/lrhodin/unichat/pkg/models"
)

// fakeStore is an in-memory stand-in for the sqlite store, implementing
// the ListStore, BatchStore and GroupStore interfaces with the same
// category and live-member semantics.
type fakeStore struct {
	mu            sync.Mutex
	conversations map[string]*models.ChannelConversation
	groups        map[string]*models.ConversationGroup
	membership    map[string]string
	latest        map[string]models.Message
	participants  map[string][]models.Participant
	attachments   map[string][]models.Attachment

	listErr    error
	fetchCount int
	block      chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: map[string]*models.ChannelConversation{},
		groups:        map[string]*models.ConversationGroup{},
		membership:    map[string]string{},
		latest:        map[string]models.Message{},
		participants:  map[string][]models.Participant{},
		attachments:   map[string][]models.Attachment{},
	}
}

func (f *fakeStore) addConversation(conv models.ChannelConversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := conv
	f.conversations[c.ID] = &c
}

func (f *fakeStore) addGrouped(g models.ConversationGroup, memberIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	grp := g
	f.groups[grp.ID] = &grp
	for _, id := range memberIDs {
		f.membership[id] = grp.ID
	}
}

func (f *fakeStore) setLatest(conversationID string, msg models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest[conversationID] = msg
}

func (f *fakeStore) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCount
}

// liveMembersLocked returns the group's non-archived, non-deleted members
// sorted by id.
func (f *fakeStore) liveMembersLocked(groupID string) []models.ChannelConversation {
	var out []models.ChannelConversation
	for convID, gid := range f.membership {
		if gid != groupID {
			continue
		}
		conv, ok := f.conversations[convID]
		if !ok || conv.Archived || conv.Deleted {
			continue
		}
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func categoryOf(members []models.ChannelConversation) models.Category {
	if len(members) >= 2 {
		return models.CategoryGrouped
	}
	if members[0].IsGroup {
		return models.CategoryUngroupedGroup
	}
	return models.CategoryUngroupedDirect
}

type fakeGroupRow struct {
	group models.ConversationGroup
	maxTS int64
}

func (f *fakeStore) rowsLocked(cat models.Category) []fakeGroupRow {
	var rows []fakeGroupRow
	for _, g := range f.groups {
		members := f.liveMembersLocked(g.ID)
		if len(members) == 0 || categoryOf(members) != cat {
			continue
		}
		var maxTS int64
		for _, m := range members {
			if m.LastMessageTS > maxTS {
				maxTS = m.LastMessageTS
			}
		}
		rows = append(rows, fakeGroupRow{group: *g, maxTS: maxTS})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].maxTS != rows[j].maxTS {
			return rows[i].maxTS > rows[j].maxTS
		}
		return rows[i].group.ID < rows[j].group.ID
	})
	return rows
}

func (f *fakeStore) ListGroups(ctx context.Context, cat models.Category, limit, offset int) ([]models.ConversationGroup, error) {
	f.mu.Lock()
	block := f.block
	err := f.listErr
	if cat == models.CategoryGrouped {
		f.fetchCount++
	}
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.rowsLocked(cat)
	if offset >= len(rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	out := make([]models.ConversationGroup, 0, end-offset)
	for _, row := range rows[offset:end] {
		out = append(out, row.group)
	}
	return out, nil
}

func (f *fakeStore) CountGroups(ctx context.Context, cat models.Category) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return 0, f.listErr
	}
	return len(f.rowsLocked(cat)), nil
}

func (f *fakeStore) MembersByGroup(ctx context.Context, groupIDs []string) (map[string][]models.ChannelConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]models.ChannelConversation{}
	for _, id := range groupIDs {
		if members := f.liveMembersLocked(id); len(members) > 0 {
			out[id] = members
		}
	}
	return out, nil
}

func (f *fakeStore) LatestMessages(ctx context.Context, conversationIDs []string) (map[string]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]models.Message{}
	for _, id := range conversationIDs {
		if msg, ok := f.latest[id]; ok {
			out[id] = msg
		}
	}
	return out, nil
}

func (f *fakeStore) ParticipantsByConversation(ctx context.Context, conversationIDs []string) (map[string][]models.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]models.Participant{}
	for _, id := range conversationIDs {
		if ps := f.participants[id]; len(ps) > 0 {
			out[id] = ps
		}
	}
	return out, nil
}

func (f *fakeStore) AttachmentsByMessage(ctx context.Context, messageGUIDs []string) (map[string][]models.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string][]models.Attachment{}
	for _, guid := range messageGUIDs {
		if as := f.attachments[guid]; len(as) > 0 {
			out[guid] = as
		}
	}
	return out, nil
}

func (f *fakeStore) GetConversation(ctx context.Context, id string) (*models.ChannelConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return nil, nil
	}
	c := *conv
	return &c, nil
}

func (f *fakeStore) GroupOf(ctx context.Context, conversationID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.membership[conversationID], nil
}

func (f *fakeStore) GroupByKey(ctx context.Context, key string) (*models.ConversationGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.CanonicalKey == key && key != "" {
			grp := *g
			return &grp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) InsertGroup(ctx context.Context, g *models.ConversationGroup, memberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	grp := *g
	f.groups[grp.ID] = &grp
	f.membership[memberID] = grp.ID
	return nil
}

func (f *fakeStore) AddGroupMember(ctx context.Context, groupID, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.membership[conversationID] = groupID
	return nil
}

func (f *fakeStore) SetGroupPrimary(ctx context.Context, groupID, primaryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.groups[groupID]; ok {
		g.PrimaryID = primaryID
	}
	return nil
}
