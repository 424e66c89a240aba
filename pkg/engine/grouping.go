package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/lrhodin/unichat/pkg/identity"
	"github.com/lrhodin/unichat/pkg/models"
)

// GroupStore is the subset of store operations the grouping index needs.
type GroupStore interface {
	GetConversation(ctx context.Context, id string) (*models.ChannelConversation, error)
	GroupOf(ctx context.Context, conversationID string) (string, error)
	GroupByKey(ctx context.Context, key string) (*models.ConversationGroup, error)
	InsertGroup(ctx context.Context, g *models.ConversationGroup, memberID string) error
	AddGroupMember(ctx context.Context, groupID, conversationID string) error
	SetGroupPrimary(ctx context.Context, groupID, primaryID string) error
	MembersByGroup(ctx context.Context, groupIDs []string) (map[string][]models.ChannelConversation, error)
}

// GroupIndex maintains the mapping from canonical address keys to unified
// conversation groups. Every channel conversation ends up in exactly one
// group: an existing group when its canonical key matches, otherwise a new
// singleton.
type GroupIndex struct {
	log   zerolog.Logger
	store GroupStore
	norm  identity.Normalizer
}

// NewGroupIndex creates a grouping index over the given store.
func NewGroupIndex(store GroupStore, norm identity.Normalizer, log zerolog.Logger) *GroupIndex {
	return &GroupIndex{
		log:   log.With().Str("component", "group_index").Logger(),
		store: store,
		norm:  norm,
	}
}

// EnsureAssigned assigns the conversation to a group if it isn't in one yet
// and returns the group id. Unknown conversations return "".
func (gi *GroupIndex) EnsureAssigned(ctx context.Context, conversationID string) (string, error) {
	existing, err := gi.store.GroupOf(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}
	conv, err := gi.store.GetConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if conv == nil {
		return "", nil
	}
	return gi.AssignGroup(ctx, conv)
}

// AssignGroup places a channel conversation into a unified group and
// returns the group id. Group chats and conversations whose address
// doesn't normalize confidently fail open into singleton groups;
// an incorrect merge is worse than no merge.
func (gi *GroupIndex) AssignGroup(ctx context.Context, conv *models.ChannelConversation) (string, error) {
	if existing, err := gi.store.GroupOf(ctx, conv.ID); err != nil {
		return "", err
	} else if existing != "" {
		// Membership is stable; a re-observation only re-evaluates primary.
		if err := gi.recomputePrimary(ctx, existing); err != nil {
			return "", err
		}
		return existing, nil
	}

	key := ""
	if !conv.IsGroup {
		key = gi.norm.Normalize(conv.Address)
		if identity.IsAmbiguous(key) {
			gi.log.Debug().
				Str("conversation_id", conv.ID).
				Str("key", key).
				Msg("Address is ambiguous, leaving conversation ungrouped")
			key = ""
		}
	}

	if key != "" {
		group, err := gi.store.GroupByKey(ctx, key)
		if err != nil {
			return "", err
		}
		if group != nil {
			if err := gi.store.AddGroupMember(ctx, group.ID, conv.ID); err != nil {
				return "", err
			}
			if err := gi.recomputePrimary(ctx, group.ID); err != nil {
				return "", err
			}
			gi.log.Info().
				Str("conversation_id", conv.ID).
				Str("group_id", group.ID).
				Str("key", key).
				Msg("Merged conversation into existing group")
			return group.ID, nil
		}
	}

	group := &models.ConversationGroup{
		ID:           newGroupID(key, conv.ID),
		CanonicalKey: key,
		PrimaryID:    conv.ID,
	}
	if err := gi.store.InsertGroup(ctx, group, conv.ID); err != nil {
		return "", fmt.Errorf("failed to create group for %s: %w", conv.ID, err)
	}
	return group.ID, nil
}

// recomputePrimary re-runs the primary-channel tie-break over the group's
// live members and persists the winner if it changed.
func (gi *GroupIndex) recomputePrimary(ctx context.Context, groupID string) error {
	members, err := gi.store.MembersByGroup(ctx, []string{groupID})
	if err != nil {
		return err
	}
	live := members[groupID]
	if len(live) == 0 {
		return nil
	}
	primary := PickPrimary(live)
	return gi.store.SetGroupPrimary(ctx, groupID, primary)
}

// PickPrimary selects the group's primary channel conversation:
// rich-messaging beats SMS/MMS/RCS, then the most recent last-message
// timestamp wins, and remaining ties break on channel rank and then
// conversation id, never on incidental list order.
func PickPrimary(members []models.ChannelConversation) string {
	sorted := make([]models.ChannelConversation, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Channel.Rank() != b.Channel.Rank() {
			return a.Channel.Rank() > b.Channel.Rank()
		}
		if a.LastMessageTS != b.LastMessageTS {
			return a.LastMessageTS > b.LastMessageTS
		}
		return a.ID < b.ID
	})
	return sorted[0].ID
}

// newGroupID derives a stable group id. Keyed groups use the canonical key
// so re-creation after a wipe lands on the same id; singletons use the
// member's conversation id.
func newGroupID(key, conversationID string) string {
	if key != "" {
		return "grp:" + key
	}
	return "grp:" + conversationID
}
