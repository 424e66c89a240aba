package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lrhodin/unichat/pkg/models"
)

// categoryHaving returns the HAVING clause selecting groups of one page
// category. The aggregation runs over live (non-archived, non-deleted)
// members only, so a group whose members are all archived matches no
// category and drops out of every page.
func categoryHaving(cat models.Category) (string, error) {
	switch cat {
	case models.CategoryGrouped:
		return "COUNT(*) >= 2", nil
	case models.CategoryUngroupedGroup:
		return "COUNT(*) = 1 AND MAX(c.is_group) = 1", nil
	case models.CategoryUngroupedDirect:
		return "COUNT(*) = 1 AND MAX(c.is_group) = 0", nil
	default:
		return "", fmt.Errorf("unknown category: %s", cat)
	}
}

// ListGroups returns one page of conversation groups for a category,
// ordered by the most recent live member's last-message timestamp.
func (s *Store) ListGroups(ctx context.Context, cat models.Category, limit, offset int) ([]models.ConversationGroup, error) {
	having, err := categoryHaving(cat)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT g.id, g.canonical_key, g.primary_id, g.display_name,
			g.avatar_path, g.unread_override, g.pinned, g.muted, g.snoozed, g.category
		FROM conversation_group g
		JOIN group_member m ON m.group_id = g.id
		JOIN conversation c ON c.id = m.conversation_id
		WHERE NOT c.archived AND NOT c.deleted
		GROUP BY g.id
		HAVING %s
		ORDER BY MAX(c.last_message_ts) DESC, g.id
		LIMIT $1 OFFSET $2
	`, having), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []models.ConversationGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

// CountGroups returns the live total for a category, used to compute hasMore.
func (s *Store) CountGroups(ctx context.Context, cat models.Category) (int, error) {
	having, err := categoryHaving(cat)
	if err != nil {
		return 0, err
	}
	var count int
	err = s.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM (
			SELECT g.id
			FROM conversation_group g
			JOIN group_member m ON m.group_id = g.id
			JOIN conversation c ON c.id = m.conversation_id
			WHERE NOT c.archived AND NOT c.deleted
			GROUP BY g.id
			HAVING %s
		)
	`, having)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count groups: %w", err)
	}
	return count, nil
}

// GroupByKey returns the group holding a canonical address key, or nil.
func (s *Store) GroupByKey(ctx context.Context, key string) (*models.ConversationGroup, error) {
	if key == "" {
		return nil, nil
	}
	row := s.db.QueryRow(ctx, `
		SELECT id, canonical_key, primary_id, display_name, avatar_path,
			unread_override, pinned, muted, snoozed, category
		FROM conversation_group WHERE canonical_key=$1
	`, key)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group by key: %w", err)
	}
	return g, nil
}

// GroupOf returns the group id a conversation belongs to ("" if unassigned).
func (s *Store) GroupOf(ctx context.Context, conversationID string) (string, error) {
	var groupID string
	err := s.db.QueryRow(ctx,
		`SELECT group_id FROM group_member WHERE conversation_id=$1`,
		conversationID,
	).Scan(&groupID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up group membership: %w", err)
	}
	return groupID, nil
}

// InsertGroup creates a group with one initial member.
func (s *Store) InsertGroup(ctx context.Context, g *models.ConversationGroup, memberID string) error {
	nowMS := time.Now().UnixMilli()
	_, err := s.db.Exec(ctx, `
		INSERT INTO conversation_group (
			id, canonical_key, primary_id, display_name, avatar_path,
			unread_override, pinned, muted, snoozed, category, created_ts, updated_ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, g.ID, g.CanonicalKey, g.PrimaryID, nullIfEmpty(g.DisplayName),
		nullIfEmpty(g.AvatarPath), g.UnreadOverride, g.Pinned, g.Muted,
		g.Snoozed, nullIfEmpty(g.Category), nowMS)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	if err := s.AddGroupMember(ctx, g.ID, memberID); err != nil {
		return err
	}
	return nil
}

// AddGroupMember re-keys a conversation into a group. The unique index on
// conversation_id makes this an atomic move: a conversation can never end
// up in two groups.
func (s *Store) AddGroupMember(ctx context.Context, groupID, conversationID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO group_member (group_id, conversation_id)
		VALUES ($1, $2)
		ON CONFLICT (conversation_id) DO UPDATE SET group_id=excluded.group_id
	`, groupID, conversationID)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	s.inval.bumpAll()
	return nil
}

// SetGroupPrimary updates the designated primary channel conversation.
func (s *Store) SetGroupPrimary(ctx context.Context, groupID, primaryID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE conversation_group SET primary_id=$2, updated_ts=$3 WHERE id=$1
	`, groupID, primaryID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set group primary: %w", err)
	}
	s.inval.bumpAll()
	return nil
}

// DeleteEmptyGroup removes a group that lost its last member during
// re-keying. Groups with members are never deleted by this engine.
func (s *Store) DeleteEmptyGroup(ctx context.Context, groupID string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM conversation_group
		WHERE id=$1 AND NOT EXISTS (SELECT 1 FROM group_member WHERE group_id=$1)
	`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete empty group: %w", err)
	}
	return nil
}

// MembersByGroup returns the live members of each requested group in one
// round trip per 500-group chunk. Groups with no live members are simply
// absent from the result map.
func (s *Store) MembersByGroup(ctx context.Context, groupIDs []string) (map[string][]models.ChannelConversation, error) {
	result := make(map[string][]models.ChannelConversation, len(groupIDs))
	err := chunked(groupIDs, func(chunk []string) error {
		placeholders, args := placeholderArgs(chunk, 0)
		rows, err := s.db.Query(ctx, fmt.Sprintf(`
			SELECT m.group_id, c.id, c.channel, c.address, c.display_name,
				c.is_group, c.last_message_ts, c.unread_count, c.pinned,
				c.muted, c.archived, c.deleted, c.draft
			FROM group_member m
			JOIN conversation c ON c.id = m.conversation_id
			WHERE m.group_id IN (%s) AND NOT c.archived AND NOT c.deleted
			ORDER BY c.last_message_ts DESC, c.id
		`, placeholders), args...)
		if err != nil {
			return fmt.Errorf("failed to batch-load group members: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var groupID string
			var conv models.ChannelConversation
			var displayName, draft sql.NullString
			if err := rows.Scan(&groupID, &conv.ID, &conv.Channel, &conv.Address,
				&displayName, &conv.IsGroup, &conv.LastMessageTS, &conv.UnreadCount,
				&conv.Pinned, &conv.Muted, &conv.Archived, &conv.Deleted, &draft); err != nil {
				return err
			}
			conv.DisplayName = displayName.String
			conv.Draft = draft.String
			result[groupID] = append(result[groupID], conv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func scanGroup(row rowScanner) (*models.ConversationGroup, error) {
	var g models.ConversationGroup
	var displayName, avatarPath, category sql.NullString
	var unreadOverride sql.NullInt64
	err := row.Scan(&g.ID, &g.CanonicalKey, &g.PrimaryID, &displayName,
		&avatarPath, &unreadOverride, &g.Pinned, &g.Muted, &g.Snoozed, &category)
	if err != nil {
		return nil, err
	}
	g.DisplayName = displayName.String
	g.AvatarPath = avatarPath.String
	g.Category = category.String
	if unreadOverride.Valid {
		v := int(unreadOverride.Int64)
		g.UnreadOverride = &v
	}
	return &g, nil
}

// chunkSize bounds IN() clause length; sqlite's default variable limit is 999.
const chunkSize = 500

func chunked(ids []string, fn func(chunk []string) error) error {
	for i := 0; i < len(ids); i += chunkSize {
		end := i + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := fn(ids[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func placeholderArgs(chunk []string, argOffset int) (string, []any) {
	placeholders := make([]string, len(chunk))
	args := make([]any, 0, len(chunk))
	for i, id := range chunk {
		placeholders[i] = fmt.Sprintf("$%d", argOffset+i+1)
		args = append(args, id)
	}
	return strings.Join(placeholders, ","), args
}
