package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lrhodin/unichat/pkg/models"
)

// UpsertConversation inserts or updates a channel conversation. The
// newest-wins rule on last_message_ts means a stale ingest pass can never
// roll a conversation backwards in the list. Returns true if the row was
// newly created (first observation), which is the caller's cue to run
// group assignment.
func (s *Store) UpsertConversation(ctx context.Context, conv *models.ChannelConversation) (bool, error) {
	var exists int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM conversation WHERE id=$1`, conv.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check conversation existence: %w", err)
	}
	nowMS := time.Now().UnixMilli()
	_, err = s.db.Exec(ctx, `
		INSERT INTO conversation (
			id, channel, address, display_name, is_group, last_message_ts,
			unread_count, pinned, muted, archived, deleted, draft,
			created_ts, updated_ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (id) DO UPDATE SET
			channel=excluded.channel,
			address=excluded.address,
			display_name=excluded.display_name,
			is_group=excluded.is_group,
			last_message_ts=CASE
				WHEN excluded.last_message_ts > conversation.last_message_ts
				THEN excluded.last_message_ts
				ELSE conversation.last_message_ts
			END,
			unread_count=excluded.unread_count,
			pinned=excluded.pinned,
			muted=excluded.muted,
			archived=excluded.archived,
			deleted=excluded.deleted,
			draft=excluded.draft,
			updated_ts=excluded.updated_ts
	`, conv.ID, conv.Channel, conv.Address, nullIfEmpty(conv.DisplayName), conv.IsGroup,
		conv.LastMessageTS, conv.UnreadCount, conv.Pinned, conv.Muted,
		conv.Archived, conv.Deleted, nullIfEmpty(conv.Draft), nowMS)
	if err != nil {
		return false, fmt.Errorf("failed to upsert conversation: %w", err)
	}
	s.inval.bumpAll()
	return exists == 0, nil
}

// GetConversation returns a single conversation, or nil if unknown.
func (s *Store) GetConversation(ctx context.Context, id string) (*models.ChannelConversation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, channel, address, display_name, is_group, last_message_ts,
			unread_count, pinned, muted, archived, deleted, draft
		FROM conversation WHERE id=$1
	`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// SetConversationRead updates the unread count for a single conversation
// without touching anything else. Used by the optimistic read-status path.
func (s *Store) SetConversationRead(ctx context.Context, id string, read bool) error {
	unread := 1
	if read {
		unread = 0
	}
	_, err := s.db.Exec(ctx, `
		UPDATE conversation SET unread_count=$2, updated_ts=$3 WHERE id=$1
	`, id, unread, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set read status: %w", err)
	}
	s.inval.bumpAll()
	return nil
}

// UpsertMessage inserts or updates a message and rolls the owning
// conversation's last_message_ts forward. Delivery timestamps only move
// forward so a replayed event can't downgrade READ back to DELIVERED.
func (s *Store) UpsertMessage(ctx context.Context, msg *models.Message) error {
	nowMS := time.Now().UnixMilli()
	_, err := s.db.Exec(ctx, `
		INSERT INTO message (
			guid, conversation_id, sender, text, timestamp_ms, is_from_me,
			has_attachments, is_reaction, is_group_event, deleted_ts,
			associated_guid, associated_type, balloon_bundle_id,
			delivered_ts, read_ts, error_code, created_ts, updated_ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
		ON CONFLICT (guid) DO UPDATE SET
			conversation_id=excluded.conversation_id,
			sender=excluded.sender,
			text=excluded.text,
			timestamp_ms=excluded.timestamp_ms,
			is_from_me=excluded.is_from_me,
			has_attachments=excluded.has_attachments,
			is_reaction=excluded.is_reaction,
			is_group_event=excluded.is_group_event,
			deleted_ts=CASE WHEN message.deleted_ts > 0 THEN message.deleted_ts ELSE excluded.deleted_ts END,
			associated_guid=excluded.associated_guid,
			associated_type=excluded.associated_type,
			balloon_bundle_id=excluded.balloon_bundle_id,
			delivered_ts=CASE WHEN excluded.delivered_ts > message.delivered_ts THEN excluded.delivered_ts ELSE message.delivered_ts END,
			read_ts=CASE WHEN excluded.read_ts > message.read_ts THEN excluded.read_ts ELSE message.read_ts END,
			error_code=excluded.error_code,
			updated_ts=excluded.updated_ts
	`, msg.GUID, msg.ConversationID, nullIfEmpty(msg.Sender), nullIfEmpty(msg.Text),
		msg.TimestampMS, msg.IsFromMe, msg.HasAttachments, msg.IsReaction,
		msg.IsGroupEvent, msg.DeletedTS, nullIfEmpty(msg.AssociatedGUID),
		nullIfEmpty(msg.AssociatedType), nullIfEmpty(msg.BalloonBundleID),
		msg.DeliveredTS, msg.ReadTS, msg.ErrorCode, nowMS)
	if err != nil {
		return fmt.Errorf("failed to upsert message: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		UPDATE conversation SET last_message_ts=$2, updated_ts=$3
		WHERE id=$1 AND last_message_ts < $2
	`, msg.ConversationID, msg.TimestampMS, nowMS)
	if err != nil {
		return fmt.Errorf("failed to advance conversation timestamp: %w", err)
	}
	s.inval.bumpAll()
	return nil
}

// UpsertParticipant inserts or updates a participant. last_active_ts only
// moves forward.
func (s *Store) UpsertParticipant(ctx context.Context, p *models.Participant) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO participant (
			id, conversation_id, address, contact_name, avatar_path,
			name_inferred, is_me, last_active_ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			conversation_id=excluded.conversation_id,
			address=excluded.address,
			contact_name=excluded.contact_name,
			avatar_path=excluded.avatar_path,
			name_inferred=excluded.name_inferred,
			is_me=excluded.is_me,
			last_active_ts=CASE
				WHEN excluded.last_active_ts > participant.last_active_ts
				THEN excluded.last_active_ts
				ELSE participant.last_active_ts
			END
	`, p.ID, p.ConversationID, p.Address, nullIfEmpty(p.ContactName),
		nullIfEmpty(p.AvatarPath), p.NameInferred, p.IsMe, p.LastActiveTS)
	if err != nil {
		return fmt.Errorf("failed to upsert participant: %w", err)
	}
	s.inval.bumpAll()
	return nil
}

// UpsertAttachment inserts or updates attachment metadata.
func (s *Store) UpsertAttachment(ctx context.Context, a *models.Attachment) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO attachment (
			id, message_guid, mime_type, file_name, byte_size, is_sticker, is_live_photo
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			message_guid=excluded.message_guid,
			mime_type=excluded.mime_type,
			file_name=excluded.file_name,
			byte_size=excluded.byte_size,
			is_sticker=excluded.is_sticker,
			is_live_photo=excluded.is_live_photo
	`, a.ID, a.MessageGUID, nullIfEmpty(a.MimeType), nullIfEmpty(a.FileName),
		a.ByteSize, a.IsSticker, a.IsLivePhoto)
	if err != nil {
		return fmt.Errorf("failed to upsert attachment: %w", err)
	}
	s.inval.bumpAll()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.ChannelConversation, error) {
	var conv models.ChannelConversation
	var displayName, draft sql.NullString
	err := row.Scan(&conv.ID, &conv.Channel, &conv.Address, &displayName,
		&conv.IsGroup, &conv.LastMessageTS, &conv.UnreadCount, &conv.Pinned,
		&conv.Muted, &conv.Archived, &conv.Deleted, &draft)
	if err != nil {
		return nil, err
	}
	conv.DisplayName = displayName.String
	conv.Draft = draft.String
	return &conv, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
