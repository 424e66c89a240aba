package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lrhodin/unichat/pkg/models"
)

// The batch lookups below exist specifically to keep list assembly at a
// constant number of round trips regardless of how many conversations are
// on screen. Ids with no data are simply absent from the result maps;
// callers treat absence as "no data yet", never as an error.

// LatestMessages returns the newest non-empty message per conversation.
func (s *Store) LatestMessages(ctx context.Context, conversationIDs []string) (map[string]models.Message, error) {
	result := make(map[string]models.Message, len(conversationIDs))
	err := chunked(conversationIDs, func(chunk []string) error {
		placeholders, args := placeholderArgs(chunk, 0)
		rows, err := s.db.Query(ctx, fmt.Sprintf(`
			SELECT guid, conversation_id, sender, text, timestamp_ms, is_from_me,
				has_attachments, is_reaction, is_group_event, deleted_ts,
				associated_guid, associated_type, balloon_bundle_id,
				delivered_ts, read_ts, error_code
			FROM (
				SELECT m.*, ROW_NUMBER() OVER (
					PARTITION BY conversation_id
					ORDER BY timestamp_ms DESC, guid DESC
				) AS rn
				FROM message m
				WHERE conversation_id IN (%s)
			)
			WHERE rn = 1
		`, placeholders), args...)
		if err != nil {
			return fmt.Errorf("failed to batch-load latest messages: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			msg, err := scanMessage(rows)
			if err != nil {
				return err
			}
			result[msg.ConversationID] = *msg
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ParticipantsByConversation returns all participants per conversation.
func (s *Store) ParticipantsByConversation(ctx context.Context, conversationIDs []string) (map[string][]models.Participant, error) {
	result := make(map[string][]models.Participant, len(conversationIDs))
	err := chunked(conversationIDs, func(chunk []string) error {
		placeholders, args := placeholderArgs(chunk, 0)
		rows, err := s.db.Query(ctx, fmt.Sprintf(`
			SELECT id, conversation_id, address, contact_name, avatar_path,
				name_inferred, is_me, last_active_ts
			FROM participant
			WHERE conversation_id IN (%s)
			ORDER BY last_active_ts DESC, id
		`, placeholders), args...)
		if err != nil {
			return fmt.Errorf("failed to batch-load participants: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var p models.Participant
			var contactName, avatarPath sql.NullString
			if err := rows.Scan(&p.ID, &p.ConversationID, &p.Address, &contactName,
				&avatarPath, &p.NameInferred, &p.IsMe, &p.LastActiveTS); err != nil {
				return err
			}
			p.ContactName = contactName.String
			p.AvatarPath = avatarPath.String
			result[p.ConversationID] = append(result[p.ConversationID], p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AttachmentsByMessage returns attachment metadata per message guid.
func (s *Store) AttachmentsByMessage(ctx context.Context, messageGUIDs []string) (map[string][]models.Attachment, error) {
	result := make(map[string][]models.Attachment, len(messageGUIDs))
	err := chunked(messageGUIDs, func(chunk []string) error {
		placeholders, args := placeholderArgs(chunk, 0)
		rows, err := s.db.Query(ctx, fmt.Sprintf(`
			SELECT id, message_guid, mime_type, file_name, byte_size,
				is_sticker, is_live_photo
			FROM attachment
			WHERE message_guid IN (%s)
			ORDER BY id
		`, placeholders), args...)
		if err != nil {
			return fmt.Errorf("failed to batch-load attachments: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var a models.Attachment
			var mimeType, fileName sql.NullString
			if err := rows.Scan(&a.ID, &a.MessageGUID, &mimeType, &fileName,
				&a.ByteSize, &a.IsSticker, &a.IsLivePhoto); err != nil {
				return err
			}
			a.MimeType = mimeType.String
			a.FileName = fileName.String
			result[a.MessageGUID] = append(result[a.MessageGUID], a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var sender, text, associatedGUID, associatedType, balloonBundleID sql.NullString
	err := row.Scan(&msg.GUID, &msg.ConversationID, &sender, &text,
		&msg.TimestampMS, &msg.IsFromMe, &msg.HasAttachments, &msg.IsReaction,
		&msg.IsGroupEvent, &msg.DeletedTS, &associatedGUID, &associatedType,
		&balloonBundleID, &msg.DeliveredTS, &msg.ReadTS, &msg.ErrorCode)
	if err != nil {
		return nil, err
	}
	msg.Sender = sender.String
	msg.Text = text.String
	msg.AssociatedGUID = associatedGUID.String
	msg.AssociatedType = associatedType.String
	msg.BalloonBundleID = balloonBundleID.String
	return &msg, nil
}
