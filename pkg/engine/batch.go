package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lrhodin/unichat/pkg/models"
)

// BatchStore is the subset of store operations the batch fetcher needs.
type BatchStore interface {
	LatestMessages(ctx context.Context, conversationIDs []string) (map[string]models.Message, error)
	ParticipantsByConversation(ctx context.Context, conversationIDs []string) (map[string][]models.Participant, error)
	AttachmentsByMessage(ctx context.Context, messageGUIDs []string) (map[string][]models.Attachment, error)
}

// BatchResult bundles the per-conversation data one assembly pass needs.
// Absent keys mean "no data yet", not failure.
type BatchResult struct {
	Latest       map[string]models.Message
	Participants map[string][]models.Participant
	Attachments  map[string][]models.Attachment
}

// BatchFetcher loads supporting data for a set of conversation ids in a
// constant number of round trips regardless of N. It replaces the
// one-query-per-conversation pattern that falls over past a few dozen
// conversations.
type BatchFetcher struct {
	log   zerolog.Logger
	store BatchStore
}

// NewBatchFetcher creates a batch fetcher over the given store.
func NewBatchFetcher(store BatchStore, log zerolog.Logger) *BatchFetcher {
	return &BatchFetcher{
		log:   log.With().Str("component", "batch_fetch").Logger(),
		store: store,
	}
}

// Fetch loads latest messages, participants and attachments for the given
// conversations. Phase 1 issues the two independent lookups concurrently;
// phase 2 fetches attachments, which depend on the latest-message guids.
func (f *BatchFetcher) Fetch(ctx context.Context, conversationIDs []string) (*BatchResult, error) {
	result := &BatchResult{
		Latest:       map[string]models.Message{},
		Participants: map[string][]models.Participant{},
		Attachments:  map[string][]models.Attachment{},
	}
	if len(conversationIDs) == 0 {
		return result, nil
	}
	start := time.Now()

	var latestErr, participantsErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		result.Latest, latestErr = f.store.LatestMessages(ctx, conversationIDs)
	}()
	go func() {
		defer wg.Done()
		result.Participants, participantsErr = f.store.ParticipantsByConversation(ctx, conversationIDs)
	}()
	wg.Wait()
	if latestErr != nil {
		return nil, latestErr
	}
	if participantsErr != nil {
		return nil, participantsErr
	}

	guids := make([]string, 0, len(result.Latest))
	for _, msg := range result.Latest {
		if msg.HasAttachments {
			guids = append(guids, msg.GUID)
		}
	}
	if len(guids) > 0 {
		attachments, err := f.store.AttachmentsByMessage(ctx, guids)
		if err != nil {
			return nil, err
		}
		result.Attachments = attachments
	}

	f.log.Debug().
		Int("conversations", len(conversationIDs)).
		Int("latest_messages", len(result.Latest)).
		Int("attachment_messages", len(guids)).
		Dur("elapsed", time.Since(start)).
		Msg("Batch fetch complete")
	return result, nil
}
