// Package store implements the persistent conversation store on sqlite.
// It owns the schema, paginated category queries, the batched by-id lookups
// used by the aggregation engine, and the invalidation counters that feed
// the change observer.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"
)

// Store is the sqlite-backed persistent store.
type Store struct {
	db   *dbutil.Database
	log  zerolog.Logger
	path string

	inval *invalidation

	watcherMu sync.Mutex
	watcher   *fsnotify.Watcher
}

// Open opens (or creates) the store at path and ensures the schema.
// Use ":memory:" for an ephemeral store in tests.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	uri := path
	memory := path == ":memory:"
	if memory {
		uri = "file::memory:?mode=memory&cache=shared"
	}
	db, err := dbutil.NewWithDialect(uri, "sqlite3")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.Log = dbutil.ZeroLogger(log.With().Str("component", "db").Logger())
	if memory {
		// A pooled second connection would see an empty in-memory database.
		db.RawDB.SetMaxOpenConns(1)
	}
	s := &Store{
		db:    db,
		log:   log.With().Str("component", "store").Logger(),
		path:  path,
		inval: newInvalidation(),
	}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database and any active file watcher.
func (s *Store) Close() error {
	s.stopWatcher()
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS conversation (
			id              TEXT PRIMARY KEY,
			channel         TEXT NOT NULL,
			address         TEXT NOT NULL DEFAULT '',
			display_name    TEXT,
			is_group        BOOLEAN NOT NULL DEFAULT FALSE,
			last_message_ts BIGINT NOT NULL DEFAULT 0,
			unread_count    INTEGER NOT NULL DEFAULT 0,
			pinned          BOOLEAN NOT NULL DEFAULT FALSE,
			muted           BOOLEAN NOT NULL DEFAULT FALSE,
			archived        BOOLEAN NOT NULL DEFAULT FALSE,
			deleted         BOOLEAN NOT NULL DEFAULT FALSE,
			draft           TEXT,
			created_ts      BIGINT NOT NULL,
			updated_ts      BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_group (
			id              TEXT PRIMARY KEY,
			canonical_key   TEXT NOT NULL DEFAULT '',
			primary_id      TEXT NOT NULL,
			display_name    TEXT,
			avatar_path     TEXT,
			unread_override INTEGER,
			pinned          BOOLEAN NOT NULL DEFAULT FALSE,
			muted           BOOLEAN NOT NULL DEFAULT FALSE,
			snoozed         BOOLEAN NOT NULL DEFAULT FALSE,
			category        TEXT,
			created_ts      BIGINT NOT NULL,
			updated_ts      BIGINT NOT NULL
		)`,
		// Membership is an explicit join table; the unique index on
		// conversation_id enforces "a conversation belongs to at most one
		// group" at the schema level.
		`CREATE TABLE IF NOT EXISTS group_member (
			group_id        TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			PRIMARY KEY (group_id, conversation_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS group_member_conversation_idx
			ON group_member (conversation_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS conversation_group_key_idx
			ON conversation_group (canonical_key) WHERE canonical_key <> ''`,
		`CREATE TABLE IF NOT EXISTS message (
			guid              TEXT PRIMARY KEY,
			conversation_id   TEXT NOT NULL,
			sender            TEXT,
			text              TEXT,
			timestamp_ms      BIGINT NOT NULL,
			is_from_me        BOOLEAN NOT NULL DEFAULT FALSE,
			has_attachments   BOOLEAN NOT NULL DEFAULT FALSE,
			is_reaction       BOOLEAN NOT NULL DEFAULT FALSE,
			is_group_event    BOOLEAN NOT NULL DEFAULT FALSE,
			deleted_ts        BIGINT NOT NULL DEFAULT 0,
			associated_guid   TEXT,
			associated_type   TEXT,
			balloon_bundle_id TEXT,
			delivered_ts      BIGINT NOT NULL DEFAULT 0,
			read_ts           BIGINT NOT NULL DEFAULT 0,
			error_code        INTEGER NOT NULL DEFAULT 0,
			created_ts        BIGINT NOT NULL,
			updated_ts        BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS message_conversation_ts_idx
			ON message (conversation_id, timestamp_ms, guid)`,
		`CREATE TABLE IF NOT EXISTS participant (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			address         TEXT NOT NULL,
			contact_name    TEXT,
			avatar_path     TEXT,
			name_inferred   BOOLEAN NOT NULL DEFAULT FALSE,
			is_me           BOOLEAN NOT NULL DEFAULT FALSE,
			last_active_ts  BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS participant_conversation_idx
			ON participant (conversation_id)`,
		`CREATE TABLE IF NOT EXISTS attachment (
			id            TEXT PRIMARY KEY,
			message_guid  TEXT NOT NULL,
			mime_type     TEXT,
			file_name     TEXT,
			byte_size     BIGINT NOT NULL DEFAULT 0,
			is_sticker    BOOLEAN NOT NULL DEFAULT FALSE,
			is_live_photo BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS attachment_message_idx
			ON attachment (message_guid)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
