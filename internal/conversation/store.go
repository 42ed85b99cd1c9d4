// Package conversation is the Conversation State store: per-open_id slot
// memory (active table/record, last result set, pending action, message
// history) with an idle TTL (spec.md §3 "TTL >= 30 min idle").
package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/storeutil"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// DefaultIdleTTL is the minimum idle TTL spec.md §3 requires.
const DefaultIdleTTL = 30 * time.Minute

// Store persists ConversationState keyed by open_id.
type Store struct {
	db      *sql.DB
	idleTTL time.Duration
}

// Open opens (creating if necessary) a sqlite-backed conversation store.
func Open(path string, idleTTL time.Duration) (*Store, error) {
	db, err := storeutil.Open(path)
	if err != nil {
		return nil, err
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	s := &Store{db: db, idleTTL: idleTTL}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversation_state (
			open_id    TEXT PRIMARY KEY,
			state      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Load returns the conversation state for open_id, or a fresh zero-value
// state if none exists yet or the stored one has gone idle past the TTL.
func (s *Store) Load(ctx context.Context, openID string) (models.ConversationState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT state, updated_at FROM conversation_state WHERE open_id = ?`, openID)

	var raw, updatedAtRaw string
	err := row.Scan(&raw, &updatedAtRaw)
	if err == sql.ErrNoRows {
		return models.ConversationState{OpenID: openID}, nil
	}
	if err != nil {
		return models.ConversationState{}, fmt.Errorf("conversation: load: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, updatedAtRaw)
	if err != nil {
		return models.ConversationState{}, fmt.Errorf("conversation: parse updated_at: %w", err)
	}
	if time.Since(updatedAt) > s.idleTTL {
		return models.ConversationState{OpenID: openID}, nil
	}

	var state models.ConversationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return models.ConversationState{}, fmt.Errorf("conversation: decode state: %w", err)
	}
	return state, nil
}

// Save persists state, stamping UpdatedAt to now.
func (s *Store) Save(ctx context.Context, state models.ConversationState) error {
	state.UpdatedAt = time.Now().UTC()
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("conversation: encode state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_state (open_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(open_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, state.OpenID, string(encoded), state.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("conversation: save: %w", err)
	}
	return nil
}

// Clear discards a conversation's state entirely (used after hard resets).
func (s *Store) Clear(ctx context.Context, openID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_state WHERE open_id = ?`, openID)
	if err != nil {
		return fmt.Errorf("conversation: clear: %w", err)
	}
	return nil
}

// PruneIdle deletes every conversation whose last update predates the idle
// TTL, for periodic housekeeping.
func (s *Store) PruneIdle(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.idleTTL).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversation_state WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("conversation: prune idle: %w", err)
	}
	return res.RowsAffected()
}
