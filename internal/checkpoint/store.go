// Package checkpoint is the Checkpoint Store: a per-table scan cursor used
// by the polling-compensation loop to resume a table scan without
// re-visiting already-processed records (spec.md §3 "Checkpoint Store").
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/storeutil"
)

// Store persists one scan cursor per (app_token, table_id).
type Store struct {
	db *sql.DB
}

// Open opens a sqlite-backed checkpoint store.
func Open(path string) (*Store, error) {
	db, err := storeutil.Open(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			app_token  TEXT NOT NULL,
			table_id   TEXT NOT NULL,
			cursor     TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (app_token, table_id)
		)
	`)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the saved cursor for a table, or "" if the table has never
// been scanned to completion.
func (s *Store) Get(ctx context.Context, appToken, tableID string) (string, error) {
	var cursor string
	row := s.db.QueryRowContext(ctx, `
		SELECT cursor FROM checkpoints WHERE app_token = ? AND table_id = ?
	`, appToken, tableID)
	if err := row.Scan(&cursor); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("checkpoint: get %s/%s: %w", appToken, tableID, err)
	}
	return cursor, nil
}

// Set advances the saved cursor for a table.
func (s *Store) Set(ctx context.Context, appToken, tableID, cursor string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (app_token, table_id, cursor, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (app_token, table_id) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at
	`, appToken, tableID, cursor, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("checkpoint: set %s/%s: %w", appToken, tableID, err)
	}
	return nil
}
