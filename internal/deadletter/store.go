// Package deadletter persists actions that exhausted their retry budget,
// for operator inspection and manual reprocessing (spec.md §4.3 "retry+
// dead-letter wrapper").
package deadletter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/storeutil"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// Store persists dead-lettered actions and lets them be listed and marked
// reprocessed.
type Store struct {
	db *sql.DB
}

// Open opens a sqlite-backed dead-letter store.
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
		CREATE TABLE IF NOT EXISTS dead_letters (
			id           TEXT PRIMARY KEY,
			created_at   TEXT NOT NULL,
			rule_id      TEXT NOT NULL,
			app_token    TEXT NOT NULL,
			table_id     TEXT NOT NULL,
			record_id    TEXT NOT NULL,
			action_type  TEXT NOT NULL,
			error        TEXT NOT NULL,
			retry_count  INTEGER NOT NULL,
			payload      BLOB,
			reprocessed  INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Put records a dead-lettered action.
func (s *Store) Put(ctx context.Context, dl models.DeadLetter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letters
			(id, created_at, rule_id, app_token, table_id, record_id, action_type, error, retry_count, payload, reprocessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, dl.ID, dl.CreatedAt.UTC().Format(time.RFC3339Nano), dl.RuleID, dl.AppToken, dl.TableID, dl.RecordID,
		string(dl.ActionType), dl.Error, dl.RetryCount, dl.Payload)
	if err != nil {
		return fmt.Errorf("deadletter: put %s: %w", dl.ID, err)
	}
	return nil
}

// List returns dead letters for a rule (or all rules, if ruleID is empty),
// newest first.
func (s *Store) List(ctx context.Context, ruleID string, limit int) ([]models.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if ruleID == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, created_at, rule_id, app_token, table_id, record_id, action_type, error, retry_count, payload, reprocessed
			FROM dead_letters ORDER BY created_at DESC LIMIT ?
		`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, created_at, rule_id, app_token, table_id, record_id, action_type, error, retry_count, payload, reprocessed
			FROM dead_letters WHERE rule_id = ? ORDER BY created_at DESC LIMIT ?
		`, ruleID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("deadletter: list: %w", err)
	}
	defer rows.Close()

	var out []models.DeadLetter
	for rows.Next() {
		var dl models.DeadLetter
		var createdAt, actionType string
		var reprocessed int
		if err := rows.Scan(&dl.ID, &createdAt, &dl.RuleID, &dl.AppToken, &dl.TableID, &dl.RecordID,
			&actionType, &dl.Error, &dl.RetryCount, &dl.Payload, &reprocessed); err != nil {
			return nil, fmt.Errorf("deadletter: scan: %w", err)
		}
		dl.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		dl.ActionType = models.ActionType(actionType)
		dl.Reprocessed = reprocessed != 0
		out = append(out, dl)
	}
	return out, rows.Err()
}

// MarkReprocessed flags a dead letter as having been manually reprocessed.
func (s *Store) MarkReprocessed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE dead_letters SET reprocessed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deadletter: mark reprocessed %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("deadletter: %s not found", id)
	}
	return nil
}
