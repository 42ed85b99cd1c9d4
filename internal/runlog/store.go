// Package runlog is the Run Log: a fixed-shape, append-only record of every
// rule evaluation, persisted to sqlite canonically with a JSONL fallback
// (spec.md §3 "Run Log", §6 "Run-log row").
package runlog

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/storeutil"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// Store appends run log rows and lists them back for the management
// endpoints.
type Store interface {
	Append(ctx context.Context, row models.RunLogRow) error
	List(ctx context.Context, ruleID string, limit int) ([]models.RunLogRow, error)
	Close() error
}

// SQLiteStore is the canonical Store backing, one row per rule evaluation.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a sqlite-backed run log.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := storeutil.Open(path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS run_log (
			id         TEXT PRIMARY KEY,
			rule_id    TEXT NOT NULL,
			timestamp  TEXT NOT NULL,
			payload    TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_run_log_rule ON run_log(rule_id, timestamp)`)
	return err
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Append inserts a new run log row.
func (s *SQLiteStore) Append(ctx context.Context, row models.RunLogRow) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("runlog: encode %s: %w", row.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_log (id, rule_id, timestamp, payload) VALUES (?, ?, ?, ?)
	`, row.ID, row.RuleID, row.Timestamp.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("runlog: append %s: %w", row.ID, err)
	}
	return nil
}

// List returns the most recent rows for a rule (or every rule, if ruleID is
// empty), newest first, bounded by limit.
func (s *SQLiteStore) List(ctx context.Context, ruleID string, limit int) ([]models.RunLogRow, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if ruleID == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT payload FROM run_log ORDER BY timestamp DESC LIMIT ?
		`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT payload FROM run_log WHERE rule_id = ? ORDER BY timestamp DESC LIMIT ?
		`, ruleID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("runlog: list: %w", err)
	}
	defer rows.Close()

	var out []models.RunLogRow
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("runlog: scan: %w", err)
		}
		var row models.RunLogRow
		if err := json.Unmarshal([]byte(payload), &row); err != nil {
			return nil, fmt.Errorf("runlog: decode: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// JSONLStore is the compatibility fallback when sqlite is unavailable:
// append-only newline-delimited JSON, one file per process lifetime.
type JSONLStore struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenJSONL opens (creating/appending) a JSONL run log file.
func OpenJSONL(path string) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runlog: open %s: %w", path, err)
	}
	return &JSONLStore{path: path, f: f}, nil
}

// Close closes the underlying file handle.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// Append writes one JSON line.
func (s *JSONLStore) Append(ctx context.Context, row models.RunLogRow) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("runlog: encode %s: %w", row.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("runlog: append %s: %w", row.ID, err)
	}
	return nil
}

// List re-reads the file and returns the most recent matching rows. The
// JSONL fallback is a compatibility path, not meant for high-volume query
// traffic, so a full scan per call is acceptable here.
func (s *JSONLStore) List(ctx context.Context, ruleID string, limit int) ([]models.RunLogRow, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("runlog: reopen %s: %w", s.path, err)
	}
	defer f.Close()

	var all []models.RunLogRow
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var row models.RunLogRow
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			continue
		}
		if ruleID != "" && row.RuleID != ruleID {
			continue
		}
		all = append(all, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("runlog: scan %s: %w", s.path, err)
	}

	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}
