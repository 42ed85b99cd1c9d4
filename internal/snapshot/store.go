// Package snapshot is the Snapshot Store: per-table, per-record field
// snapshots with load/save/diff support (spec.md §3 "Snapshot Entry").
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/storeutil"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// Store persists the last-observed field set for every record the
// automation engine has successfully processed. The invariant the rest of
// the pipeline relies on: after a successful process, the snapshot equals
// the observed field set for that record (spec.md §8 invariant 4).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a sqlite-backed snapshot store.
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
		CREATE TABLE IF NOT EXISTS snapshots (
			app_token  TEXT NOT NULL,
			table_id   TEXT NOT NULL,
			record_id  TEXT NOT NULL,
			fields     TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (app_token, table_id, record_id)
		)
	`)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Load returns the last snapshot for a record, or (nil, nil) if none
// exists yet (a genuinely new record).
func (s *Store) Load(ctx context.Context, loc models.Locator) (models.Fields, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fields FROM snapshots WHERE app_token = ? AND table_id = ? AND record_id = ?
	`, loc.AppToken, loc.TableID, loc.RecordID)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: load %s: %w", loc.RecordID, err)
	}

	var fields models.Fields
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", loc.RecordID, err)
	}
	return fields, nil
}

// Save overwrites the snapshot for a record with the fields observed on
// this processing pass.
func (s *Store) Save(ctx context.Context, loc models.Locator, fields models.Fields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("snapshot: encode %s: %w", loc.RecordID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (app_token, table_id, record_id, fields, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (app_token, table_id, record_id)
		DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at
	`, loc.AppToken, loc.TableID, loc.RecordID, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("snapshot: save %s: %w", loc.RecordID, err)
	}
	return nil
}

// Diff computes the ChangeSet between a previously-loaded snapshot and a
// freshly-fetched field set. A nil prior snapshot (new record) reports
// every field in next as changed from a zero FieldValue.
func Diff(prior, next models.Fields) models.ChangeSet {
	changes := models.ChangeSet{}
	for field, newVal := range next {
		oldVal := prior[field]
		if !oldVal.Equal(newVal) {
			changes[field] = models.Change{Field: field, Old: oldVal, New: newVal}
		}
	}
	for field, oldVal := range prior {
		if _, stillPresent := next[field]; !stillPresent {
			changes[field] = models.Change{Field: field, Old: oldVal, New: models.FieldValue{}}
		}
	}
	return changes
}
