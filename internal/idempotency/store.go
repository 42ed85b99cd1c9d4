// Package idempotency is the Idempotency Store: two keyspaces, event-level
// (keyed by event_id) and business-level (keyed by a hash of rule_id +
// table_id + record_id + the sorted change-set), each with its own TTL
// (spec.md §3 "Idempotency Keys").
package idempotency

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/storeutil"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// Store records which event ids and business keys have already been
// processed, so a duplicate delivery within the TTL window is a no-op
// (spec.md §8 invariant 5: duplicate event within TTL -> exactly one
// run-log row, action pipeline executed once).
type Store struct {
	db  *sql.DB
	ttl time.Duration
}

// Open opens a sqlite-backed idempotency store with the given TTL applied
// to both keyspaces.
func Open(path string, ttl time.Duration) (*Store, error) {
	db, err := storeutil.Open(path)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	s := &Store{db: db, ttl: ttl}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS idempotency_keys (
			keyspace   TEXT NOT NULL,
			key        TEXT NOT NULL,
			seen_at    TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			PRIMARY KEY (keyspace, key)
		)
	`)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// BusinessKey hashes (rule_id, table_id, record_id, sorted change-set) into
// the business-level idempotency key.
func BusinessKey(ruleID, tableID, recordID string, changes models.ChangeSet) string {
	fields := make([]string, 0, len(changes))
	for field := range changes {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	h := sha256.New()
	h.Write([]byte(ruleID))
	h.Write([]byte{0})
	h.Write([]byte(tableID))
	h.Write([]byte{0})
	h.Write([]byte(recordID))
	for _, field := range fields {
		h.Write([]byte{0})
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CheckBusiness reports whether the business key has already been recorded
// as a successful run, WITHOUT recording anything itself — spec.md §4.2
// step 5 skips a business key only once it was recorded successful, so the
// check and the recording happen at different points in the pipeline
// (unlike the event keyspace, which dedups at receipt regardless of
// outcome). Callers must follow up with MarkBusinessSuccess once the
// pipeline this key guards actually succeeds.
func (s *Store) CheckBusiness(ctx context.Context, key string) (bool, error) {
	return s.check(ctx, "business", key)
}

// MarkBusinessSuccess records key as successfully processed under the
// business keyspace, starting its TTL window. Call only after the action
// pipeline the key guards has completed without error — recording it
// earlier would skip a legitimate retry of a redelivered change-set whose
// first attempt dead-lettered.
func (s *Store) MarkBusinessSuccess(ctx context.Context, key string) error {
	return s.set(ctx, "business", key)
}

// SeenEvent reports whether eventID has already been recorded, and, if
// not, atomically records it under the event keyspace. Event-level dedup
// is keyed on delivery, not outcome (spec.md §4.1 "drop duplicates"), so
// check-and-set in one step is correct here.
func (s *Store) SeenEvent(ctx context.Context, eventID string) (bool, error) {
	seen, err := s.check(ctx, "event", eventID)
	if err != nil || seen {
		return seen, err
	}
	return false, s.set(ctx, "event", eventID)
}

func (s *Store) check(ctx context.Context, keyspace, key string) (bool, error) {
	now := time.Now().UTC()

	var expiresAt string
	row := s.db.QueryRowContext(ctx, `
		SELECT expires_at FROM idempotency_keys WHERE keyspace = ? AND key = ?
	`, keyspace, key)
	err := row.Scan(&expiresAt)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("idempotency: lookup %s/%s: %w", keyspace, key, err)
	}

	expiry, parseErr := time.Parse(time.RFC3339Nano, expiresAt)
	if parseErr == nil && now.Before(expiry) {
		return true, nil
	}
	// expired entry; treat as unseen.
	return false, nil
}

func (s *Store) set(ctx context.Context, keyspace, key string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (keyspace, key, seen_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (keyspace, key) DO UPDATE SET seen_at = excluded.seen_at, expires_at = excluded.expires_at
	`, keyspace, key, now.Format(time.RFC3339Nano), now.Add(s.ttl).Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("idempotency: record %s/%s: %w", keyspace, key, err)
	}
	return nil
}

// Sweep deletes expired keys from both keyspaces; callers run it
// periodically from a background goroutine.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys WHERE expires_at < ?
	`, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("idempotency: sweep: %w", err)
	}
	return res.RowsAffected()
}
