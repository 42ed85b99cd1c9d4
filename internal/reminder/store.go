// Package reminder is ReminderSkill's durable backing store and its
// background dispatch scheduler (spec.md §4.6): local CRUD against a
// durable store, with a poller that scans pending reminders and dispatches
// through a dedupe gateway so overlapping pollers or a restart never
// double-send.
package reminder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/storeutil"
	"github.com/fieldbridge/fieldbridge/pkg/models"
	"github.com/google/uuid"
)

// Store persists reminders.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) a sqlite-backed reminder store.
func OpenStore(path string) (*Store, error) {
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
		CREATE TABLE IF NOT EXISTS reminders (
			id             TEXT PRIMARY KEY,
			open_id        TEXT NOT NULL,
			message        TEXT NOT NULL,
			trigger_at     TEXT NOT NULL,
			status         TEXT NOT NULL,
			created_at     TEXT NOT NULL,
			target_day     TEXT NOT NULL,
			offset_n       INTEGER NOT NULL,
			defaulted_time INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(status, trigger_at)`)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Create persists a new reminder, assigning it an id if unset.
func (s *Store) Create(ctx context.Context, r models.Reminder) (models.Reminder, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = models.ReminderPending
	}
	defaulted := 0
	if r.DefaultedTime {
		defaulted = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, open_id, message, trigger_at, status, created_at, target_day, offset_n, defaulted_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.OpenID, r.Message, r.TriggerAt.UTC().Format(time.RFC3339Nano), string(r.Status),
		r.CreatedAt.Format(time.RFC3339Nano), r.TargetDay, r.Offset, defaulted)
	if err != nil {
		return models.Reminder{}, fmt.Errorf("reminder: create %s: %w", r.ID, err)
	}
	return r, nil
}

// List returns a conversation's reminders, newest first, optionally
// filtered to pending-only.
func (s *Store) List(ctx context.Context, openID string, pendingOnly bool) ([]models.Reminder, error) {
	query := `SELECT id, open_id, message, trigger_at, status, created_at, target_day, offset_n, defaulted_time
		FROM reminders WHERE open_id = ?`
	args := []any{openID}
	if pendingOnly {
		query += ` AND status = ?`
		args = append(args, string(models.ReminderPending))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reminder: list: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// Due returns pending reminders whose trigger time has passed.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, open_id, message, trigger_at, status, created_at, target_day, offset_n, defaulted_time
		FROM reminders WHERE status = ? AND trigger_at <= ? ORDER BY trigger_at ASC LIMIT ?
	`, string(models.ReminderPending), now.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, fmt.Errorf("reminder: due: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func scanReminders(rows *sql.Rows) ([]models.Reminder, error) {
	var out []models.Reminder
	for rows.Next() {
		var r models.Reminder
		var triggerAt, status, createdAt string
		var defaulted int
		if err := rows.Scan(&r.ID, &r.OpenID, &r.Message, &triggerAt, &status, &createdAt,
			&r.TargetDay, &r.Offset, &defaulted); err != nil {
			return nil, fmt.Errorf("reminder: scan: %w", err)
		}
		r.TriggerAt, _ = time.Parse(time.RFC3339Nano, triggerAt)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		r.Status = models.ReminderStatus(status)
		r.DefaultedTime = defaulted != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Complete marks a reminder done, whatever its current status.
func (s *Store) Complete(ctx context.Context, openID, id string) error {
	return s.setStatus(ctx, openID, id, models.ReminderCompleted)
}

// Delete marks a reminder deleted rather than removing the row, so it
// still shows up in an audit of what a user asked for and then cancelled.
func (s *Store) Delete(ctx context.Context, openID, id string) error {
	return s.setStatus(ctx, openID, id, models.ReminderDeleted)
}

// MarkDispatched transitions a due reminder to dispatched so the scheduler
// doesn't resend it.
func (s *Store) MarkDispatched(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = ? WHERE id = ? AND status = ?
	`, string(models.ReminderDispatched), id, string(models.ReminderPending))
	if err != nil {
		return fmt.Errorf("reminder: mark dispatched %s: %w", id, err)
	}
	return nil
}

func (s *Store) setStatus(ctx context.Context, openID, id string, status models.ReminderStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET status = ? WHERE id = ? AND open_id = ?
	`, string(status), id, openID)
	if err != nil {
		return fmt.Errorf("reminder: set status %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("reminder: %s not found for %s", id, openID)
	}
	return nil
}
