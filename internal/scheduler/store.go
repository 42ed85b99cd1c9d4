package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/storeutil"
	"github.com/fieldbridge/fieldbridge/pkg/models"
	"github.com/google/uuid"
)

// Store persists delay tasks so a process restart doesn't drop pending
// replays.
type Store struct {
	db *sql.DB
}

// OpenStore opens a sqlite-backed delay task store.
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
		CREATE TABLE IF NOT EXISTS delay_tasks (
			task_id      TEXT PRIMARY KEY,
			rule_id      TEXT NOT NULL,
			app_token    TEXT NOT NULL,
			table_id     TEXT NOT NULL,
			record_id    TEXT NOT NULL,
			scheduled_at TEXT NOT NULL,
			pipeline     TEXT NOT NULL,
			status       TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			run_at       TEXT,
			last_error   TEXT
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_delay_tasks_due ON delay_tasks(status, scheduled_at)`)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Enqueue persists a new delay task, assigning it a task id if unset.
func (s *Store) Enqueue(ctx context.Context, task models.DelayTask) error {
	if task.TaskID == "" {
		task.TaskID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	pipeline, err := json.Marshal(task.Pipeline)
	if err != nil {
		return fmt.Errorf("scheduler: encode pipeline %s: %w", task.TaskID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO delay_tasks (task_id, rule_id, app_token, table_id, record_id, scheduled_at, pipeline, status, created_at, run_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)
	`, task.TaskID, task.RuleID, task.AppToken, task.TableID, task.RecordID,
		task.ScheduledAt.UTC().Format(time.RFC3339Nano), string(pipeline), string(models.DelayScheduled),
		task.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("scheduler: enqueue %s: %w", task.TaskID, err)
	}
	return nil
}

// Due returns scheduled tasks whose scheduled_at has passed, up to limit.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]models.DelayTask, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, rule_id, app_token, table_id, record_id, scheduled_at, pipeline, status, created_at
		FROM delay_tasks WHERE status = ? AND scheduled_at <= ? ORDER BY scheduled_at ASC LIMIT ?
	`, string(models.DelayScheduled), now.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, fmt.Errorf("scheduler: due: %w", err)
	}
	defer rows.Close()

	var out []models.DelayTask
	for rows.Next() {
		var task models.DelayTask
		var scheduledAt, pipeline, status, createdAt string
		if err := rows.Scan(&task.TaskID, &task.RuleID, &task.AppToken, &task.TableID, &task.RecordID,
			&scheduledAt, &pipeline, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scheduler: scan: %w", err)
		}
		task.ScheduledAt, _ = time.Parse(time.RFC3339Nano, scheduledAt)
		task.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		task.Status = models.DelayTaskStatus(status)
		_ = json.Unmarshal([]byte(pipeline), &task.Pipeline)
		out = append(out, task)
	}
	return out, rows.Err()
}

// MarkRunning transitions a task from scheduled to running, so a second
// poller instance won't double-replay it.
func (s *Store) MarkRunning(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE delay_tasks SET status = ?, run_at = ? WHERE task_id = ? AND status = ?
	`, string(models.DelayRunning), time.Now().UTC().Format(time.RFC3339Nano), taskID, string(models.DelayScheduled))
	if err != nil {
		return fmt.Errorf("scheduler: mark running %s: %w", taskID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("scheduler: %s already claimed", taskID)
	}
	return nil
}

// Finish marks a task done or failed.
func (s *Store) Finish(ctx context.Context, taskID string, runErr error) error {
	status := models.DelayDone
	var lastError any
	if runErr != nil {
		status = models.DelayFailed
		lastError = runErr.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE delay_tasks SET status = ?, last_error = ? WHERE task_id = ?
	`, string(status), lastError, taskID)
	if err != nil {
		return fmt.Errorf("scheduler: finish %s: %w", taskID, err)
	}
	return nil
}

// Cancel marks a scheduled task cancelled so it is skipped by Due.
func (s *Store) Cancel(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE delay_tasks SET status = ? WHERE task_id = ? AND status = ?
	`, string(models.DelayCancelled), taskID, string(models.DelayScheduled))
	if err != nil {
		return fmt.Errorf("scheduler: cancel %s: %w", taskID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("scheduler: %s not cancellable", taskID)
	}
	return nil
}

// List returns tasks for a record, newest first — used by the management
// endpoints.
func (s *Store) List(ctx context.Context, appToken, tableID, recordID string, limit int) ([]models.DelayTask, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, rule_id, app_token, table_id, record_id, scheduled_at, pipeline, status, created_at
		FROM delay_tasks WHERE app_token = ? AND table_id = ? AND record_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, appToken, tableID, recordID, limit)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list: %w", err)
	}
	defer rows.Close()

	var out []models.DelayTask
	for rows.Next() {
		var task models.DelayTask
		var scheduledAt, pipeline, status, createdAt string
		if err := rows.Scan(&task.TaskID, &task.RuleID, &task.AppToken, &task.TableID, &task.RecordID,
			&scheduledAt, &pipeline, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scheduler: scan: %w", err)
		}
		task.ScheduledAt, _ = time.Parse(time.RFC3339Nano, scheduledAt)
		task.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		task.Status = models.DelayTaskStatus(status)
		_ = json.Unmarshal([]byte(pipeline), &task.Pipeline)
		out = append(out, task)
	}
	return out, rows.Err()
}
