package reminder

import (
	"context"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/dedupe"
	"github.com/fieldbridge/fieldbridge/internal/logging"
)

// Sender delivers a dispatched reminder's text to its conversation. The
// channel send itself is an out-of-scope collaborator (spec.md §1); this
// interface is the seam fieldbridge owns.
type Sender interface {
	SendText(ctx context.Context, openID, text string) error
}

// Scheduler periodically scans Store for due reminders and dispatches
// them through dedup, exactly once per (business_id, target_day, offset).
type Scheduler struct {
	store    *Store
	sender   Sender
	dedup    *dedupe.DedupeCache
	interval time.Duration
	logger   *logging.Logger

	stop chan struct{}
}

// NewScheduler builds a Scheduler. interval defaults to 30s if unset.
func NewScheduler(store *Store, sender Sender, dedup *dedupe.DedupeCache, interval time.Duration, logger *logging.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		store:    store,
		sender:   sender,
		dedup:    dedup,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Run blocks, polling until ctx is cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop ends a running Scheduler's poll loop.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.store.Due(ctx, time.Now(), 50)
	if err != nil {
		s.logger.Error(ctx, "reminder: scan due failed", "error", err)
		return
	}
	for _, r := range due {
		key := dedupe.ReminderDispatchKey(r.ID, r.TargetDay, r.Offset)
		if s.dedup.Check(key) {
			// Already dispatched for this (reminder, day, offset); skip.
			continue
		}
		if err := s.sender.SendText(ctx, r.OpenID, r.Message); err != nil {
			s.logger.Error(ctx, "reminder: dispatch failed", "reminder_id", r.ID, "error", err)
			continue
		}
		if err := s.store.MarkDispatched(ctx, r.ID); err != nil {
			s.logger.Error(ctx, "reminder: mark dispatched failed", "reminder_id", r.ID, "error", err)
		}
	}
}
