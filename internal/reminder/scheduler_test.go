package reminder

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/dedupe"
	"github.com/fieldbridge/fieldbridge/internal/logging"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) SendText(_ context.Context, openID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, openID+":"+text)
	return nil
}

func newTestLogger() *logging.Logger {
	return logging.NewLogger(logging.LogConfig{Level: "error", Format: "text", Output: io.Discard})
}

func TestSchedulerDispatchesDueReminderOnce(t *testing.T) {
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	r, err := store.Create(ctx, models.Reminder{
		OpenID:    "ou_1",
		Message:   "喝水",
		TriggerAt: time.Now().Add(-time.Minute),
		TargetDay: "2026-07-31",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	sender := &fakeSender{}
	dedup := dedupe.NewDedupeCache(dedupe.DedupeCacheOptions{TTL: time.Hour, MaxSize: 100})
	sched := NewScheduler(store, sender, dedup, time.Hour, newTestLogger())

	sched.tick(ctx)
	sched.tick(ctx)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly one dispatch, got %v", sender.sent)
	}

	reminders, err := store.List(ctx, "ou_1", false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(reminders) != 1 || reminders[0].Status != models.ReminderDispatched {
		t.Fatalf("expected dispatched status, got %#v", reminders)
	}
	_ = r
}

func TestStoreCompleteAndDelete(t *testing.T) {
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	r, err := store.Create(ctx, models.Reminder{OpenID: "ou_2", Message: "开会", TriggerAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := store.Complete(ctx, "ou_2", r.ID); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	reminders, err := store.List(ctx, "ou_2", true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(reminders) != 0 {
		t.Fatalf("expected no pending reminders after complete, got %#v", reminders)
	}
}
