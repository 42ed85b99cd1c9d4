package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/fieldbridge/fieldbridge/pkg/models"
)

type fakeRunner struct {
	ran []string
	err error
}

func (f *fakeRunner) RunDelayedPipeline(ctx context.Context, task models.DelayTask) error {
	f.ran = append(f.ran, task.TaskID)
	return f.err
}

func TestPollerReplaysDueTaskOnce(t *testing.T) {
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	task := models.DelayTask{
		RuleID:      "R001",
		AppToken:    "app1",
		TableID:     "tbl1",
		RecordID:    "rec1",
		ScheduledAt: time.Now().UTC().Add(-time.Minute),
		Pipeline:    []models.Action{{Type: models.ActionLogWrite, Template: "due"}},
	}
	if err := store.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	runner := &fakeRunner{}
	poller := NewPoller(store, runner, nil, time.Hour)

	if n := poller.RunOnce(ctx); n != 1 {
		t.Fatalf("expected 1 task replayed, got %d", n)
	}
	if n := poller.RunOnce(ctx); n != 0 {
		t.Fatalf("expected task not to be replayed twice, got %d", n)
	}
	if len(runner.ran) != 1 {
		t.Fatalf("expected runner invoked once, got %d", len(runner.ran))
	}
}
