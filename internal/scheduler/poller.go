package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/logging"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// PipelineRunner replays a delay task's sub-pipeline against the record it
// targets. Implemented by internal/automation's Processor so scheduler has
// no dependency on the action executors themselves.
type PipelineRunner interface {
	RunDelayedPipeline(ctx context.Context, task models.DelayTask) error
}

// Poller periodically claims and replays due delay tasks.
type Poller struct {
	store    *Store
	runner   PipelineRunner
	logger   *logging.Logger
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewPoller creates a Poller that checks for due tasks every interval.
func NewPoller(store *Store, runner PipelineRunner, logger *logging.Logger, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		store:    store,
		runner:   runner,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs the poll loop in a background goroutine until ctx is
// cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-ticker.C:
				p.runDue(ctx)
			}
		}
	}()
}

// Stop signals the poll loop to exit and waits for it to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	close(p.stop)
	done := p.done
	p.started = false
	p.mu.Unlock()
	<-done
}

// RunOnce runs a single poll pass immediately, primarily for tests and the
// management `/scheduler/run-once` endpoint.
func (p *Poller) RunOnce(ctx context.Context) int {
	return p.runDue(ctx)
}

func (p *Poller) runDue(ctx context.Context) int {
	tasks, err := p.store.Due(ctx, p.now(), 50)
	if err != nil {
		if p.logger != nil {
			p.logger.Error(ctx, "scheduler: list due tasks failed", "error", err.Error())
		}
		return 0
	}

	ran := 0
	for _, task := range tasks {
		if err := p.store.MarkRunning(ctx, task.TaskID); err != nil {
			continue // another poller instance claimed it first
		}
		runErr := p.runner.RunDelayedPipeline(ctx, task)
		if finishErr := p.store.Finish(ctx, task.TaskID, runErr); finishErr != nil && p.logger != nil {
			p.logger.Error(ctx, "scheduler: finish task failed", "task_id", task.TaskID, "error", finishErr.Error())
		}
		if runErr != nil && p.logger != nil {
			p.logger.Warn(ctx, "scheduler: delayed pipeline failed", "task_id", task.TaskID, "error", runErr.Error())
		}
		ran++
	}
	return ran
}
