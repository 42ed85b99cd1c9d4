// Package scheduler is the Delay/Cron Scheduler: persisted scheduled tasks
// created by the `delay` action, replayed when due (spec.md §3 "Delay Task",
// §4.3 "delay").
package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Schedule is a parsed schedule for a recurring management task (e.g. the
// schema poller or reminder scan); one of three kinds per spec.md §6.
type Schedule struct {
	Kind     string // "at" | "every" | "cron"
	CronExpr string
	Every    time.Duration
	At       time.Time
	Timezone string
}

// NewAt builds an "at" (one-shot) schedule for a specific timestamp.
func NewAt(at time.Time) Schedule {
	return Schedule{Kind: "at", At: at}
}

// NewEvery builds an "every" (fixed interval) schedule.
func NewEvery(d time.Duration) Schedule {
	return Schedule{Kind: "every", Every: d}
}

// NewCron parses a cron expression (optionally with an IANA timezone) into
// a "cron" schedule.
func NewCron(expr, timezone string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Schedule{}, fmt.Errorf("scheduler: cron expression required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return Schedule{}, fmt.Errorf("scheduler: invalid cron expression %q: %w", expr, err)
	}
	return Schedule{Kind: "cron", CronExpr: expr, Timezone: timezone}, nil
}

// Next returns the next run time strictly after now, and whether one
// exists (an "at" schedule has none once it has passed).
func (s Schedule) Next(now time.Time) (time.Time, bool, error) {
	switch s.Kind {
	case "at":
		if s.At.IsZero() {
			return time.Time{}, false, fmt.Errorf("scheduler: at schedule missing timestamp")
		}
		if !now.Before(s.At) {
			return time.Time{}, false, nil
		}
		return s.At, true, nil
	case "every":
		if s.Every <= 0 {
			return time.Time{}, false, fmt.Errorf("scheduler: every schedule missing duration")
		}
		return now.Add(s.Every), true, nil
	case "cron":
		if s.CronExpr == "" {
			return time.Time{}, false, fmt.Errorf("scheduler: cron schedule missing expression")
		}
		loc := now.Location()
		if s.Timezone != "" {
			if tz, err := time.LoadLocation(s.Timezone); err == nil {
				loc = tz
			}
		}
		parsed, err := cronParser.Parse(s.CronExpr)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("scheduler: parse cron expression: %w", err)
		}
		next := parsed.Next(now.In(loc))
		return next, !next.IsZero(), nil
	default:
		return time.Time{}, false, fmt.Errorf("scheduler: unknown schedule kind %q", s.Kind)
	}
}
