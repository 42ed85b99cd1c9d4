package scheduler

import (
	"testing"
	"time"
)

func TestScheduleEveryAdvancesByDuration(t *testing.T) {
	sched := NewEvery(5 * time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	next, ok, err := sched.Next(now)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !ok {
		t.Fatalf("expected a next run time")
	}
	if !next.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("expected next = %v, got %v", now.Add(5*time.Minute), next)
	}
}

func TestScheduleAtExpiresOncePassed(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sched := NewAt(at)

	_, ok, err := sched.Next(at.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !ok {
		t.Fatalf("expected a run before the at-time")
	}

	_, ok, err = sched.Next(at.Add(time.Minute))
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if ok {
		t.Fatalf("expected no next run once the at-time has passed")
	}
}

func TestScheduleCronRejectsInvalidExpression(t *testing.T) {
	if _, err := NewCron("not a cron expr", ""); err == nil {
		t.Fatalf("expected error for invalid cron expression")
	}
}

func TestScheduleCronNextRespectsTimezone(t *testing.T) {
	sched, err := NewCron("0 9 * * *", "Asia/Shanghai")
	if err != nil {
		t.Fatalf("NewCron() error = %v", err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, ok, err := sched.Next(now)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !ok {
		t.Fatalf("expected a next run time")
	}
	loc, _ := time.LoadLocation("Asia/Shanghai")
	if next.In(loc).Hour() != 9 {
		t.Fatalf("expected 9am Asia/Shanghai, got %v", next.In(loc))
	}
}
