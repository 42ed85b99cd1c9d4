package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/fieldbridge/fieldbridge/pkg/models"
)

func openTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := Open("", ttl)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSeenEventDedupsOnFirstCheck(t *testing.T) {
	s := openTestStore(t, time.Hour)
	ctx := context.Background()

	seen, err := s.SeenEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("SeenEvent: %v", err)
	}
	if seen {
		t.Fatal("expected first delivery to be unseen")
	}

	seen, err = s.SeenEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("SeenEvent: %v", err)
	}
	if !seen {
		t.Fatal("expected redelivery of the same event id to be seen")
	}
}

func TestCheckBusinessDoesNotRecordByItself(t *testing.T) {
	s := openTestStore(t, time.Hour)
	ctx := context.Background()
	key := BusinessKey("R001", "tbl1", "rec1", models.ChangeSet{"状态": {}})

	seen, err := s.CheckBusiness(ctx, key)
	if err != nil {
		t.Fatalf("CheckBusiness: %v", err)
	}
	if seen {
		t.Fatal("expected unseen key before any success was recorded")
	}

	// Checking again without marking success must still report unseen —
	// a failed/dead-lettered pipeline run must not block a retry.
	seen, err = s.CheckBusiness(ctx, key)
	if err != nil {
		t.Fatalf("CheckBusiness: %v", err)
	}
	if seen {
		t.Fatal("CheckBusiness must not itself mark the key as seen")
	}
}

func TestMarkBusinessSuccessThenCheckBusinessIsSeen(t *testing.T) {
	s := openTestStore(t, time.Hour)
	ctx := context.Background()
	key := BusinessKey("R001", "tbl1", "rec1", models.ChangeSet{"状态": {}})

	if err := s.MarkBusinessSuccess(ctx, key); err != nil {
		t.Fatalf("MarkBusinessSuccess: %v", err)
	}

	seen, err := s.CheckBusiness(ctx, key)
	if err != nil {
		t.Fatalf("CheckBusiness: %v", err)
	}
	if !seen {
		t.Fatal("expected key to be seen once a successful run was recorded")
	}
}

func TestBusinessKeyExpiresAfterTTL(t *testing.T) {
	s := openTestStore(t, time.Millisecond)
	ctx := context.Background()
	key := BusinessKey("R001", "tbl1", "rec1", models.ChangeSet{"状态": {}})

	if err := s.MarkBusinessSuccess(ctx, key); err != nil {
		t.Fatalf("MarkBusinessSuccess: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	seen, err := s.CheckBusiness(ctx, key)
	if err != nil {
		t.Fatalf("CheckBusiness: %v", err)
	}
	if seen {
		t.Fatal("expected an expired business key to read as unseen")
	}
}

func TestBusinessKeyStableAcrossChangeSetOrdering(t *testing.T) {
	a := BusinessKey("R001", "tbl1", "rec1", models.ChangeSet{"a": {}, "b": {}})
	b := BusinessKey("R001", "tbl1", "rec1", models.ChangeSet{"b": {}, "a": {}})
	if a != b {
		t.Fatalf("expected key to be stable regardless of map iteration order, got %q vs %q", a, b)
	}
}
