package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fieldbridge/fieldbridge/internal/actions"
	"github.com/fieldbridge/fieldbridge/internal/checkpoint"
	"github.com/fieldbridge/fieldbridge/internal/deadletter"
	"github.com/fieldbridge/fieldbridge/internal/idempotency"
	"github.com/fieldbridge/fieldbridge/internal/rules"
	"github.com/fieldbridge/fieldbridge/internal/runlog"
	"github.com/fieldbridge/fieldbridge/internal/snapshot"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

const testRulesYAML = `
rules:
  - id: R001
    enabled: true
    table:
      app_token: app1
      table_id: tbl1
    trigger:
      on: [updated]
      condition:
        kind: changed
        field: 状态
    pipeline:
      - type: log.write
        template: "状态变更为 {{.状态}}"
`

type fakeFetcher struct {
	fields models.Fields
}

func (f *fakeFetcher) FetchFields(ctx context.Context, loc models.Locator, fields []string) (models.Fields, error) {
	return f.fields, nil
}

func newTestProcessor(t *testing.T, fetcher *fakeFetcher) *Processor {
	t.Helper()

	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(rulesPath, []byte(testRulesYAML), 0o644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	reg := rules.New(rulesPath, nil)
	if err := reg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	snapStore, err := snapshot.Open(":memory:")
	if err != nil {
		t.Fatalf("snapshot.Open() error = %v", err)
	}
	idemStore, err := idempotency.Open(":memory:", 0)
	if err != nil {
		t.Fatalf("idempotency.Open() error = %v", err)
	}
	checkStore, err := checkpoint.Open(":memory:")
	if err != nil {
		t.Fatalf("checkpoint.Open() error = %v", err)
	}
	dlStore, err := deadletter.Open(":memory:")
	if err != nil {
		t.Fatalf("deadletter.Open() error = %v", err)
	}
	runLog, err := runlog.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("runlog.OpenSQLite() error = %v", err)
	}

	executor := actions.New(nil, nil, nil, nil, 1, 0)

	return New(fetcher, snapStore, idemStore, checkStore, reg, executor, runLog, dlStore, nil, Options{
		TriggerOnNewRecordEvent: false,
	})
}

func TestProcessBootstrapsSnapshotWithoutFiringRules(t *testing.T) {
	fetcher := &fakeFetcher{fields: models.Fields{
		"状态": {Kind: models.FieldKindSingleSelect, SingleSelect: "待处理"},
	}}
	p := newTestProcessor(t, fetcher)

	row, err := p.Process(context.Background(), models.EventEnvelope{
		EventID:   "evt-1",
		EventType: "init",
		AppToken:  "app1",
		TableID:   "tbl1",
		RecordID:  "rec1",
	}, false)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if row.Result != models.RunNoMatch {
		t.Fatalf("expected no_match on bootstrap, got %s", row.Result)
	}
	if len(row.RulesMatched) != 0 {
		t.Fatalf("expected no rules matched on bootstrap, got %v", row.RulesMatched)
	}
}

func TestProcessMatchesRuleOnFieldChange(t *testing.T) {
	fetcher := &fakeFetcher{fields: models.Fields{
		"状态": {Kind: models.FieldKindSingleSelect, SingleSelect: "待处理"},
	}}
	p := newTestProcessor(t, fetcher)
	ctx := context.Background()

	if _, err := p.Process(ctx, models.EventEnvelope{
		EventID: "evt-1", EventType: "init", AppToken: "app1", TableID: "tbl1", RecordID: "rec1",
	}, false); err != nil {
		t.Fatalf("bootstrap Process() error = %v", err)
	}

	fetcher.fields = models.Fields{
		"状态": {Kind: models.FieldKindSingleSelect, SingleSelect: "已完成"},
	}

	row, err := p.Process(ctx, models.EventEnvelope{
		EventID: "evt-2", EventType: models.EventFieldChanged, AppToken: "app1", TableID: "tbl1", RecordID: "rec1",
	}, false)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if row.Result != models.RunSuccess {
		t.Fatalf("expected success, got %s (%s)", row.Result, row.Error)
	}
	if len(row.RulesMatched) != 1 || row.RulesMatched[0] != "R001" {
		t.Fatalf("expected rule R001 matched, got %v", row.RulesMatched)
	}
}

func TestProcessDuplicateEventIsNoop(t *testing.T) {
	fetcher := &fakeFetcher{fields: models.Fields{
		"状态": {Kind: models.FieldKindSingleSelect, SingleSelect: "待处理"},
	}}
	p := newTestProcessor(t, fetcher)
	ctx := context.Background()

	event := models.EventEnvelope{EventID: "evt-dup", EventType: "init", AppToken: "app1", TableID: "tbl1", RecordID: "rec1"}
	if _, err := p.Process(ctx, event, false); err != nil {
		t.Fatalf("first Process() error = %v", err)
	}

	row, err := p.Process(ctx, event, false)
	if err != nil {
		t.Fatalf("duplicate Process() error = %v", err)
	}
	if row.Result != models.RunNoMatch {
		t.Fatalf("expected duplicate event to be a no-op, got %s", row.Result)
	}
}
