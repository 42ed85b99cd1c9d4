// Package automation is the Automation Dispatcher and Processor: the
// central entry point for change events (webhooks, the events endpoint,
// and polled scans), and the per-record fetch→diff→match→execute→persist
// pipeline (spec.md §4.1, §4.2).
package automation

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/fieldbridge/fieldbridge/internal/actions"
	"github.com/fieldbridge/fieldbridge/internal/checkpoint"
	"github.com/fieldbridge/fieldbridge/internal/deadletter"
	"github.com/fieldbridge/fieldbridge/internal/idempotency"
	"github.com/fieldbridge/fieldbridge/internal/keylock"
	"github.com/fieldbridge/fieldbridge/internal/logging"
	"github.com/fieldbridge/fieldbridge/internal/match"
	"github.com/fieldbridge/fieldbridge/internal/rules"
	"github.com/fieldbridge/fieldbridge/internal/runlog"
	"github.com/fieldbridge/fieldbridge/internal/snapshot"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// RecordFetcher fetches a record's fields, optionally restricted to a
// field subset (empty set means "fetch every field").
type RecordFetcher interface {
	FetchFields(ctx context.Context, loc models.Locator, fields []string) (models.Fields, error)
}

// Options carries the NewRecord trigger policy (spec.md §4.2 step 3).
type Options struct {
	TriggerOnNewRecordEvent         bool
	TriggerOnNewRecordScan          bool
	ScanRequiresCheckpoint          bool
	StatusWriteEnabled              bool
}

// Processor implements the fetch→diff→match→execute→persist pipeline for
// one record at a time, serialized per (app_token, table_id, record_id).
type Processor struct {
	fetcher     RecordFetcher
	snapshots   *snapshot.Store
	idempotency *idempotency.Store
	checkpoints *checkpoint.Store
	rules       *rules.Registry
	executor    *actions.Executor
	runLog      runlog.Store
	deadLetters *deadletter.Store
	logger      *logging.Logger
	locks       *keylock.Locker
	opts        Options
}

// New builds a Processor from its collaborator stores.
func New(fetcher RecordFetcher, snapshots *snapshot.Store, idem *idempotency.Store, checkpoints *checkpoint.Store,
	reg *rules.Registry, executor *actions.Executor, runLog runlog.Store, deadLetters *deadletter.Store,
	logger *logging.Logger, opts Options) *Processor {
	return &Processor{
		fetcher:     fetcher,
		snapshots:   snapshots,
		idempotency: idem,
		checkpoints: checkpoints,
		rules:       reg,
		executor:    executor,
		runLog:      runLog,
		deadLetters: deadLetters,
		logger:      logger,
		locks:       keylock.New(),
		opts:        opts,
	}
}

func recordKey(loc models.Locator) string {
	return loc.AppToken + "/" + loc.TableID + "/" + loc.RecordID
}

// Process runs the pipeline for one normalized event. isScan distinguishes
// the polling-compensation path from the event-driven path for the
// new-record trigger policy.
func (p *Processor) Process(ctx context.Context, event models.EventEnvelope, isScan bool) (models.RunLogRow, error) {
	loc := models.Locator{AppToken: event.AppToken, TableID: event.TableID, RecordID: event.RecordID}

	if event.EventID != "" {
		seen, err := p.idempotency.SeenEvent(ctx, event.EventID)
		if err != nil && p.logger != nil {
			p.logger.Warn(ctx, "event idempotency check failed", "event_id", event.EventID, "error", err.Error())
		}
		if seen {
			return models.RunLogRow{
				ID:        uuid.NewString(),
				Timestamp: time.Now().UTC(),
				EventID:   event.EventID,
				AppToken:  event.AppToken,
				TableID:   event.TableID,
				RecordID:  event.RecordID,
				Result:    models.RunNoMatch,
			}, nil
		}
	}

	release, err := p.locks.Lock(ctx, recordKey(loc))
	if err != nil {
		return models.RunLogRow{}, fmt.Errorf("automation: acquire record lock: %w", err)
	}
	defer release()

	start := time.Now()
	row := models.RunLogRow{
		ID:        uuid.NewString(),
		Timestamp: start.UTC(),
		EventID:   event.EventID,
		AppToken:  event.AppToken,
		TableID:   event.TableID,
		RecordID:  event.RecordID,
	}

	allRules := p.rules.RulesForTable(event.AppToken, event.TableID)
	fetchSet := p.computeFetchSet(allRules)

	fields, err := p.fetcher.FetchFields(ctx, loc, fetchSet)
	if err != nil {
		row.Result = models.RunFailed
		row.Error = err.Error()
		row.DurationMS = time.Since(start).Milliseconds()
		p.appendRunLog(ctx, row)
		return row, fmt.Errorf("automation: fetch fields: %w", err)
	}

	prior, err := p.snapshots.Load(ctx, loc)
	if err != nil {
		row.Result = models.RunFailed
		row.Error = err.Error()
		row.DurationMS = time.Since(start).Milliseconds()
		p.appendRunLog(ctx, row)
		return row, fmt.Errorf("automation: load snapshot: %w", err)
	}

	isNewRecord := prior == nil
	if event.EventType == "init" {
		if err := p.snapshots.Save(ctx, loc, fields); err != nil {
			return row, fmt.Errorf("automation: save bootstrap snapshot: %w", err)
		}
		row.Result = models.RunNoMatch
		row.DurationMS = time.Since(start).Milliseconds()
		p.appendRunLog(ctx, row)
		return row, nil
	}

	if isNewRecord {
		allowed := false
		if isScan {
			allowed = p.opts.TriggerOnNewRecordScan
			if allowed && p.opts.ScanRequiresCheckpoint {
				cursor, cerr := p.checkpoints.Get(ctx, event.AppToken, event.TableID)
				if cerr == nil && cursor == "" {
					allowed = false
				}
			}
		} else {
			allowed = p.opts.TriggerOnNewRecordEvent
		}
		if !allowed {
			if err := p.snapshots.Save(ctx, loc, fields); err != nil {
				return row, fmt.Errorf("automation: save new-record snapshot: %w", err)
			}
			row.Result = models.RunNoMatch
			row.DurationMS = time.Since(start).Milliseconds()
			p.appendRunLog(ctx, row)
			return row, nil
		}
	}

	changes := snapshot.Diff(prior, fields)
	if len(changes) == 0 {
		if err := p.snapshots.Save(ctx, loc, fields); err != nil {
			return row, fmt.Errorf("automation: save unchanged snapshot: %w", err)
		}
		row.Result = models.RunNoMatch
		row.DurationMS = time.Since(start).Milliseconds()
		p.appendRunLog(ctx, row)
		return row, nil
	}

	eventOn := models.TriggerOnUpdated
	if isNewRecord {
		eventOn = models.TriggerOnCreated
	}
	for field, change := range changes {
		c := change
		row.TriggerField = field
		row.Changed = &c
		break
	}

	in := match.Input{Old: prior, New: fields, Changes: changes}
	var rulesMatched []string
	anyFailed := false

	for _, rule := range allRules {
		row.RulesEvaluated = append(row.RulesEvaluated, rule.ID)

		matched, evalErr := match.Evaluate(rule, eventOn, in)
		if evalErr != nil {
			if p.logger != nil {
				p.logger.Warn(ctx, "rule evaluation error", "rule_id", rule.ID, "error", evalErr.Error())
			}
			continue
		}
		if !matched {
			continue
		}

		businessKey := idempotency.BusinessKey(rule.ID, event.TableID, event.RecordID, changes)
		seen, err := p.idempotency.CheckBusiness(ctx, businessKey)
		if err != nil {
			if p.logger != nil {
				p.logger.Warn(ctx, "idempotency check failed", "rule_id", rule.ID, "error", err.Error())
			}
		}
		if seen {
			continue
		}

		rulesMatched = append(rulesMatched, rule.ID)
		details, deadLetterCandidates, runErr := p.executor.RunPipeline(ctx, rule, loc, fields)
		row.ActionsDetail = append(row.ActionsDetail, details...)
		for _, d := range details {
			row.ActionsExec = append(row.ActionsExec, d.Type)
		}

		if runErr != nil {
			anyFailed = true
			row.Error = runErr.Error()
			for _, candidate := range deadLetterCandidates {
				dl := models.DeadLetter{
					ID:         uuid.NewString(),
					CreatedAt:  time.Now().UTC(),
					RuleID:     rule.ID,
					AppToken:   event.AppToken,
					TableID:    event.TableID,
					RecordID:   event.RecordID,
					ActionType: candidate.ActionType,
					Error:      candidate.Error,
					RetryCount: candidate.RetryCount,
				}
				if p.deadLetters != nil {
					if err := p.deadLetters.Put(ctx, dl); err != nil && p.logger != nil {
						p.logger.Error(ctx, "dead-letter persist failed", "rule_id", rule.ID, "error", err.Error())
					}
				}
				row.SentDeadLetter = true
			}
			// Not marked as seen: spec.md §4.2 step 5 only skips a business
			// key once it was recorded successful, so a redelivered
			// identical change-set may still retry the pipeline after this
			// failure.
			continue
		}

		if err := p.idempotency.MarkBusinessSuccess(ctx, businessKey); err != nil && p.logger != nil {
			p.logger.Warn(ctx, "idempotency mark-success failed", "rule_id", rule.ID, "error", err.Error())
		}
	}

	row.RulesMatched = rulesMatched
	switch {
	case len(rulesMatched) == 0:
		row.Result = models.RunNoMatch
	case anyFailed:
		row.Result = models.RunPartial
		if len(rulesMatched) == len(row.RulesEvaluated) {
			row.Result = models.RunFailed
		}
	default:
		row.Result = models.RunSuccess
	}

	if err := p.snapshots.Save(ctx, loc, fields); err != nil {
		return row, fmt.Errorf("automation: save snapshot: %w", err)
	}
	if isScan {
		_ = p.checkpoints.Set(ctx, event.AppToken, event.TableID, event.RecordID)
	}

	row.DurationMS = time.Since(start).Milliseconds()
	p.appendRunLog(ctx, row)
	return row, nil
}

// RunDelayedPipeline replays a delay task's sub-pipeline; satisfies
// internal/scheduler.PipelineRunner.
func (p *Processor) RunDelayedPipeline(ctx context.Context, task models.DelayTask) error {
	loc := models.Locator{AppToken: task.AppToken, TableID: task.TableID, RecordID: task.RecordID}
	release, err := p.locks.Lock(ctx, recordKey(loc))
	if err != nil {
		return fmt.Errorf("automation: acquire record lock for delayed pipeline: %w", err)
	}
	defer release()

	fields, err := p.fetcher.FetchFields(ctx, loc, nil)
	if err != nil {
		return fmt.Errorf("automation: fetch fields for delayed pipeline: %w", err)
	}

	rule := models.Rule{ID: task.RuleID, Pipeline: task.Pipeline}
	_, deadLetterCandidates, runErr := p.executor.RunPipeline(ctx, rule, loc, fields)
	for _, candidate := range deadLetterCandidates {
		if p.deadLetters == nil {
			continue
		}
		dl := models.DeadLetter{
			ID:         uuid.NewString(),
			CreatedAt:  time.Now().UTC(),
			RuleID:     task.RuleID,
			AppToken:   task.AppToken,
			TableID:    task.TableID,
			RecordID:   task.RecordID,
			ActionType: candidate.ActionType,
			Error:      candidate.Error,
			RetryCount: candidate.RetryCount,
		}
		_ = p.deadLetters.Put(ctx, dl)
	}
	return runErr
}

// computeFetchSet implements spec.md §4.2 step 1: the minimal field set,
// or nil (meaning "fetch everything") if any rule uses any_field_changed.
func (p *Processor) computeFetchSet(rulesForTable []models.Rule) []string {
	seen := map[string]bool{}
	var fields []string
	for _, rule := range rulesForTable {
		if rule.UsesAnyFieldChanged() {
			return nil
		}
		for _, f := range rule.TriggerFields() {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
		for _, action := range rule.Pipeline {
			addTemplateFields(action.Template, seen, &fields)
			addTemplateFields(action.Title, seen, &fields)
			for _, tmpl := range action.Fields {
				addTemplateFields(tmpl, seen, &fields)
			}
			for _, tmpl := range action.Headers {
				addTemplateFields(tmpl, seen, &fields)
			}
			if action.StartField != "" && !seen[action.StartField] {
				seen[action.StartField] = true
				fields = append(fields, action.StartField)
			}
			if action.EndField != "" && !seen[action.EndField] {
				seen[action.EndField] = true
				fields = append(fields, action.EndField)
			}
		}
	}
	return fields
}

// templateFieldPattern matches the `{{.FieldName}}` placeholders used by
// internal/actions' text/template rendering.
var templateFieldPattern = regexp.MustCompile(`\{\{\s*\.([^\s}]+)\s*\}\}`)

func addTemplateFields(tmplText string, seen map[string]bool, fields *[]string) {
	for _, m := range templateFieldPattern.FindAllStringSubmatch(tmplText, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			*fields = append(*fields, name)
		}
	}
}

func (p *Processor) appendRunLog(ctx context.Context, row models.RunLogRow) {
	if p.runLog == nil {
		return
	}
	if err := p.runLog.Append(ctx, row); err != nil && p.logger != nil {
		p.logger.Error(ctx, "run log append failed", "event_id", row.EventID, "error", err.Error())
	}
}
