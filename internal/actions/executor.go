// Package actions implements the Action Executors: log.write,
// bitable.update, bitable.upsert, calendar.create, http.request, and
// delay, each run through a shared retry+dead-letter wrapper (spec.md
// §4.3).
package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/bitable"
	"github.com/fieldbridge/fieldbridge/internal/logging"
	"github.com/fieldbridge/fieldbridge/internal/netguard"
	"github.com/fieldbridge/fieldbridge/internal/retry"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// DelayEnqueuer is satisfied by the scheduler; the delay action hands its
// sub-pipeline off rather than executing it inline.
type DelayEnqueuer interface {
	Enqueue(ctx context.Context, task models.DelayTask) error
}

// Executor runs one rule's action pipeline against a single record,
// aborting on the first action whose retries are exhausted.
type Executor struct {
	bitable    *bitable.Client
	httpClient *http.Client
	allowlist  *netguard.AllowlistPolicy
	delay      DelayEnqueuer
	logger     *logging.Logger
	retryCfg   retry.Config
}

// New builds an Executor. allowlist gates every http.request action
// (spec.md §8 invariant 7); httpTimeout bounds outbound http.request calls.
func New(client *bitable.Client, allowlist *netguard.AllowlistPolicy, delay DelayEnqueuer, logger *logging.Logger, maxRetries int, retryDelay time.Duration) *Executor {
	cfg := retry.DefaultConfig()
	if maxRetries > 0 {
		cfg.MaxAttempts = maxRetries
	}
	if retryDelay > 0 {
		cfg.InitialDelay = retryDelay
	}
	return &Executor{
		bitable:    client,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		allowlist:  allowlist,
		delay:      delay,
		logger:     logger,
		retryCfg:   cfg,
	}
}

// RunPipeline executes a rule's pipeline sequentially against a record,
// templating `{field}` placeholders from the record's current fields.
// It returns the per-action detail for the run-log row, the action types
// that were dead-lettered, and the first unrecoverable error (if any),
// which tells the caller to abort the remainder of the pipeline.
func (e *Executor) RunPipeline(ctx context.Context, rule models.Rule, loc models.Locator, fields models.Fields) ([]models.ActionDetail, []DeadLetterCandidate, error) {
	var details []models.ActionDetail
	var deadLetters []DeadLetterCandidate

	for _, action := range rule.Pipeline {
		start := time.Now()
		var attempts int
		result := retry.Do(ctx, e.retryCfg, func() error {
			attempts++
			return e.runOne(ctx, action, loc, fields)
		})

		detail := models.ActionDetail{
			Type:       action.Type,
			RetryCount: attempts - 1,
			DurationMS: time.Since(start).Milliseconds(),
			OK:         result.Err == nil,
		}
		if result.Err != nil {
			detail.Error = result.Err.Error()
		}
		details = append(details, detail)

		if result.Err != nil {
			deadLetters = append(deadLetters, DeadLetterCandidate{
				ActionType: action.Type,
				Error:      result.Err.Error(),
				RetryCount: detail.RetryCount,
			})
			return details, deadLetters, fmt.Errorf("actions: %s failed: %w", action.Type, result.Err)
		}
	}
	return details, deadLetters, nil
}

// DeadLetterCandidate is a pipeline step that exhausted its retries; the
// caller (Processor) persists it to internal/deadletter alongside the
// record locator and rule id.
type DeadLetterCandidate struct {
	ActionType models.ActionType
	Error      string
	RetryCount int
}

func (e *Executor) runOne(ctx context.Context, action models.Action, loc models.Locator, fields models.Fields) error {
	switch action.Type {
	case models.ActionLogWrite:
		return e.logWrite(ctx, action, loc, fields)
	case models.ActionBitableUpdate:
		return e.bitableUpdate(ctx, action, loc, fields)
	case models.ActionBitableUpsert:
		return e.bitableUpsert(ctx, action, loc, fields)
	case models.ActionCalendarCreate:
		return e.calendarCreate(ctx, action, loc, fields)
	case models.ActionHTTPRequest:
		return e.httpRequest(ctx, action, loc, fields)
	case models.ActionDelay:
		return e.delayAction(ctx, action, loc)
	default:
		return retry.Permanent(fmt.Errorf("actions: unknown action type %q", action.Type))
	}
}

func (e *Executor) logWrite(ctx context.Context, action models.Action, loc models.Locator, fields models.Fields) error {
	rendered, err := renderTemplate(action.Template, fields)
	if err != nil {
		return retry.Permanent(err)
	}
	if e.logger != nil {
		e.logger.Info(ctx, "rule action log.write", "app_token", loc.AppToken, "table_id", loc.TableID,
			"record_id", loc.RecordID, "message", rendered)
	}
	return nil
}

func (e *Executor) bitableUpdate(ctx context.Context, action models.Action, loc models.Locator, fields models.Fields) error {
	patch, err := renderFieldMap(action.Fields, fields)
	if err != nil {
		return retry.Permanent(err)
	}
	target := loc
	if action.Target != nil {
		target = models.Locator{AppToken: action.Target.AppToken, TableID: action.Target.TableID, RecordID: loc.RecordID}
	}
	return e.bitable.UpdateFields(ctx, target, patch)
}

func (e *Executor) bitableUpsert(ctx context.Context, action models.Action, loc models.Locator, fields models.Fields) error {
	if action.Target == nil {
		return retry.Permanent(fmt.Errorf("actions: bitable.upsert requires target"))
	}
	patch, err := renderFieldMap(action.Fields, fields)
	if err != nil {
		return retry.Permanent(err)
	}
	return e.bitable.UpsertRecord(ctx, *action.Target, action.AnchorField, patch)
}

func (e *Executor) calendarCreate(ctx context.Context, action models.Action, loc models.Locator, fields models.Fields) error {
	title, err := renderTemplate(action.Title, fields)
	if err != nil {
		return retry.Permanent(err)
	}
	start, ok := fields[action.StartField]
	if !ok || start.Kind != models.FieldKindDate {
		return retry.Permanent(fmt.Errorf("actions: calendar.create start_field %q is not a date", action.StartField))
	}
	end := start
	if action.EndField != "" {
		if v, ok := fields[action.EndField]; ok {
			end = v
		}
	}
	return e.bitable.CreateCalendarEvent(ctx, loc, title, start.DateMS, end.DateMS)
}

func (e *Executor) httpRequest(ctx context.Context, action models.Action, loc models.Locator, fields models.Fields) error {
	if e.allowlist == nil {
		return retry.Permanent(fmt.Errorf("actions: http.request disabled: no allowlist configured"))
	}
	if err := e.allowlist.CheckURL(action.URL); err != nil {
		return retry.Permanent(fmt.Errorf("actions: http.request blocked: %w", err))
	}

	var body io.Reader
	if action.Body != nil {
		rendered, err := renderAnyMap(action.Body, fields)
		if err != nil {
			return retry.Permanent(err)
		}
		body = bytes.NewReader(rendered)
	}

	method := action.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, action.URL, body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("actions: http.request build: %w", err))
	}
	for k, v := range action.Headers {
		rendered, err := renderTemplate(v, fields)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set(k, rendered)
	}
	if req.Header.Get("Content-Type") == "" && action.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return retry.ClassifyNetworkError(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return retry.ClassifyHTTPStatus(resp.StatusCode, resp.Status)
	}
	return nil
}

func (e *Executor) delayAction(ctx context.Context, action models.Action, loc models.Locator) error {
	if e.delay == nil {
		return retry.Permanent(fmt.Errorf("actions: delay disabled: no scheduler configured"))
	}
	task := models.DelayTask{
		AppToken:    loc.AppToken,
		TableID:     loc.TableID,
		RecordID:    loc.RecordID,
		ScheduledAt: time.Now().UTC().Add(time.Duration(action.Seconds) * time.Second),
		Pipeline:    action.Pipeline,
		Status:      models.DelayScheduled,
		CreatedAt:   time.Now().UTC(),
	}
	return e.delay.Enqueue(ctx, task)
}

func renderTemplate(tmplText string, fields models.Fields) (string, error) {
	tmpl, err := template.New("action").Parse(tmplText)
	if err != nil {
		return "", fmt.Errorf("actions: bad template: %w", err)
	}
	data := make(map[string]string, len(fields))
	for name, v := range fields {
		data[name] = fieldDisplayString(v)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("actions: render template: %w", err)
	}
	return buf.String(), nil
}

func renderFieldMap(spec map[string]string, fields models.Fields) (models.Fields, error) {
	out := make(models.Fields, len(spec))
	for field, tmplText := range spec {
		rendered, err := renderTemplate(tmplText, fields)
		if err != nil {
			return nil, err
		}
		out[field] = models.FieldValue{Kind: models.FieldKindText, Text: rendered}
	}
	return out, nil
}

func renderAnyMap(body map[string]any, fields models.Fields) ([]byte, error) {
	rendered := make(map[string]any, len(body))
	for k, v := range body {
		if s, ok := v.(string); ok {
			out, err := renderTemplate(s, fields)
			if err != nil {
				return nil, err
			}
			rendered[k] = out
			continue
		}
		rendered[k] = v
	}
	return json.Marshal(rendered)
}

func fieldDisplayString(v models.FieldValue) string {
	switch v.Kind {
	case models.FieldKindText:
		return v.Text
	case models.FieldKindSingleSelect:
		return v.SingleSelect
	case models.FieldKindMultiSelect:
		return strings.Join(v.MultiSelect, ", ")
	case models.FieldKindPhone:
		return v.Phone
	case models.FieldKindLocation:
		return v.Location
	case models.FieldKindPerson:
		return strings.Join(v.Persons, ", ")
	case models.FieldKindLink:
		return strings.Join(v.LinkIDs, ", ")
	case models.FieldKindDate:
		return time.UnixMilli(v.DateMS).UTC().Format(time.RFC3339)
	default:
		return string(v.Raw)
	}
}
