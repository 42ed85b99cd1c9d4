package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/logging"
	"github.com/fieldbridge/fieldbridge/internal/rules"
	"github.com/fieldbridge/fieldbridge/internal/schema"
	"github.com/fieldbridge/fieldbridge/internal/scheduler"
	"github.com/fieldbridge/fieldbridge/internal/webhookauth"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

const defaultMaxBodyBytes = 256 * 1024

// SchemaFetcher fetches the current field schema for a table, for the
// manual/scheduled refresh endpoint.
type SchemaFetcher interface {
	FetchSchema(ctx context.Context, appToken, tableID string) (schema.FieldSchema, error)
}

// Dispatcher is the automation worker's HTTP surface (spec.md §4.1, §4.8):
// the event callback that Feishu bitable webhooks (and the polling
// scanner) feed, normalized into EventEnvelope values and handed to the
// Processor one at a time per record, plus the management endpoints for
// scan/init/schema-refresh/delay-task administration.
type Dispatcher struct {
	processor     *Processor
	schemaCache   *schema.Cache
	schemaFetcher SchemaFetcher
	rulesRegistry *rules.Registry
	delayStore    *scheduler.Store
	auth          webhookauth.Config
	verifyToken   string
	maxBodyBytes  int64
	logger        *logging.Logger

	// healthAppToken/healthTableID name the table handleAuthHealth probes
	// against to exercise real upstream auth+connectivity. Empty skips that
	// check (no default table configured).
	healthAppToken string
	healthTableID  string

	mu    sync.Mutex
	stats dispatcherStats
}

type dispatcherStats struct {
	totalRequests int64
	totalErrors   int64
	lastRequestAt time.Time
}

// NewDispatcher builds a Dispatcher backed by the given Processor and auth
// configuration. verifyToken authenticates the URL-verification handshake
// and the event callback's static-token mode. healthAppToken/healthTableID
// are the default table coordinates handleAuthHealth probes; leave both
// empty to skip the upstream check (e.g. in tests with no real backend).
func NewDispatcher(processor *Processor, schemaCache *schema.Cache, schemaFetcher SchemaFetcher, rulesRegistry *rules.Registry, delayStore *scheduler.Store, auth webhookauth.Config, verifyToken string, logger *logging.Logger, healthAppToken, healthTableID string) *Dispatcher {
	return &Dispatcher{
		processor:      processor,
		schemaCache:    schemaCache,
		schemaFetcher:  schemaFetcher,
		rulesRegistry:  rulesRegistry,
		delayStore:     delayStore,
		auth:           auth,
		verifyToken:    verifyToken,
		maxBodyBytes:   defaultMaxBodyBytes,
		logger:         logger,
		healthAppToken: healthAppToken,
		healthTableID:  healthTableID,
	}
}

// eventRequest is the wire shape accepted at the events endpoint. A
// populated Challenge means this is a URL-verification handshake, not a
// real event (spec.md §6 "Automation callback").
type eventRequest struct {
	Challenge string `json:"challenge,omitempty"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	AppToken  string `json:"app_token"`
	TableID   string `json:"table_id"`
	RecordID  string `json:"record_id"`
}

type eventResponse struct {
	Success bool            `json:"success"`
	Data    *eventResultDTO `json:"data,omitempty"`
	Error   *errorDTO       `json:"error,omitempty"`
}

type eventResultDTO struct {
	RunID        string   `json:"run_id"`
	Result       string   `json:"result"`
	RulesMatched []string `json:"rules_matched,omitempty"`
}

type errorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Mount registers the dispatcher's routes on mux.
func (d *Dispatcher) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/health", d.handleHealth)
	mux.HandleFunc("/feishu/events", d.handleEvent)
	mux.HandleFunc("/automation/init", d.handleInit)
	mux.HandleFunc("/automation/webhook/", d.handleRuleWebhook)
	mux.HandleFunc("/automation/schema/refresh", d.handleSchemaRefresh)
	mux.HandleFunc("/automation/delay/tasks", d.handleDelayTasks)
	mux.HandleFunc("/automation/delay/", d.handleDelayCancel)
	mux.HandleFunc("/automation/auth/health", d.handleAuthHealth)
}

func (d *Dispatcher) handleHealth(w http.ResponseWriter, r *http.Request) {
	d.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvent is the automation callback (spec.md §6): a URL-verification
// handshake when the body carries a challenge, otherwise a normalized
// change event handed to the Processor.
func (d *Dispatcher) handleEvent(w http.ResponseWriter, r *http.Request) {
	d.recordRequest()

	if r.Method != http.MethodPost {
		d.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is accepted")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, d.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		d.respondError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("reading body: %v", err))
		return
	}

	var req eventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		d.respondError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if req.Challenge != "" {
		d.respondJSON(w, http.StatusOK, map[string]string{"challenge": req.Challenge})
		return
	}

	if err := d.authenticate(r, body); err != nil {
		// authentication failure: logged, not replied to (spec.md §4.1).
		if d.logger != nil {
			d.logger.Warn(r.Context(), "event authentication failed", "error", err.Error())
		}
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if req.AppToken == "" || req.TableID == "" || req.RecordID == "" {
		d.respondError(w, http.StatusBadRequest, "bad_request", "app_token, table_id, and record_id are required")
		return
	}

	d.processEvent(w, r, req, false)
}

func (d *Dispatcher) processEvent(w http.ResponseWriter, r *http.Request, req eventRequest, isScan bool) {
	event := models.EventEnvelope{
		EventID:    req.EventID,
		EventType:  models.EventType(req.EventType),
		AppToken:   req.AppToken,
		TableID:    req.TableID,
		RecordID:   req.RecordID,
		ReceivedAt: time.Now().UTC(),
	}

	row, err := d.processor.Process(r.Context(), event, isScan)
	if err != nil {
		d.mu.Lock()
		d.stats.totalErrors++
		d.mu.Unlock()
		if d.logger != nil {
			d.logger.Error(r.Context(), "automation event processing failed", "event_id", req.EventID, "error", err.Error())
		}
		d.respondError(w, http.StatusInternalServerError, "processing_failed", err.Error())
		return
	}

	d.respondJSON(w, http.StatusOK, eventResponse{
		Success: true,
		Data: &eventResultDTO{
			RunID:        row.ID,
			Result:       string(row.Result),
			RulesMatched: row.RulesMatched,
		},
	})
}

// handleInit establishes the snapshot baseline for a record without
// firing any rule (spec.md §4.8 "POST /automation/init").
func (d *Dispatcher) handleInit(w http.ResponseWriter, r *http.Request) {
	d.recordRequest()
	if r.Method != http.MethodPost {
		d.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is accepted")
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.respondError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.AppToken == "" || req.TableID == "" || req.RecordID == "" {
		d.respondError(w, http.StatusBadRequest, "bad_request", "app_token, table_id, and record_id are required")
		return
	}
	req.EventType = string(models.EventType("init"))
	d.processEvent(w, r, req, false)
}

// handleRuleWebhook is the authenticated external trigger keyed by
// rule_id (spec.md §4.1 entry path ii, §4.8 "POST /automation/webhook/{rule_id}").
func (d *Dispatcher) handleRuleWebhook(w http.ResponseWriter, r *http.Request) {
	d.recordRequest()
	if r.Method != http.MethodPost {
		d.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is accepted")
		return
	}
	ruleID := strings.TrimPrefix(r.URL.Path, "/automation/webhook/")
	if ruleID == "" {
		d.respondError(w, http.StatusNotFound, "not_found", "rule_id required")
		return
	}
	if d.rulesRegistry != nil {
		if _, ok := d.rulesRegistry.Get(ruleID); !ok {
			d.respondError(w, http.StatusNotFound, "not_found", "unknown rule_id")
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, d.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		d.respondError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("reading body: %v", err))
		return
	}
	if err := d.authenticate(r, body); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req eventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		d.respondError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.AppToken == "" || req.TableID == "" || req.RecordID == "" {
		d.respondError(w, http.StatusBadRequest, "bad_request", "app_token, table_id, and record_id are required")
		return
	}
	if req.EventType == "" {
		req.EventType = string(models.EventFieldChanged)
	}
	d.processEvent(w, r, req, false)
}

func (d *Dispatcher) recordRequest() {
	d.mu.Lock()
	d.stats.totalRequests++
	d.stats.lastRequestAt = time.Now()
	d.mu.Unlock()
}

// handleSchemaRefresh forces a re-fetch of a table's field schema, applying
// the schema-change rule-disable policy (spec.md §4.4, §4.8 "POST
// /automation/schema/refresh"). ?drill=true forces the risk webhook to
// fire even when nothing changed, for operator verification.
func (d *Dispatcher) handleSchemaRefresh(w http.ResponseWriter, r *http.Request) {
	d.recordRequest()
	if r.Method != http.MethodPost {
		d.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is accepted")
		return
	}
	if d.schemaCache == nil || d.schemaFetcher == nil || d.rulesRegistry == nil {
		d.respondError(w, http.StatusServiceUnavailable, "unavailable", "schema refresh is not configured")
		return
	}

	appToken := r.URL.Query().Get("app_token")
	tableID := r.URL.Query().Get("table_id")
	if appToken == "" || tableID == "" {
		d.respondError(w, http.StatusBadRequest, "bad_request", "app_token and table_id query parameters are required")
		return
	}
	drill, _ := strconv.ParseBool(r.URL.Query().Get("drill"))

	next, err := d.schemaFetcher.FetchSchema(r.Context(), appToken, tableID)
	if err != nil {
		d.respondError(w, http.StatusInternalServerError, "schema_fetch_failed", err.Error())
		return
	}

	outcome, disabledRules, err := d.schemaCache.Refresh(r.Context(), appToken, tableID, next, d.rulesRegistry, drill)
	if err != nil {
		d.respondError(w, http.StatusInternalServerError, "schema_refresh_failed", err.Error())
		return
	}

	d.respondJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		Data    struct {
			Outcome       string   `json:"outcome"`
			DisabledRules []string `json:"disabled_rules,omitempty"`
		} `json:"data"`
	}{
		Success: true,
		Data: struct {
			Outcome       string   `json:"outcome"`
			DisabledRules []string `json:"disabled_rules,omitempty"`
		}{Outcome: string(outcome), DisabledRules: disabledRules},
	})
}

// handleDelayTasks lists scheduled delay/cron tasks, optionally filtered
// by app_token/table_id/record_id (spec.md §4.8 "GET /automation/delay/tasks").
func (d *Dispatcher) handleDelayTasks(w http.ResponseWriter, r *http.Request) {
	d.recordRequest()
	if r.Method != http.MethodGet {
		d.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is accepted")
		return
	}
	if d.delayStore == nil {
		d.respondError(w, http.StatusServiceUnavailable, "unavailable", "delay scheduler is not configured")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	tasks, err := d.delayStore.List(r.Context(), r.URL.Query().Get("app_token"), r.URL.Query().Get("table_id"), r.URL.Query().Get("record_id"), limit)
	if err != nil {
		d.respondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	d.respondJSON(w, http.StatusOK, struct {
		Success bool               `json:"success"`
		Data    []models.DelayTask `json:"data"`
	}{Success: true, Data: tasks})
}

// handleDelayCancel cancels a pending delay task by id (spec.md §4.8
// "POST /automation/delay/{id}/cancel").
func (d *Dispatcher) handleDelayCancel(w http.ResponseWriter, r *http.Request) {
	d.recordRequest()
	if r.Method != http.MethodPost {
		d.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is accepted")
		return
	}
	if d.delayStore == nil {
		d.respondError(w, http.StatusServiceUnavailable, "unavailable", "delay scheduler is not configured")
		return
	}
	taskID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/automation/delay/"), "/cancel")
	if taskID == "" || !strings.HasSuffix(r.URL.Path, "/cancel") {
		d.respondError(w, http.StatusNotFound, "not_found", "expected /automation/delay/{id}/cancel")
		return
	}
	if err := d.delayStore.Cancel(r.Context(), taskID); err != nil {
		d.respondError(w, http.StatusInternalServerError, "cancel_failed", err.Error())
		return
	}
	d.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type healthCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// handleAuthHealth probes upstream token acquisition and connectivity
// (spec.md §4.8 "GET /automation/auth/health"): it fetches the configured
// default table's schema (exercising whatever auth the schemaFetcher sends)
// and runs a lightweight query against the delay-task store. Either probe
// missing its configuration is skipped rather than reported as a failure.
func (d *Dispatcher) handleAuthHealth(w http.ResponseWriter, r *http.Request) {
	d.recordRequest()
	if r.Method != http.MethodGet {
		d.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is accepted")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := true
	var checks []healthCheck

	if d.schemaFetcher != nil && d.healthAppToken != "" && d.healthTableID != "" {
		c := healthCheck{Name: "upstream_token_acquisition"}
		if _, err := d.schemaFetcher.FetchSchema(ctx, d.healthAppToken, d.healthTableID); err != nil {
			c.OK, c.Detail = false, err.Error()
			healthy = false
		} else {
			c.OK = true
		}
		checks = append(checks, c)
	}

	if d.delayStore != nil {
		c := healthCheck{Name: "delay_store"}
		if _, err := d.delayStore.List(ctx, "", "", "", 1); err != nil {
			c.OK, c.Detail = false, err.Error()
			healthy = false
		} else {
			c.OK = true
		}
		checks = append(checks, c)
	}

	status, httpStatus := "ok", http.StatusOK
	if !healthy {
		status, httpStatus = "degraded", http.StatusServiceUnavailable
	}
	total, errs, lastRequestAt := d.Stats()

	d.respondJSON(w, httpStatus, struct {
		Success bool `json:"success"`
		Data    struct {
			Status        string        `json:"status"`
			Checks        []healthCheck `json:"checks"`
			TotalRequests int64         `json:"total_requests"`
			TotalErrors   int64         `json:"total_errors"`
			LastRequestAt string        `json:"last_request_at,omitempty"`
		} `json:"data"`
	}{
		Success: healthy,
		Data: struct {
			Status        string        `json:"status"`
			Checks        []healthCheck `json:"checks"`
			TotalRequests int64         `json:"total_requests"`
			TotalErrors   int64         `json:"total_errors"`
			LastRequestAt string        `json:"last_request_at,omitempty"`
		}{
			Status:        status,
			Checks:        checks,
			TotalRequests: total,
			TotalErrors:   errs,
			LastRequestAt: formatTimeIfSet(lastRequestAt),
		},
	})
}

func formatTimeIfSet(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (d *Dispatcher) authenticate(r *http.Request, body []byte) error {
	if d.auth.APIKey != "" {
		return webhookauth.VerifyAPIKey(d.auth, extractAPIKey(r))
	}
	if d.auth.HMACSecret != "" {
		timestampHeader := d.auth.TimestampHeader
		if timestampHeader == "" {
			timestampHeader = "X-Automation-Timestamp"
		}
		signatureHeader := d.auth.SignatureHeader
		if signatureHeader == "" {
			signatureHeader = "X-Automation-Signature"
		}
		return webhookauth.VerifyHMAC(d.auth, r.Header.Get(timestampHeader), r.Header.Get(signatureHeader), body, time.Now())
	}
	return nil
}

func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return r.URL.Query().Get("api_key")
}

func (d *Dispatcher) respondError(w http.ResponseWriter, status int, code, message string) {
	d.respondJSON(w, status, eventResponse{Success: false, Error: &errorDTO{Code: code, Message: message}})
}

func (d *Dispatcher) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Stats reports request counters for the health/metrics surface.
func (d *Dispatcher) Stats() (total, errs int64, lastRequestAt time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats.totalRequests, d.stats.totalErrors, d.stats.lastRequestAt
}
