package automation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/fieldbridge/fieldbridge/internal/rules"
	"github.com/fieldbridge/fieldbridge/internal/scheduler"
	"github.com/fieldbridge/fieldbridge/internal/schema"
	"github.com/fieldbridge/fieldbridge/internal/webhookauth"
)

type fakeSchemaFetcher struct {
	err error
}

func (f *fakeSchemaFetcher) FetchSchema(ctx context.Context, appToken, tableID string) (schema.FieldSchema, error) {
	if f.err != nil {
		return nil, f.err
	}
	return schema.FieldSchema{"状态": "SingleSelect"}, nil
}

func newTestDispatcher(t *testing.T, fetcher SchemaFetcher, appToken, tableID string) *Dispatcher {
	t.Helper()
	store, err := scheduler.OpenStore(filepath.Join(t.TempDir(), "delay.db"))
	if err != nil {
		t.Fatalf("open delay store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewDispatcher(nil, nil, fetcher, rules.New("", nil), store, webhookauth.Config{}, "", nil, appToken, tableID)
}

func TestHandleAuthHealthReportsOKWhenUpstreamReachable(t *testing.T) {
	d := newTestDispatcher(t, &fakeSchemaFetcher{}, "app1", "tbl1")

	req := httptest.NewRequest("GET", "/automation/auth/health", nil)
	rec := httptest.NewRecorder()
	d.handleAuthHealth(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data struct {
			Status string `json:"status"`
			Checks []struct {
				Name string `json:"name"`
				OK   bool   `json:"ok"`
			} `json:"checks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.Status != "ok" {
		t.Errorf("expected status ok, got %q", body.Data.Status)
	}
	names := map[string]bool{}
	for _, c := range body.Data.Checks {
		names[c.Name] = c.OK
	}
	if !names["upstream_token_acquisition"] {
		t.Error("expected upstream_token_acquisition check to report ok")
	}
	if !names["delay_store"] {
		t.Error("expected delay_store check to report ok")
	}
}

func TestHandleAuthHealthReportsDegradedOnUpstreamFailure(t *testing.T) {
	d := newTestDispatcher(t, &fakeSchemaFetcher{err: errors.New("401 unauthorized")}, "app1", "tbl1")

	req := httptest.NewRequest("GET", "/automation/auth/health", nil)
	rec := httptest.NewRecorder()
	d.handleAuthHealth(rec, req)

	if rec.Code != 503 {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.Status != "degraded" {
		t.Errorf("expected status degraded, got %q", body.Data.Status)
	}
}

func TestHandleAuthHealthSkipsUpstreamCheckWithoutDefaultTable(t *testing.T) {
	d := newTestDispatcher(t, &fakeSchemaFetcher{}, "", "")

	req := httptest.NewRequest("GET", "/automation/auth/health", nil)
	rec := httptest.NewRecorder()
	d.handleAuthHealth(rec, req)

	var body struct {
		Data struct {
			Checks []struct {
				Name string `json:"name"`
			} `json:"checks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	for _, c := range body.Data.Checks {
		if c.Name == "upstream_token_acquisition" {
			t.Error("expected upstream check to be skipped without a default table configured")
		}
	}
}
