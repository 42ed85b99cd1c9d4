package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewLoggerDefaults(t *testing.T) {
	logger := NewLogger(LogConfig{})
	if logger == nil {
		t.Fatal("NewLogger() returned nil")
	}
	if logger.config.Level != "info" {
		t.Errorf("expected default level info, got %q", logger.config.Level)
	}
	if logger.config.Format != "json" {
		t.Errorf("expected default format json, got %q", logger.config.Format)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json", Output: &buf})

	ctx := context.Background()
	logger.Info(ctx, "should be filtered")
	logger.Warn(ctx, "should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Error("info message logged despite warn level configured")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("warn message not logged")
	}
}

func TestLoggerRedactsSensitiveArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})

	ctx := context.Background()
	logger.Info(ctx, "calling upstream", "api_key", "sk-abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUV")

	out := buf.String()
	if strings.Contains(out, "abcdefghijklmnopqrstuvwxyz") {
		t.Errorf("secret leaked into log output: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected redaction marker in output: %s", out)
	}
}

func TestLoggerRedactsSensitiveMapKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})

	ctx := context.Background()
	logger.Info(ctx, "webhook auth", "headers", map[string]any{
		"Authorization": "Bearer topsecret",
		"Content-Type":  "application/json",
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}
	headers, ok := entry["headers"].(map[string]any)
	if !ok {
		t.Fatalf("expected headers field in log entry, got %v", entry)
	}
	if headers["Authorization"] != "[REDACTED]" {
		t.Errorf("Authorization header not redacted: %v", headers["Authorization"])
	}
	if headers["Content-Type"] != "application/json" {
		t.Errorf("non-sensitive header was altered: %v", headers["Content-Type"])
	}
}

func TestHTTPMiddlewareStampsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	var sawRequestID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRequestID, _ = r.Context().Value(RequestIDKey).(string)
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/automation/scan", nil)
	rec := httptest.NewRecorder()
	logger.HTTPMiddleware(inner).ServeHTTP(rec, req)

	if sawRequestID == "" {
		t.Fatal("handler did not observe a request id in its context")
	}
	header := rec.Header().Get("X-Request-Id")
	if header != sawRequestID {
		t.Errorf("X-Request-Id header %q does not match context value %q", header, sawRequestID)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}
	if entry["request_id"] != sawRequestID {
		t.Errorf("logged request_id %v does not match %q", entry["request_id"], sawRequestID)
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Errorf("expected status %d logged, got %v", http.StatusTeapot, entry["status"])
	}
	if entry["path"] != "/automation/scan" {
		t.Errorf("expected path logged, got %v", entry["path"])
	}
}

func TestHTTPMiddlewareGeneratesDistinctRequestIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	var ids []string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := r.Context().Value(RequestIDKey).(string)
		ids = append(ids, id)
	})
	wrapped := logger.HTTPMiddleware(inner)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		wrapped.ServeHTTP(httptest.NewRecorder(), req)
	}

	if len(ids) != 2 || ids[0] == ids[1] {
		t.Fatalf("expected two distinct request ids, got %v", ids)
	}
}
