package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fieldbridge/fieldbridge/internal/config"
)

type recordingHandler struct {
	mu       sync.Mutex
	received []InboundMessage
	done     chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{done: make(chan struct{}, 10)}
}

func (h *recordingHandler) HandleMessage(ctx context.Context, msg InboundMessage) error {
	h.mu.Lock()
	h.received = append(h.received, msg)
	h.mu.Unlock()
	h.done <- struct{}{}
	return nil
}

func (h *recordingHandler) waitForOne(t *testing.T) {
	t.Helper()
	select {
	case <-h.done:
	case <-context.Background().Done():
		t.Fatal("handler never invoked")
	}
}

func TestHandleWebhookRespondsToChallenge(t *testing.T) {
	handler := newRecordingHandler()
	adapter := NewAdapter(config.ChannelConfig{}, handler, nil)
	mux := http.NewServeMux()
	adapter.Mount(mux)

	body := strings.NewReader(`{"challenge":"abc123"}`)
	req := httptest.NewRequest(http.MethodPost, "/feishu/webhook", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["challenge"] != "abc123" {
		t.Fatalf("expected challenge echoed back, got %v", out)
	}
}

func TestHandleWebhookRejectsBadToken(t *testing.T) {
	handler := newRecordingHandler()
	adapter := NewAdapter(config.ChannelConfig{VerificationToken: "secret"}, handler, nil)
	mux := http.NewServeMux()
	adapter.Mount(mux)

	body := strings.NewReader(`{"token":"wrong","message_id":"m1","chat_type":"p2p","message_type":"text","text":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/feishu/webhook", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleWebhookDispatchesValidTextMessage(t *testing.T) {
	handler := newRecordingHandler()
	adapter := NewAdapter(config.ChannelConfig{VerificationToken: "secret"}, handler, nil)
	mux := http.NewServeMux()
	adapter.Mount(mux)

	body := strings.NewReader(`{"token":"secret","message_id":"m1","sender_open_id":"ou_1","chat_type":"p2p","message_type":"text","text":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/feishu/webhook", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	handler.waitForOne(t)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.received) != 1 || handler.received[0].Text != "hi" {
		t.Fatalf("unexpected received messages: %#v", handler.received)
	}
}

func TestHandleWebhookFiltersSelfAndNonText(t *testing.T) {
	handler := newRecordingHandler()
	adapter := NewAdapter(config.ChannelConfig{}, handler, nil)
	mux := http.NewServeMux()
	adapter.Mount(mux)

	for _, body := range []string{
		`{"message_id":"m1","is_self":true,"chat_type":"p2p","message_type":"text","text":"hi"}`,
		`{"message_id":"m2","chat_type":"group","message_type":"text","text":"hi"}`,
		`{"message_id":"m3","chat_type":"p2p","message_type":"image"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/feishu/webhook", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d for body %s", rec.Code, body)
		}
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.received) != 0 {
		t.Fatalf("expected no messages dispatched, got %#v", handler.received)
	}
}
