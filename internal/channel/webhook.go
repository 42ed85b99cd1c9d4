// Package channel is the chat-platform webhook adapter (spec.md §6 "POST
// /feishu/webhook"): URL-verification handshake, static-token validation,
// optional AES-CBC decrypt, message/event-id dedup, and self/non-text/
// non-private filtering, before handing a normalized InboundMessage off to
// the conversation orchestrator on a background worker so the HTTP
// response stays under the ≤1s budget (spec.md §5).
package channel

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/internal/dedupe"
	"github.com/fieldbridge/fieldbridge/internal/logging"
)

const maxBodyBytes = 256 * 1024

// InboundMessage is the normalized shape handed to the orchestrator once a
// webhook payload has cleared verification, decryption, dedup, and filtering.
type InboundMessage struct {
	OpenID    string
	MessageID string
	EventID   string
	Text      string
	ChatType  string
	ReceivedAt time.Time
}

// MessageHandler is implemented by the conversation orchestrator.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg InboundMessage) error
}

// envelope is the wire shape accepted at the webhook endpoint. Encrypt
// holds a base64 AES-CBC ciphertext when the channel has encryption
// enabled; its decrypted plaintext unmarshals into this same shape.
type envelope struct {
	Challenge string `json:"challenge,omitempty"`
	Token     string `json:"token,omitempty"`
	Encrypt   string `json:"encrypt,omitempty"`

	EventID       string `json:"event_id,omitempty"`
	MessageID     string `json:"message_id,omitempty"`
	SenderOpenID  string `json:"sender_open_id,omitempty"`
	IsSelf        bool   `json:"is_self,omitempty"`
	ChatType      string `json:"chat_type,omitempty"`
	MessageType   string `json:"message_type,omitempty"`
	Text          string `json:"text,omitempty"`
}

// Adapter serves the channel webhook endpoint.
type Adapter struct {
	cfg     config.ChannelConfig
	handler MessageHandler
	dedup   *dedupe.DedupeCache
	logger  *logging.Logger
}

// NewAdapter builds an Adapter wired to the given message handler.
func NewAdapter(cfg config.ChannelConfig, handler MessageHandler, logger *logging.Logger) *Adapter {
	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Adapter{
		cfg:     cfg,
		handler: handler,
		dedup:   dedupe.NewDedupeCache(dedupe.DedupeCacheOptions{TTL: ttl, MaxSize: 10000}),
		logger:  logger,
	}
}

// Mount registers the webhook route on mux.
func (a *Adapter) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/feishu/webhook", a.handleWebhook)
}

func (a *Adapter) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if env.Encrypt != "" {
		plaintext, err := decryptPayload(a.cfg.EncryptKey, env.Encrypt)
		if err != nil {
			if a.logger != nil {
				a.logger.Warn(r.Context(), "channel payload decrypt failed", "error", err.Error())
			}
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := json.Unmarshal(plaintext, &env); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	if env.Challenge != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"challenge": env.Challenge})
		return
	}

	if !a.verifyToken(env.Token) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	// Always 200 past this point: a webhook retry storm from a 4xx/5xx on
	// a message we've already accepted does more harm than a dropped one.
	w.WriteHeader(http.StatusOK)

	if env.IsSelf {
		return
	}
	if env.ChatType != "" && env.ChatType != "p2p" {
		return
	}
	if env.MessageType != "" && env.MessageType != "text" {
		return
	}

	dedupeKey := dedupe.MessageDedupeKey("feishu", env.MessageID)
	if dedupeKey == "" {
		dedupeKey = dedupe.EventDedupeKey(env.EventID)
	}
	if dedupeKey != "" && a.dedup.Check(dedupeKey) {
		return
	}

	msg := InboundMessage{
		OpenID:     env.SenderOpenID,
		MessageID:  env.MessageID,
		EventID:    env.EventID,
		Text:       env.Text,
		ChatType:   env.ChatType,
		ReceivedAt: time.Now().UTC(),
	}

	go a.dispatch(msg)
}

func (a *Adapter) dispatch(msg InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.handler.HandleMessage(ctx, msg); err != nil && a.logger != nil {
		a.logger.Error(ctx, "message handling failed", "open_id", msg.OpenID, "message_id", msg.MessageID, "error", err.Error())
	}
}

func (a *Adapter) verifyToken(provided string) bool {
	if a.cfg.VerificationToken == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(a.cfg.VerificationToken)) == 1
}
