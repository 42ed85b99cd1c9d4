// Package webhookauth verifies inbound webhook requests shared by the
// automation events endpoint and the orchestrator's channel adapters:
// a static API key or an HMAC-SHA256 signature with a timestamp tolerance
// window, guarding against replay of stale signed requests.
package webhookauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config controls how an inbound request is authenticated. Exactly one of
// APIKey or HMACSecret is expected to be set for a given webhook.
type Config struct {
	APIKey          string
	HMACSecret      string
	TimestampHeader string
	SignatureHeader string
	ToleranceSeconds int64
}

// DefaultToleranceSeconds bounds how stale a signed request's timestamp
// may be before it is rejected as a possible replay.
const DefaultToleranceSeconds = 300

func (c Config) tolerance() time.Duration {
	if c.ToleranceSeconds <= 0 {
		return DefaultToleranceSeconds * time.Second
	}
	return time.Duration(c.ToleranceSeconds) * time.Second
}

// VerifyAPIKey does a constant-time comparison of the provided key against
// the configured one.
func VerifyAPIKey(cfg Config, provided string) error {
	if cfg.APIKey == "" {
		return errors.New("webhookauth: no api key configured")
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(cfg.APIKey)) != 1 {
		return errors.New("webhookauth: invalid api key")
	}
	return nil
}

// VerifyHMAC checks an HMAC-SHA256 signature over timestamp+"."+body
// against the configured secret, and rejects requests outside the
// tolerance window relative to now.
func VerifyHMAC(cfg Config, timestamp, signature string, body []byte, now time.Time) error {
	if cfg.HMACSecret == "" {
		return errors.New("webhookauth: no hmac secret configured")
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("webhookauth: invalid timestamp: %w", err)
	}
	delta := now.Unix() - ts
	if delta < 0 {
		delta = -delta
	}
	if time.Duration(delta)*time.Second > cfg.tolerance() {
		return fmt.Errorf("webhookauth: timestamp outside tolerance window (%ds)", delta)
	}

	mac := hmac.New(sha256.New, []byte(cfg.HMACSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	provided := strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
		return errors.New("webhookauth: signature mismatch")
	}
	return nil
}
