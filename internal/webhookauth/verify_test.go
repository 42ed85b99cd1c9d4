package webhookauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"
)

func TestVerifyAPIKey(t *testing.T) {
	cfg := Config{APIKey: "secret-key"}
	if err := VerifyAPIKey(cfg, "secret-key"); err != nil {
		t.Fatalf("expected matching key to pass, got %v", err)
	}
	if err := VerifyAPIKey(cfg, "wrong-key"); err == nil {
		t.Fatal("expected mismatched key to fail")
	}
}

func sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyHMACAcceptsValidSignatureWithinTolerance(t *testing.T) {
	cfg := Config{HMACSecret: "s3cr3t", ToleranceSeconds: 60}
	now := time.Now()
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{"event_id":"evt-1"}`)
	sig := sign(cfg.HMACSecret, ts, body)

	if err := VerifyHMAC(cfg, ts, sig, body, now); err != nil {
		t.Fatalf("expected valid signature to pass, got %v", err)
	}
}

func TestVerifyHMACRejectsStaleTimestamp(t *testing.T) {
	cfg := Config{HMACSecret: "s3cr3t", ToleranceSeconds: 60}
	now := time.Now()
	ts := strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)
	body := []byte(`{"event_id":"evt-1"}`)
	sig := sign(cfg.HMACSecret, ts, body)

	if err := VerifyHMAC(cfg, ts, sig, body, now); err == nil {
		t.Fatal("expected stale timestamp to be rejected")
	}
}

func TestVerifyHMACRejectsTamperedBody(t *testing.T) {
	cfg := Config{HMACSecret: "s3cr3t", ToleranceSeconds: 60}
	now := time.Now()
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := sign(cfg.HMACSecret, ts, []byte(`{"event_id":"evt-1"}`))

	if err := VerifyHMAC(cfg, ts, sig, []byte(`{"event_id":"evt-2"}`), now); err == nil {
		t.Fatal("expected tampered body to fail signature check")
	}
}
