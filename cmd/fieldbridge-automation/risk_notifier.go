package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/internal/logging"
)

// webhookRiskNotifier posts the schema-change risk webhook (spec.md §4.4)
// when the schema cache runtime-disables a rule after a field disappears.
// A nil/empty WebhookURL makes NotifyRuleDisabled a no-op, which is how
// the webhook_drill flag exercises the decision path without a receiver.
type webhookRiskNotifier struct {
	cfg    config.SchemaSyncConfig
	logger *logging.Logger
	http   http.Client
}

func (n *webhookRiskNotifier) NotifyRuleDisabled(ctx context.Context, tableID, ruleID, removedField string) error {
	if n.cfg.WebhookURL == "" || n.cfg.WebhookDrill {
		if n.logger != nil {
			n.logger.Info(ctx, "schema risk webhook suppressed", "table_id", tableID, "rule_id", ruleID, "removed_field", removedField, "drill", n.cfg.WebhookDrill)
		}
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"table_id":      tableID,
		"rule_id":       ruleID,
		"removed_field": removedField,
	})
	if err != nil {
		return fmt.Errorf("risk notifier: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("risk notifier: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if n.cfg.WebhookSecret != "" {
		timestamp := strconv.FormatInt(time.Now().UTC().Unix(), 10)
		mac := hmac.New(sha256.New, []byte(n.cfg.WebhookSecret))
		mac.Write([]byte(timestamp))
		mac.Write([]byte("."))
		mac.Write(payload)
		req.Header.Set("X-Timestamp", timestamp)
		req.Header.Set("X-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("risk notifier: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("risk notifier: webhook responded %d", resp.StatusCode)
	}
	return nil
}
