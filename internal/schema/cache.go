// Package schema is the Schema Cache & Runtime State: the last-known field
// schema per table, plus per-rule runtime enable/disable overrides applied
// without touching the rules file on disk (spec.md §3, §4.4).
package schema

import (
	"context"
	"sync"

	"github.com/fieldbridge/fieldbridge/internal/logging"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// FieldSchema is the set of field names and kinds the tabular backend
// currently reports for a table.
type FieldSchema map[string]models.FieldKind

// Diff reports which field names were added or removed between two
// schemas (field kind changes are out of scope for rule-disable policy;
// only presence/absence drives it, per spec.md §4.4).
func (prev FieldSchema) Diff(next FieldSchema) (added, removed []string) {
	for field := range next {
		if _, ok := prev[field]; !ok {
			added = append(added, field)
		}
	}
	for field := range prev {
		if _, ok := next[field]; !ok {
			removed = append(removed, field)
		}
	}
	return added, removed
}

// RiskNotifier posts the "risk webhook" notification when a schema change
// forces a rule to be runtime-disabled.
type RiskNotifier interface {
	NotifyRuleDisabled(ctx context.Context, tableID, ruleID, removedField string) error
}

// Cache holds the last-known schema per table plus the set of rule ids
// that have been runtime-disabled by a schema change.
type Cache struct {
	mu        sync.RWMutex
	schemas   map[string]FieldSchema // keyed by app_token+"/"+table_id
	disabled  map[string]string      // rule_id -> reason
	notifier  RiskNotifier
	logger    *logging.Logger
}

// New creates an empty schema cache.
func New(notifier RiskNotifier, logger *logging.Logger) *Cache {
	return &Cache{
		schemas:  make(map[string]FieldSchema),
		disabled: make(map[string]string),
		notifier: notifier,
		logger:   logger,
	}
}

func tableKey(appToken, tableID string) string { return appToken + "/" + tableID }

// Get returns the cached schema for a table, or nil if never populated.
func (c *Cache) Get(appToken, tableID string) FieldSchema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schemas[tableKey(appToken, tableID)]
}

// IsDisabled reports whether a rule has been runtime-disabled by a
// previous schema change.
func (c *Cache) IsDisabled(ruleID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.disabled[ruleID]
	return ok
}

// RulesForTable is satisfied by the rule registry; Refresh uses it to find
// rules whose trigger.field needs checking against a removed field.
type RulesForTable interface {
	RulesForTable(appToken, tableID string) []models.Rule
}

// Refresh compares a freshly-fetched schema against the cache and applies
// the §4.4 policy: schema_bootstrap / schema_refresh_noop / schema_changed
// + schema_policy_applied. The caller is responsible for writing the named
// log event with the returned outcome; Refresh itself only mutates state
// and fires the risk webhook.
type RefreshOutcome string

const (
	OutcomeBootstrap RefreshOutcome = "schema_bootstrap"
	OutcomeNoop      RefreshOutcome = "schema_refresh_noop"
	OutcomeChanged   RefreshOutcome = "schema_changed"
)

func (c *Cache) Refresh(ctx context.Context, appToken, tableID string, next FieldSchema, rules RulesForTable, drill bool) (RefreshOutcome, []string, error) {
	key := tableKey(appToken, tableID)

	c.mu.Lock()
	prev, existed := c.schemas[key]
	c.schemas[key] = next
	c.mu.Unlock()

	if !existed {
		return OutcomeBootstrap, nil, nil
	}

	_, removed := prev.Diff(next)
	if len(removed) == 0 && !drill {
		return OutcomeNoop, nil, nil
	}

	var disabledRules []string
	if rules != nil {
		for _, rule := range rules.RulesForTable(appToken, tableID) {
			removedField := ""
			for _, f := range removed {
				if f == rule.Trigger.Field {
					removedField = f
					break
				}
			}
			if removedField == "" && !drill {
				continue
			}
			if removedField == "" && drill {
				// drill mode force-exercises the policy path even without a
				// real removal, using the rule's own trigger field.
				removedField = rule.Trigger.Field
			}

			c.mu.Lock()
			c.disabled[rule.ID] = "trigger field removed: " + removedField
			c.mu.Unlock()
			disabledRules = append(disabledRules, rule.ID)

			if c.notifier != nil {
				if err := c.notifier.NotifyRuleDisabled(ctx, tableID, rule.ID, removedField); err != nil {
					if c.logger != nil {
						c.logger.Warn(ctx, "risk webhook failed", "rule_id", rule.ID, "error", err.Error())
					}
				}
			}
		}
	}

	return OutcomeChanged, disabledRules, nil
}
