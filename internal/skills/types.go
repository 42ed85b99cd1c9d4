// Package skills implements the conversational skills the Router dispatches
// to (spec.md §4.6): QuerySkill, CreateSkill, UpdateSkill, DeleteSkill,
// SummarySkill, ReminderSkill, and ChitchatSkill. Every skill satisfies
// internal/router's Skill interface and emits a uniform
// models.SkillResult.
package skills

import (
	"time"

	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// Well-known SkillResult.Data keys the orchestrator reads back after a
// dispatch to update models.ConversationState before persisting it — the
// skill interface itself (spec.md §4.5 step 4) stays a plain data map
// rather than a mutable state reference, so state transitions are visible
// and centrally applied rather than hidden inside each skill.
const (
	DataKeyPendingAction = "pending_action"
	DataKeyClearPending  = "clear_pending"
	DataKeyResultSet     = "result_set"
	DataKeyActiveTable   = "active_table"
	DataKeyActiveRecord  = "active_record"
)

// defaultLocation is the conversation timezone spec.md names throughout
// §4.6/§8 scenarios (UTC+8), used when a table/timezone isn't configured.
func defaultLocation(name string) *time.Location {
	if name == "" {
		name = "Asia/Shanghai"
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone("UTC+8", 8*60*60)
}

// locatorFromRecord builds a Locator from a Record's embedded Locator.
func locatorFromRecord(r models.Record) models.Locator { return r.Locator }
