package skills

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/bitable"
	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/internal/llm"
	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// UpdateSkill patches one record's fields, identified by the locator
// triplet (spec.md §4.6 UpdateSkill, GLOSSARY "locator triplet"). A
// missing record id or field value triggers a complete_fields pending
// action that keeps slot state across turns.
type UpdateSkill struct {
	bitable *bitable.Client
	llm     *llm.Router
	tables  config.TablesConfig
}

// NewUpdateSkill builds an UpdateSkill.
func NewUpdateSkill(client *bitable.Client, llmRouter *llm.Router, tables config.TablesConfig) *UpdateSkill {
	return &UpdateSkill{bitable: client, llm: llmRouter, tables: tables}
}

// Name satisfies router.Skill.
func (s *UpdateSkill) Name() string { return "update" }

// Execute satisfies router.Skill.
func (s *UpdateSkill) Execute(ctx context.Context, turn router.Turn) (models.SkillResult, error) {
	pending := turn.State.PendingAction
	var alias config.TableAlias
	var tableName, recordID string
	var existing map[string]string

	switch {
	case pending != nil && pending.Kind == models.PendingCompleteFields && pending.Payload["skill"] == "update":
		tableName = pending.Payload["table"].(string)
		alias = s.tables.Aliases[tableName]
		recordID, _ = pending.Payload["record_id"].(string)
		existing = stringMap(pending.Payload["slots"])
	default:
		var err error
		tableName, alias, err = resolveTable(ctx, s.tables, s.llm, turn.Text)
		if err != nil {
			return models.SkillResult{OK: false, Message: "没能确定要更新哪张表，请说明具体的表名。"}, nil
		}
		if loc, ok := activeRecordFrom(turn); ok && loc.TableID == alias.TableID {
			recordID = loc.RecordID
		} else {
			recordID = extractRecordID(turn.Text)
		}
	}

	fresh := parseSlots(turn.Text, alias.Fields)
	slots := mergeSlots(existing, fresh)

	if recordID == "" || len(slots) == 0 {
		var missing []string
		if recordID == "" {
			missing = append(missing, "记录编号")
		}
		if len(slots) == 0 {
			missing = append(missing, "要修改的字段")
		}
		return models.SkillResult{
			OK:      false,
			Message: fmt.Sprintf("还差以下信息：%s，请补充。", strings.Join(missing, "、")),
			Data: map[string]any{
				DataKeyPendingAction: models.PendingAction{
					Kind:      models.PendingCompleteFields,
					TargetRef: models.Locator{AppToken: alias.AppToken, TableID: alias.TableID, RecordID: recordID},
					Payload:   map[string]any{"skill": "update", "table": tableName, "record_id": recordID, "slots": toAnyMap(slots)},
					ExpiresAt: time.Now().UTC().Add(30 * time.Minute),
				},
			},
		}, nil
	}

	loc := models.Locator{AppToken: alias.AppToken, TableID: alias.TableID, RecordID: recordID}
	fields := fieldsFromSlots(slots, alias, turn.OpenID, s.tables.Timezone)
	if err := s.bitable.UpdateFields(ctx, loc, fields); err != nil {
		return models.SkillResult{OK: false, Message: "更新失败，请稍后再试。"}, nil
	}

	return models.SkillResult{
		OK:      true,
		Message: "更新成功。",
		Data: map[string]any{
			DataKeyActiveRecord: loc,
			DataKeyClearPending: true,
		},
	}, nil
}
