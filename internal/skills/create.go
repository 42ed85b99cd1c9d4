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

// CreateSkill assembles a single-table record from slot-filled free text,
// prompting across turns for any missing required field, and attempts
// configured secondary-table linked writes after a successful primary
// create (spec.md §4.6 CreateSkill, §9 "one-directional" linked writes).
type CreateSkill struct {
	bitable *bitable.Client
	llm     *llm.Router
	tables  config.TablesConfig
}

// NewCreateSkill builds a CreateSkill.
func NewCreateSkill(client *bitable.Client, llmRouter *llm.Router, tables config.TablesConfig) *CreateSkill {
	return &CreateSkill{bitable: client, llm: llmRouter, tables: tables}
}

// Name satisfies router.Skill.
func (s *CreateSkill) Name() string { return "create" }

// Execute satisfies router.Skill.
func (s *CreateSkill) Execute(ctx context.Context, turn router.Turn) (models.SkillResult, error) {
	pending := turn.State.PendingAction
	resumingLinked := false
	var alias config.TableAlias
	var tableName string
	var existing map[string]string

	switch {
	case pending != nil && pending.Kind == models.PendingCompleteFields && pending.Payload["skill"] == "create":
		tableName = pending.Payload["table"].(string)
		alias = s.tables.Aliases[tableName]
		existing = stringMap(pending.Payload["slots"])
		if v, ok := pending.Payload["linked_write"].(string); ok && v != "" {
			resumingLinked = true
		}
	default:
		var err error
		tableName, alias, err = resolveTable(ctx, s.tables, s.llm, turn.Text)
		if err != nil {
			return models.SkillResult{OK: false, Message: "没能确定要新建到哪张表，请说明具体的表名。"}, nil
		}
	}

	fresh := parseSlots(turn.Text, alias.Fields)
	slots := mergeSlots(existing, fresh)

	missing := missingRequired(alias, slots)
	if len(missing) > 0 {
		payload := map[string]any{"skill": "create", "table": tableName, "slots": toAnyMap(slots)}
		if resumingLinked {
			payload["linked_write"] = pending.Payload["linked_write"]
		}
		return models.SkillResult{
			OK:      false,
			Message: fmt.Sprintf("还差以下信息：%s，请补充。", strings.Join(missing, "、")),
			Data: map[string]any{
				DataKeyPendingAction: models.PendingAction{
					Kind:      models.PendingCompleteFields,
					TargetRef: models.Locator{AppToken: alias.AppToken, TableID: alias.TableID},
					Payload:   payload,
					ExpiresAt: time.Now().UTC().Add(30 * time.Minute),
				},
			},
		}, nil
	}

	target := models.TableRef{AppToken: alias.AppToken, TableID: alias.TableID}
	fields := fieldsFromSlots(slots, alias, turn.OpenID, s.tables.Timezone)

	if resumingLinked {
		return s.runLinkedWrite(ctx, pending.Payload["linked_write"].(string), fields, pending.Payload)
	}

	recordID, err := s.bitable.CreateRecord(ctx, target, fields)
	if err != nil {
		return models.SkillResult{OK: false, Message: "创建失败，请稍后再试。"}, nil
	}
	loc := models.Locator{AppToken: alias.AppToken, TableID: alias.TableID, RecordID: recordID}

	result := models.SkillResult{
		OK:      true,
		Message: "创建成功。",
		Data: map[string]any{
			DataKeyActiveRecord: loc,
			DataKeyClearPending: true,
		},
	}

	for _, lw := range s.tables.LinkedWrites {
		if lw.FromTableID != alias.TableID {
			continue
		}
		linkedFields := mapLinkedFields(fields, lw.FieldMapping)
		linkedTarget := models.TableRef{AppToken: lw.ToAppToken, TableID: lw.ToTableID}
		if _, err := s.bitable.CreateRecord(ctx, linkedTarget, linkedFields); err != nil {
			// Primary write is preserved; record a retry task so the user
			// can finish the sub-write in a later turn (spec.md §4.6).
			payload := map[string]any{
				"skill":        "create",
				"table":        lw.ToTableID,
				"slots":        toAnyMap(slotsFromFields(linkedFields)),
				"linked_write": lw.Name,
			}
			result.Message = fmt.Sprintf("主记录已创建，但关联写入「%s」失败，请补充后重试。", lw.Name)
			result.Data[DataKeyPendingAction] = models.PendingAction{
				Kind:      models.PendingCompleteFields,
				TargetRef: models.Locator{AppToken: lw.ToAppToken, TableID: lw.ToTableID},
				Payload:   payload,
				ExpiresAt: time.Now().UTC().Add(30 * time.Minute),
			}
			delete(result.Data, DataKeyClearPending)
		}
	}

	return result, nil
}

func (s *CreateSkill) runLinkedWrite(ctx context.Context, name string, fields models.Fields, payload map[string]any) (models.SkillResult, error) {
	var lw config.LinkedWriteConfig
	for _, c := range s.tables.LinkedWrites {
		if c.Name == name {
			lw = c
			break
		}
	}
	target := models.TableRef{AppToken: lw.ToAppToken, TableID: lw.ToTableID}
	if _, err := s.bitable.CreateRecord(ctx, target, fields); err != nil {
		return models.SkillResult{OK: false, Message: fmt.Sprintf("关联写入「%s」仍然失败，请稍后再试。", name)}, nil
	}
	return models.SkillResult{
		OK:      true,
		Message: fmt.Sprintf("关联写入「%s」已补全。", name),
		Data:    map[string]any{DataKeyClearPending: true},
	}, nil
}

func mapLinkedFields(source models.Fields, mapping map[string]string) models.Fields {
	out := make(models.Fields, len(mapping))
	for fromField, toField := range mapping {
		if v, ok := source[fromField]; ok {
			out[toField] = v
		}
	}
	return out
}

func slotsFromFields(fields models.Fields) map[string]string {
	out := make(map[string]string, len(fields))
	for name, v := range fields {
		out[name] = fieldDisplay(v)
	}
	return out
}

func stringMap(v any) map[string]string {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
