package skills

import (
	"context"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/bitable"
	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/internal/llm"
	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// DeleteSkill always requires a confirm_delete pending action before
// deleting a record, and refuses any bulk-shaped request outright
// (spec.md §4.6 DeleteSkill, §7 "Bulk-destructive operations are refused
// at the skill layer with an explicit safety code", S4/S5).
type DeleteSkill struct {
	bitable *bitable.Client
	llm     *llm.Router
	tables  config.TablesConfig
}

// NewDeleteSkill builds a DeleteSkill.
func NewDeleteSkill(client *bitable.Client, llmRouter *llm.Router, tables config.TablesConfig) *DeleteSkill {
	return &DeleteSkill{bitable: client, llm: llmRouter, tables: tables}
}

// Name satisfies router.Skill.
func (s *DeleteSkill) Name() string { return "delete" }

// Execute satisfies router.Skill.
func (s *DeleteSkill) Execute(ctx context.Context, turn router.Turn) (models.SkillResult, error) {
	if isBulkRequest(turn.Text) {
		return models.SkillResult{
			OK:      false,
			Message: "出于安全考虑，批量删除已被禁用，请逐条指定记录删除。",
			Data:    map[string]any{"error_code": "delete_disabled"},
		}, nil
	}

	pending := turn.State.PendingAction
	if pending != nil && pending.Kind == models.PendingConfirmDelete {
		// The confirm/cancel decision itself is an L0 short-circuit
		// (spec.md §4.5 step 1); by the time DeleteSkill runs again it is
		// only ever invoked to (re-)establish the pending confirmation for
		// a newly named record, not to interpret "确认"/"取消" itself.
	}

	_, alias, err := resolveTable(ctx, s.tables, s.llm, turn.Text)
	if err != nil {
		return models.SkillResult{OK: false, Message: "没能确定要删除哪张表的记录，请说明具体的表名。"}, nil
	}

	recordID := ""
	if loc, ok := activeRecordFrom(turn); ok && loc.TableID == alias.TableID {
		recordID = loc.RecordID
	} else {
		recordID = extractRecordID(turn.Text)
	}
	if recordID == "" {
		return models.SkillResult{OK: false, Message: "请指定要删除的记录编号。"}, nil
	}

	loc := models.Locator{AppToken: alias.AppToken, TableID: alias.TableID, RecordID: recordID}
	return models.SkillResult{
		OK:      true,
		Message: "确定要删除这条记录吗？回复“确认”删除，“取消”放弃。",
		Data: map[string]any{
			DataKeyPendingAction: models.PendingAction{
				Kind:      models.PendingConfirmDelete,
				TargetRef: loc,
				ExpiresAt: time.Now().UTC().Add(30 * time.Minute),
			},
		},
	}, nil
}

// ConfirmDelete actually deletes the target once the orchestrator's L0
// layer has observed an explicit "确认" against a confirm_delete pending
// action (spec.md §4.5 step 1, §8 invariant 10).
func (s *DeleteSkill) ConfirmDelete(ctx context.Context, target models.Locator) (models.SkillResult, error) {
	if err := s.bitable.DeleteRecord(ctx, target); err != nil {
		return models.SkillResult{OK: false, Message: "删除失败，请稍后再试。"}, nil
	}
	return models.SkillResult{
		OK:      true,
		Message: "已删除。",
		Data:    map[string]any{DataKeyClearPending: true},
	}, nil
}
