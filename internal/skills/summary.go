package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/fieldbridge/fieldbridge/internal/llm"
	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// SummarySkill turns the previous query's result set into prose, either
// chained straight off QuerySkill in the same turn or reading the
// conversation's persisted LastResultSet on a later turn (spec.md §4.6
// SummarySkill, §4.5 step 3 "Query -> Summary" chaining).
type SummarySkill struct {
	llm *llm.Router
}

// NewSummarySkill builds a SummarySkill. llmRouter may be nil, in which
// case summaries fall back to a plain enumeration of the result set.
func NewSummarySkill(llmRouter *llm.Router) *SummarySkill {
	return &SummarySkill{llm: llmRouter}
}

// Name satisfies router.Skill.
func (s *SummarySkill) Name() string { return "summary" }

// Execute satisfies router.Skill.
func (s *SummarySkill) Execute(ctx context.Context, turn router.Turn) (models.SkillResult, error) {
	resultSet, ok := s.resultSet(turn)
	if !ok || len(resultSet.Records) == 0 {
		return models.SkillResult{
			OK:      true,
			Message: "目前没有可以总结的查询结果，请先查询一下。",
		}, nil
	}

	if s.llm == nil {
		return models.SkillResult{OK: true, Message: s.fallback(resultSet)}, nil
	}

	prompt := s.promptFor(resultSet)
	text, err := s.llm.CompleteChat(ctx, "用简洁的中文总结以下查询结果，不要编造数据。",
		[]llm.Message{{Role: "user", Content: prompt}}, llm.ChatOptions{Temperature: 0.3})
	if err != nil || strings.TrimSpace(text) == "" {
		return models.SkillResult{OK: true, Message: s.fallback(resultSet)}, nil
	}
	return models.SkillResult{OK: true, Message: text}, nil
}

func (s *SummarySkill) resultSet(turn router.Turn) (models.ResultSet, bool) {
	if turn.Context != nil {
		if rs, ok := turn.Context[DataKeyResultSet].(models.ResultSet); ok {
			return rs, true
		}
	}
	if turn.State.LastResultSet != nil {
		return *turn.State.LastResultSet, true
	}
	return models.ResultSet{}, false
}

func (s *SummarySkill) fallback(rs models.ResultSet) string {
	return formatRecordList(rs.TableRef.TableID, rs.Records, rs.Total)
}

func (s *SummarySkill) promptFor(rs models.ResultSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "共 %d 条记录：\n", rs.Total)
	for i, r := range rs.Records {
		fmt.Fprintf(&b, "%d. %s\n", i+1, summarizeRecord(r))
	}
	return b.String()
}
