package skills

import (
	"context"
	"testing"

	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/fieldbridge/fieldbridge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarySkillNoResultsIsFriendly(t *testing.T) {
	s := NewSummarySkill(nil)
	result, err := s.Execute(context.Background(), router.Turn{Text: "总结一下"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Contains(t, result.Message, "没有可以总结的查询结果")
}

func TestSummarySkillFallsBackWithoutLLM(t *testing.T) {
	s := NewSummarySkill(nil)
	rs := models.ResultSet{
		TableRef: models.TableRef{TableID: "tbl_cases"},
		Total:    1,
		Records:  []models.Record{{Locator: models.Locator{RecordID: "rec1"}, Fields: models.Fields{"案号": {Kind: models.FieldKindText, Text: "A"}}}},
	}
	turn := router.Turn{Text: "总结一下", Context: map[string]any{DataKeyResultSet: rs}}

	result, err := s.Execute(context.Background(), turn)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Contains(t, result.Message, "找到 1 条记录")
}

func TestSummarySkillReadsPersistedResultSetWhenNoChainedContext(t *testing.T) {
	s := NewSummarySkill(nil)
	rs := models.ResultSet{TableRef: models.TableRef{TableID: "tbl_cases"}, Total: 1, Records: []models.Record{{Locator: models.Locator{RecordID: "rec1"}}}}
	turn := router.Turn{Text: "总结一下", State: models.ConversationState{LastResultSet: &rs}}

	result, err := s.Execute(context.Background(), turn)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.NotContains(t, result.Message, "没有可以总结")
}
