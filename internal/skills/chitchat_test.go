package skills

import (
	"context"
	"testing"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/render"
	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChitchatSkillGreetsWithTimeOfDayVariant(t *testing.T) {
	pool := render.NewPool(nil, map[render.TimeOfDay][]string{render.Morning: {"早上好"}})
	s := NewChitchatSkill(pool)
	s.now = func() time.Time { return time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC) }

	result, err := s.Execute(context.Background(), router.Turn{Text: "你好"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Contains(t, result.Message, "早上好")
}

func TestChitchatSkillDeclinesSensitiveTopics(t *testing.T) {
	s := NewChitchatSkill(nil)
	result, err := s.Execute(context.Background(), router.Turn{Text: "聊聊政治话题"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Contains(t, result.Message, "没办法帮忙")
}

func TestChitchatSkillSoftlyDeclinesOutOfScopeRequests(t *testing.T) {
	s := NewChitchatSkill(nil)
	result, err := s.Execute(context.Background(), router.Turn{Text: "给我讲个笑话"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Contains(t, result.Message, "不太擅长")
}
