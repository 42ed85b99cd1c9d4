package skills

import (
	"context"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/render"
	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// ChitchatSkill answers small talk with a time-of-day greeting, softly
// declines requests outside its scope, and refuses sensitive topics outright
// rather than attempting an answer (spec.md §4.6 ChitchatSkill).
type ChitchatSkill struct {
	pool *render.Pool
	now  func() time.Time
}

// NewChitchatSkill builds a ChitchatSkill. pool may be nil, falling back to
// render.DefaultPool.
func NewChitchatSkill(pool *render.Pool) *ChitchatSkill {
	if pool == nil {
		pool = render.DefaultPool()
	}
	return &ChitchatSkill{pool: pool, now: time.Now}
}

// Name satisfies router.Skill.
func (s *ChitchatSkill) Name() string { return "chitchat" }

var greetingMarkers = []string{"你好", "在吗", "hello", "hi"}

var sensitiveMarkers = []string{"政治", "违法", "自杀", "色情"}

// Execute satisfies router.Skill.
func (s *ChitchatSkill) Execute(ctx context.Context, turn router.Turn) (models.SkillResult, error) {
	if containsAny(turn.Text, sensitiveMarkers) {
		return models.SkillResult{
			OK:      true,
			Message: "这个话题我没办法帮忙，我们换个方向聊聊案件和日程吧。",
		}, nil
	}

	if containsAny(turn.Text, greetingMarkers) {
		greeting := s.pool.Greeting(s.now())
		return models.SkillResult{
			OK:      true,
			Message: greeting + " 我可以帮你查询、新建、更新、删除记录，或者设置提醒。",
		}, nil
	}

	return models.SkillResult{
		OK:      true,
		Message: "这个我暂时还不太擅长，我更适合帮你处理表格记录和提醒事项，要不试试那些？",
	}, nil
}
