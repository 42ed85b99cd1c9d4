package render

import (
	"time"

	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// Renderer converts a SkillResult into a channel-neutral RenderedResponse
// (spec.md §4.5 step 5), drawing phrasing from a Pool.
type Renderer struct {
	pool *Pool
	now  func() time.Time
}

// NewRenderer builds a Renderer. now defaults to time.Now; tests may
// override it for deterministic time-of-day greeting assertions.
func NewRenderer(pool *Pool, now func() time.Time) *Renderer {
	if pool == nil {
		pool = DefaultPool()
	}
	if now == nil {
		now = time.Now
	}
	return &Renderer{pool: pool, now: now}
}

// Render converts the last SkillResult of a chain into a RenderedResponse.
// When greet is true (typically the ChitchatSkill's greeting path), the
// message is prefixed with a time-of-day-appropriate greeting variant.
func (r *Renderer) Render(result models.SkillResult, greet bool) models.RenderedResponse {
	text := result.Message
	if greet {
		text = r.pool.Greeting(r.now()) + " " + text
	}
	meta := map[string]any{"ok": result.OK}
	return models.RenderedResponse{
		TextFallback: text,
		Blocks:       result.Blocks,
		Meta:         meta,
	}
}

// RenderNamed renders a pool template by name, for L0/system messages that
// don't go through a skill (e.g. the empty-input canned prompt).
func (r *Renderer) RenderNamed(name string) models.RenderedResponse {
	return models.RenderedResponse{TextFallback: r.pool.Pick(name)}
}
