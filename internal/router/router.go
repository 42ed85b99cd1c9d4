// Package router is the Skill Router (spec.md §4.5 step 3): selects and
// runs a skill chain, threading the first skill's SkillResult.Data forward
// as the next skill's implicit context (e.g. Query → Summary).
package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// Turn carries one conversational turn's input through a skill chain.
type Turn struct {
	OpenID  string
	Text    string
	State   models.ConversationState
	Context map[string]any
}

// Skill is anything the Router can dispatch a Turn to (spec.md §4.6).
type Skill interface {
	Name() string
	Execute(ctx context.Context, turn Turn) (models.SkillResult, error)
}

// Router holds the registered skills and dispatches turns/chains to them.
type Router struct {
	mu     sync.RWMutex
	skills map[string]Skill
}

// New returns an empty Router.
func New() *Router {
	return &Router{skills: make(map[string]Skill)}
}

// Register adds a skill, keyed by its Name().
func (r *Router) Register(skill Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[skill.Name()] = skill
}

// Get looks up a registered skill by name.
func (r *Router) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skill, ok := r.skills[name]
	return skill, ok
}

// Dispatch runs skillNames in order, threading each SkillResult.Data
// forward as the next skill's implicit Context. A skill returning
// ok=false stops the chain early — there's no useful context to hand a
// downstream skill after a failure. After the configured list is
// exhausted, a skill-driven SkillResult.NextSkill not already covered by
// skillNames is run once more, bounded by maxHops total skills executed.
func (r *Router) Dispatch(ctx context.Context, skillNames []string, turn Turn, maxHops int) ([]models.SkillResult, error) {
	results := make([]models.SkillResult, 0, len(skillNames))
	queue := append([]string(nil), skillNames...)

	for len(queue) > 0 {
		if maxHops > 0 && len(results) >= maxHops {
			break
		}
		name := queue[0]
		queue = queue[1:]

		skill, ok := r.Get(name)
		if !ok {
			return results, fmt.Errorf("router: unknown skill %q", name)
		}

		result, err := skill.Execute(ctx, turn)
		if err != nil {
			return results, fmt.Errorf("router: skill %q: %w", name, err)
		}
		results = append(results, result)

		if !result.OK {
			break
		}

		turn.Context = result.Data

		if result.NextSkill != "" && len(queue) == 0 {
			queue = append(queue, result.NextSkill)
		}
	}

	return results, nil
}
