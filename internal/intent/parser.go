// Package intent is the rule-first/LLM-fallback Intent Parser (spec.md
// §4.5 step 2): keyword sets per skill yield weighted scores; a high score
// dispatches directly, a middling score asks the LLM to classify, and a
// low score falls through to the configured default skill. A chain
// trigger pattern can expand into an ordered, max_hops-bounded skill list.
package intent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/internal/llm"
)

// Source records which rung of the ladder produced a Decision.
type Source string

const (
	SourceChain   Source = "chain"
	SourceDirect  Source = "direct"
	SourceLLM     Source = "llm"
	SourceDefault Source = "default"
)

// Decision is the Intent Parser's output: the ordered skill(s) to run and
// which rung of the ladder produced them.
type Decision struct {
	Skills []string
	Source Source
	Scores map[string]float64
}

// Parser scores a turn's text against configured skill keyword sets and
// falls back to an LLM classification call when the score is ambiguous.
type Parser struct {
	cfg    config.IntentConfig
	router *llm.Router
}

// New builds a Parser. router may be nil; in that case a score in the
// llm_confirm band falls straight through to the default skill instead of
// erroring, since some deployments run without a configured chat model.
func New(cfg config.IntentConfig, router *llm.Router) *Parser {
	return &Parser{cfg: cfg, router: router}
}

// Parse classifies one turn's text into a skill (or skill chain).
func (p *Parser) Parse(ctx context.Context, text string) (Decision, error) {
	if skills, ok := p.matchChain(text); ok {
		return Decision{Skills: skills, Source: SourceChain}, nil
	}

	scores := p.score(text)
	top, topScore := topSkill(scores)

	if top != "" && topScore >= p.cfg.DirectExecuteThreshold {
		return Decision{Skills: []string{top}, Source: SourceDirect, Scores: scores}, nil
	}

	if top != "" && topScore >= p.cfg.LLMConfirmThreshold && p.router != nil {
		skill, err := p.classify(ctx, text, scores)
		if err != nil {
			return Decision{}, fmt.Errorf("intent: llm classify: %w", err)
		}
		if skill != "" {
			return Decision{Skills: []string{skill}, Source: SourceLLM, Scores: scores}, nil
		}
	}

	return Decision{Skills: []string{p.cfg.DefaultSkill}, Source: SourceDefault, Scores: scores}, nil
}

// matchChain looks for a configured chain trigger substring in text and
// returns its expansion bounded by max_hops.
func (p *Parser) matchChain(text string) ([]string, bool) {
	for pattern, skills := range p.cfg.Chains {
		if pattern == "" || !strings.Contains(text, pattern) {
			continue
		}
		hops := skills
		maxHops := p.cfg.MaxHops
		if maxHops > 0 && len(hops) > maxHops {
			hops = hops[:maxHops]
		}
		return hops, true
	}
	return nil, false
}

// score sums configured keyword weights for every skill whose keyword
// appears as a substring of text.
func (p *Parser) score(text string) map[string]float64 {
	scores := make(map[string]float64, len(p.cfg.Skills))
	for name, skillCfg := range p.cfg.Skills {
		var total float64
		for keyword, weight := range skillCfg.Keywords {
			if keyword != "" && strings.Contains(text, keyword) {
				total += weight
			}
		}
		if total > 0 {
			scores[name] = total
		}
	}
	return scores
}

func topSkill(scores map[string]float64) (string, float64) {
	if len(scores) == 0 {
		return "", 0
	}
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	best, bestScore := "", -1.0
	for _, name := range names {
		if scores[name] > bestScore {
			best, bestScore = name, scores[name]
		}
	}
	return best, bestScore
}

type classifyResult struct {
	Skill string `json:"skill"`
}

const classifySchema = `{"type":"object","properties":{"skill":{"type":"string"}},"required":["skill"]}`

func (p *Parser) classify(ctx context.Context, text string, scores map[string]float64) (string, error) {
	candidates := make([]string, 0, len(scores))
	for name := range scores {
		candidates = append(candidates, name)
	}
	sort.Strings(candidates)

	system := fmt.Sprintf(
		"Classify the user's message into exactly one of these skills: %s. "+
			"Respond with JSON matching this schema: %s",
		strings.Join(candidates, ", "), classifySchema,
	)

	var result classifyResult
	if err := p.router.Classify(ctx, system, text, &result); err != nil {
		return "", err
	}
	for _, c := range candidates {
		if c == result.Skill {
			return c, nil
		}
	}
	return "", nil
}
