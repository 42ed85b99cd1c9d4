package skills

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/internal/llm"
)

// tableMatch is one alias candidate scored against the turn's text.
type tableMatch struct {
	name  string
	alias config.TableAlias
	score int
}

// resolveTable implements spec.md §4.6's table disambiguation ladder:
// configured aliases first; if ambiguous (more than one alias tied for the
// top score), the LLM is asked to pick from the tied shortlist only when
// the resulting confidence doesn't clear DisambiguateThreshold (0.65).
// Open Question resolution (DESIGN.md): this threshold never skips a
// required mutation confirmation — it only controls whether the LLM
// shortlist step runs.
func resolveTable(ctx context.Context, cfg config.TablesConfig, router *llm.Router, text string) (string, config.TableAlias, error) {
	matches := make([]tableMatch, 0, len(cfg.Aliases))
	for name, alias := range cfg.Aliases {
		score := 0
		for _, a := range alias.Aliases {
			if a != "" && strings.Contains(text, a) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, tableMatch{name: name, alias: alias, score: score})
		}
	}
	if len(matches) == 0 {
		return "", config.TableAlias{}, fmt.Errorf("skills: no configured table matches %q", text)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].name < matches[j].name
	})

	top := matches[0]
	tied := []tableMatch{top}
	for _, m := range matches[1:] {
		if m.score == top.score {
			tied = append(tied, m)
		}
	}
	if len(tied) == 1 {
		return top.name, top.alias, nil
	}

	confidence := 1.0 / float64(len(tied))
	threshold := cfg.DisambiguateThreshold
	if threshold <= 0 {
		threshold = 0.65
	}
	if confidence >= threshold || router == nil {
		return top.name, top.alias, nil
	}

	candidates := make([]string, 0, len(tied))
	for _, m := range tied {
		candidates = append(candidates, m.name)
	}
	sort.Strings(candidates)

	var result struct {
		Table string `json:"table"`
	}
	system := fmt.Sprintf(
		"Given the user's message, pick exactly one table name from this list: %s. "+
			`Respond with JSON: {"table": "<name>"}.`,
		strings.Join(candidates, ", "),
	)
	if err := router.Classify(ctx, system, text, &result); err != nil {
		return top.name, top.alias, nil
	}
	for _, m := range tied {
		if m.name == result.Table {
			return m.name, m.alias, nil
		}
	}
	return top.name, top.alias, nil
}
