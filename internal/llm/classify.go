package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Classify asks the task model to emit a JSON object matching target's
// shape and decodes the response into it. Used by the intent parser's
// LLM-fallback step (spec.md §4.5 step 2: "call the LLM to classify with a
// short JSON schema") and QuerySkill's table-disambiguation shortlist.
func (r *Router) Classify(ctx context.Context, system, userPrompt string, target any) error {
	content, err := r.CompleteTask(ctx, system, []Message{{Role: "user", Content: userPrompt}}, ChatOptions{JSONMode: true})
	if err != nil {
		return fmt.Errorf("llm: classify: %w", err)
	}
	if err := json.Unmarshal([]byte(content), target); err != nil {
		return fmt.Errorf("llm: classify: decode response: %w", err)
	}
	return nil
}
