package mcptools

import (
	"context"
	"encoding/json"

	"github.com/fieldbridge/fieldbridge/internal/docsearch"
)

// DocSearchClient is the subset of *docsearch.Client the tool wrapper needs.
type DocSearchClient interface {
	Search(ctx context.Context, query string, pageSize int) ([]docsearch.Result, error)
}

// RegisterDocTools adds feishu.v1.doc.search to reg.
func RegisterDocTools(reg *Registry, client DocSearchClient) {
	reg.Register(&docSearchTool{client: client})
}

type docSearchTool struct{ client DocSearchClient }

func (t *docSearchTool) Name() string        { return toolName("doc.search") }
func (t *docSearchTool) Description() string { return "Search documents by free-text query." }
func (t *docSearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "minLength": 1},
    "page_size": {"type": "integer", "minimum": 1, "maximum": 50}
  },
  "required": ["query"]
}`)
}
func (t *docSearchTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		Query    string `json:"query"`
		PageSize int    `json:"page_size"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	results, err := t.client.Search(ctx, req.Query, req.PageSize)
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": results}, nil
}
