package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldbridge/fieldbridge/internal/bitable"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// BitableClient is the subset of *bitable.Client the tool wrappers need;
// declared as an interface so tests can substitute a fake.
type BitableClient interface {
	GetRecord(ctx context.Context, loc models.Locator) (models.Record, error)
	UpdateFields(ctx context.Context, loc models.Locator, fields models.Fields) error
	CreateRecord(ctx context.Context, target models.TableRef, fields models.Fields) (string, error)
	DeleteRecord(ctx context.Context, loc models.Locator) error
	Search(ctx context.Context, mode bitable.SearchMode, params bitable.SearchParams) ([]models.Record, int, error)
	ListTables(ctx context.Context, appToken string) ([]bitable.TableInfo, error)
}

// RegisterBitableTools adds every feishu.v1.bitable.* tool to reg.
func RegisterBitableTools(reg *Registry, client BitableClient) {
	reg.Register(&listTablesTool{client: client})
	reg.Register(&recordGetTool{client: client})
	reg.Register(&recordCreateTool{client: client})
	reg.Register(&recordUpdateTool{client: client})
	reg.Register(&recordDeleteTool{client: client})
	for _, mode := range []bitable.SearchMode{
		bitable.SearchDefault, bitable.SearchExact, bitable.SearchKeyword,
		bitable.SearchPerson, bitable.SearchDateRange,
	} {
		reg.Register(&searchTool{client: client, mode: mode})
	}
}

func toolName(suffix string) string { return "feishu.v1." + suffix }

type listTablesTool struct{ client BitableClient }

func (t *listTablesTool) Name() string        { return toolName("bitable.list_tables") }
func (t *listTablesTool) Description() string { return "List the tables available in an app." }
func (t *listTablesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"app_token": {"type": "string"}},
  "required": ["app_token"]
}`)
}
func (t *listTablesTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		AppToken string `json:"app_token"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	return t.client.ListTables(ctx, req.AppToken)
}

type recordGetTool struct{ client BitableClient }

func (t *recordGetTool) Name() string        { return toolName("bitable.record.get") }
func (t *recordGetTool) Description() string { return "Fetch one record by id." }
func (t *recordGetTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "app_token": {"type": "string"},
    "table_id": {"type": "string"},
    "record_id": {"type": "string"}
  },
  "required": ["app_token", "table_id", "record_id"]
}`)
}
func (t *recordGetTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var loc models.Locator
	if err := json.Unmarshal(params, &loc); err != nil {
		return nil, err
	}
	return t.client.GetRecord(ctx, loc)
}

type recordCreateTool struct{ client BitableClient }

func (t *recordCreateTool) Name() string        { return toolName("bitable.record.create") }
func (t *recordCreateTool) Description() string { return "Create a new record with the given fields." }
func (t *recordCreateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "app_token": {"type": "string"},
    "table_id": {"type": "string"},
    "fields": {"type": "object"}
  },
  "required": ["app_token", "table_id", "fields"]
}`)
}
func (t *recordCreateTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		models.TableRef
		Fields models.Fields `json:"fields"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	recordID, err := t.client.CreateRecord(ctx, req.TableRef, req.Fields)
	if err != nil {
		return nil, err
	}
	return map[string]string{"record_id": recordID}, nil
}

type recordUpdateTool struct{ client BitableClient }

func (t *recordUpdateTool) Name() string        { return toolName("bitable.record.update") }
func (t *recordUpdateTool) Description() string { return "Patch a record's fields." }
func (t *recordUpdateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "app_token": {"type": "string"},
    "table_id": {"type": "string"},
    "record_id": {"type": "string"},
    "fields": {"type": "object"}
  },
  "required": ["app_token", "table_id", "record_id", "fields"]
}`)
}
func (t *recordUpdateTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		models.Locator
		Fields models.Fields `json:"fields"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	if err := t.client.UpdateFields(ctx, req.Locator, req.Fields); err != nil {
		return nil, err
	}
	return map[string]bool{"updated": true}, nil
}

type recordDeleteTool struct{ client BitableClient }

func (t *recordDeleteTool) Name() string        { return toolName("bitable.record.delete") }
func (t *recordDeleteTool) Description() string { return "Delete a record by id." }
func (t *recordDeleteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "app_token": {"type": "string"},
    "table_id": {"type": "string"},
    "record_id": {"type": "string"}
  },
  "required": ["app_token", "table_id", "record_id"]
}`)
}
func (t *recordDeleteTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var loc models.Locator
	if err := json.Unmarshal(params, &loc); err != nil {
		return nil, err
	}
	if err := t.client.DeleteRecord(ctx, loc); err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": true}, nil
}

type searchTool struct {
	client BitableClient
	mode   bitable.SearchMode
}

func (t *searchTool) Name() string { return toolName(fmt.Sprintf("bitable.%s", t.mode)) }
func (t *searchTool) Description() string {
	return fmt.Sprintf("Search records using the %s strategy.", t.mode)
}
func (t *searchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "app_token": {"type": "string"},
    "table_id": {"type": "string"},
    "query": {"type": "string"},
    "field": {"type": "string"},
    "value": {"type": "string"},
    "person_id": {"type": "string"},
    "start_ms": {"type": "integer"},
    "end_ms": {"type": "integer"},
    "page": {"type": "integer", "minimum": 1},
    "page_size": {"type": "integer", "minimum": 1, "maximum": 200}
  },
  "required": ["app_token", "table_id"]
}`)
}
func (t *searchTool) Execute(ctx context.Context, params json.RawMessage) (any, error) {
	var req struct {
		AppToken string `json:"app_token"`
		TableID  string `json:"table_id"`
		Query    string `json:"query"`
		Field    string `json:"field"`
		Value    string `json:"value"`
		PersonID string `json:"person_id"`
		StartMS  int64  `json:"start_ms"`
		EndMS    int64  `json:"end_ms"`
		Page     int    `json:"page"`
		PageSize int    `json:"page_size"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	records, total, err := t.client.Search(ctx, t.mode, bitable.SearchParams{
		Table:    models.TableRef{AppToken: req.AppToken, TableID: req.TableID},
		Query:    req.Query,
		Field:    req.Field,
		Value:    req.Value,
		PersonID: req.PersonID,
		StartMS:  req.StartMS,
		EndMS:    req.EndMS,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"records": records, "total": total}, nil
}
