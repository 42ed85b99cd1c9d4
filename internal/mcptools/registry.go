// Package mcptools is the Tool Registry & HTTP Surface (spec.md §4.7): a
// fixed catalogue of bitable/doc-search operations, each declaring a JSON
// Schema for its parameters, dispatched over HTTP for MCP-style clients and
// reused in-process by the skill layer.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is one registered operation: a stable name, a JSON Schema describing
// its parameters, and an executor that takes decoded parameters and returns
// a JSON-serializable result.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (any, error)
}

// Registry holds the fixed catalogue of tools, keyed by name, with a
// compiled-schema cache so repeated calls don't recompile JSON Schema.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool

	schemaMu sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, replacing any existing tool of the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns every registered tool, sorted by the caller if order matters.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	return tools
}

// ValidationError reports that the supplied parameters failed the tool's
// declared schema.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mcptools: %s: invalid params: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Dispatch validates params against the tool's schema and executes it.
func (r *Registry) Dispatch(ctx context.Context, name string, params json.RawMessage) (any, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("mcptools: unknown tool %q", name)
	}

	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	schema, err := r.compileSchema(name, tool.Schema())
	if err != nil {
		return nil, fmt.Errorf("mcptools: %s: compile schema: %w", name, err)
	}

	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return nil, &ValidationError{Tool: name, Err: err}
	}
	if err := schema.Validate(decoded); err != nil {
		return nil, &ValidationError{Tool: name, Err: err}
	}

	return tool.Execute(ctx, params)
}

func (r *Registry) compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()

	if cached, ok := r.compiled[name]; ok {
		return cached, nil
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	r.compiled[name] = compiled
	return compiled, nil
}
