package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/toolweave/toolweave"
)

// ToolFunc is the signature of an in-process tool implementation.
type ToolFunc func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)

// localTool couples a declared tool with the function that serves it.
type localTool struct {
	tool      toolweave.Tool
	fn        ToolFunc
	validator func(map[string]interface{}) error
}

// LocalTransport hosts in-process Go tools behind the same catalog and
// invoker interfaces remote MCP servers use, so built-in tools register
// and execute like any other server.
type LocalTransport struct {
	server string
	mu     sync.RWMutex
	tools  map[string]localTool
}

// LocalToolOption configures a registered local tool.
type LocalToolOption func(*localTool)

// WithToolDescription sets the tool's description.
func WithToolDescription(description string) LocalToolOption {
	return func(t *localTool) {
		t.tool.Description = description
	}
}

// WithInputSchema declares the tool's input schema.
func WithInputSchema(schema toolweave.Schema) LocalToolOption {
	return func(t *localTool) {
		t.tool.InputSchema = schema
	}
}

// WithOutputSchema declares the tool's output schema.
func WithOutputSchema(schema toolweave.Schema) LocalToolOption {
	return func(t *localTool) {
		t.tool.OutputSchema = schema
	}
}

// WithToolValidator sets a custom argument validator, run before the tool
// function on every invocation.
func WithToolValidator(validator func(map[string]interface{}) error) LocalToolOption {
	return func(t *localTool) {
		t.validator = validator
	}
}

// NewLocalTransport creates an empty local tool server with the given name.
func NewLocalTransport(server string) *LocalTransport {
	return &LocalTransport{
		server: server,
		tools:  make(map[string]localTool),
	}
}

// Server returns the server name local tools are registered under.
func (t *LocalTransport) Server() string {
	return t.server
}

// Register adds a tool function under the given name. Registering the same
// name twice replaces the earlier registration.
func (t *LocalTransport) Register(name string, fn ToolFunc, options ...LocalToolOption) error {
	if fn == nil {
		return toolweave.NewConfigurationError(
			fmt.Sprintf("local tool %q has a nil function", name), nil)
	}

	entry := localTool{
		tool: toolweave.Tool{
			ID: toolweave.ToolID{Server: t.server, Name: name},
		},
		fn: fn,
		validator: func(args map[string]interface{}) error {
			if args == nil {
				return fmt.Errorf("arguments cannot be nil")
			}
			return nil
		},
	}
	for _, option := range options {
		option(&entry)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.tools[name] = entry
	return nil
}

// ListTools implements the toolweave.ToolCatalog interface.
func (t *LocalTransport) ListTools(ctx context.Context) ([]toolweave.Tool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	tools := make([]toolweave.Tool, 0, len(t.tools))
	for _, entry := range t.tools {
		tools = append(tools, entry.tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].ID.Name < tools[j].ID.Name })
	return tools, nil
}

// Invoke implements the toolweave.ToolInvoker interface. Validation and
// tool function failures are application errors; there is no transport to
// fail here.
func (t *LocalTransport) Invoke(ctx context.Context, tool toolweave.ToolID, args map[string]interface{}) (map[string]interface{}, error) {
	if tool.Server != t.server {
		return nil, toolweave.NewToolNotFoundError("invoke", tool)
	}

	t.mu.RLock()
	entry, found := t.tools[tool.Name]
	t.mu.RUnlock()
	if !found {
		return nil, toolweave.NewToolNotFoundError("invoke", tool)
	}

	if err := ctx.Err(); err != nil {
		return nil, toolweave.NewCancelledError("execution", err)
	}

	if entry.validator != nil {
		if err := entry.validator(args); err != nil {
			return nil, toolweave.NewToolApplicationError(tool,
				fmt.Errorf("input validation failed: %w", err))
		}
	}

	output, err := entry.fn(ctx, args)
	if err != nil {
		if toolweave.IsBrokerError(err) {
			return nil, err
		}
		return nil, toolweave.NewToolApplicationError(tool, err)
	}
	return output, nil
}
