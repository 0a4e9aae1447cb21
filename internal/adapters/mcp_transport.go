package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/toolweave/toolweave"
)

// DefaultInitTimeout bounds the stdio subprocess start plus the MCP
// handshake when the caller's context carries no deadline.
const DefaultInitTimeout = 10 * time.Second

// MCPTransport connects one MCP tool server over stdio and exposes it as
// both a toolweave.ToolCatalog and a toolweave.ToolInvoker.
type MCPTransport struct {
	server      string
	command     string
	args        []string
	env         map[string]string
	initTimeout time.Duration

	mu        sync.RWMutex
	client    client.MCPClient
	connected bool
}

// MCPOption configures an MCPTransport.
type MCPOption func(*MCPTransport)

// WithServerEnv sets environment variables for the server subprocess.
func WithServerEnv(env map[string]string) MCPOption {
	return func(t *MCPTransport) {
		t.env = env
	}
}

// WithInitTimeout overrides the default handshake timeout.
func WithInitTimeout(timeout time.Duration) MCPOption {
	return func(t *MCPTransport) {
		t.initTimeout = timeout
	}
}

// NewMCPTransport creates a transport for the named server. Connect must be
// called before ListTools or Invoke.
func NewMCPTransport(server, command string, args []string, options ...MCPOption) *MCPTransport {
	t := &MCPTransport{
		server:      server,
		command:     command,
		args:        args,
		initTimeout: DefaultInitTimeout,
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Server returns the server name this transport serves tools for.
func (t *MCPTransport) Server() string {
	return t.server
}

// Connect starts the server subprocess and performs the MCP handshake.
// Calling Connect on a connected transport is a no-op.
func (t *MCPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	var envStrings []string
	for k, v := range t.env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	mcpClient, err := client.NewStdioMCPClient(t.command, envStrings, t.args...)
	if err != nil {
		return toolweave.NewError(toolweave.ErrCodeToolTransport, "registry",
			fmt.Sprintf("failed to start MCP server %q", t.server), err)
	}

	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, t.initTimeout)
		defer cancel()
	}

	_, err = mcpClient.Initialize(initCtx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo: mcp.Implementation{
				Name:    "toolweave",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		mcpClient.Close()
		return toolweave.NewError(toolweave.ErrCodeToolTransport, "registry",
			fmt.Sprintf("MCP handshake with server %q failed", t.server), err)
	}

	t.client = mcpClient
	t.connected = true
	return nil
}

// Close shuts down the server subprocess.
func (t *MCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.client == nil {
		return nil
	}

	err := t.client.Close()
	t.connected = false
	t.client = nil
	return err
}

// ListTools implements the toolweave.ToolCatalog interface. Declared MCP
// tools are converted to broker tools under this transport's server name.
func (t *MCPTransport) ListTools(ctx context.Context) ([]toolweave.Tool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.connected || t.client == nil {
		return nil, toolweave.NewError(toolweave.ErrCodeToolTransport, "registry",
			fmt.Sprintf("MCP server %q is not connected", t.server), nil)
	}

	result, err := t.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, toolweave.NewError(toolweave.ErrCodeToolTransport, "registry",
			fmt.Sprintf("failed to list tools on server %q", t.server), err)
	}

	tools := make([]toolweave.Tool, 0, len(result.Tools))
	for _, declared := range result.Tools {
		tools = append(tools, toolFromMCP(t.server, declared))
	}
	return tools, nil
}

// Invoke implements the toolweave.ToolInvoker interface. Protocol failures
// surface as transport errors; a result flagged IsError is an application
// error reported by the tool itself.
func (t *MCPTransport) Invoke(ctx context.Context, tool toolweave.ToolID, args map[string]interface{}) (map[string]interface{}, error) {
	if tool.Server != t.server {
		return nil, toolweave.NewToolNotFoundError("invoke", tool)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.connected || t.client == nil {
		return nil, toolweave.NewToolTransportError(tool, errors.New("server not connected"))
	}

	result, err := t.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      tool.Name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, toolweave.NewToolTransportError(tool, err)
	}

	text := textFromResult(result)
	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return nil, toolweave.NewToolApplicationError(tool, errors.New(text))
	}

	return payloadFromText(text), nil
}

// toolFromMCP converts a declared MCP tool into a broker tool. Output
// schemas are optional in the protocol; tools without one get an empty
// schema, which classifies via the any-type rules.
func toolFromMCP(server string, tool mcp.Tool) toolweave.Tool {
	input := map[string]interface{}{
		"properties": tool.InputSchema.Properties,
		"required":   toInterfaceSlice(tool.InputSchema.Required),
	}

	var output map[string]interface{}
	if len(tool.RawOutputSchema) > 0 {
		if err := json.Unmarshal(tool.RawOutputSchema, &output); err != nil {
			output = nil
		}
	}

	return toolweave.Tool{
		ID:           toolweave.ToolID{Server: server, Name: tool.Name},
		Description:  tool.Description,
		InputSchema:  toolweave.ParseSchema(input),
		OutputSchema: toolweave.ParseSchema(output),
	}
}

func toInterfaceSlice(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func textFromResult(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, textContent.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// payloadFromText turns a tool's text reply into a payload map. A JSON
// object passes through field by field; anything else lands under the
// conventional "output" key.
func payloadFromText(text string) map[string]interface{} {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(text), &payload); err == nil && payload != nil {
		return payload
	}
	return map[string]interface{}{"output": text}
}
