package adapters

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/toolweave/toolweave"
)

func TestToolFromMCP(t *testing.T) {
	declared := mcp.Tool{
		Name:        "fetch_page",
		Description: "Fetches a web page.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"url":     map[string]interface{}{"type": "string"},
				"timeout": map[string]interface{}{"type": "integer"},
			},
			Required: []string{"url"},
		},
		RawOutputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"page_content": {"type": "string"},
				"status":       {"type": "integer"}
			},
			"required": ["page_content"]
		}`),
	}

	tool := toolFromMCP("web", declared)

	if tool.ID != (toolweave.ToolID{Server: "web", Name: "fetch_page"}) {
		t.Errorf("unexpected tool ID %s", tool.ID)
	}
	if field, ok := tool.InputSchema.Field("url"); !ok || !field.Required || field.Type != toolweave.TypeString {
		t.Errorf("url field not converted correctly: %+v", field)
	}
	if field, ok := tool.InputSchema.Field("timeout"); !ok || field.Required {
		t.Errorf("timeout field not converted correctly: %+v", field)
	}
	if field, ok := tool.OutputSchema.Field("page_content"); !ok || !field.Required {
		t.Errorf("page_content output field not converted correctly: %+v", field)
	}
}

func TestToolFromMCP_NoOutputSchema(t *testing.T) {
	declared := mcp.Tool{
		Name: "opaque",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
		},
	}

	tool := toolFromMCP("web", declared)
	if !tool.OutputSchema.IsEmpty() {
		t.Errorf("expected empty output schema, got %+v", tool.OutputSchema)
	}
}

func TestPayloadFromText(t *testing.T) {
	payload := payloadFromText(`{"page_content": "body", "status": 200}`)
	if payload["page_content"] != "body" {
		t.Errorf("expected JSON object to pass through, got %v", payload)
	}

	payload = payloadFromText("plain text reply")
	if payload["output"] != "plain text reply" {
		t.Errorf("expected plain text under output key, got %v", payload)
	}
}

func TestTextFromResult(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "first"},
			mcp.TextContent{Type: "text", Text: "second"},
		},
	}
	if got := textFromResult(result); got != "first\nsecond" {
		t.Errorf("expected joined text content, got %q", got)
	}
}
