package tools

import (
	"context"
	"testing"

	"github.com/toolweave/toolweave"
)

func TestSetupLocalTools_Catalog(t *testing.T) {
	local := SetupLocalTools()

	tools, err := local.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("expected 2 built-in tools, got %d", len(tools))
	}

	for _, tool := range tools {
		if tool.ID.Server != "local" {
			t.Errorf("tool %s registered under server %q, want local", tool.ID, tool.ID.Server)
		}
		if tool.InputSchema.IsEmpty() || tool.OutputSchema.IsEmpty() {
			t.Errorf("tool %s is missing a declared schema", tool.ID)
		}
	}
}

func TestCalculate(t *testing.T) {
	local := SetupLocalTools()
	id := toolweave.ToolID{Server: "local", Name: "calculate"}

	output, err := local.Invoke(context.Background(), id, map[string]interface{}{
		"expression": "6 * 7",
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result, ok := output["result"].(float64); !ok || result != 42 {
		t.Errorf("expected result 42, got %v", output["result"])
	}
}

func TestCalculate_InvalidExpression(t *testing.T) {
	local := SetupLocalTools()
	id := toolweave.ToolID{Server: "local", Name: "calculate"}

	_, err := local.Invoke(context.Background(), id, map[string]interface{}{
		"expression": "6 *",
	})
	if err == nil {
		t.Fatal("expected error for malformed expression")
	}
	if code := toolweave.CodeOf(err); code != toolweave.ErrCodeToolApplication {
		t.Errorf("expected %s, got %s", toolweave.ErrCodeToolApplication, code)
	}
}

func TestCalculate_RejectsEmptyExpression(t *testing.T) {
	local := SetupLocalTools()
	id := toolweave.ToolID{Server: "local", Name: "calculate"}

	_, err := local.Invoke(context.Background(), id, map[string]interface{}{
		"expression": "",
	})
	if err == nil {
		t.Fatal("expected validation error for empty expression")
	}
}

func TestWordCount(t *testing.T) {
	local := SetupLocalTools()
	id := toolweave.ToolID{Server: "local", Name: "word_count"}

	output, err := local.Invoke(context.Background(), id, map[string]interface{}{
		"text": "one two three",
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if words := output["words"]; words != 3 {
		t.Errorf("expected 3 words, got %v", words)
	}
	if characters := output["characters"]; characters != 13 {
		t.Errorf("expected 13 characters, got %v", characters)
	}
}
