package translate

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/toolweave/toolweave"
)

func directEdge() *toolweave.CapabilityEdge {
	return &toolweave.CapabilityEdge{
		Source:     toolweave.ToolID{Server: "a", Name: "x"},
		Target:     toolweave.ToolID{Server: "b", Name: "y"},
		Kind:       toolweave.EdgeDirect,
		Confidence: 1.0,
	}
}

func translatableEdge(mappings ...toolweave.FieldMapping) *toolweave.CapabilityEdge {
	return &toolweave.CapabilityEdge{
		Source:     toolweave.ToolID{Server: "a", Name: "x"},
		Target:     toolweave.ToolID{Server: "b", Name: "y"},
		Kind:       toolweave.EdgeTranslatable,
		Confidence: 0.8,
		Hint:       &toolweave.TranslationHint{Mappings: mappings},
	}
}

func TestTranslate_DirectEdgeIdentity(t *testing.T) {
	tr := New()
	payload := map[string]interface{}{"content": "hello", "extra": 42}

	out, err := tr.Translate(context.Background(), payload, directEdge(), toolweave.Schema{})
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if !reflect.DeepEqual(out, payload) {
		t.Errorf("direct translation must be identity, got %+v", out)
	}
}

func TestTranslate_RenameMapping(t *testing.T) {
	tr := New()
	edge := translatableEdge(
		toolweave.FieldMapping{TargetField: "text", SourceField: "page_content", Required: true},
	)
	target := toolweave.Schema{Fields: []toolweave.FieldSpec{
		{Name: "text", Type: toolweave.TypeString, Required: true},
	}}

	out, err := tr.Translate(context.Background(),
		map[string]interface{}{"page_content": "body", "status": 200}, edge, target)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	want := map[string]interface{}{"text": "body"}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("got %+v, want %+v", out, want)
	}
}

func TestTranslate_ExpressionMapping(t *testing.T) {
	tr := New()
	edge := translatableEdge(
		toolweave.FieldMapping{TargetField: "title", Expression: "upper(name)", Required: true},
	)
	target := toolweave.Schema{Fields: []toolweave.FieldSpec{
		{Name: "title", Type: toolweave.TypeString, Required: true},
	}}

	out, err := tr.Translate(context.Background(),
		map[string]interface{}{"name": "report"}, edge, target)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if out["title"] != "REPORT" {
		t.Errorf("expected REPORT, got %v", out["title"])
	}
}

func TestTranslate_DropsEmptyOptionalFields(t *testing.T) {
	tr := New()
	edge := translatableEdge(
		toolweave.FieldMapping{TargetField: "text", SourceField: "content", Required: true},
		toolweave.FieldMapping{TargetField: "lang", SourceField: "language", Required: false},
	)
	target := toolweave.Schema{Fields: []toolweave.FieldSpec{
		{Name: "text", Type: toolweave.TypeString, Required: true},
		{Name: "lang", Type: toolweave.TypeString, Required: false},
	}}

	out, err := tr.Translate(context.Background(),
		map[string]interface{}{"content": "hello", "language": ""}, edge, target)
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if _, present := out["lang"]; present {
		t.Error("empty optional field must be dropped")
	}
	if out["text"] != "hello" {
		t.Errorf("unexpected text: %v", out["text"])
	}
}

func TestTranslate_MissingRequiredFieldFails(t *testing.T) {
	tr := New()
	edge := translatableEdge(
		toolweave.FieldMapping{TargetField: "text", SourceField: "content", Required: true},
	)
	target := toolweave.Schema{Fields: []toolweave.FieldSpec{
		{Name: "text", Type: toolweave.TypeString, Required: true},
	}}

	_, err := tr.Translate(context.Background(),
		map[string]interface{}{"other": "value"}, edge, target)
	if err == nil {
		t.Fatal("expected translation error")
	}
	if toolweave.CodeOf(err) != toolweave.ErrCodeTranslation {
		t.Errorf("expected TRANSLATION_ERROR, got %v", toolweave.CodeOf(err))
	}
	var brokerErr *toolweave.BrokerError
	if !errors.As(err, &brokerErr) {
		t.Fatal("expected a BrokerError")
	}
}

func TestTranslate_MappingMissesRequiredTargetField(t *testing.T) {
	tr := New()
	// The hint only knows about "text" but the schema now also requires
	// "format".
	edge := translatableEdge(
		toolweave.FieldMapping{TargetField: "text", SourceField: "content", Required: true},
	)
	target := toolweave.Schema{Fields: []toolweave.FieldSpec{
		{Name: "text", Type: toolweave.TypeString, Required: true},
		{Name: "format", Type: toolweave.TypeString, Required: true},
	}}

	_, err := tr.Translate(context.Background(),
		map[string]interface{}{"content": "hello"}, edge, target)
	if err == nil {
		t.Fatal("expected translation error for uncovered required field")
	}
	if toolweave.CodeOf(err) != toolweave.ErrCodeTranslation {
		t.Errorf("expected TRANSLATION_ERROR, got %v", toolweave.CodeOf(err))
	}
}

func TestTranslate_HintlessTranslatableEdgeFails(t *testing.T) {
	tr := New()
	edge := &toolweave.CapabilityEdge{
		Source: toolweave.ToolID{Server: "a", Name: "x"},
		Target: toolweave.ToolID{Server: "b", Name: "y"},
		Kind:   toolweave.EdgeTranslatable,
	}

	_, err := tr.Translate(context.Background(), map[string]interface{}{}, edge, toolweave.Schema{})
	if err == nil {
		t.Fatal("expected translation error for hintless edge")
	}
}

func TestValidateExpression(t *testing.T) {
	if err := ValidateExpression("upper(name)"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateExpression("(("); err == nil {
		t.Error("invalid expression accepted")
	}
}
