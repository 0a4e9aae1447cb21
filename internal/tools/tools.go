// Package tools provides the built-in local tool server: small
// deterministic tools that ship with the broker and need no subprocess.
package tools

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Knetic/govaluate"

	"github.com/toolweave/toolweave"
	"github.com/toolweave/toolweave/internal/adapters"
)

// SetupLocalTools creates the built-in "local" server with its tools
// registered.
func SetupLocalTools() *adapters.LocalTransport {
	local := adapters.NewLocalTransport("local")

	// Register never fails for the built-ins; the functions are non-nil.
	_ = local.Register("calculate", Calculate,
		adapters.WithToolDescription("Evaluates a mathematical expression and returns the numeric result."),
		adapters.WithInputSchema(toolweave.Schema{Fields: []toolweave.FieldSpec{
			{Name: "expression", Type: toolweave.TypeString, Required: true},
		}}),
		adapters.WithOutputSchema(toolweave.Schema{Fields: []toolweave.FieldSpec{
			{Name: "result", Type: toolweave.TypeNumber, Required: true},
		}}),
		adapters.WithToolValidator(validateCalculateArgs),
	)

	_ = local.Register("word_count", WordCount,
		adapters.WithToolDescription("Counts the words and characters in a piece of text."),
		adapters.WithInputSchema(toolweave.Schema{Fields: []toolweave.FieldSpec{
			{Name: "text", Type: toolweave.TypeString, Required: true},
		}}),
		adapters.WithOutputSchema(toolweave.Schema{Fields: []toolweave.FieldSpec{
			{Name: "words", Type: toolweave.TypeInteger, Required: true},
			{Name: "characters", Type: toolweave.TypeInteger, Required: true},
		}}),
	)

	return local
}

// Calculate evaluates the "expression" argument and returns the result
// under "result".
func Calculate(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	raw, ok := args["expression"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid or missing expression argument (expected string at key 'expression')")
	}

	expr, err := govaluate.NewEvaluableExpression(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", raw, err)
	}

	value, err := expr.Evaluate(nil)
	if err != nil {
		return nil, fmt.Errorf("evaluation of %q failed: %w", raw, err)
	}

	result, ok := value.(float64)
	if !ok {
		return nil, fmt.Errorf("expression %q did not produce a number (got %T)", raw, value)
	}

	return map[string]interface{}{"result": result}, nil
}

// WordCount counts words and characters of the "text" argument.
func WordCount(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	text, ok := args["text"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid or missing text argument (expected string at key 'text')")
	}

	return map[string]interface{}{
		"words":      len(strings.Fields(text)),
		"characters": utf8.RuneCountInString(text),
	}, nil
}

func validateCalculateArgs(args map[string]interface{}) error {
	raw, ok := args["expression"]
	if !ok {
		return fmt.Errorf("missing expression (expected at key 'expression')")
	}

	expr, ok := raw.(string)
	if !ok {
		return fmt.Errorf("expression must be a string, got %T", raw)
	}

	if len(expr) == 0 {
		return fmt.Errorf("expression cannot be empty")
	}

	if len(expr) > 200 {
		return fmt.Errorf("expression too long (max 200 characters)")
	}

	return nil
}
