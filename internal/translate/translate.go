// Package translate maps a step's output payload into the input shape the
// next step requires, guided by the edge connecting the two tools.
package translate

import (
	"context"
	"fmt"

	"github.com/Knetic/govaluate"
	"github.com/toolweave/toolweave"
)

// Translator implements toolweave.Translator. Direct edges pass payloads
// through unchanged; translatable edges apply the hint's field mappings.
type Translator struct {
	cache toolweave.Cache
}

// Option configures a Translator.
type Option func(*Translator)

// WithCache sets a cache for compiled mapping expressions.
func WithCache(cache toolweave.Cache) Option {
	return func(t *Translator) {
		t.cache = cache
	}
}

// New creates a Translator.
func New(options ...Option) *Translator {
	t := &Translator{}
	for _, option := range options {
		option(t)
	}
	return t
}

// Translate produces the target payload for one edge traversal. For direct
// edges the payload passes through unchanged. For translatable edges each
// hint mapping is applied (copy, rename or expression); empty optional
// fields are dropped; a required target field that cannot be derived is a
// hard failure and is never retried.
func (t *Translator) Translate(ctx context.Context, payload map[string]interface{}, edge *toolweave.CapabilityEdge, targetInput toolweave.Schema) (map[string]interface{}, error) {
	if edge == nil || edge.Kind == toolweave.EdgeDirect {
		return payload, nil
	}

	if edge.Hint == nil || len(edge.Hint.Mappings) == 0 {
		return nil, toolweave.NewTranslationError(edge, "", fmt.Errorf("translatable edge carries no hint"))
	}

	out := make(map[string]interface{}, len(edge.Hint.Mappings))
	for _, mapping := range edge.Hint.Mappings {
		value, found, err := t.applyMapping(ctx, mapping, payload)
		if err != nil {
			return nil, toolweave.NewTranslationError(edge, mapping.TargetField, err)
		}

		if !found || isEmptyValue(value) {
			if mapping.Required {
				return nil, toolweave.NewTranslationError(edge, mapping.TargetField,
					fmt.Errorf("required field cannot be derived from source payload"))
			}
			// Empty optional fields are dropped rather than sent as nulls.
			continue
		}

		out[mapping.TargetField] = value
	}

	// Mappings may not cover every required target field when the hint was
	// derived against a different schema revision.
	for _, want := range targetInput.RequiredFields() {
		if _, ok := out[want.Name]; !ok {
			return nil, toolweave.NewTranslationError(edge, want.Name,
				fmt.Errorf("no mapping produces required field"))
		}
	}

	return out, nil
}

// applyMapping derives one target field value from the source payload.
func (t *Translator) applyMapping(ctx context.Context, mapping toolweave.FieldMapping, payload map[string]interface{}) (interface{}, bool, error) {
	if mapping.Expression != "" {
		expr, err := t.compile(ctx, mapping.Expression)
		if err != nil {
			return nil, false, fmt.Errorf("invalid mapping expression %q: %w", mapping.Expression, err)
		}
		value, err := expr.Evaluate(payload)
		if err != nil {
			return nil, false, fmt.Errorf("mapping expression %q failed: %w", mapping.Expression, err)
		}
		return value, value != nil, nil
	}

	value, ok := payload[mapping.SourceField]
	return value, ok, nil
}

// compile parses a mapping expression, consulting the cache first.
func (t *Translator) compile(ctx context.Context, expression string) (*govaluate.EvaluableExpression, error) {
	cacheKey := "translate:expr:" + expression

	if t.cache != nil {
		if cached, err := t.cache.Get(ctx, cacheKey); err == nil {
			if expr, ok := cached.(*govaluate.EvaluableExpression); ok {
				return expr, nil
			}
		}
	}

	expr, err := govaluate.NewEvaluableExpressionWithFunctions(expression, whitelistedFunctions())
	if err != nil {
		return nil, err
	}

	if t.cache != nil {
		// Cache failures are not translation failures.
		_ = t.cache.Set(ctx, cacheKey, expr)
	}

	return expr, nil
}

// isEmptyValue reports whether a derived value counts as empty for the
// drop-optional rule.
func isEmptyValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	default:
		return false
	}
}
