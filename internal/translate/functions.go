package translate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Knetic/govaluate"
)

// FunctionRegistry allows registration of custom functions for mapping
// expressions.
type FunctionRegistry struct {
	mutex     sync.RWMutex
	functions map[string]govaluate.ExpressionFunction
}

var globalFunctionRegistry = &FunctionRegistry{
	functions: map[string]govaluate.ExpressionFunction{
		"lower": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("lower expects 1 argument")
			}
			return strings.ToLower(fmt.Sprint(args[0])), nil
		},
		"upper": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("upper expects 1 argument")
			}
			return strings.ToUpper(fmt.Sprint(args[0])), nil
		},
		"trim": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("trim expects 1 argument")
			}
			return strings.TrimSpace(fmt.Sprint(args[0])), nil
		},
		"concat": func(args ...interface{}) (interface{}, error) {
			var sb strings.Builder
			for _, arg := range args {
				sb.WriteString(fmt.Sprint(arg))
			}
			return sb.String(), nil
		},
	},
}

// RegisterFunction registers a custom function usable in mapping
// expressions.
func RegisterFunction(name string, fn govaluate.ExpressionFunction) {
	globalFunctionRegistry.mutex.Lock()
	defer globalFunctionRegistry.mutex.Unlock()
	globalFunctionRegistry.functions[name] = fn
}

// whitelistedFunctions returns only registered functions for security.
func whitelistedFunctions() map[string]govaluate.ExpressionFunction {
	globalFunctionRegistry.mutex.RLock()
	defer globalFunctionRegistry.mutex.RUnlock()

	whitelist := make(map[string]govaluate.ExpressionFunction, len(globalFunctionRegistry.functions))
	for name, fn := range globalFunctionRegistry.functions {
		whitelist[name] = fn
	}
	return whitelist
}

// ValidateExpression checks whether a mapping expression parses.
func ValidateExpression(expr string) error {
	_, err := govaluate.NewEvaluableExpressionWithFunctions(expr, whitelistedFunctions())
	return err
}
