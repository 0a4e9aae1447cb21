package toolweave

import (
	"errors"
	"fmt"
)

// Error codes for specific failure types
const (
	ErrCodeEmbeddingUnavailable = "EMBEDDING_UNAVAILABLE"
	ErrCodePlanInfeasible       = "PLAN_INFEASIBLE"
	ErrCodeTranslation          = "TRANSLATION_ERROR"
	ErrCodeToolTimeout          = "TOOL_TIMEOUT"
	ErrCodeToolTransport        = "TOOL_TRANSPORT_ERROR"
	ErrCodeToolApplication      = "TOOL_APPLICATION_ERROR"
	ErrCodeToolNotFound         = "TOOL_NOT_FOUND"
	ErrCodeConfiguration        = "CONFIGURATION_ERROR"
	ErrCodeCancelled            = "EXECUTION_CANCELLED"
	ErrCodeCache                = "CACHE_ERROR"
	ErrCodeHistory              = "HISTORY_ERROR"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// BrokerError is the structured error type used across the broker. Stage
// names the phase that failed (e.g. "graph", "planning", "execution").
type BrokerError struct {
	Code    string // machine-readable code (e.g. ErrCodePlanInfeasible)
	Stage   string // the stage where the error occurred
	Message string // human-readable message
	Cause   error  // underlying error, if any
}

// Error implements the error interface.
func (e *BrokerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause, allowing errors.Is/As chaining.
func (e *BrokerError) Unwrap() error {
	return e.Cause
}

// NewError creates a new BrokerError.
func NewError(code, stage, message string, cause error) *BrokerError {
	return &BrokerError{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// IsBrokerError reports whether err is (or wraps) a BrokerError.
func IsBrokerError(err error) bool {
	var be *BrokerError
	return errors.As(err, &be)
}

// CodeOf extracts the broker error code from err, or ErrCodeInternal when
// err carries no code.
func CodeOf(err error) string {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether the error represents a transient tool
// invocation failure. Only timeouts and transport errors are retried;
// application and translation errors are terminal.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeToolTimeout, ErrCodeToolTransport:
		return true
	default:
		return false
	}
}

// Specific error constructors

func NewEmbeddingUnavailableError(toolID ToolID, cause error) *BrokerError {
	msg := fmt.Sprintf("embedding provider unavailable for tool '%s'", toolID)
	return NewError(ErrCodeEmbeddingUnavailable, "graph", msg, cause)
}

func NewPlanInfeasibleError(reason string, cause error) *BrokerError {
	return NewError(ErrCodePlanInfeasible, "planning", reason, cause)
}

func NewTranslationError(edge *CapabilityEdge, field string, cause error) *BrokerError {
	msg := fmt.Sprintf("cannot derive required field '%s'", field)
	if edge != nil {
		msg = fmt.Sprintf("cannot derive required field '%s' for edge %s -> %s", field, edge.Source, edge.Target)
	}
	return NewError(ErrCodeTranslation, "translation", msg, cause)
}

func NewToolTimeoutError(toolID ToolID, cause error) *BrokerError {
	return NewError(ErrCodeToolTimeout, "execution", fmt.Sprintf("tool '%s' timed out", toolID), cause)
}

func NewToolTransportError(toolID ToolID, cause error) *BrokerError {
	return NewError(ErrCodeToolTransport, "execution", fmt.Sprintf("transport failure invoking tool '%s'", toolID), cause)
}

func NewToolApplicationError(toolID ToolID, cause error) *BrokerError {
	return NewError(ErrCodeToolApplication, "execution", fmt.Sprintf("tool '%s' returned an application error", toolID), cause)
}

func NewToolNotFoundError(stage string, toolID ToolID) *BrokerError {
	return NewError(ErrCodeToolNotFound, stage, fmt.Sprintf("tool '%s' not found", toolID), nil)
}

func NewConfigurationError(message string, cause error) *BrokerError {
	return NewError(ErrCodeConfiguration, "initialization", message, cause)
}

func NewCancelledError(stage string, cause error) *BrokerError {
	msg := "execution cancelled"
	if cause != nil && cause.Error() != "" && cause.Error() != "context canceled" {
		msg = fmt.Sprintf("execution cancelled: %v", cause)
	}
	return NewError(ErrCodeCancelled, stage, msg, cause)
}

func NewCacheError(stage, operation string, cause error) *BrokerError {
	return NewError(ErrCodeCache, stage, fmt.Sprintf("cache operation '%s' failed", operation), cause)
}

func NewHistoryError(operation string, cause error) *BrokerError {
	return NewError(ErrCodeHistory, "history", fmt.Sprintf("history operation '%s' failed", operation), cause)
}

func NewInternalError(stage, message string, cause error) *BrokerError {
	return NewError(ErrCodeInternal, stage, message, cause)
}
