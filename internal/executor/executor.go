// Package executor runs validated pipeline plans step by step and records
// the outcome of every attempted step.
package executor

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/toolweave/toolweave"
	"github.com/toolweave/toolweave/internal/eventbus"
)

// SnapshotSource provides the graph snapshot used to look up target input
// schemas during translation. toolweave.CapabilityGraph satisfies it.
type SnapshotSource interface {
	Snapshot() *toolweave.GraphSnapshot
}

// PipelineExecutor implements toolweave.RunExecutor. Steps run strictly
// sequentially; transient invocation failures are retried with backoff,
// translation failures abort immediately.
type PipelineExecutor struct {
	invoker    toolweave.ToolInvoker
	translator toolweave.Translator
	history    toolweave.HistoryStore
	schemas    SnapshotSource
	eventBus   eventbus.EventBus

	maxRetries  int
	retryDelay  time.Duration
	stepTimeout time.Duration

	// Statistics and metrics
	metrics ExecutorMetrics
}

// ExecutorOption represents an option for configuring the PipelineExecutor.
type ExecutorOption func(*PipelineExecutor)

// WithMaxRetries sets the retry budget for transient step failures.
func WithMaxRetries(retries int) ExecutorOption {
	return func(e *PipelineExecutor) {
		e.maxRetries = retries
	}
}

// WithRetryDelay sets the delay between step retries.
func WithRetryDelay(delay time.Duration) ExecutorOption {
	return func(e *PipelineExecutor) {
		e.retryDelay = delay
	}
}

// WithStepTimeout sets the per-invocation timeout.
func WithStepTimeout(timeout time.Duration) ExecutorOption {
	return func(e *PipelineExecutor) {
		e.stepTimeout = timeout
	}
}

// WithHistory sets the run history store. Every run is appended,
// successful or not.
func WithHistory(history toolweave.HistoryStore) ExecutorOption {
	return func(e *PipelineExecutor) {
		e.history = history
	}
}

// WithSnapshotSource sets the source of tool schemas for translation.
func WithSnapshotSource(schemas SnapshotSource) ExecutorOption {
	return func(e *PipelineExecutor) {
		e.schemas = schemas
	}
}

// WithEventBus sets the event bus for step lifecycle events.
func WithEventBus(bus eventbus.EventBus) ExecutorOption {
	return func(e *PipelineExecutor) {
		e.eventBus = bus
	}
}

// NewExecutor creates a pipeline executor with default settings.
func NewExecutor(invoker toolweave.ToolInvoker, translator toolweave.Translator, options ...ExecutorOption) *PipelineExecutor {
	e := &PipelineExecutor{
		invoker:     invoker,
		translator:  translator,
		maxRetries:  2,
		retryDelay:  time.Millisecond * 500,
		stepTimeout: time.Second * 30,
	}

	for _, option := range options {
		option(e)
	}

	return e
}

// Run executes the plan sequentially. It never returns an error: failures
// are encoded in the run record, every attempted step is retained, and
// steps after the failure point are never attempted. The finished run is
// appended to history best-effort.
func (e *PipelineExecutor) Run(ctx context.Context, plan *toolweave.PipelinePlan, initialInput map[string]interface{}) *toolweave.PipelineRun {
	run := toolweave.NewPipelineRun(uuid.New().String(), plan)
	run.Start(time.Now())

	log.Printf("Starting pipeline run (run_id: %s, steps: %d)", run.ID, len(plan.Steps))

	payload := initialInput
	if payload == nil {
		payload = map[string]interface{}{}
	}

	success := true
	for i, step := range plan.Steps {
		result := e.executeStep(ctx, run.ID, i, step, payload)
		run.Steps = append(run.Steps, result)
		e.updateStepMetrics(result)

		if !result.Success {
			success = false
			break
		}
		payload = result.Output
	}

	if success {
		run.FinalOutput = payload
	}
	run.Finish(success, time.Now())
	e.updateRunMetrics(run)

	log.Printf("Pipeline run finished (run_id: %s, success: %t, steps_run: %d, duration: %v)",
		run.ID, run.Success, len(run.Steps), run.Duration)

	if e.history != nil {
		if err := e.history.Append(ctx, run); err != nil {
			// History is append-only bookkeeping; a store failure must not
			// fail the run.
			log.Printf("Failed to append run to history (run_id: %s): %v", run.ID, err)
		}
	}

	return run
}

// executeStep translates the payload across the step's entry edge and
// invokes the tool with the retry budget. The returned result's duration
// spans every attempt including backoff waits.
func (e *PipelineExecutor) executeStep(ctx context.Context, runID string, index int, step toolweave.PlanStep, payload map[string]interface{}) toolweave.StepResult {
	started := time.Now()
	result := toolweave.StepResult{
		Tool:      step.Tool,
		StartedAt: started,
	}

	e.publishStepEvent(ctx, eventbus.EventStepStarted, runID, step.Tool, map[string]interface{}{
		"step_index": index,
	})

	input, err := e.translateInput(ctx, step, payload)
	if err != nil {
		// Translation failures are deterministic; retrying cannot help.
		result.Input = payload
		e.failStep(&result, started, err)
		e.publishStepEvent(ctx, eventbus.EventStepFinished, runID, step.Tool, map[string]interface{}{
			"step_index": index,
			"success":    false,
			"error":      result.Error,
		})
		return result
	}
	result.Input = input

	output, attempts, err := e.invokeWithRetry(ctx, runID, step.Tool, input)
	result.Attempts = attempts
	if err != nil {
		e.failStep(&result, started, err)
	} else {
		result.Success = true
		result.Output = output
		result.Duration = time.Since(started)
	}

	e.publishStepEvent(ctx, eventbus.EventStepFinished, runID, step.Tool, map[string]interface{}{
		"step_index": index,
		"success":    result.Success,
		"attempts":   result.Attempts,
		"error":      result.Error,
	})

	return result
}

// translateInput maps the previous step's output into this step's input
// shape. The first step has no entry edge and receives the payload as-is.
func (e *PipelineExecutor) translateInput(ctx context.Context, step toolweave.PlanStep, payload map[string]interface{}) (map[string]interface{}, error) {
	if step.Edge == nil {
		return payload, nil
	}
	if e.translator == nil {
		return payload, nil
	}
	return e.translator.Translate(ctx, payload, step.Edge, e.targetSchema(step.Tool))
}

// targetSchema looks up the step tool's declared input schema.
func (e *PipelineExecutor) targetSchema(id toolweave.ToolID) toolweave.Schema {
	if e.schemas == nil {
		return toolweave.Schema{}
	}
	tool, ok := e.schemas.Snapshot().Tool(id)
	if !ok {
		return toolweave.Schema{}
	}
	return tool.InputSchema
}

// invokeWithRetry calls the tool with a per-attempt timeout, retrying
// transient failures (timeouts and transport errors) up to the budget.
// Application errors and cancellation are never retried.
func (e *PipelineExecutor) invokeWithRetry(ctx context.Context, runID string, tool toolweave.ToolID, input map[string]interface{}) (map[string]interface{}, int, error) {
	var lastErr error
	attempts := 0

	for attempts <= e.maxRetries {
		if ctx.Err() != nil {
			return nil, attempts, toolweave.NewCancelledError("execution", ctx.Err())
		}

		attempts++
		stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
		output, err := e.invoker.Invoke(stepCtx, tool, input)
		timedOut := stepCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
		cancel()

		if err == nil {
			return output, attempts, nil
		}

		if ctx.Err() != nil {
			return nil, attempts, toolweave.NewCancelledError("execution", ctx.Err())
		}

		if timedOut && errors.Is(err, context.DeadlineExceeded) {
			err = toolweave.NewToolTimeoutError(tool, err)
		} else if !toolweave.IsBrokerError(err) {
			err = toolweave.NewToolTransportError(tool, err)
		}
		lastErr = err

		if !toolweave.IsRetryable(err) || attempts > e.maxRetries {
			break
		}

		log.Printf("Step invocation failed, retrying (run_id: %s, tool: %s, attempt: %d, max_retries: %d, error: %v)",
			runID, tool, attempts, e.maxRetries, err)
		e.countRetry()
		e.publishStepEvent(ctx, eventbus.EventStepRetry, runID, tool, map[string]interface{}{
			"attempt": attempts,
			"error":   err.Error(),
		})

		select {
		case <-ctx.Done():
			return nil, attempts, toolweave.NewCancelledError("execution", ctx.Err())
		case <-time.After(e.retryDelay):
		}
	}

	return nil, attempts, lastErr
}

// failStep finalizes a failed step result.
func (e *PipelineExecutor) failStep(result *toolweave.StepResult, started time.Time, err error) {
	result.Success = false
	result.Error = err.Error()
	result.ErrorCode = string(toolweave.CodeOf(err))
	result.Duration = time.Since(started)
}

func (e *PipelineExecutor) publishStepEvent(ctx context.Context, eventType eventbus.EventType, runID string, tool toolweave.ToolID, metadata map[string]interface{}) {
	if e.eventBus == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["run_id"] = runID
	metadata["tool"] = tool.String()
	e.eventBus.Publish(ctx, eventbus.NewEvent(eventType, nil, "PipelineExecutor", metadata))
}
