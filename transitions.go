package toolweave

import (
	"context"
	"time"

	"github.com/toolweave/toolweave/internal/eventbus"
)

// BrokerComponents holds references to the core components needed by the
// state transitions.
type BrokerComponents struct {
	Graph    CapabilityGraph
	Planner  Planner
	Executor RunExecutor
	History  HistoryStore
	Config   Config
}

// CreateRunStateMachine builds the state machine that takes a request from
// discovery through execution to a recorded run.
func CreateRunStateMachine(components BrokerComponents, eventBus eventbus.EventBus) *StateMachine {
	sm := NewStateMachine(eventBus)

	sm.RegisterTransition(StateInit, createInitTransition(components))
	sm.RegisterTransition(StatePlanning, createPlanningTransition(components))
	sm.RegisterTransition(StateExecuting, createExecutingTransition(components))
	sm.RegisterTransition(StateRecording, createRecordingTransition(components))
	sm.RegisterTransition(StateError, createErrorTransition(components))
	sm.RegisterTransition(StateComplete, createCompleteTransition(components))
	sm.RegisterTransition(StateCancelled, createCancelledTransition(components))

	return sm
}

// createInitTransition pins the graph snapshot the whole request will see.
func createInitTransition(components BrokerComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		if eb != nil {
			eb.Publish(ctx, eventbus.NewEvent(
				eventbus.EventRequestReceived,
				pCtx.RequestText,
				"StateMachine.Init",
				map[string]interface{}{
					"timestamp": time.Now().Format(time.RFC3339),
				},
			))
		}

		pCtx.Snapshot = components.Graph.Snapshot()
		return StatePlanning, nil
	}
}

// createPlanningTransition runs discovery against the pinned snapshot.
func createPlanningTransition(components BrokerComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		if eb != nil {
			eb.Publish(ctx, eventbus.NewEvent(
				eventbus.EventPlanRequested,
				pCtx.RequestText,
				"StateMachine.Planning",
				map[string]interface{}{
					"tool_count": pCtx.Snapshot.ToolCount(),
				},
			))
		}

		plan, err := components.Planner.Plan(ctx, pCtx.RequestText, pCtx.Snapshot)
		if err != nil {
			if eb != nil {
				eb.Publish(ctx, eventbus.NewEvent(
					eventbus.EventPlanInfeasible,
					pCtx.RequestText,
					"StateMachine.Planning",
					map[string]interface{}{
						"error": err.Error(),
					},
				))
			}
			return StateError, err
		}

		if eb != nil {
			eb.Publish(ctx, eventbus.NewEvent(
				eventbus.EventPlanValidated,
				plan,
				"StateMachine.Planning",
				map[string]interface{}{
					"step_count": len(plan.Steps),
					"confidence": plan.Confidence,
				},
			))
		}

		pCtx.Plan = plan
		return StateExecuting, nil
	}
}

// createExecutingTransition runs the plan. Step-level failures are encoded
// in the run record, not surfaced as transition errors; only the inability
// to run at all is an error here.
func createExecutingTransition(components BrokerComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		if eb != nil {
			eb.Publish(ctx, eventbus.NewEvent(
				eventbus.EventRunStarted,
				pCtx.Plan,
				"StateMachine.Executing",
				map[string]interface{}{
					"step_count": len(pCtx.Plan.Steps),
				},
			))
		}

		pCtx.Run = components.Executor.Run(ctx, pCtx.Plan, pCtx.InitialInput)
		return StateRecording, nil
	}
}

// createRecordingTransition announces the finished run. The executor has
// already appended it to history.
func createRecordingTransition(components BrokerComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		run := pCtx.Run
		if run == nil {
			return StateError, NewInternalError("recording", "no run record produced by execution", nil)
		}

		if eb != nil {
			eventType := eventbus.EventRunSucceeded
			metadata := map[string]interface{}{
				"run_id":      run.ID,
				"step_count":  len(run.Steps),
				"duration_ms": run.Duration.Milliseconds(),
			}
			if !run.Success {
				eventType = eventbus.EventRunFailed
				if failed, ok := run.FailedStep(); ok {
					metadata["failed_tool"] = failed.Tool.String()
					metadata["error"] = failed.Error
				}
			}
			eb.Publish(ctx, eventbus.NewEvent(eventType, run, "StateMachine.Recording", metadata))
		}

		return StateComplete, nil
	}
}

// createErrorTransition handles error states. The error is already
// recorded in the process context; transition to complete with it intact.
func createErrorTransition(_ BrokerComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		return StateComplete, pCtx.LastError
	}
}

// createCompleteTransition handles the terminal complete state.
func createCompleteTransition(_ BrokerComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		return StateComplete, nil
	}
}

// createCancelledTransition handles the terminal cancelled state.
func createCancelledTransition(_ BrokerComponents) StateTransition {
	return func(ctx context.Context, eb eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error) {
		return StateCancelled, pCtx.LastError
	}
}
