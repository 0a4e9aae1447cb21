package toolweave

import (
	"context"
	"fmt"
	"time"

	"github.com/toolweave/toolweave/internal/eventbus"
)

// ProcessState represents the current state of a request being processed
// by the broker.
type ProcessState string

const (
	// StateInit is the initial state of the process
	StateInit ProcessState = "init"
	// StatePlanning covers discovery: proposing and graph-validating a plan
	StatePlanning ProcessState = "planning"
	// StateExecuting covers the sequential step execution of the plan
	StateExecuting ProcessState = "executing"
	// StateRecording publishes run completion and finalizes the record
	StateRecording ProcessState = "recording"
	// StateError represents an error state
	StateError ProcessState = "error"
	// StateComplete represents the completed state
	StateComplete ProcessState = "complete"
	// StateCancelled represents the cancelled state
	StateCancelled ProcessState = "cancelled"
	// StateUnknown is used when the status of an async run cannot be
	// determined.
	StateUnknown ProcessState = "unknown"
)

// ProcessContext carries the data for one request through the state
// machine. It acts as the tape of the pushdown automaton.
type ProcessContext struct {
	// Input parameters
	RequestText  string
	InitialInput map[string]interface{}

	// Intermediate results
	Snapshot *GraphSnapshot
	Plan     *PipelinePlan
	Run      *PipelineRun

	// Error handling
	LastError  error
	ErrorStage string

	// State management
	CurrentState ProcessState
	StateStack   []ProcessState
	StateData    map[string]interface{}

	// Timestamp tracking
	StartTime       time.Time
	EndTime         time.Time
	StateStartTimes map[ProcessState]time.Time
}

// NewProcessContext creates a new process context for a request.
func NewProcessContext(requestText string, initialInput map[string]interface{}) *ProcessContext {
	return &ProcessContext{
		RequestText:     requestText,
		InitialInput:    initialInput,
		CurrentState:    StateInit,
		StateStack:      []ProcessState{},
		StateData:       make(map[string]interface{}),
		StartTime:       time.Now(),
		StateStartTimes: make(map[ProcessState]time.Time),
	}
}

// PushState pushes the current state onto the stack and enters a new one.
func (pc *ProcessContext) PushState(state ProcessState) {
	pc.StateStack = append(pc.StateStack, pc.CurrentState)
	pc.CurrentState = state
	pc.StateStartTimes[state] = time.Now()
}

// PopState pops the top state from the stack and re-enters it. Returns
// false if the stack is empty.
func (pc *ProcessContext) PopState() bool {
	if len(pc.StateStack) == 0 {
		return false
	}
	lastIdx := len(pc.StateStack) - 1
	pc.CurrentState = pc.StateStack[lastIdx]
	pc.StateStack = pc.StateStack[:lastIdx]
	pc.StateStartTimes[pc.CurrentState] = time.Now()
	return true
}

// IsTerminal checks if the current state is Complete, Error or Cancelled.
func (pc *ProcessContext) IsTerminal() bool {
	return pc.CurrentState == StateComplete || pc.CurrentState == StateError || pc.CurrentState == StateCancelled
}

// SetError records the error and its stage and transitions to StateError.
func (pc *ProcessContext) SetError(err error, stage string) {
	pc.LastError = err
	pc.ErrorStage = stage
	pc.CurrentState = StateError
	pc.StateStartTimes[StateError] = time.Now()
}

// SetCancelled records the cancellation and transitions to StateCancelled.
func (pc *ProcessContext) SetCancelled(err error, stage string) {
	pc.LastError = err
	pc.ErrorStage = stage
	pc.CurrentState = StateCancelled
	pc.StateStartTimes[StateCancelled] = time.Now()
}

// Complete marks the process as complete and sets the end time.
func (pc *ProcessContext) Complete() {
	pc.CurrentState = StateComplete
	pc.EndTime = time.Now()
	pc.StateStartTimes[StateComplete] = pc.EndTime
}

// GetTotalDuration returns the total duration of the process so far.
func (pc *ProcessContext) GetTotalDuration() time.Duration {
	if pc.CurrentState == StateComplete && !pc.EndTime.IsZero() {
		return pc.EndTime.Sub(pc.StartTime)
	}
	return time.Since(pc.StartTime)
}

// StateTransition is one transition function of the state machine.
type StateTransition func(ctx context.Context, eventBus eventbus.EventBus, pCtx *ProcessContext) (ProcessState, error)

// StateMachine drives a request from Init to a terminal state.
type StateMachine struct {
	transitions map[ProcessState]StateTransition
	eventBus    eventbus.EventBus
}

// NewStateMachine creates a state machine with no transitions registered.
func NewStateMachine(eventBus eventbus.EventBus) *StateMachine {
	return &StateMachine{
		transitions: make(map[ProcessState]StateTransition),
		eventBus:    eventBus,
	}
}

// RegisterTransition registers a state transition function.
func (sm *StateMachine) RegisterTransition(state ProcessState, transition StateTransition) {
	sm.transitions[state] = transition
}

// Execute runs the state machine until a terminal state. The returned run
// may be nil when processing failed before execution began (e.g. an
// infeasible plan); LastError then carries the structured reason.
func (sm *StateMachine) Execute(ctx context.Context, pCtx *ProcessContext) (*PipelineRun, error) {
	for !pCtx.IsTerminal() {
		// Check for context cancellation before entering the next state.
		select {
		case <-ctx.Done():
			err := ctx.Err()
			pCtx.SetCancelled(err, string(pCtx.CurrentState))
			return pCtx.Run, NewCancelledError(string(pCtx.CurrentState), err)
		default:
		}

		transition, exists := sm.transitions[pCtx.CurrentState]
		if !exists {
			err := fmt.Errorf("no transition defined for state: %s", pCtx.CurrentState)
			pCtx.SetError(err, string(pCtx.CurrentState))
			return pCtx.Run, err
		}

		nextState, err := transition(ctx, sm.eventBus, pCtx)
		if err != nil {
			currentStage := string(pCtx.CurrentState)
			if err == context.Canceled || err == context.DeadlineExceeded {
				pCtx.SetCancelled(err, currentStage)
			} else if !pCtx.IsTerminal() {
				pCtx.SetError(err, currentStage)
			}
			continue
		}

		if !pCtx.IsTerminal() {
			pCtx.CurrentState = nextState
			pCtx.StateStartTimes[nextState] = time.Now()
		}
	}

	return pCtx.Run, pCtx.LastError
}
