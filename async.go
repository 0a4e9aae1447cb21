package toolweave

import (
	"context"
	"fmt"
	"time"

	"github.com/toolweave/toolweave/internal/eventbus"
)

// AsyncRunStatus represents the status information for an async run handle.
type AsyncRunStatus struct {
	HandleID     string        `json:"handle_id"`
	RequestText  string        `json:"request_text"`
	CurrentState ProcessState  `json:"current_state"`
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	IsComplete   bool          `json:"is_complete"`
	HasError     bool          `json:"has_error"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ErrorStage   string        `json:"error_stage,omitempty"`
}

// AsyncStatus retrieves the current status of an async run.
func (b *Broker) AsyncStatus(handleID string) (*AsyncRunStatus, error) {
	b.asyncRunsMutex.RLock()
	defer b.asyncRunsMutex.RUnlock()

	pCtx, exists := b.asyncRuns[handleID]
	if !exists {
		return nil, fmt.Errorf("async run with ID '%s' not found", handleID)
	}

	status := &AsyncRunStatus{
		HandleID:     handleID,
		RequestText:  pCtx.RequestText,
		CurrentState: pCtx.CurrentState,
		StartTime:    pCtx.StartTime,
		Duration:     pCtx.GetTotalDuration(),
		IsComplete:   pCtx.IsTerminal(),
		HasError:     pCtx.CurrentState == StateError || pCtx.CurrentState == StateCancelled,
	}

	if pCtx.LastError != nil {
		status.ErrorMessage = pCtx.LastError.Error()
		status.ErrorStage = pCtx.ErrorStage
	}

	return status, nil
}

// AsyncResult retrieves the run record of a completed async run. Returns an
// error while the run is still in progress or when processing failed before
// a run record was produced.
func (b *Broker) AsyncResult(handleID string) (*PipelineRun, error) {
	b.asyncRunsMutex.RLock()
	defer b.asyncRunsMutex.RUnlock()

	pCtx, exists := b.asyncRuns[handleID]
	if !exists {
		return nil, fmt.Errorf("async run with ID '%s' not found", handleID)
	}

	if !pCtx.IsTerminal() {
		return nil, fmt.Errorf("async run is still in progress (current state: %s)", pCtx.CurrentState)
	}

	if pCtx.Run == nil {
		if pCtx.LastError != nil {
			return nil, fmt.Errorf("async run failed during stage '%s': %w", pCtx.ErrorStage, pCtx.LastError)
		}
		return nil, fmt.Errorf("async run produced no run record")
	}

	return pCtx.Run, nil
}

// CancelAsync cancels an ongoing async run. Returns true if the run was
// cancelled, false if it was already complete.
func (b *Broker) CancelAsync(handleID string) (bool, error) {
	b.asyncRunsMutex.Lock()
	defer b.asyncRunsMutex.Unlock()

	pCtx, exists := b.asyncRuns[handleID]
	if !exists {
		return false, fmt.Errorf("async run with ID '%s' not found", handleID)
	}

	if pCtx.IsTerminal() {
		return false, nil
	}

	cancelFn, ok := pCtx.StateData["cancel"].(context.CancelFunc)
	if !ok {
		return false, fmt.Errorf("cannot cancel run: cancel function not found")
	}

	cancelFn()
	pCtx.SetCancelled(NewCancelledError(string(pCtx.CurrentState), context.Canceled), string(pCtx.CurrentState))

	if bus := b.EventBus(); bus != nil {
		bus.Publish(context.Background(), eventbus.NewEvent(
			eventbus.EventAsyncRunCancelled,
			pCtx.RequestText,
			"Broker.CancelAsync",
			map[string]interface{}{
				"handle_id":   handleID,
				"duration_ms": pCtx.GetTotalDuration().Milliseconds(),
			},
		))
	}

	return true, nil
}

// ListAsyncRuns returns every async run handle ID with its current state.
func (b *Broker) ListAsyncRuns() map[string]string {
	b.asyncRunsMutex.RLock()
	defer b.asyncRunsMutex.RUnlock()

	result := make(map[string]string, len(b.asyncRuns))
	for id, pCtx := range b.asyncRuns {
		result[id] = string(pCtx.CurrentState)
	}

	return result
}

// CleanupCompleted removes terminal async runs older than the specified
// duration so long-lived brokers don't accumulate handles.
func (b *Broker) CleanupCompleted(olderThan time.Duration) int {
	b.asyncRunsMutex.Lock()
	defer b.asyncRunsMutex.Unlock()

	now := time.Now()
	count := 0

	for id, pCtx := range b.asyncRuns {
		if pCtx.IsTerminal() && now.Sub(pCtx.StateStartTimes[pCtx.CurrentState]) > olderThan {
			delete(b.asyncRuns, id)
			count++
		}
	}

	return count
}
