package executor

import (
	"sync"
	"time"

	"github.com/toolweave/toolweave"
)

// ExecutorMetrics tracks statistics about pipeline execution.
type ExecutorMetrics struct {
	RunsExecuted   int
	RunsSucceeded  int
	RunsFailed     int
	StepsExecuted  int
	StepsSucceeded int
	StepsFailed    int
	TotalRetries   int

	TotalStepDuration time.Duration
	LongestStepTime   time.Duration
	ShortestStepTime  time.Duration

	mu sync.Mutex // Protects metrics updates
}

// Copy creates a copy without the mutex.
func (m *ExecutorMetrics) Copy() ExecutorMetrics {
	return ExecutorMetrics{
		RunsExecuted:      m.RunsExecuted,
		RunsSucceeded:     m.RunsSucceeded,
		RunsFailed:        m.RunsFailed,
		StepsExecuted:     m.StepsExecuted,
		StepsSucceeded:    m.StepsSucceeded,
		StepsFailed:       m.StepsFailed,
		TotalRetries:      m.TotalRetries,
		TotalStepDuration: m.TotalStepDuration,
		LongestStepTime:   m.LongestStepTime,
		ShortestStepTime:  m.ShortestStepTime,
	}
}

// GetMetrics returns a copy of the current execution metrics.
func (e *PipelineExecutor) GetMetrics() ExecutorMetrics {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()
	return e.metrics.Copy()
}

// updateStepMetrics updates metrics based on a finished step.
func (e *PipelineExecutor) updateStepMetrics(result toolweave.StepResult) {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()

	e.metrics.StepsExecuted++
	e.metrics.TotalStepDuration += result.Duration

	if result.Duration > e.metrics.LongestStepTime {
		e.metrics.LongestStepTime = result.Duration
	}
	if result.Duration > 0 && (e.metrics.ShortestStepTime == 0 || result.Duration < e.metrics.ShortestStepTime) {
		e.metrics.ShortestStepTime = result.Duration
	}

	if result.Success {
		e.metrics.StepsSucceeded++
	} else {
		e.metrics.StepsFailed++
	}
}

// updateRunMetrics updates metrics based on a finished run.
func (e *PipelineExecutor) updateRunMetrics(run *toolweave.PipelineRun) {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()

	e.metrics.RunsExecuted++
	if run.Success {
		e.metrics.RunsSucceeded++
	} else {
		e.metrics.RunsFailed++
	}
}

// countRetry records one retry of a transient step failure.
func (e *PipelineExecutor) countRetry() {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()
	e.metrics.TotalRetries++
}
