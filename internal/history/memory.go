package history

import (
	"context"
	"sync"

	"github.com/toolweave/toolweave"
)

// MemoryStore is an in-process toolweave.HistoryStore, used as the default
// wiring and in tests.
type MemoryStore struct {
	mutex sync.Mutex
	runs  []*toolweave.PipelineRun
}

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append records one completed run.
func (s *MemoryStore) Append(ctx context.Context, run *toolweave.PipelineRun) error {
	if err := ctx.Err(); err != nil {
		return toolweave.NewHistoryError("append", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// Runs returns a copy of the appended runs in append order.
func (s *MemoryStore) Runs() []*toolweave.PipelineRun {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]*toolweave.PipelineRun, len(s.runs))
	copy(out, s.runs)
	return out
}
