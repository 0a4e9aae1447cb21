package toolweave

import "context"

// Embedder computes a fixed-dimension vector for a piece of text. It is an
// external provider and may fail; similarity computation is always local.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// SequenceProposer asks an external language model to propose a candidate
// ordered tool sequence for a request. The proposal is untrusted: it must
// be validated against the capability graph before becoming a plan.
type SequenceProposer interface {
	ProposeSequence(ctx context.Context, input ProposerInput) (*ProposedSequence, error)
}

// ToolInvoker invokes a single tool on a live tool server. Implementations
// must honor context cancellation and deadlines.
type ToolInvoker interface {
	Invoke(ctx context.Context, tool ToolID, args map[string]interface{}) (map[string]interface{}, error)
}

// ToolCatalog lists the tools a registered server currently declares, used
// when registering a server wholesale and when rebuilding from the
// registry snapshot.
type ToolCatalog interface {
	ListTools(ctx context.Context) ([]Tool, error)
}

// CapabilityGraph maintains the directed tool-compatibility graph. All
// mutations are serialized; readers always observe a complete snapshot.
type CapabilityGraph interface {
	// AddTool embeds and classifies the tool against every registered
	// tool in both directions, installing the result atomically.
	AddTool(ctx context.Context, tool Tool) error

	// RemoveTool deletes the tool and every edge referencing it.
	RemoveTool(id ToolID) error

	// Rebuild discards all tools and edges and re-adds every tool from
	// the registry snapshot. Returns the resulting edge count.
	Rebuild(ctx context.Context) (int, error)

	// EdgesFrom returns the outgoing edges of a tool in the current
	// snapshot.
	EdgesFrom(id ToolID) []CapabilityEdge

	// Snapshot returns the current immutable graph snapshot.
	Snapshot() *GraphSnapshot
}

// Planner produces a graph-validated pipeline plan for a request, or a
// PLAN_INFEASIBLE error.
type Planner interface {
	Plan(ctx context.Context, requestText string, snapshot *GraphSnapshot) (*PipelinePlan, error)
}

// RunExecutor executes a validated plan step by step. It never returns an
// execution error: failures are captured in the run record. The returned
// error is reserved for the run being impossible to start at all.
type RunExecutor interface {
	Run(ctx context.Context, plan *PipelinePlan, initialInput map[string]interface{}) *PipelineRun
}

// Translator maps a step's output payload into the input shape the next
// step requires, guided by the connecting edge.
type Translator interface {
	Translate(ctx context.Context, payload map[string]interface{}, edge *CapabilityEdge, targetInput Schema) (map[string]interface{}, error)
}

// HistoryStore persists completed runs. Append-only; the core never reads
// it back.
type HistoryStore interface {
	Append(ctx context.Context, run *PipelineRun) error
}

// Cache provides storage for derived artifacts such as proposer results
// and compiled translation mappings.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}) error
}
