package toolweave

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ToolID identifies a single callable operation exposed by a registered
// tool server.
type ToolID struct {
	Server string `json:"server"`
	Name   string `json:"name"`
}

// String renders the ID in "server.tool" form.
func (id ToolID) String() string {
	return id.Server + "." + id.Name
}

// IsZero reports whether the ID is empty.
func (id ToolID) IsZero() bool {
	return id.Server == "" && id.Name == ""
}

// ParseToolID parses a "server.tool" reference. The server segment may not
// contain a dot; the tool segment may.
func ParseToolID(ref string) (ToolID, error) {
	server, name, ok := strings.Cut(ref, ".")
	if !ok || server == "" || name == "" {
		return ToolID{}, fmt.Errorf("invalid tool reference %q (expected server.tool)", ref)
	}
	return ToolID{Server: server, Name: name}, nil
}

// Tool is a registered operation with its declared schemas.
type Tool struct {
	ID           ToolID `json:"id"`
	Description  string `json:"description"`
	InputSchema  Schema `json:"input_schema"`
	OutputSchema Schema `json:"output_schema"`
}

// EdgeKind classifies how the output of one tool can feed the input of
// another.
type EdgeKind string

const (
	// EdgeDirect means the source output already satisfies the target input.
	EdgeDirect EdgeKind = "direct"
	// EdgeTranslatable means the payload needs a field mapping first.
	EdgeTranslatable EdgeKind = "translatable"
)

// FieldMapping describes how one target input field is derived from the
// source payload. Exactly one of SourceField or Expression is set.
type FieldMapping struct {
	TargetField string `json:"target_field"`
	SourceField string `json:"source_field,omitempty"`
	Expression  string `json:"expression,omitempty"`
	Required    bool   `json:"required"`
}

// TranslationHint is attached to translatable edges and drives the
// translator.
type TranslationHint struct {
	Mappings []FieldMapping `json:"mappings"`
	Note     string         `json:"note,omitempty"`
}

// CapabilityEdge is a directed compatibility relationship between two
// tools. At most one edge exists per ordered pair.
type CapabilityEdge struct {
	Source     ToolID           `json:"source"`
	Target     ToolID           `json:"target"`
	Kind       EdgeKind         `json:"kind"`
	Confidence float64          `json:"confidence"`
	Hint       *TranslationHint `json:"hint,omitempty"`
}

// ToolSummary is the per-tool description handed to the sequence proposer.
type ToolSummary struct {
	ID          ToolID `json:"id"`
	Description string `json:"description"`
	Inputs      string `json:"inputs"`
	Outputs     string `json:"outputs"`
}

// ProposerInput carries everything the external language-model proposer is
// given for one request.
type ProposerInput struct {
	RequestText string        `json:"request_text"`
	Tools       []ToolSummary `json:"tools"`
}

// ProposedStep is one entry of an unvalidated candidate sequence.
type ProposedStep struct {
	Server string `json:"server"`
	Tool   string `json:"tool"`
	Reason string `json:"reason,omitempty"`
}

// ProposedSequence is the proposer's raw answer. It is untrusted input and
// must pass graph validation before it becomes a plan.
type ProposedSequence struct {
	Steps       []ProposedStep `json:"steps"`
	Explanation string         `json:"explanation,omitempty"`
}

// PlanStep references one tool invocation inside a validated plan. Edge is
// nil for the first step (entry point).
type PlanStep struct {
	Tool          ToolID          `json:"tool"`
	Edge          *CapabilityEdge `json:"edge,omitempty"`
	Justification string          `json:"justification,omitempty"`
}

// PipelinePlan is an ordered, graph-validated sequence of tool invocations.
// Confidence is the minimum edge confidence across the plan (1.0 when the
// plan has fewer than two steps).
type PipelinePlan struct {
	RequestText     string     `json:"request_text"`
	Steps           []PlanStep `json:"steps"`
	Confidence      float64    `json:"confidence"`
	Explanation     string     `json:"explanation,omitempty"`
	SnapshotVersion uint64     `json:"snapshot_version"`
}

// RunStatus represents the lifecycle of a pipeline run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// StepResult records the outcome of a single executed step, successful or
// not. Duration spans every attempt including retry backoff.
type StepResult struct {
	Tool      ToolID                 `json:"tool"`
	Input     map[string]interface{} `json:"input,omitempty"`
	Output    map[string]interface{} `json:"output,omitempty"`
	Success   bool                   `json:"success"`
	Attempts  int                    `json:"attempts"`
	Error     string                 `json:"error,omitempty"`
	ErrorCode string                 `json:"error_code,omitempty"`
	StartedAt time.Time              `json:"started_at"`
	Duration  time.Duration          `json:"duration"`
}

// PipelineRun is the record of one executed plan. It is created when
// execution starts and appended to history once complete; steps after a
// failure point are never attempted but every attempted step is retained.
type PipelineRun struct {
	ID          string                 `json:"id"`
	RequestText string                 `json:"request_text"`
	Plan        *PipelinePlan          `json:"plan,omitempty"`
	Steps       []StepResult           `json:"steps"`
	Success     bool                   `json:"success"`
	FinalOutput map[string]interface{} `json:"final_output,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
	Duration    time.Duration          `json:"duration"`

	status RunStatus
	mutex  sync.Mutex
}

// NewPipelineRun creates a pending run for the given plan.
func NewPipelineRun(id string, plan *PipelinePlan) *PipelineRun {
	return &PipelineRun{
		ID:          id,
		RequestText: plan.RequestText,
		Plan:        plan,
		status:      RunPending,
	}
}

// Status safely reads the run's current status.
func (r *PipelineRun) Status() RunStatus {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.status
}

// Start transitions the run to running and stamps the start time.
func (r *PipelineRun) Start(now time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.status = RunRunning
	r.StartedAt = now
}

// Finish transitions the run to its terminal status and stamps timing. The
// record must not be mutated afterward.
func (r *PipelineRun) Finish(success bool, now time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if success {
		r.status = RunSucceeded
	} else {
		r.status = RunFailed
	}
	r.Success = success
	r.CompletedAt = now
	r.Duration = now.Sub(r.StartedAt)
}

// FailedStep returns the failing step of an unsuccessful run, if any.
func (r *PipelineRun) FailedStep() (StepResult, bool) {
	for _, step := range r.Steps {
		if !step.Success {
			return step, true
		}
	}
	return StepResult{}, false
}
