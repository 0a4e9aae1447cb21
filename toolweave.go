// Package toolweave provides the core runtime for capability-graph tool
// brokering: tool registration, compatibility graph maintenance, plan
// discovery and pipeline execution.
package toolweave

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/toolweave/toolweave/internal/eventbus"
)

// Broker is the main entry point into the toolweave runtime. It wires the
// capability graph, planner and executor together and drives requests
// through the processing state machine.
type Broker struct {
	// Core components
	graph    CapabilityGraph
	planner  Planner
	executor RunExecutor
	history  HistoryStore
	cache    Cache
	eventBus eventbus.EventBus

	// Routing of tool invocations to registered servers
	invokers *InvokerRegistry

	// Configuration
	config Config

	// Async processing
	asyncRuns      map[string]*ProcessContext
	asyncRunsMutex sync.RWMutex
}

// Option is a function that configures a Broker instance.
type Option func(*Broker)

// WithConfig sets the broker configuration.
func WithConfig(config Config) Option {
	return func(b *Broker) {
		b.config = config
	}
}

// WithGraph sets the capability graph component.
func WithGraph(graph CapabilityGraph) Option {
	return func(b *Broker) {
		b.graph = graph
	}
}

// WithPlanner sets the planner component.
func WithPlanner(planner Planner) Option {
	return func(b *Broker) {
		b.planner = planner
	}
}

// WithExecutor sets the run executor component.
func WithExecutor(executor RunExecutor) Option {
	return func(b *Broker) {
		b.executor = executor
	}
}

// WithHistory sets the run history store.
func WithHistory(history HistoryStore) Option {
	return func(b *Broker) {
		b.history = history
	}
}

// WithCache sets the cache component.
func WithCache(cache Cache) Option {
	return func(b *Broker) {
		b.cache = cache
	}
}

// WithInvokerRegistry sets the invoker registry the broker registers tool
// servers into. The executor's transport should route through the same
// registry.
func WithInvokerRegistry(registry *InvokerRegistry) Option {
	return func(b *Broker) {
		b.invokers = registry
	}
}

// New creates a new Broker instance with the provided options.
func New(options ...Option) (*Broker, error) {
	b := &Broker{
		config:    DefaultConfig(),
		asyncRuns: make(map[string]*ProcessContext),
	}

	// Apply options
	for _, option := range options {
		option(b)
	}

	// Validate required components
	if b.graph == nil {
		return nil, fmt.Errorf("capability graph is required")
	}

	if b.planner == nil {
		return nil, fmt.Errorf("planner is required")
	}

	if b.executor == nil {
		return nil, fmt.Errorf("executor is required")
	}

	if b.invokers == nil {
		b.invokers = NewInvokerRegistry()
	}

	// Initialize event bus if enabled but not provided
	if b.config.EnableEventBus && b.eventBus == nil {
		b.eventBus = eventbus.NewChannelEventBus(
			eventbus.WithBufferSize(b.config.EventBusBufferSize),
			eventbus.WithWorkerCount(b.config.EventBusWorkerCount),
		)
		log.Printf("Initialized default channel-based event bus")
	}

	return b, nil
}

// Invokers returns the invoker registry the broker routes tool calls
// through.
func (b *Broker) Invokers() *InvokerRegistry {
	return b.invokers
}

// EventBus returns the broker's event bus, or nil when disabled.
func (b *Broker) EventBus() eventbus.EventBus {
	if !b.config.EnableEventBus {
		return nil
	}
	return b.eventBus
}

// RegisterServer connects a tool server: its catalog is listed and every
// declared tool is registered and classified into the capability graph.
// Returns the number of tools registered.
func (b *Broker) RegisterServer(ctx context.Context, name string, catalog ToolCatalog, invoker ToolInvoker) (int, error) {
	if name == "" {
		return 0, NewConfigurationError("server name is required", nil)
	}

	tools, err := catalog.ListTools(ctx)
	if err != nil {
		return 0, NewError(ErrCodeToolTransport, "registry",
			fmt.Sprintf("failed to list tools of server '%s'", name), err)
	}

	if err := b.invokers.Register(name, invoker); err != nil {
		return 0, err
	}

	registered := 0
	for _, tool := range tools {
		if tool.ID.Server == "" {
			tool.ID.Server = name
		}
		if err := b.RegisterTool(ctx, tool); err != nil {
			log.Printf("Failed to register tool (tool: %s, server: %s): %v", tool.ID.Name, name, err)
			continue
		}
		registered++
	}

	if bus := b.EventBus(); bus != nil {
		bus.Publish(ctx, eventbus.NewEvent(
			eventbus.EventServerRegistered,
			name,
			"Broker.RegisterServer",
			map[string]interface{}{
				"tool_count": registered,
			},
		))
	}

	return registered, nil
}

// RegisterTool adds one tool to the capability graph, embedding it and
// classifying it against every registered tool in both directions.
func (b *Broker) RegisterTool(ctx context.Context, tool Tool) error {
	if tool.ID.IsZero() {
		return NewConfigurationError("tool ID is required", nil)
	}

	if err := b.graph.AddTool(ctx, tool); err != nil {
		return err
	}

	if bus := b.EventBus(); bus != nil {
		bus.Publish(ctx, eventbus.NewEvent(
			eventbus.EventToolRegistered,
			tool.ID,
			"Broker.RegisterTool",
			map[string]interface{}{
				"tool": tool.ID.String(),
			},
		))
	}

	return nil
}

// DeregisterTool removes a tool and every edge referencing it. Removing a
// server's last tool also removes the server's invoker, so the server name
// can be registered again.
func (b *Broker) DeregisterTool(id ToolID) error {
	if err := b.graph.RemoveTool(id); err != nil {
		return err
	}

	if !b.serverHasTools(id.Server) {
		b.invokers.Deregister(id.Server)
	}

	if bus := b.EventBus(); bus != nil {
		bus.Publish(context.Background(), eventbus.NewEvent(
			eventbus.EventToolDeregistered,
			id,
			"Broker.DeregisterTool",
			map[string]interface{}{
				"tool": id.String(),
			},
		))
	}

	return nil
}

// serverHasTools reports whether any tool of the server remains in the
// current graph snapshot.
func (b *Broker) serverHasTools(server string) bool {
	for _, tool := range b.graph.Snapshot().Tools() {
		if tool.ID.Server == server {
			return true
		}
	}
	return false
}

// RebuildGraph discards all edges and reclassifies every registered tool.
// Returns the resulting edge count.
func (b *Broker) RebuildGraph(ctx context.Context) (int, error) {
	if bus := b.EventBus(); bus != nil {
		bus.Publish(ctx, eventbus.NewEvent(
			eventbus.EventGraphRebuildStart, nil, "Broker.RebuildGraph", nil,
		))
	}

	edgeCount, err := b.graph.Rebuild(ctx)
	if err != nil {
		return 0, err
	}

	if bus := b.EventBus(); bus != nil {
		bus.Publish(ctx, eventbus.NewEvent(
			eventbus.EventGraphRebuildFinish,
			nil,
			"Broker.RebuildGraph",
			map[string]interface{}{
				"edge_count": edgeCount,
			},
		))
	}

	return edgeCount, nil
}

// GraphSnapshot returns the current immutable view of the capability graph.
func (b *Broker) GraphSnapshot() *GraphSnapshot {
	return b.graph.Snapshot()
}

// Discover plans a pipeline for a request against the current graph
// snapshot without executing it.
func (b *Broker) Discover(ctx context.Context, requestText string) (*PipelinePlan, error) {
	return b.planner.Plan(ctx, requestText, b.graph.Snapshot())
}

// Execute handles an end-to-end request: discovery, validation, sequential
// execution and history recording, driven by a pushdown state machine.
// The returned run is nil when processing failed before execution began
// (e.g. an infeasible plan).
func (b *Broker) Execute(ctx context.Context, requestText string, initialInput map[string]interface{}) (*PipelineRun, error) {
	stateMachine := b.createStateMachine()
	processContext := NewProcessContext(requestText, initialInput)
	return stateMachine.Execute(ctx, processContext)
}

// createStateMachine builds a state machine with all necessary transitions
// for the request processing workflow.
func (b *Broker) createStateMachine() *StateMachine {
	components := BrokerComponents{
		Graph:    b.graph,
		Planner:  b.planner,
		Executor: b.executor,
		History:  b.history,
		Config:   b.config,
	}

	return CreateRunStateMachine(components, b.EventBus())
}

// ExecuteAsync starts an asynchronous request execution. It returns a
// unique run handle ID that can be used to check status, fetch the result
// or cancel.
func (b *Broker) ExecuteAsync(ctx context.Context, requestText string, initialInput map[string]interface{}) (string, error) {
	handleID := uuid.New().String()

	stateMachine := b.createStateMachine()
	processContext := NewProcessContext(requestText, initialInput)

	b.asyncRunsMutex.Lock()
	b.asyncRuns[handleID] = processContext
	b.asyncRunsMutex.Unlock()

	// Detach from the caller's context; cancellation goes through
	// CancelAsync.
	asyncCtx, cancel := context.WithCancel(context.Background())
	processContext.StateData["cancel"] = cancel

	if bus := b.EventBus(); bus != nil {
		bus.Publish(ctx, eventbus.NewEvent(
			eventbus.EventAsyncRunStarted,
			requestText,
			"Broker.ExecuteAsync",
			map[string]interface{}{
				"timestamp": time.Now().Format(time.RFC3339),
				"handle_id": handleID,
			},
		))
	}

	go func() {
		defer cancel()

		run, err := stateMachine.Execute(asyncCtx, processContext)

		b.asyncRunsMutex.Lock()
		if pCtx, exists := b.asyncRuns[handleID]; exists {
			pCtx.Run = run
			if err == nil && !pCtx.IsTerminal() {
				pCtx.Complete()
			}
		}
		b.asyncRunsMutex.Unlock()

		if bus := b.EventBus(); bus != nil {
			metadata := map[string]interface{}{
				"handle_id":   handleID,
				"duration_ms": processContext.GetTotalDuration().Milliseconds(),
			}
			if err != nil {
				metadata["error"] = err.Error()
				metadata["error_stage"] = processContext.ErrorStage
			}
			// Use background context since the async context is done.
			bus.Publish(context.Background(), eventbus.NewEvent(
				eventbus.EventAsyncRunFinished,
				requestText,
				"Broker.ExecuteAsync",
				metadata,
			))
		}
	}()

	return handleID, nil
}

// Close shuts down the broker's event bus.
func (b *Broker) Close() error {
	if b.eventBus != nil {
		return b.eventBus.Close()
	}
	return nil
}
