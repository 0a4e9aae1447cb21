package toolweave

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockCatalog struct {
	tools []Tool
	err   error
}

func (c *mockCatalog) ListTools(ctx context.Context) ([]Tool, error) {
	return c.tools, c.err
}

type mockInvoker struct {
	calls int
}

func (i *mockInvoker) Invoke(ctx context.Context, tool ToolID, args map[string]interface{}) (map[string]interface{}, error) {
	i.calls++
	return map[string]interface{}{"ok": true}, nil
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.EnableEventBus = false
	return cfg
}

func newTestBroker(t *testing.T, graph CapabilityGraph, planner Planner, exec RunExecutor) *Broker {
	t.Helper()
	broker, err := New(
		WithConfig(quietConfig()),
		WithGraph(graph),
		WithPlanner(planner),
		WithExecutor(exec),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return broker
}

func TestNew_RequiresCoreComponents(t *testing.T) {
	if _, err := New(WithConfig(quietConfig())); err == nil {
		t.Error("expected error without a graph")
	}

	if _, err := New(WithConfig(quietConfig()), WithGraph(&mockGraph{})); err == nil {
		t.Error("expected error without a planner")
	}

	if _, err := New(
		WithConfig(quietConfig()),
		WithGraph(&mockGraph{}),
		WithPlanner(&mockPlanner{}),
	); err == nil {
		t.Error("expected error without an executor")
	}
}

func TestBroker_RegisterServer(t *testing.T) {
	graph := &mockGraph{}
	broker := newTestBroker(t, graph, &mockPlanner{}, &mockExecutor{})

	catalog := &mockCatalog{tools: []Tool{
		{ID: ToolID{Name: "fetcher"}, Description: "Fetches pages."},
		{ID: ToolID{Server: "web", Name: "prober"}, Description: "Probes endpoints."},
	}}
	invoker := &mockInvoker{}

	count, err := broker.RegisterServer(context.Background(), "web", catalog, invoker)
	if err != nil {
		t.Fatalf("RegisterServer failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 registered tools, got %d", count)
	}
	if len(graph.addedTools) != 2 {
		t.Fatalf("expected 2 tools added to the graph, got %d", len(graph.addedTools))
	}
	// A catalog entry without a server gets the registration name.
	if graph.addedTools[0].ID.Server != "web" {
		t.Errorf("expected server name to be filled in, got %q", graph.addedTools[0].ID.Server)
	}

	servers := broker.Invokers().Servers()
	if len(servers) != 1 || servers[0] != "web" {
		t.Errorf("expected invoker registry to hold server web, got %v", servers)
	}

	// The same server cannot be registered twice.
	if _, err := broker.RegisterServer(context.Background(), "web", catalog, invoker); err == nil {
		t.Error("expected error registering a duplicate server")
	}
}

func TestBroker_RegisterServer_CatalogError(t *testing.T) {
	broker := newTestBroker(t, &mockGraph{}, &mockPlanner{}, &mockExecutor{})

	catalog := &mockCatalog{err: errors.New("connection refused")}
	_, err := broker.RegisterServer(context.Background(), "web", catalog, &mockInvoker{})
	if code := CodeOf(err); code != ErrCodeToolTransport {
		t.Errorf("expected %s, got %s", ErrCodeToolTransport, code)
	}
}

func TestBroker_Discover(t *testing.T) {
	plan := fetchSummarizePlan()
	planner := &mockPlanner{plan: plan}
	graph := &mockGraph{snapshot: NewGraphSnapshot(4, nil, nil)}
	broker := newTestBroker(t, graph, planner, &mockExecutor{})

	got, err := broker.Discover(context.Background(), "fetch and summarize")
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if got != plan {
		t.Error("expected the planner's plan to be returned")
	}
	if planner.gotRequest != "fetch and summarize" {
		t.Errorf("planner received request %q", planner.gotRequest)
	}
	if planner.gotSnapshot == nil || planner.gotSnapshot.Version != 4 {
		t.Error("planner did not receive the current snapshot")
	}
}

func TestBroker_Execute(t *testing.T) {
	plan := fetchSummarizePlan()
	exec := &mockExecutor{run: finishedRun(plan, true)}
	broker := newTestBroker(t, &mockGraph{}, &mockPlanner{plan: plan}, exec)

	run, err := broker.Execute(context.Background(), "fetch and summarize", map[string]interface{}{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if run == nil || !run.Success {
		t.Fatal("expected a successful run")
	}
	if exec.calls != 1 {
		t.Errorf("expected 1 executor call, got %d", exec.calls)
	}
}

func TestBroker_Execute_InfeasiblePlan(t *testing.T) {
	planner := &mockPlanner{err: NewPlanInfeasibleError("no viable sequence", nil)}
	broker := newTestBroker(t, &mockGraph{}, planner, &mockExecutor{})

	run, err := broker.Execute(context.Background(), "do the impossible", nil)
	if run != nil {
		t.Error("expected no run record")
	}
	if code := CodeOf(err); code != ErrCodePlanInfeasible {
		t.Errorf("expected %s, got %s", ErrCodePlanInfeasible, code)
	}
}

func TestBroker_DeregisterAndRebuild(t *testing.T) {
	graph := &mockGraph{rebuildEdges: 7}
	broker := newTestBroker(t, graph, &mockPlanner{}, &mockExecutor{})

	if err := broker.DeregisterTool(ToolID{Server: "web", Name: "fetcher"}); err != nil {
		t.Fatalf("DeregisterTool failed: %v", err)
	}

	edges, err := broker.RebuildGraph(context.Background())
	if err != nil {
		t.Fatalf("RebuildGraph failed: %v", err)
	}
	if edges != 7 {
		t.Errorf("expected 7 edges, got %d", edges)
	}
}

func TestBroker_EventBusDisabled(t *testing.T) {
	broker := newTestBroker(t, &mockGraph{}, &mockPlanner{}, &mockExecutor{})
	if broker.EventBus() != nil {
		t.Error("expected nil event bus when disabled")
	}
}

func waitForAsyncCompletion(t *testing.T, broker *Broker, handleID string) *AsyncRunStatus {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := broker.AsyncStatus(handleID)
		if err != nil {
			t.Fatalf("AsyncStatus failed: %v", err)
		}
		if status.IsComplete {
			return status
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("async run never completed")
	return nil
}

func TestBroker_ExecuteAsync_Lifecycle(t *testing.T) {
	plan := fetchSummarizePlan()
	broker := newTestBroker(t, &mockGraph{}, &mockPlanner{plan: plan},
		&mockExecutor{run: finishedRun(plan, true)})

	handleID, err := broker.ExecuteAsync(context.Background(), "fetch and summarize", nil)
	if err != nil {
		t.Fatalf("ExecuteAsync failed: %v", err)
	}

	status := waitForAsyncCompletion(t, broker, handleID)
	if status.HasError {
		t.Errorf("unexpected async error: %s", status.ErrorMessage)
	}

	run, err := broker.AsyncResult(handleID)
	if err != nil {
		t.Fatalf("AsyncResult failed: %v", err)
	}
	if !run.Success {
		t.Error("expected a successful run")
	}

	// Cancelling a finished run is a no-op.
	cancelled, err := broker.CancelAsync(handleID)
	if err != nil {
		t.Fatalf("CancelAsync failed: %v", err)
	}
	if cancelled {
		t.Error("expected cancellation of a finished run to report false")
	}

	if runs := broker.ListAsyncRuns(); len(runs) != 1 {
		t.Errorf("expected 1 tracked async run, got %d", len(runs))
	}
	if removed := broker.CleanupCompleted(0); removed != 1 {
		t.Errorf("expected 1 cleaned-up run, got %d", removed)
	}
	if _, err := broker.AsyncStatus(handleID); err == nil {
		t.Error("expected status lookup to fail after cleanup")
	}
}

func TestBroker_CancelAsync(t *testing.T) {
	plan := fetchSummarizePlan()
	exec := &mockExecutor{run: finishedRun(plan, true), block: make(chan struct{})}
	broker := newTestBroker(t, &mockGraph{}, &mockPlanner{plan: plan}, exec)

	handleID, err := broker.ExecuteAsync(context.Background(), "fetch and summarize", nil)
	if err != nil {
		t.Fatalf("ExecuteAsync failed: %v", err)
	}

	// Wait until the run is actually executing before cancelling.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := broker.AsyncStatus(handleID)
		if err != nil {
			t.Fatalf("AsyncStatus failed: %v", err)
		}
		if status.CurrentState == StateExecuting {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancelled, err := broker.CancelAsync(handleID)
	if err != nil {
		t.Fatalf("CancelAsync failed: %v", err)
	}
	if !cancelled {
		t.Fatal("expected the run to be cancelled")
	}

	status, err := broker.AsyncStatus(handleID)
	if err != nil {
		t.Fatalf("AsyncStatus failed: %v", err)
	}
	if status.CurrentState != StateCancelled || !status.HasError {
		t.Errorf("expected cancelled state with error, got %s", status.CurrentState)
	}
}

func TestBroker_DeregisterLastToolFreesServer(t *testing.T) {
	graph := &mockGraph{}
	broker := newTestBroker(t, graph, &mockPlanner{}, &mockExecutor{})

	catalog := &mockCatalog{tools: []Tool{
		{ID: ToolID{Server: "web", Name: "fetcher"}, Description: "Fetches pages."},
	}}
	if _, err := broker.RegisterServer(context.Background(), "web", catalog, &mockInvoker{}); err != nil {
		t.Fatalf("RegisterServer failed: %v", err)
	}

	// The mock graph's snapshot stays empty, so this removes the server's
	// last tool.
	if err := broker.DeregisterTool(ToolID{Server: "web", Name: "fetcher"}); err != nil {
		t.Fatalf("DeregisterTool failed: %v", err)
	}
	if servers := broker.Invokers().Servers(); len(servers) != 0 {
		t.Errorf("expected no registered invokers, got %v", servers)
	}

	// The freed name can be registered again.
	if _, err := broker.RegisterServer(context.Background(), "web", catalog, &mockInvoker{}); err != nil {
		t.Fatalf("re-registering a freed server failed: %v", err)
	}
}

func TestBroker_DeregisterToolKeepsBusyServer(t *testing.T) {
	fetcher := ToolID{Server: "web", Name: "fetcher"}
	prober := ToolID{Server: "web", Name: "prober"}

	graph := &mockGraph{snapshot: NewGraphSnapshot(2, map[ToolID]Tool{
		prober: {ID: prober, Description: "Probes endpoints."},
	}, nil)}
	broker := newTestBroker(t, graph, &mockPlanner{}, &mockExecutor{})

	catalog := &mockCatalog{tools: []Tool{
		{ID: fetcher, Description: "Fetches pages."},
		{ID: prober, Description: "Probes endpoints."},
	}}
	if _, err := broker.RegisterServer(context.Background(), "web", catalog, &mockInvoker{}); err != nil {
		t.Fatalf("RegisterServer failed: %v", err)
	}

	if err := broker.DeregisterTool(fetcher); err != nil {
		t.Fatalf("DeregisterTool failed: %v", err)
	}
	if servers := broker.Invokers().Servers(); len(servers) != 1 || servers[0] != "web" {
		t.Errorf("expected the invoker to remain while tools exist, got %v", servers)
	}
}
