package toolweave

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/toolweave/toolweave/internal/eventbus"
)

func collectEvents(t *testing.T, bus eventbus.EventBus, types []eventbus.EventType) func() map[eventbus.EventType]bool {
	t.Helper()

	var mu sync.Mutex
	emitted := make(map[eventbus.EventType]bool)

	_, err := bus.Subscribe(types, func(ctx context.Context, evt eventbus.Event) error {
		mu.Lock()
		emitted[evt.Type()] = true
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	return func() map[eventbus.EventType]bool {
		mu.Lock()
		defer mu.Unlock()
		out := make(map[eventbus.EventType]bool, len(emitted))
		for k, v := range emitted {
			out[k] = v
		}
		return out
	}
}

func waitForEvents(t *testing.T, snapshot func() map[eventbus.EventType]bool, want []eventbus.EventType) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		emitted := snapshot()
		missing := false
		for _, eventType := range want {
			if !emitted[eventType] {
				missing = true
				break
			}
		}
		if !missing {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	emitted := snapshot()
	for _, eventType := range want {
		if !emitted[eventType] {
			t.Errorf("event %s was never emitted", eventType)
		}
	}
}

func TestStateMachine_EventBus_SuccessfulRun(t *testing.T) {
	bus := eventbus.NewChannelEventBus(
		eventbus.WithBufferSize(16),
		eventbus.WithWorkerCount(1),
	)
	defer bus.Close()

	want := []eventbus.EventType{
		eventbus.EventRequestReceived,
		eventbus.EventPlanRequested,
		eventbus.EventPlanValidated,
		eventbus.EventRunStarted,
		eventbus.EventRunSucceeded,
	}
	snapshot := collectEvents(t, bus, want)

	plan := fetchSummarizePlan()
	components := testComponents(&mockPlanner{plan: plan}, &mockExecutor{run: finishedRun(plan, true)})
	sm := CreateRunStateMachine(components, bus)

	if _, err := sm.Execute(context.Background(), NewProcessContext("fetch and summarize", nil)); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	waitForEvents(t, snapshot, want)
}

func TestStateMachine_EventBus_FailedRun(t *testing.T) {
	bus := eventbus.NewChannelEventBus(
		eventbus.WithBufferSize(16),
		eventbus.WithWorkerCount(1),
	)
	defer bus.Close()

	snapshot := collectEvents(t, bus, []eventbus.EventType{
		eventbus.EventRunFailed,
		eventbus.EventRunSucceeded,
	})

	plan := fetchSummarizePlan()
	components := testComponents(&mockPlanner{plan: plan}, &mockExecutor{run: finishedRun(plan, false)})
	sm := CreateRunStateMachine(components, bus)

	if _, err := sm.Execute(context.Background(), NewProcessContext("fetch and summarize", nil)); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	waitForEvents(t, snapshot, []eventbus.EventType{eventbus.EventRunFailed})
	if snapshot()[eventbus.EventRunSucceeded] {
		t.Error("a failed run must not emit a success event")
	}
}

func TestStateMachine_EventBus_InfeasiblePlan(t *testing.T) {
	bus := eventbus.NewChannelEventBus(
		eventbus.WithBufferSize(16),
		eventbus.WithWorkerCount(1),
	)
	defer bus.Close()

	want := []eventbus.EventType{eventbus.EventPlanInfeasible}
	snapshot := collectEvents(t, bus, want)

	components := testComponents(
		&mockPlanner{err: NewPlanInfeasibleError("nothing matches", nil)},
		&mockExecutor{},
	)
	sm := CreateRunStateMachine(components, bus)

	if _, err := sm.Execute(context.Background(), NewProcessContext("do the impossible", nil)); err == nil {
		t.Fatal("expected an infeasible plan error")
	}

	waitForEvents(t, snapshot, want)
}
