package diagnostics

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)

func TestRecordEventCausalOrder(t *testing.T) {
	r := NewRecorder()

	root, err := r.RecordEvent("start", "", t0, EventLogicCompleted, Payload{})
	if err != nil {
		t.Fatalf("record root: %v", err)
	}
	if root.ParentExecutionID != "" {
		t.Fatalf("root parent=%q, want empty", root.ParentExecutionID)
	}

	child, err := r.RecordEvent("entry_signal", root.ExecutionID, t0.Add(time.Second), EventLogicCompleted, Payload{})
	if err != nil {
		t.Fatalf("record child: %v", err)
	}

	// Every event's parent must already be present earlier in the log.
	seen := map[string]bool{}
	for _, ev := range r.Events() {
		if ev.ParentExecutionID != "" && !seen[ev.ParentExecutionID] {
			t.Fatalf("event %s references parent %s not yet in log", ev.ExecutionID, ev.ParentExecutionID)
		}
		seen[ev.ExecutionID] = true
	}

	flow, err := r.FlowIDs(child.ExecutionID)
	if err != nil {
		t.Fatalf("FlowIDs: %v", err)
	}
	if len(flow) != 2 || flow[0] != root.ExecutionID || flow[1] != child.ExecutionID {
		t.Fatalf("flow=%v, want [root child]", flow)
	}
}

func TestRecordEventRejectsUnknownParent(t *testing.T) {
	r := NewRecorder()
	if _, err := r.RecordEvent("node", "never-written", t0, EventLogicCompleted, Payload{}); !errors.Is(err, ErrUnknownParent) {
		t.Fatalf("err=%v, want ErrUnknownParent", err)
	}
}

func TestRecorderValidation(t *testing.T) {
	r := NewRecorder()
	if _, err := r.RecordEvent("", "", t0, EventLogicCompleted, Payload{}); !errors.Is(err, ErrMissingNodeID) {
		t.Fatalf("empty node id: err=%v, want ErrMissingNodeID", err)
	}
	if err := r.UpdateCurrentState("", NodeActive, "", t0); !errors.Is(err, ErrMissingNodeID) {
		t.Fatalf("empty node id: err=%v, want ErrMissingNodeID", err)
	}

	var uninit *Recorder
	if _, err := uninit.RecordEvent("n", "", t0, EventLogicCompleted, Payload{}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("nil recorder: err=%v, want ErrNotInitialized", err)
	}
	bad := &Recorder{}
	if err := bad.UpdatePendingState("n", "waiting", t0); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("zero recorder: err=%v, want ErrNotInitialized", err)
	}
}

func TestCurrentStateLifecycle(t *testing.T) {
	r := NewRecorder()

	if err := r.UpdateCurrentState("sig", NodeActive, "", t0); err != nil {
		t.Fatalf("UpdateCurrentState: %v", err)
	}
	if err := r.UpdatePendingState("ent", "awaiting_fill", t0); err != nil {
		t.Fatalf("UpdatePendingState: %v", err)
	}

	state := r.CurrentState()
	if state["sig"].Status != NodeActive {
		t.Fatalf("sig status=%s, want ACTIVE", state["sig"].Status)
	}
	if state["ent"].Status != NodePending || state["ent"].PendingReason != "awaiting_fill" {
		t.Fatalf("ent state=%+v", state["ent"])
	}

	if err := r.ClearCurrentState("sig"); err != nil {
		t.Fatalf("ClearCurrentState: %v", err)
	}
	if _, ok := r.CurrentState()["sig"]; ok {
		t.Fatal("sig still present after clear")
	}
}

func TestEventsFrom(t *testing.T) {
	r := NewRecorder()
	if _, err := r.RecordEvent("a", "", t0, EventLogicCompleted, Payload{}); err != nil {
		t.Fatal(err)
	}
	mark := r.Len()
	if _, err := r.RecordEvent("b", "", t0, EventLogicCompleted, Payload{}); err != nil {
		t.Fatal(err)
	}

	got := r.EventsFrom(mark)
	if len(got) != 1 || got[0].NodeID != "b" {
		t.Fatalf("EventsFrom(%d)=%v, want just b", mark, got)
	}
}

func TestExecutionIDsUnique(t *testing.T) {
	r := NewRecorder()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ev, err := r.RecordEvent("n", "", t0, EventLogicCompleted, Payload{})
		if err != nil {
			t.Fatal(err)
		}
		if seen[ev.ExecutionID] {
			t.Fatalf("duplicate execution id %s", ev.ExecutionID)
		}
		seen[ev.ExecutionID] = true
	}
}
