// Package diagnostics keeps the append-only execution history and the
// current-state snapshot of in-flight nodes. Every write is validated and
// every failure is returned to the caller; nothing is logged-and-ignored,
// because an incomplete audit trail is as bad as wrong P&L.
package diagnostics

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Errors returned on recording-contract violations. All are fatal to the run.
var (
	ErrNotInitialized = fmt.Errorf("diagnostics recorder not initialized")
	ErrMissingNodeID  = fmt.Errorf("node id is empty")
	ErrUnknownParent  = fmt.Errorf("parent execution id not present in history")
)

// Recorder owns events history and current state for one strategy context.
// It has no internal locking: the node graph is the only writer, and readers
// take snapshots at tick boundaries.
type Recorder struct {
	events  map[string]*ExecutionEvent
	order   []string
	current map[string]NodeState
}

// NewRecorder creates an initialized recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		events:  make(map[string]*ExecutionEvent),
		current: make(map[string]NodeState),
	}
}

func (r *Recorder) check(nodeID string) error {
	if r == nil || r.events == nil || r.current == nil {
		return ErrNotInitialized
	}
	if nodeID == "" {
		return ErrMissingNodeID
	}
	return nil
}

// RecordEvent appends one immutable event and returns it. The parent, when
// set, must already be present: events are written in causal order and flow
// reconstruction depends on it.
func (r *Recorder) RecordEvent(nodeID, parentExecutionID string, ts time.Time, typ EventType, payload Payload) (*ExecutionEvent, error) {
	return r.RecordEventWithID(NewExecutionID(nodeID, ts), nodeID, parentExecutionID, ts, typ, payload)
}

// RecordEventWithID records an event under a pre-allocated execution id. The
// node graph allocates ids before running a node so ledger records can
// reference the event that caused them.
func (r *Recorder) RecordEventWithID(executionID, nodeID, parentExecutionID string, ts time.Time, typ EventType, payload Payload) (*ExecutionEvent, error) {
	if err := r.check(nodeID); err != nil {
		return nil, fmt.Errorf("record event for node %q: %w", nodeID, err)
	}
	if executionID == "" {
		return nil, fmt.Errorf("record event for node %q: execution id is empty", nodeID)
	}
	if _, ok := r.events[executionID]; ok {
		return nil, fmt.Errorf("record event for node %q: execution id %q already recorded", nodeID, executionID)
	}
	if parentExecutionID != "" {
		if _, ok := r.events[parentExecutionID]; !ok {
			return nil, fmt.Errorf("record event for node %q: parent %q: %w", nodeID, parentExecutionID, ErrUnknownParent)
		}
	}

	ev := &ExecutionEvent{
		ExecutionID:       executionID,
		ParentExecutionID: parentExecutionID,
		Timestamp:         ts,
		NodeID:            nodeID,
		Type:              typ,
		Payload:           payload,
	}
	r.events[ev.ExecutionID] = ev
	r.order = append(r.order, ev.ExecutionID)
	return ev, nil
}

// UpdateCurrentState upserts the runtime snapshot for an in-flight node.
func (r *Recorder) UpdateCurrentState(nodeID string, status NodeStatus, reason string, ts time.Time) error {
	if err := r.check(nodeID); err != nil {
		return fmt.Errorf("update current state for node %q: %w", nodeID, err)
	}
	r.current[nodeID] = NodeState{
		NodeID:        nodeID,
		Status:        status,
		PendingReason: reason,
		UpdatedAt:     ts,
	}
	return nil
}

// UpdatePendingState refreshes a pending node's snapshot without
// re-evaluating it.
func (r *Recorder) UpdatePendingState(nodeID, reason string, ts time.Time) error {
	return r.UpdateCurrentState(nodeID, NodePending, reason, ts)
}

// ClearCurrentState removes a node from the in-flight snapshot once its
// logic completed.
func (r *Recorder) ClearCurrentState(nodeID string) error {
	if err := r.check(nodeID); err != nil {
		return fmt.Errorf("clear current state for node %q: %w", nodeID, err)
	}
	delete(r.current, nodeID)
	return nil
}

// Event looks up a single event by execution id.
func (r *Recorder) Event(executionID string) (ExecutionEvent, bool) {
	ev, ok := r.events[executionID]
	if !ok {
		return ExecutionEvent{}, false
	}
	return *ev, true
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int { return len(r.order) }

// Events returns all events in append (causal) order.
func (r *Recorder) Events() []ExecutionEvent {
	return r.EventsFrom(0)
}

// EventsFrom returns events appended at or after index from, in order. The
// scheduler uses it to collect "new this tick" events.
func (r *Recorder) EventsFrom(from int) []ExecutionEvent {
	if from < 0 || from > len(r.order) {
		return nil
	}
	out := make([]ExecutionEvent, 0, len(r.order)-from)
	for _, id := range r.order[from:] {
		out = append(out, *r.events[id])
	}
	return out
}

// EventsHistory returns a copy of the full id-keyed history.
func (r *Recorder) EventsHistory() map[string]ExecutionEvent {
	out := make(map[string]ExecutionEvent, len(r.events))
	for id, ev := range r.events {
		out[id] = *ev
	}
	return out
}

// CurrentState returns a copy of the in-flight node snapshot.
func (r *Recorder) CurrentState() map[string]NodeState {
	out := make(map[string]NodeState, len(r.current))
	for id, st := range r.current {
		out[id] = st
	}
	return out
}

// FlowIDs walks parent links from executionID back to the root and returns
// the chain root-first. Unknown ids and broken links are errors: they mean
// the history was corrupted.
func (r *Recorder) FlowIDs(executionID string) ([]string, error) {
	if r == nil || r.events == nil {
		return nil, ErrNotInitialized
	}
	var chain []string
	id := executionID
	for id != "" {
		ev, ok := r.events[id]
		if !ok {
			return nil, fmt.Errorf("flow walk from %q: event %q: %w", executionID, id, ErrUnknownParent)
		}
		chain = append(chain, id)
		if len(chain) > len(r.events) {
			return nil, fmt.Errorf("flow walk from %q: parent cycle detected", executionID)
		}
		id = ev.ParentExecutionID
	}
	// reverse to root-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// NewExecutionID derives a globally unique event id from the node, the tick
// timestamp and a random suffix.
func NewExecutionID(nodeID string, ts time.Time) string {
	return fmt.Sprintf("%s-%d-%s", nodeID, ts.UnixNano(), uuid.NewString()[:8])
}
