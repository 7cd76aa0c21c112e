package graph

import (
	"fmt"

	"strategy-core/internal/diagnostics"
)

type nodeStatus int

const (
	statusActive nodeStatus = iota
	statusPending
)

// runtimeState exists only while a node is in flight; dormant nodes have no
// entry at all.
type runtimeState struct {
	status        nodeStatus
	pendingReason string
	parentExecID  string
}

// Graph is the DAG of strategy nodes plus their runtime state. It is owned
// by exactly one strategy context and walked once per tick.
type Graph struct {
	nodes   map[string]Node
	runtime map[string]*runtimeState
	// active preserves activation order so walks are deterministic.
	active   []string
	terminal map[string]bool
	startID  string
	started  bool
}

// New validates the node set and builds a graph. Exactly one Start node is
// required, ids must be unique, and every child reference must resolve.
func New(nodes []Node) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[string]Node, len(nodes)),
		runtime:  make(map[string]*runtimeState),
		terminal: make(map[string]bool),
	}
	for _, n := range nodes {
		if n.ID() == "" {
			return nil, fmt.Errorf("graph: node with empty id (kind %s)", n.Kind())
		}
		if _, dup := g.nodes[n.ID()]; dup {
			return nil, fmt.Errorf("graph: duplicate node id %q", n.ID())
		}
		g.nodes[n.ID()] = n
		if n.Kind() == KindStart {
			if g.startID != "" {
				return nil, fmt.Errorf("graph: multiple start nodes (%q, %q)", g.startID, n.ID())
			}
			g.startID = n.ID()
		}
	}
	if g.startID == "" {
		return nil, fmt.Errorf("graph: no start node")
	}
	for _, n := range nodes {
		for _, child := range n.Children() {
			if _, ok := g.nodes[child]; !ok {
				return nil, fmt.Errorf("graph: node %q references unknown child %q", n.ID(), child)
			}
		}
	}
	return g, nil
}

// Node returns the node definition for id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// IsActive reports whether the node is currently in flight (active or
// pending).
func (g *Graph) IsActive(id string) bool {
	_, ok := g.runtime[id]
	return ok
}

// ActiveNodeIDs returns in-flight node ids in activation order.
func (g *Graph) ActiveNodeIDs() []string {
	return append([]string(nil), g.active...)
}

// ResumePending moves a pending node back to active so it re-executes on the
// next tick. Used when an external wait (e.g. a live fill) resolves.
func (g *Graph) ResumePending(id string) error {
	st, ok := g.runtime[id]
	if !ok {
		return fmt.Errorf("graph: resume %q: node not in flight", id)
	}
	if st.status != statusPending {
		return fmt.Errorf("graph: resume %q: node not pending", id)
	}
	st.status = statusActive
	st.pendingReason = ""
	return nil
}

// activate arms a node with the event that caused it. Re-arming an in-flight
// node keeps its original cause; retired nodes stay retired.
func (g *Graph) activate(id, parentExecID string) {
	if g.terminal[id] {
		return
	}
	if _, ok := g.runtime[id]; ok {
		return
	}
	g.runtime[id] = &runtimeState{status: statusActive, parentExecID: parentExecID}
	g.active = append(g.active, id)
}

func (g *Graph) deactivate(id string) {
	delete(g.runtime, id)
	for i, a := range g.active {
		if a == id {
			g.active = append(g.active[:i], g.active[i+1:]...)
			break
		}
	}
}

type activation struct {
	nodeID       string
	parentExecID string
}

// Step walks the graph once for the current tick in ctx. Children armed by a
// completing node run from the next tick on, never within the same walk. Any
// node, evaluator or recorder failure aborts the step immediately.
func (g *Graph) Step(ctx *Context) error {
	ctx.graph = g
	if !g.started {
		g.activate(g.startID, "")
		g.started = true
	}

	ts := ctx.Tick.Timestamp
	var next []activation

	for _, id := range g.ActiveNodeIDs() {
		st, ok := g.runtime[id]
		if !ok {
			continue
		}
		node := g.nodes[id]
		if node == nil {
			return fmt.Errorf("graph: active node %q has no definition", id)
		}

		if st.status == statusPending {
			if err := ctx.Recorder.UpdatePendingState(id, st.pendingReason, ts); err != nil {
				return err
			}
			continue
		}

		ctx.ExecutionID = diagnostics.NewExecutionID(id, ts)
		ctx.ParentExecutionID = st.parentExecID

		res, err := node.Execute(ctx)
		if err != nil {
			return fmt.Errorf("graph: node %q (%s) at %s: %w", id, node.Kind(), ts.Format("15:04:05"), err)
		}

		switch {
		case res.LogicCompleted:
			ev, err := ctx.Recorder.RecordEventWithID(ctx.ExecutionID, id, st.parentExecID, ts, diagnostics.EventLogicCompleted, res.Payload)
			if err != nil {
				return err
			}
			if err := ctx.Recorder.ClearCurrentState(id); err != nil {
				return err
			}
			g.deactivate(id)
			if res.Terminal {
				g.terminal[id] = true
			}
			if !res.SuppressChildren {
				for _, child := range node.Children() {
					next = append(next, activation{nodeID: child, parentExecID: ev.ExecutionID})
				}
			}
		case res.PendingReason != "":
			st.status = statusPending
			st.pendingReason = res.PendingReason
			// The wait itself is part of the audit trail: record the node as
			// caught mid-execution, once per pending transition.
			if _, err := ctx.Recorder.RecordEventWithID(ctx.ExecutionID, id, st.parentExecID, ts, diagnostics.EventNodeExecuting, diagnostics.Payload{Note: res.PendingReason}); err != nil {
				return err
			}
			if err := ctx.Recorder.UpdatePendingState(id, res.PendingReason, ts); err != nil {
				return err
			}
		default:
			if err := ctx.Recorder.UpdateCurrentState(id, diagnostics.NodeActive, "", ts); err != nil {
				return err
			}
		}
	}

	for _, a := range next {
		g.activate(a.nodeID, a.parentExecID)
	}
	return nil
}
