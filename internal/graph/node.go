// Package graph executes a strategy expressed as a DAG of typed logic nodes,
// one walk per tick. Nodes share a uniform execute contract; the graph owns
// their runtime state and the activation hand-off between parents and
// children.
package graph

import (
	"strategy-core/internal/diagnostics"
)

// Kind identifies a node's role in the strategy graph. The set is closed:
// dispatch happens through the Node interface, never through strings.
type Kind int

const (
	KindStart Kind = iota
	KindEntrySignal
	KindEntry
	KindExitSignal
	KindExit
	KindReEntrySignal
	KindSquareOff
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindEntrySignal:
		return "entry_signal"
	case KindEntry:
		return "entry"
	case KindExitSignal:
		return "exit_signal"
	case KindExit:
		return "exit"
	case KindReEntrySignal:
		return "re_entry_signal"
	case KindSquareOff:
		return "square_off"
	}
	return "unknown"
}

// Result is what a node reports back after executing on one tick.
type Result struct {
	// LogicCompleted ends the node's current activation: its event is
	// recorded and (unless suppressed) its children are armed for the next
	// tick. When false the node stays active and retries next tick.
	LogicCompleted bool
	// PendingReason, when set on an incomplete result, parks the node in
	// the pending state: it is skipped (not re-executed) until resumed.
	PendingReason string
	// SuppressChildren completes without arming children.
	SuppressChildren bool
	// Terminal retires the node permanently; it can never be re-activated.
	Terminal bool
	// Payload is attached to the recorded event.
	Payload diagnostics.Payload
}

// Node is one strategy graph vertex. Implementations are immutable after
// load; all mutable state lives in the graph's runtime table.
type Node interface {
	ID() string
	Kind() Kind
	Children() []string
	// Execute runs the node's logic for the current tick. Any error aborts
	// the whole run: the graph never retries or swallows node failures.
	Execute(ctx *Context) (Result, error)
}

// StartNode is the root of every strategy graph. It completes on the first
// tick and arms its children; its event is the only one with no parent.
type StartNode struct {
	NodeID   string
	Kids     []string
	Strategy string
}

func (n *StartNode) ID() string          { return n.NodeID }
func (n *StartNode) Kind() Kind          { return KindStart }
func (n *StartNode) Children() []string  { return n.Kids }

func (n *StartNode) Execute(ctx *Context) (Result, error) {
	return Result{
		LogicCompleted: true,
		Payload:        diagnostics.Payload{Note: "strategy " + n.Strategy + " started"},
	}, nil
}
