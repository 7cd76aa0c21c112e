package diagnostics

import (
	"time"

	"github.com/shopspring/decimal"

	"strategy-core/internal/condition"
	"strategy-core/internal/ledger"
	"strategy-core/internal/order"
)

// EventType classifies an execution event.
type EventType string

const (
	// EventLogicCompleted marks a node that finished its logic this tick.
	EventLogicCompleted EventType = "logic_completed"
	// EventNodeExecuting marks a node caught mid-execution, waiting on an
	// external resolution (e.g. a fill). Recorded once per pending
	// transition; replay skips these.
	EventNodeExecuting EventType = "node_executing"
)

// NodeStatus is the runtime status snapshot kept per in-flight node.
type NodeStatus string

const (
	NodeActive  NodeStatus = "ACTIVE"
	NodePending NodeStatus = "PENDING"
)

// NodeState is the current-state entry for one in-flight node.
type NodeState struct {
	NodeID        string     `json:"node_id"`
	Status        NodeStatus `json:"status"`
	PendingReason string     `json:"pending_reason,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// SquareOffSummary aggregates a batch of closures into one event.
type SquareOffSummary struct {
	PositionsClosed int                    `json:"positions_closed"`
	QtyClosed       decimal.Decimal        `json:"qty_closed"`
	RealizedPnL     decimal.Decimal        `json:"realized_pnl"`
	Exits           []ledger.ClosureResult `json:"exits,omitempty"`
}

// Payload carries the node-kind-specific detail of an event. Only the fields
// relevant to the recording node are set.
type Payload struct {
	Conditions  []condition.Trace     `json:"conditions,omitempty"`
	Order       *order.Order          `json:"order,omitempty"`
	OrderResult *order.Result         `json:"order_result,omitempty"`
	Position    *ledger.Position      `json:"position,omitempty"`
	ExitResult  *ledger.ClosureResult `json:"exit_result,omitempty"`
	SquareOff   *SquareOffSummary     `json:"square_off,omitempty"`
	SkipReason  string                `json:"skip_reason,omitempty"`
	Note        string                `json:"note,omitempty"`
}

// ExecutionEvent is one immutable entry in the event history. Every non-root
// event links to the parent event that caused it.
type ExecutionEvent struct {
	ExecutionID       string    `json:"execution_id"`
	ParentExecutionID string    `json:"parent_execution_id,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	NodeID            string    `json:"node_id"`
	Type              EventType `json:"event_type"`
	Payload           Payload   `json:"payload"`
}
