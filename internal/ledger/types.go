package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of a position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Status of a position's lifecycle.
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusPartial Status = "PARTIAL"
	StatusClosed  Status = "CLOSED"
)

// PartialExit is one exit fill applied against a position. Appended, never
// removed.
type PartialExit struct {
	ExecutionID string          `json:"execution_id"`
	QtyClosed   decimal.Decimal `json:"qty_closed"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	ExitTime    time.Time       `json:"exit_time"`
	PnL         decimal.Decimal `json:"pnl"`
	ExitFlowIDs []string        `json:"exit_flow_ids,omitempty"`
}

// Position is one open/partial/closed trade leg. PositionID identifies the
// logical slot; PositionNum distinguishes successive occupants of that slot.
type Position struct {
	PositionID   string          `json:"position_id"`
	PositionNum  int             `json:"position_num"`
	Symbol       string          `json:"symbol"`
	Side         Side            `json:"side"`
	QtyEntered   decimal.Decimal `json:"qty_entered"`
	QtyClosed    decimal.Decimal `json:"qty_closed"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	EntryTime    time.Time       `json:"entry_time"`
	Status       Status          `json:"status"`
	PartialExits []PartialExit   `json:"partial_exits,omitempty"`
	EntryFlowIDs []string        `json:"entry_flow_ids,omitempty"`
}

// QtyRemaining is the quantity still open.
func (p *Position) QtyRemaining() decimal.Decimal {
	return p.QtyEntered.Sub(p.QtyClosed)
}

// IsOpen reports whether the position still holds quantity.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen || p.Status == StatusPartial
}

// Clone returns an independent snapshot of the position.
func (p *Position) Clone() Position {
	cp := *p
	cp.PartialExits = append([]PartialExit(nil), p.PartialExits...)
	cp.EntryFlowIDs = append([]string(nil), p.EntryFlowIDs...)
	return cp
}

// ClosureResult reports what a close operation actually did.
type ClosureResult struct {
	QtyClosed   decimal.Decimal `json:"qty_closed"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	FullyClosed bool            `json:"fully_closed"`
	Position    Position        `json:"position"`
}

// Trade is the read-only view of a fully closed position.
type Trade struct {
	PositionID   string          `json:"position_id"`
	PositionNum  int             `json:"position_num"`
	Symbol       string          `json:"symbol"`
	Side         Side            `json:"side"`
	Qty          decimal.Decimal `json:"qty"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	EntryTime    time.Time       `json:"entry_time"`
	ExitPrice    decimal.Decimal `json:"exit_price"`
	ExitTime     time.Time       `json:"exit_time"`
	PnL          decimal.Decimal `json:"pnl"`
	EntryFlowIDs []string        `json:"entry_flow_ids,omitempty"`
	ExitFlowIDs  []string        `json:"exit_flow_ids,omitempty"`
}
