// Package ledger is the single source of truth for positions: lifecycle,
// entry/re-entry numbering, and realized/unrealized P&L. One Ledger is owned
// by exactly one strategy context; it is not safe for concurrent writers.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Errors returned on invariant violations. Both are fatal to the run; the
// scheduler never retries or downgrades them.
var (
	ErrDuplicateOpenPosition = fmt.Errorf("open position already exists")
	ErrUnknownPosition       = fmt.Errorf("no open position")
)

// Ledger tracks every position ever opened, grouped by logical slot.
type Ledger struct {
	bySlot map[string][]*Position
	// all preserves creation order across slots for Positions()/Trades().
	all []*Position
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{bySlot: make(map[string][]*Position)}
}

// OpenPosition opens the next occupant of the slot positionID, assigning a
// strictly increasing PositionNum starting at 1. Fails with
// ErrDuplicateOpenPosition if an open/partial occupant already exists.
func (l *Ledger) OpenPosition(positionID, symbol string, side Side, qty, price decimal.Decimal, ts time.Time, entryFlowIDs []string) (*Position, error) {
	if qty.Sign() <= 0 {
		return nil, fmt.Errorf("open %s: qty must be positive, got %s", positionID, qty)
	}
	if price.Sign() < 0 {
		return nil, fmt.Errorf("open %s: price must be non-negative, got %s", positionID, price)
	}
	if cur := l.openFor(positionID); cur != nil {
		return nil, fmt.Errorf("open %s: occupant num=%d status=%s: %w",
			positionID, cur.PositionNum, cur.Status, ErrDuplicateOpenPosition)
	}

	p := &Position{
		PositionID:   positionID,
		PositionNum:  len(l.bySlot[positionID]) + 1,
		Symbol:       symbol,
		Side:         side,
		QtyEntered:   qty,
		EntryPrice:   price,
		EntryTime:    ts,
		Status:       StatusOpen,
		EntryFlowIDs: append([]string(nil), entryFlowIDs...),
	}
	l.bySlot[positionID] = append(l.bySlot[positionID], p)
	l.all = append(l.all, p)
	return p, nil
}

// ClosePosition closes qty against the open occupant of positionID, clamping
// to the remaining quantity. Returns ErrUnknownPosition if nothing is open.
func (l *Ledger) ClosePosition(positionID string, qty, price decimal.Decimal, ts time.Time, executionID string, exitFlowIDs []string) (ClosureResult, error) {
	p := l.openFor(positionID)
	if p == nil {
		return ClosureResult{}, fmt.Errorf("close %s: %w", positionID, ErrUnknownPosition)
	}
	if qty.Sign() <= 0 {
		return ClosureResult{}, fmt.Errorf("close %s: qty must be positive, got %s", positionID, qty)
	}

	remaining := p.QtyRemaining()
	if qty.GreaterThan(remaining) {
		qty = remaining
	}

	pnl := realized(p.Side, p.EntryPrice, price, qty)
	p.QtyClosed = p.QtyClosed.Add(qty)
	p.PartialExits = append(p.PartialExits, PartialExit{
		ExecutionID: executionID,
		QtyClosed:   qty,
		ExitPrice:   price,
		ExitTime:    ts,
		PnL:         pnl,
		ExitFlowIDs: append([]string(nil), exitFlowIDs...),
	})

	if p.QtyRemaining().Sign() == 0 {
		p.Status = StatusClosed
	} else {
		p.Status = StatusPartial
	}

	return ClosureResult{
		QtyClosed:   qty,
		RealizedPnL: pnl,
		FullyClosed: p.Status == StatusClosed,
		Position:    p.Clone(),
	}, nil
}

// LatestPositionNum returns the highest PositionNum ever assigned for the
// slot, or 0 if the slot has never been occupied.
func (l *Ledger) LatestPositionNum(positionID string) int {
	return len(l.bySlot[positionID])
}

// HasOpenPosition reports whether the slot has an open/partial occupant.
func (l *Ledger) HasOpenPosition(positionID string) bool {
	return l.openFor(positionID) != nil
}

// OpenPositionFor returns a snapshot of the slot's open occupant, if any.
func (l *Ledger) OpenPositionFor(positionID string) (Position, bool) {
	p := l.openFor(positionID)
	if p == nil {
		return Position{}, false
	}
	return p.Clone(), true
}

// UnrealizedPnL marks the slot's open occupant against ltp. Zero when the
// slot is empty or closed.
func (l *Ledger) UnrealizedPnL(positionID string, ltp decimal.Decimal) decimal.Decimal {
	p := l.openFor(positionID)
	if p == nil {
		return decimal.Zero
	}
	return realized(p.Side, p.EntryPrice, ltp, p.QtyRemaining())
}

// RealizedPnL sums the realized P&L of every exit fill recorded so far.
func (l *Ledger) RealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.all {
		for _, pe := range p.PartialExits {
			total = total.Add(pe.PnL)
		}
	}
	return total
}

// Positions returns snapshots of every position ever opened, in creation
// order.
func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.all))
	for _, p := range l.all {
		out = append(out, p.Clone())
	}
	return out
}

// OpenPositions returns snapshots of positions still holding quantity.
func (l *Ledger) OpenPositions() []Position {
	var out []Position
	for _, p := range l.all {
		if p.IsOpen() {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Trades returns the closed positions reshaped as the trade-history view.
// Exit price/time and flow IDs come from the final exit fill; P&L aggregates
// all fills.
func (l *Ledger) Trades() []Trade {
	var out []Trade
	for _, p := range l.all {
		if p.Status != StatusClosed || len(p.PartialExits) == 0 {
			continue
		}
		last := p.PartialExits[len(p.PartialExits)-1]
		pnl := decimal.Zero
		for _, pe := range p.PartialExits {
			pnl = pnl.Add(pe.PnL)
		}
		out = append(out, Trade{
			PositionID:   p.PositionID,
			PositionNum:  p.PositionNum,
			Symbol:       p.Symbol,
			Side:         p.Side,
			Qty:          p.QtyEntered,
			EntryPrice:   p.EntryPrice,
			EntryTime:    p.EntryTime,
			ExitPrice:    last.ExitPrice,
			ExitTime:     last.ExitTime,
			PnL:          pnl,
			EntryFlowIDs: append([]string(nil), p.EntryFlowIDs...),
			ExitFlowIDs:  append([]string(nil), last.ExitFlowIDs...),
		})
	}
	return out
}

func (l *Ledger) openFor(positionID string) *Position {
	occupants := l.bySlot[positionID]
	if len(occupants) == 0 {
		return nil
	}
	// Only the newest occupant can be open; older ones are closed history.
	p := occupants[len(occupants)-1]
	if p.IsOpen() {
		return p
	}
	return nil
}

// realized computes P&L for closing qty at price against entry. Short profits
// when price falls, long when it rises.
func realized(side Side, entry, price, qty decimal.Decimal) decimal.Decimal {
	if side == Short {
		return entry.Sub(price).Mul(qty)
	}
	return price.Sub(entry).Mul(qty)
}
