package graph

import (
	"fmt"

	"github.com/shopspring/decimal"

	"strategy-core/internal/diagnostics"
	"strategy-core/internal/ledger"
	"strategy-core/internal/order"
)

// EntryConfig configures an entry action node.
type EntryConfig struct {
	ID         string
	Children   []string
	PositionID string
	Symbol     string
	Side       ledger.Side
	Qty        decimal.Decimal
	// MaxEntries caps re-entries into this slot; enforced by the re-entry
	// signal, carried here because the slot's limit belongs to its entry.
	MaxEntries int
}

// EntryNode opens the next occupant of its slot at the current market price.
type EntryNode struct {
	Cfg EntryConfig
}

func (n *EntryNode) ID() string         { return n.Cfg.ID }
func (n *EntryNode) Kind() Kind         { return KindEntry }
func (n *EntryNode) Children() []string { return n.Cfg.Children }

func (n *EntryNode) Execute(ctx *Context) (Result, error) {
	price, _, err := ctx.Market.LTP(n.Cfg.Symbol)
	if err != nil {
		return Result{}, fmt.Errorf("entry %q: %w", n.Cfg.ID, err)
	}

	ord := order.Order{
		Symbol:   n.Cfg.Symbol,
		Side:     entrySide(n.Cfg.Side),
		Qty:      n.Cfg.Qty,
		Price:    price,
		PlacedAt: ctx.Tick.Timestamp,
	}
	placed, err := ctx.Placer.Place(ord)
	if err != nil {
		return Result{}, fmt.Errorf("entry %q: place order: %w", n.Cfg.ID, err)
	}
	if placed.Status == order.StatusPending {
		return Result{PendingReason: "awaiting_fill"}, nil
	}
	if placed.Status != order.StatusFilled {
		return Result{}, fmt.Errorf("entry %q: order %s", n.Cfg.ID, placed.Status)
	}

	flow, err := ctx.Flow()
	if err != nil {
		return Result{}, err
	}
	p, err := ctx.Ledger.OpenPosition(n.Cfg.PositionID, n.Cfg.Symbol, n.Cfg.Side, n.Cfg.Qty, placed.FillPrice, ctx.Tick.Timestamp, flow)
	if err != nil {
		return Result{}, fmt.Errorf("entry %q: %w", n.Cfg.ID, err)
	}

	snap := p.Clone()
	return Result{
		LogicCompleted: true,
		Payload: diagnostics.Payload{
			Order:       &ord,
			OrderResult: &placed,
			Position:    &snap,
		},
	}, nil
}

// ExitConfig configures an exit action node. Qty zero closes everything
// remaining.
type ExitConfig struct {
	ID         string
	Children   []string
	PositionID string
	Qty        decimal.Decimal
}

// ExitNode closes (part of) the slot's open occupant. Finding the position
// already closed by a sibling exit is a normal outcome, recorded with a skip
// reason: multi-exit strategies race their exit paths against each other.
type ExitNode struct {
	Cfg ExitConfig
}

func (n *ExitNode) ID() string         { return n.Cfg.ID }
func (n *ExitNode) Kind() Kind         { return KindExit }
func (n *ExitNode) Children() []string { return n.Cfg.Children }

func (n *ExitNode) Execute(ctx *Context) (Result, error) {
	pos, ok := ctx.Ledger.OpenPositionFor(n.Cfg.PositionID)
	if !ok {
		return Result{
			LogicCompleted: true,
			Payload:        diagnostics.Payload{SkipReason: "position_already_closed"},
		}, nil
	}

	price, _, err := ctx.Market.LTP(pos.Symbol)
	if err != nil {
		return Result{}, fmt.Errorf("exit %q: %w", n.Cfg.ID, err)
	}

	qty := n.Cfg.Qty
	if qty.Sign() <= 0 {
		qty = pos.QtyRemaining()
	}

	ord := order.Order{
		Symbol:   pos.Symbol,
		Side:     exitSide(pos.Side),
		Qty:      qty,
		Price:    price,
		PlacedAt: ctx.Tick.Timestamp,
	}
	placed, err := ctx.Placer.Place(ord)
	if err != nil {
		return Result{}, fmt.Errorf("exit %q: place order: %w", n.Cfg.ID, err)
	}
	if placed.Status == order.StatusPending {
		return Result{PendingReason: "awaiting_fill"}, nil
	}
	if placed.Status != order.StatusFilled {
		return Result{}, fmt.Errorf("exit %q: order %s", n.Cfg.ID, placed.Status)
	}

	flow, err := ctx.Flow()
	if err != nil {
		return Result{}, err
	}
	res, err := ctx.Ledger.ClosePosition(n.Cfg.PositionID, qty, placed.FillPrice, ctx.Tick.Timestamp, ctx.ExecutionID, flow)
	if err != nil {
		return Result{}, fmt.Errorf("exit %q: %w", n.Cfg.ID, err)
	}

	return Result{
		LogicCompleted: true,
		Payload: diagnostics.Payload{
			Order:       &ord,
			OrderResult: &placed,
			ExitResult:  &res,
		},
	}, nil
}

// SquareOffConfig configures a square-off node. An empty Symbol matches
// every open position.
type SquareOffConfig struct {
	ID       string
	Children []string
	Symbol   string
}

// SquareOffNode closes all matching open positions in one batch, recording a
// single event with aggregate statistics.
type SquareOffNode struct {
	Cfg SquareOffConfig
}

func (n *SquareOffNode) ID() string         { return n.Cfg.ID }
func (n *SquareOffNode) Kind() Kind         { return KindSquareOff }
func (n *SquareOffNode) Children() []string { return n.Cfg.Children }

func (n *SquareOffNode) Execute(ctx *Context) (Result, error) {
	summary := diagnostics.SquareOffSummary{
		QtyClosed:   decimal.Zero,
		RealizedPnL: decimal.Zero,
	}

	flow, err := ctx.Flow()
	if err != nil {
		return Result{}, err
	}

	for _, pos := range ctx.Ledger.OpenPositions() {
		if n.Cfg.Symbol != "" && pos.Symbol != n.Cfg.Symbol {
			continue
		}
		price, _, err := ctx.Market.LTP(pos.Symbol)
		if err != nil {
			return Result{}, fmt.Errorf("square-off %q: %w", n.Cfg.ID, err)
		}
		qty := pos.QtyRemaining()
		placed, err := ctx.Placer.Place(order.Order{
			Symbol:   pos.Symbol,
			Side:     exitSide(pos.Side),
			Qty:      qty,
			Price:    price,
			PlacedAt: ctx.Tick.Timestamp,
		})
		if err != nil {
			return Result{}, fmt.Errorf("square-off %q: place order: %w", n.Cfg.ID, err)
		}
		res, err := ctx.Ledger.ClosePosition(pos.PositionID, qty, placed.FillPrice, ctx.Tick.Timestamp, ctx.ExecutionID, flow)
		if err != nil {
			return Result{}, fmt.Errorf("square-off %q: %w", n.Cfg.ID, err)
		}
		summary.PositionsClosed++
		summary.QtyClosed = summary.QtyClosed.Add(res.QtyClosed)
		summary.RealizedPnL = summary.RealizedPnL.Add(res.RealizedPnL)
		summary.Exits = append(summary.Exits, res)
	}

	payload := diagnostics.Payload{SquareOff: &summary}
	if summary.PositionsClosed == 0 {
		payload.Note = "square-off found nothing open"
	}
	return Result{LogicCompleted: true, Payload: payload}, nil
}

// entrySide maps a position side to the order side that opens it.
func entrySide(s ledger.Side) order.Side {
	if s == ledger.Short {
		return order.Sell
	}
	return order.Buy
}

// exitSide maps a position side to the order side that closes it.
func exitSide(s ledger.Side) order.Side {
	if s == ledger.Short {
		return order.Buy
	}
	return order.Sell
}
