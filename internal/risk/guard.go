// Package risk applies pre-trade checks in front of the order placer. Orders
// that reduce an open position always pass; only risk-increasing orders are
// validated.
package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"strategy-core/internal/ledger"
	"strategy-core/internal/order"
)

// ErrRejected marks an order stopped by a limit. Callers treat it like any
// placement failure: the run aborts rather than silently skipping the trade.
var ErrRejected = errors.New("order rejected by risk limits")

// Limits tunes per-strategy order validation. Zero values disable a check.
type Limits struct {
	MinOrderQty      decimal.Decimal `json:"min_order_qty"`
	MaxOrderQty      decimal.Decimal `json:"max_order_qty"`
	MaxOpenPositions int             `json:"max_open_positions"`
	// MaxLossPerRun stops new entries once realized losses reach this
	// magnitude.
	MaxLossPerRun decimal.Decimal `json:"max_loss_per_run"`
}

// Enabled reports whether any check is configured.
func (l Limits) Enabled() bool {
	return l.MinOrderQty.Sign() > 0 || l.MaxOrderQty.Sign() > 0 ||
		l.MaxOpenPositions > 0 || l.MaxLossPerRun.Sign() > 0
}

// LedgerView is the read surface the guard needs from the strategy's ledger.
type LedgerView interface {
	OpenPositions() []ledger.Position
	RealizedPnL() decimal.Decimal
}

// Guard wraps an order.Placer with pre-trade validation.
type Guard struct {
	next   order.Placer
	limits Limits
	view   LedgerView
}

// NewGuard validates orders against limits before passing them to next.
func NewGuard(next order.Placer, limits Limits, view LedgerView) *Guard {
	return &Guard{next: next, limits: limits, view: view}
}

var _ order.Placer = (*Guard)(nil)

func (g *Guard) Place(o order.Order) (order.Result, error) {
	if g.reducesPosition(o) {
		return g.next.Place(o)
	}
	if err := g.checkEntry(o); err != nil {
		return order.Result{}, err
	}
	return g.next.Place(o)
}

// reducesPosition reports whether the order closes (part of) an open
// position: same symbol, opposite side.
func (g *Guard) reducesPosition(o order.Order) bool {
	for _, p := range g.view.OpenPositions() {
		if p.Symbol != o.Symbol {
			continue
		}
		if (p.Side == ledger.Long && o.Side == order.Sell) ||
			(p.Side == ledger.Short && o.Side == order.Buy) {
			return true
		}
	}
	return false
}

func (g *Guard) checkEntry(o order.Order) error {
	l := g.limits
	if l.MinOrderQty.Sign() > 0 && o.Qty.LessThan(l.MinOrderQty) {
		return fmt.Errorf("%w: qty %s below minimum %s", ErrRejected, o.Qty, l.MinOrderQty)
	}
	if l.MaxOrderQty.Sign() > 0 && o.Qty.GreaterThan(l.MaxOrderQty) {
		return fmt.Errorf("%w: qty %s exceeds maximum %s", ErrRejected, o.Qty, l.MaxOrderQty)
	}
	if l.MaxOpenPositions > 0 && len(g.view.OpenPositions()) >= l.MaxOpenPositions {
		return fmt.Errorf("%w: %d positions already open (limit %d)",
			ErrRejected, len(g.view.OpenPositions()), l.MaxOpenPositions)
	}
	if l.MaxLossPerRun.Sign() > 0 {
		pnl := g.view.RealizedPnL()
		if pnl.Sign() < 0 && pnl.Neg().GreaterThanOrEqual(l.MaxLossPerRun) {
			return fmt.Errorf("%w: realized loss %s reached limit %s",
				ErrRejected, pnl.Neg(), l.MaxLossPerRun)
		}
	}
	return nil
}
