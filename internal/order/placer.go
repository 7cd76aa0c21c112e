// Package order defines the order-placement contract consumed by action
// nodes, plus the simulated placer used in backtests. Fills are synchronous
// and assumed at the requested price, optionally nudged by slippage.
package order

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Status of a placement attempt.
type Status string

const (
	StatusFilled   Status = "FILLED"
	StatusPending  Status = "PENDING"
	StatusRejected Status = "REJECTED"
)

// Order is a request to trade.
type Order struct {
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Qty      decimal.Decimal `json:"qty"`
	Price    decimal.Decimal `json:"price"`
	PlacedAt time.Time       `json:"placed_at"`
}

// Result is the outcome of a placement.
type Result struct {
	Status    Status          `json:"status"`
	FillPrice decimal.Decimal `json:"fill_price"`
	Fee       decimal.Decimal `json:"fee"`
}

// Placer executes orders. Backtest implementations fill immediately;
// live implementations may return StatusPending and complete later.
type Placer interface {
	Place(o Order) (Result, error)
}

// SimConfig tunes the simulated placer.
type SimConfig struct {
	FeeRate     decimal.Decimal // e.g. 0.0004 = 4 bps of notional
	SlippageBps float64         // max adverse slippage applied on fills
	Seed        int64           // 0 = time-seeded
}

// SimPlacer fills every order at the requested price, applying optional
// slippage and fees so backtest P&L stays close to production.
type SimPlacer struct {
	cfg SimConfig
	rng *rand.Rand
}

// NewSimPlacer creates a simulated placer.
func NewSimPlacer(cfg SimConfig) *SimPlacer {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimPlacer{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

var _ Placer = (*SimPlacer)(nil)

// Place fills the order synchronously.
func (s *SimPlacer) Place(o Order) (Result, error) {
	if o.Qty.Sign() <= 0 {
		return Result{Status: StatusRejected}, fmt.Errorf("order qty must be positive, got %s", o.Qty)
	}
	if o.Price.Sign() <= 0 {
		return Result{Status: StatusRejected}, fmt.Errorf("order price must be positive, got %s", o.Price)
	}

	price := o.Price
	if s.cfg.SlippageBps > 0 {
		noise := decimal.NewFromFloat(s.rng.Float64() * s.cfg.SlippageBps / 10000.0)
		adj := price.Mul(noise)
		if strings.EqualFold(string(o.Side), string(Buy)) {
			price = price.Add(adj)
		} else {
			price = price.Sub(adj)
		}
	}

	fee := decimal.Zero
	if s.cfg.FeeRate.Sign() > 0 {
		fee = price.Mul(o.Qty).Mul(s.cfg.FeeRate)
	}

	return Result{Status: StatusFilled, FillPrice: price, Fee: fee}, nil
}
