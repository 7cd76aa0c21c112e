package graph

import (
	"strategy-core/internal/condition"
	"strategy-core/internal/diagnostics"
	"strategy-core/internal/ledger"
	"strategy-core/internal/market"
	"strategy-core/internal/order"
)

// Context is the per-strategy execution context handed to every node. Ledger
// and Recorder are exclusively owned by this context; Market may be shared
// read-only across strategies.
type Context struct {
	StrategyID string
	Symbol     string
	Timeframe  string

	Tick      market.Tick
	Market    market.DataCache
	Ledger    *ledger.Ledger
	Recorder  *diagnostics.Recorder
	Evaluator condition.Evaluator
	Placer    order.Placer

	// Set by the graph before each node runs.
	ExecutionID       string
	ParentExecutionID string

	graph *Graph
}

// Graph exposes the owning graph for implicit structural checks (e.g. "is
// the entry node still mid-processing").
func (c *Context) Graph() *Graph { return c.graph }

// CondContext builds the evaluator context for the current tick.
func (c *Context) CondContext() condition.Context {
	return condition.Context{
		Symbol:    c.Symbol,
		Timeframe: c.Timeframe,
		Tick:      c.Tick,
		Market:    c.Market,
	}
}

// Flow returns the causal chain of the node currently executing: the parent
// chain back to the root plus the node's own pre-allocated execution id,
// root first.
func (c *Context) Flow() ([]string, error) {
	if c.ParentExecutionID == "" {
		return []string{c.ExecutionID}, nil
	}
	chain, err := c.Recorder.FlowIDs(c.ParentExecutionID)
	if err != nil {
		return nil, err
	}
	return append(chain, c.ExecutionID), nil
}
