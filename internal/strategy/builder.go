package strategy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"strategy-core/internal/condition"
	"strategy-core/internal/diagnostics"
	"strategy-core/internal/graph"
	"strategy-core/internal/ledger"
	"strategy-core/internal/market"
	"strategy-core/internal/order"
	"strategy-core/internal/risk"
	"strategy-core/internal/scheduler"
)

// Deps are the shared collaborators injected into every built strategy. The
// market cache may be shared; ledger and recorder are created fresh per
// strategy so nothing mutable crosses strategy boundaries.
type Deps struct {
	Market    market.DataCache
	Evaluator condition.Evaluator
	Placer    order.Placer
	// Risk, when any limit is set, wraps the placer with pre-trade checks
	// against the strategy's own ledger.
	Risk risk.Limits
}

// Build assembles one runnable strategy from its definition.
func Build(def Definition, deps Deps) (*scheduler.Strategy, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("strategy with empty id")
	}
	if def.Symbol == "" {
		return nil, fmt.Errorf("strategy %q: symbol is required", def.ID)
	}
	if def.Timeframe == "" {
		def.Timeframe = "1m"
	}

	nodes := make([]graph.Node, 0, len(def.Nodes))
	for _, nc := range def.Nodes {
		node, err := buildNode(def, nc)
		if err != nil {
			return nil, fmt.Errorf("strategy %q: %w", def.ID, err)
		}
		nodes = append(nodes, node)
	}

	g, err := graph.New(nodes)
	if err != nil {
		return nil, fmt.Errorf("strategy %q: %w", def.ID, err)
	}

	led := ledger.New()
	placer := deps.Placer
	if deps.Risk.Enabled() {
		placer = risk.NewGuard(deps.Placer, deps.Risk, led)
	}

	return &scheduler.Strategy{
		ID:    def.ID,
		Graph: g,
		Ctx: &graph.Context{
			StrategyID: def.ID,
			Symbol:     def.Symbol,
			Timeframe:  def.Timeframe,
			Market:     deps.Market,
			Ledger:     led,
			Recorder:   diagnostics.NewRecorder(),
			Evaluator:  deps.Evaluator,
			Placer:     placer,
		},
	}, nil
}

// BuildAll assembles every definition, failing on the first invalid one.
func BuildAll(defs []Definition, deps Deps) ([]*scheduler.Strategy, error) {
	out := make([]*scheduler.Strategy, 0, len(defs))
	for _, def := range defs {
		s, err := Build(def, deps)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func buildNode(def Definition, nc NodeConfig) (graph.Node, error) {
	switch strings.ToLower(nc.Kind) {
	case "start":
		return &graph.StartNode{NodeID: nc.ID, Kids: nc.Children, Strategy: def.ID}, nil

	case "entry_signal":
		return &graph.EntrySignalNode{Cfg: signalConfig(nc)}, nil

	case "exit_signal":
		return &graph.ExitSignalNode{Cfg: signalConfig(nc)}, nil

	case "entry":
		qty, err := parseQty(nc)
		if err != nil {
			return nil, err
		}
		side, err := parseSide(nc.Side)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nc.ID, err)
		}
		symbol := nc.Symbol
		if symbol == "" {
			symbol = def.Symbol
		}
		if nc.PositionID == "" {
			return nil, fmt.Errorf("node %q: entry needs a position_id", nc.ID)
		}
		return &graph.EntryNode{Cfg: graph.EntryConfig{
			ID: nc.ID, Children: nc.Children,
			PositionID: nc.PositionID, Symbol: symbol,
			Side: side, Qty: qty, MaxEntries: nc.MaxEntries,
		}}, nil

	case "exit":
		if nc.PositionID == "" {
			return nil, fmt.Errorf("node %q: exit needs a position_id", nc.ID)
		}
		qty := decimal.Zero // close everything remaining
		if nc.Qty != "" {
			var err error
			if qty, err = parseQty(nc); err != nil {
				return nil, err
			}
		}
		return &graph.ExitNode{Cfg: graph.ExitConfig{
			ID: nc.ID, Children: nc.Children,
			PositionID: nc.PositionID, Qty: qty,
		}}, nil

	case "re_entry_signal":
		if nc.PositionID == "" {
			return nil, fmt.Errorf("node %q: re-entry signal needs a position_id", nc.ID)
		}
		return &graph.ReEntrySignalNode{Cfg: graph.ReEntryConfig{
			ID: nc.ID, Children: nc.Children,
			PositionID: nc.PositionID, EntryNodeID: nc.EntryNode,
			MaxEntries: nc.MaxEntries, Conditions: nc.Conditions,
		}}, nil

	case "square_off":
		return &graph.SquareOffNode{Cfg: graph.SquareOffConfig{
			ID: nc.ID, Children: nc.Children, Symbol: nc.Symbol,
		}}, nil
	}
	return nil, fmt.Errorf("node %q: unknown kind %q", nc.ID, nc.Kind)
}

func signalConfig(nc NodeConfig) graph.SignalConfig {
	return graph.SignalConfig{
		ID: nc.ID, Children: nc.Children,
		PositionID:          nc.PositionID,
		Conditions:          nc.Conditions,
		AlternateConditions: nc.AlternateConditions,
	}
}

func parseQty(nc NodeConfig) (decimal.Decimal, error) {
	if nc.Qty == "" {
		return decimal.Decimal{}, fmt.Errorf("node %q: qty is required", nc.ID)
	}
	qty, err := decimal.NewFromString(nc.Qty)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("node %q: bad qty %q: %w", nc.ID, nc.Qty, err)
	}
	if qty.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("node %q: qty must be positive, got %s", nc.ID, qty)
	}
	return qty, nil
}

func parseSide(s string) (ledger.Side, error) {
	switch strings.ToUpper(s) {
	case "LONG", "BUY":
		return ledger.Long, nil
	case "SHORT", "SELL":
		return ledger.Short, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}
