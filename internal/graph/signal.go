package graph

import (
	"fmt"

	"strategy-core/internal/condition"
	"strategy-core/internal/diagnostics"
)

// SignalConfig configures an entry or exit signal node. PositionID is the
// slot serviced by the downstream action node; it selects between primary
// and alternate condition sets.
type SignalConfig struct {
	ID                  string
	Children            []string
	PositionID          string
	Conditions          []string
	AlternateConditions []string
}

// EntrySignalNode emits when its condition set holds. It switches to the
// alternate set once the slot has ever been occupied (a re-entry context).
type EntrySignalNode struct {
	Cfg SignalConfig
}

func (n *EntrySignalNode) ID() string         { return n.Cfg.ID }
func (n *EntrySignalNode) Kind() Kind         { return KindEntrySignal }
func (n *EntrySignalNode) Children() []string { return n.Cfg.Children }

func (n *EntrySignalNode) Execute(ctx *Context) (Result, error) {
	alternate := ctx.Ledger.LatestPositionNum(n.Cfg.PositionID) > 0
	return evaluateSignal(ctx, n.Cfg, alternate)
}

// ExitSignalNode emits when its condition set holds. The alternate set kicks
// in only while servicing a re-entry (second or later occupant).
type ExitSignalNode struct {
	Cfg SignalConfig
}

func (n *ExitSignalNode) ID() string         { return n.Cfg.ID }
func (n *ExitSignalNode) Kind() Kind         { return KindExitSignal }
func (n *ExitSignalNode) Children() []string { return n.Cfg.Children }

func (n *ExitSignalNode) Execute(ctx *Context) (Result, error) {
	alternate := ctx.Ledger.LatestPositionNum(n.Cfg.PositionID) > 1
	return evaluateSignal(ctx, n.Cfg, alternate)
}

// evaluateSignal runs the chosen condition set, short-circuiting on the
// first false. A missing alternate set falls back to the primary one;
// absence of configuration is not an error.
func evaluateSignal(ctx *Context, cfg SignalConfig, alternate bool) (Result, error) {
	conds := cfg.Conditions
	mode := "primary"
	if alternate && len(cfg.AlternateConditions) > 0 {
		conds = cfg.AlternateConditions
		mode = "alternate"
	}
	if len(conds) == 0 {
		return Result{}, fmt.Errorf("signal %q: no conditions configured", cfg.ID)
	}

	emitted, traces, err := evaluateAll(ctx, conds)
	if err != nil {
		return Result{}, err
	}
	if !emitted {
		return Result{}, nil
	}
	return Result{
		LogicCompleted: true,
		Payload: diagnostics.Payload{
			Conditions: traces,
			Note:       "signal emitted (" + mode + " conditions)",
		},
	}, nil
}

// evaluateAll evaluates expressions in order, stopping at the first false.
func evaluateAll(ctx *Context, exprs []string) (bool, []condition.Trace, error) {
	traces := make([]condition.Trace, 0, len(exprs))
	for _, expr := range exprs {
		ok, tr, err := ctx.Evaluator.Evaluate(expr, ctx.CondContext())
		if err != nil {
			return false, nil, err
		}
		traces = append(traces, tr)
		if !ok {
			return false, traces, nil
		}
	}
	return true, traces, nil
}
