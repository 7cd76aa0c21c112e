// Package scheduler drives strategy graphs tick by tick: strict timestamp
// order, sequential strategies within a tick, optional wall-clock pacing in
// live-simulation mode, and cooperative cancellation between ticks.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"strategy-core/internal/diagnostics"
	"strategy-core/internal/events"
	"strategy-core/internal/graph"
	"strategy-core/internal/ledger"
	"strategy-core/internal/market"
)

// Mode selects how the scheduler paces itself.
type Mode int

const (
	// ModeBacktest replays ticks as fast as possible.
	ModeBacktest Mode = iota
	// ModeLiveSim paces ticks against wall-clock time.
	ModeLiveSim
)

// Config tunes a scheduler run.
type Config struct {
	Mode Mode
	// SpeedMultiplier is ticks per wall-clock second in live-sim mode.
	SpeedMultiplier float64
}

// Strategy bundles one graph with its exclusively owned execution context.
type Strategy struct {
	ID    string
	Graph *graph.Graph
	Ctx   *graph.Context
}

// PositionView decorates an open position with its mark-to-market P&L.
type PositionView struct {
	ledger.Position
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// TickSummary is the per-tick digest published on the bus and kept as the
// boundary snapshot for readers.
type TickSummary struct {
	TickIndex   int                 `json:"tick_index"`
	Timestamp   time.Time           `json:"timestamp"`
	Symbol      string              `json:"symbol"`
	Price       decimal.Decimal     `json:"price"`
	ActiveNodes map[string][]string `json:"active_nodes"`
	// NewEvents holds the events each strategy recorded on this tick.
	NewEvents     map[string][]diagnostics.ExecutionEvent `json:"new_events,omitempty"`
	OpenPositions []PositionView                          `json:"open_positions,omitempty"`
	RealizedPnL   decimal.Decimal                         `json:"realized_pnl"`
}

// StrategySnapshot is the boundary-consistent view of one strategy exposed
// to the transport layer.
type StrategySnapshot struct {
	ID            string                           `json:"id"`
	Positions     []ledger.Position                `json:"positions"`
	OpenPositions []PositionView                   `json:"open_positions"`
	Trades        []ledger.Trade                   `json:"trades"`
	Events        []diagnostics.ExecutionEvent     `json:"events"`
	CurrentState  map[string]diagnostics.NodeState `json:"current_state"`
	RealizedPnL   decimal.Decimal                  `json:"realized_pnl"`
}

// Scheduler owns the tick loop. Ledger and diagnostics stay exclusive to
// their strategy; only copied snapshots cross the boundary, so readers never
// race the tick in progress.
type Scheduler struct {
	cfg        Config
	cache      *market.Cache
	strategies []*Strategy
	clock      Clock
	bus        *events.Bus

	mu        sync.RWMutex
	snapshots map[string]*StrategySnapshot
	lastTick  TickSummary
	processed int
}

// New creates a scheduler. A nil clock means real time; a nil bus disables
// publishing.
func New(cfg Config, cache *market.Cache, strategies []*Strategy, clock Clock, bus *events.Bus) (*Scheduler, error) {
	if cfg.Mode == ModeLiveSim && cfg.SpeedMultiplier <= 0 {
		return nil, fmt.Errorf("scheduler: live-sim mode needs a positive speed multiplier")
	}
	if len(strategies) == 0 {
		return nil, fmt.Errorf("scheduler: no strategies")
	}
	if clock == nil {
		clock = RealClock{}
	}
	snaps := make(map[string]*StrategySnapshot, len(strategies))
	for _, s := range strategies {
		if _, dup := snaps[s.ID]; dup {
			return nil, fmt.Errorf("scheduler: duplicate strategy id %q", s.ID)
		}
		snaps[s.ID] = &StrategySnapshot{ID: s.ID, RealizedPnL: decimal.Zero}
	}
	return &Scheduler{
		cfg:        cfg,
		cache:      cache,
		strategies: strategies,
		clock:      clock,
		bus:        bus,
		snapshots:  snaps,
	}, nil
}

// Processed returns how many ticks have fully completed.
func (s *Scheduler) Processed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processed
}

// LastTick returns the most recent tick summary.
func (s *Scheduler) LastTick() TickSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTick
}

// Snapshot returns the boundary snapshot for one strategy.
func (s *Scheduler) Snapshot(id string) (StrategySnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return StrategySnapshot{}, false
	}
	return *snap, true
}

// Snapshots returns boundary snapshots for every strategy.
func (s *Scheduler) Snapshots() []StrategySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StrategySnapshot, 0, len(s.snapshots))
	for _, strat := range s.strategies {
		out = append(out, *s.snapshots[strat.ID])
	}
	return out
}

// Run replays ticks in order until they are exhausted, the context is
// cancelled at a tick boundary, or a strategy fails. A tick is never left
// half-applied: on error the run aborts with everything up to the previous
// tick intact and consistent.
func (s *Scheduler) Run(ctx context.Context, ticks []market.Tick) error {
	var pace time.Duration
	if s.cfg.Mode == ModeLiveSim {
		pace = time.Duration(float64(time.Second) / s.cfg.SpeedMultiplier)
	}

	start := s.clock.Now()
	var prev time.Time

	for i, tick := range ticks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !prev.IsZero() && tick.Timestamp.Before(prev) {
			return s.abort(fmt.Errorf("scheduler: tick %d at %s is earlier than previous tick %s",
				i, tick.Timestamp, prev))
		}
		prev = tick.Timestamp

		if pace > 0 {
			if err := s.clock.Sleep(ctx, pace); err != nil {
				return err
			}
		}

		s.cache.Apply(tick)

		marks := make(map[string]int, len(s.strategies))
		for _, strat := range s.strategies {
			marks[strat.ID] = strat.Ctx.Recorder.Len()
			strat.Ctx.Tick = tick
			if err := strat.Graph.Step(strat.Ctx); err != nil {
				return s.abort(fmt.Errorf("strategy %q: %w", strat.ID, err))
			}
		}

		s.publishTick(i, tick, marks)
	}

	if err := s.verifyHistory(); err != nil {
		return s.abort(err)
	}

	log.Printf("scheduler: run complete, %d ticks in %s", len(ticks), s.clock.Now().Sub(start))
	if s.bus != nil {
		s.bus.Publish(events.TopicRunCompleted, s.Snapshots())
	}
	return nil
}

// publishTick refreshes boundary snapshots and emits the tick summary.
func (s *Scheduler) publishTick(index int, tick market.Tick, marks map[string]int) {
	summary := TickSummary{
		TickIndex:   index,
		Timestamp:   tick.Timestamp,
		Symbol:      tick.Symbol,
		Price:       tick.Price,
		ActiveNodes: make(map[string][]string, len(s.strategies)),
		NewEvents:   make(map[string][]diagnostics.ExecutionEvent, len(s.strategies)),
		RealizedPnL: decimal.Zero,
	}

	s.mu.Lock()
	for _, strat := range s.strategies {
		snap := s.snapshots[strat.ID]
		led := strat.Ctx.Ledger
		rec := strat.Ctx.Recorder

		newEvents := rec.EventsFrom(marks[strat.ID])
		snap.Events = append(snap.Events, newEvents...)
		snap.Positions = led.Positions()
		snap.Trades = led.Trades()
		snap.CurrentState = rec.CurrentState()
		snap.RealizedPnL = led.RealizedPnL()
		snap.OpenPositions = snap.OpenPositions[:0]
		for _, p := range led.OpenPositions() {
			view := PositionView{Position: p, UnrealizedPnL: decimal.Zero}
			if ltp, _, err := s.cache.LTP(p.Symbol); err == nil {
				view.UnrealizedPnL = led.UnrealizedPnL(p.PositionID, ltp)
			}
			snap.OpenPositions = append(snap.OpenPositions, view)
		}

		summary.ActiveNodes[strat.ID] = strat.Graph.ActiveNodeIDs()
		if len(newEvents) > 0 {
			summary.NewEvents[strat.ID] = newEvents
		}
		summary.OpenPositions = append(summary.OpenPositions, snap.OpenPositions...)
		summary.RealizedPnL = summary.RealizedPnL.Add(snap.RealizedPnL)
	}
	s.lastTick = summary
	s.processed++
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(events.TopicTickSummary, summary)
	}
}

// verifyHistory replays each strategy's event log and checks it reproduces
// the live ledger, guarding the event-sourcing contract end to end.
func (s *Scheduler) verifyHistory() error {
	for _, strat := range s.strategies {
		replayed, err := diagnostics.ReplayPositions(strat.Ctx.Recorder.Events())
		if err != nil {
			return fmt.Errorf("strategy %q: replay: %w", strat.ID, err)
		}
		live := strat.Ctx.Ledger.Positions()
		rebuilt := replayed.Positions()
		if len(live) != len(rebuilt) {
			return fmt.Errorf("strategy %q: event history diverged: %d live positions, %d replayed",
				strat.ID, len(live), len(rebuilt))
		}
		if !replayed.RealizedPnL().Equal(strat.Ctx.Ledger.RealizedPnL()) {
			return fmt.Errorf("strategy %q: event history diverged: replayed pnl %s, live pnl %s",
				strat.ID, replayed.RealizedPnL(), strat.Ctx.Ledger.RealizedPnL())
		}
	}
	return nil
}

func (s *Scheduler) abort(err error) error {
	log.Printf("scheduler: run aborted: %v", err)
	if s.bus != nil {
		s.bus.Publish(events.TopicRunAborted, err.Error())
	}
	return err
}
