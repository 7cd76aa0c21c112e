package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"strategy-core/internal/condition"
	"strategy-core/internal/diagnostics"
	"strategy-core/internal/events"
	"strategy-core/internal/graph"
	"strategy-core/internal/ledger"
	"strategy-core/internal/market"
	"strategy-core/internal/order"
	"strategy-core/internal/persistence"
	"strategy-core/internal/scheduler"
	"strategy-core/pkg/db"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// completedServer runs a tiny session to completion and serves its state.
func completedServer(t *testing.T) *Server {
	t.Helper()

	cache := market.NewCache(10)
	nodes := []graph.Node{
		&graph.StartNode{NodeID: "start", Kids: []string{"entry_sig"}, Strategy: "s1"},
		&graph.EntrySignalNode{Cfg: graph.SignalConfig{
			ID: "entry_sig", Children: []string{"entry"},
			PositionID: "slot1", Conditions: []string{"ltp > 0"},
		}},
		&graph.EntryNode{Cfg: graph.EntryConfig{
			ID: "entry", PositionID: "slot1",
			Symbol: "NIFTY", Side: ledger.Long, Qty: decimal.NewFromInt(10),
		}},
	}
	g, err := graph.New(nodes)
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	strat := &scheduler.Strategy{
		ID:    "s1",
		Graph: g,
		Ctx: &graph.Context{
			StrategyID: "s1",
			Symbol:     "NIFTY",
			Timeframe:  "1m",
			Market:     cache,
			Ledger:     ledger.New(),
			Recorder:   diagnostics.NewRecorder(),
			Evaluator:  condition.NewComparator(),
			Placer:     order.NewSimPlacer(order.SimConfig{Seed: 1}),
		},
	}

	sched, err := scheduler.New(scheduler.Config{Mode: scheduler.ModeBacktest}, cache, []*scheduler.Strategy{strat}, nil, nil)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}

	t0 := time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)
	ticks := make([]market.Tick, 5)
	for i := range ticks {
		ticks[i] = market.Tick{Symbol: "NIFTY", Price: decimal.NewFromInt(100), Timestamp: t0.Add(time.Duration(i) * time.Second)}
	}
	if err := sched.Run(context.Background(), ticks); err != nil {
		t.Fatalf("Run: %v", err)
	}

	database, err := db.New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	store, err := persistence.NewStore(database.DB)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	run := persistence.RunRecord{
		ID: "run-1", Mode: "backtest", Status: "completed", Ticks: 5,
		RealizedPnL: decimal.Zero, StartedAt: t0, FinishedAt: t0.Add(5 * time.Second),
	}
	if err := store.SaveRun(context.Background(), run, sched.Snapshots()); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	return NewServer(events.NewBus(), sched, store, SystemMeta{
		Mode: "backtest", Symbols: []string{"NIFTY"}, DataSource: "csv", Version: "test",
	})
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Router.ServeHTTP(w, req)

	var body map[string]any
	if w.Code == http.StatusOK && len(w.Body.Bytes()) > 0 && w.Body.Bytes()[0] == '{' {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return w, body
}

func TestHealth(t *testing.T) {
	s := completedServer(t)
	w, body := get(t, s, "/health")
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: code=%d body=%s", w.Code, w.Body.String())
	}
}

func TestStatus(t *testing.T) {
	s := completedServer(t)
	w, body := get(t, s, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status code=%d", w.Code)
	}
	if body["mode"] != "backtest" || body["ticks"] != float64(5) {
		t.Fatalf("status body=%v", body)
	}
}

func TestStrategyEndpoints(t *testing.T) {
	s := completedServer(t)

	w, _ := get(t, s, "/api/strategies/s1")
	if w.Code != http.StatusOK {
		t.Fatalf("strategy code=%d", w.Code)
	}

	var snap scheduler.StrategySnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.ID != "s1" || len(snap.Events) != 3 || len(snap.OpenPositions) != 1 {
		t.Fatalf("snapshot=%+v", snap)
	}

	w, body := get(t, s, "/api/strategies/s1/positions")
	if w.Code != http.StatusOK {
		t.Fatalf("positions code=%d", w.Code)
	}
	if body["open_positions"] == nil {
		t.Fatalf("positions body=%v", body)
	}

	w, _ = get(t, s, "/api/strategies/ghost")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown strategy code=%d, want 404", w.Code)
	}
}

func TestRunEndpoints(t *testing.T) {
	s := completedServer(t)

	w, body := get(t, s, "/api/runs/run-1")
	if w.Code != http.StatusOK || body["id"] != "run-1" {
		t.Fatalf("run: code=%d body=%v", w.Code, body)
	}

	w, _ = get(t, s, "/api/runs/ghost")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown run code=%d, want 404", w.Code)
	}

	w, _ = get(t, s, "/api/runs")
	if w.Code != http.StatusOK {
		t.Fatalf("runs code=%d", w.Code)
	}
}

func TestRunsWithoutStore(t *testing.T) {
	s := completedServer(t)
	s.Store = nil
	w, _ := get(t, s, "/api/runs")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("code=%d, want 503", w.Code)
	}
}
