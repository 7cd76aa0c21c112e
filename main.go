package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"strategy-core/internal/api"
	"strategy-core/internal/condition"
	"strategy-core/internal/data"
	"strategy-core/internal/events"
	"strategy-core/internal/market"
	"strategy-core/internal/order"
	"strategy-core/internal/persistence"
	"strategy-core/internal/risk"
	"strategy-core/internal/scheduler"
	"strategy-core/internal/strategy"
	"strategy-core/pkg/config"
	"strategy-core/pkg/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("starting strategy core: mode=%s source=%s port=%s", cfg.Mode, cfg.DataSource, cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Println("shutdown signal received")
		cancel()
	}()

	bus := events.NewBus()

	// Tick source
	var source data.Source
	switch cfg.DataSource {
	case "clickhouse":
		conn, err := data.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			log.Fatalf("clickhouse connect failed: %v", err)
		}
		defer conn.Close()
		source = data.NewTickStore(conn, cfg.TickSymbol, cfg.TickTimeframe, cfg.TickFrom, cfg.TickTo)
	default:
		source = &data.CSVSource{Path: cfg.CSVPath, Symbol: cfg.CSVSymbol, Timeframe: cfg.CSVTimeframe}
	}
	ticks, err := source.Ticks(ctx)
	if err != nil {
		log.Fatalf("tick load failed: %v", err)
	}
	log.Printf("loaded %d ticks", len(ticks))

	// Strategies
	defs, err := strategy.Load(cfg.StrategyConfig)
	if err != nil {
		log.Fatalf("strategy config load failed: %v", err)
	}
	cache := market.NewCache(cfg.CandleHistory)
	deps := strategy.Deps{
		Market:    cache,
		Evaluator: condition.NewComparator(),
		Placer: order.NewSimPlacer(order.SimConfig{
			FeeRate:     decimal.NewFromFloat(cfg.FeeRate),
			SlippageBps: cfg.SlippageBps,
			Seed:        cfg.SimSeed,
		}),
		Risk: risk.Limits{
			MinOrderQty:      decimal.NewFromFloat(cfg.RiskMinOrderQty),
			MaxOrderQty:      decimal.NewFromFloat(cfg.RiskMaxOrderQty),
			MaxOpenPositions: cfg.RiskMaxOpenPositions,
			MaxLossPerRun:    decimal.NewFromFloat(cfg.RiskMaxLossPerRun),
		},
	}
	strategies, err := strategy.BuildAll(defs, deps)
	if err != nil {
		log.Fatalf("strategy build failed: %v", err)
	}
	log.Printf("built %d strategies", len(strategies))

	// Scheduler
	mode := scheduler.ModeBacktest
	if cfg.Mode == "livesim" {
		mode = scheduler.ModeLiveSim
	}
	sched, err := scheduler.New(scheduler.Config{
		Mode:            mode,
		SpeedMultiplier: cfg.SpeedMultiplier,
	}, cache, strategies, nil, bus)
	if err != nil {
		log.Fatalf("scheduler init failed: %v", err)
	}

	// Run persistence
	var (
		store      *persistence.Store
		writer     *persistence.BatchWriter
		stopStream = func() {}
		runID      = "run-" + uuid.NewString()[:8]
	)
	if cfg.PersistRuns {
		database, err := db.New(cfg.DBPath)
		if err != nil {
			log.Fatalf("db init failed: %v", err)
		}
		defer database.Close()

		store, err = persistence.NewStore(database.DB)
		if err != nil {
			log.Fatalf("run store init failed: %v", err)
		}

		writer = persistence.NewBatchWriter(database.DB, cfg.EventBatchSize, 500*time.Millisecond)
		stopStream = streamEvents(bus, writer, runID)
	}

	// API
	server := api.NewServer(bus, sched, store, api.SystemMeta{
		Mode:       cfg.Mode,
		Symbols:    strategySymbols(defs),
		DataSource: cfg.DataSource,
		Version:    version(),
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	// Run the session
	startedAt := time.Now().UTC()
	runErr := sched.Run(ctx, ticks)
	status := "completed"
	switch {
	case errors.Is(runErr, context.Canceled):
		status = "cancelled"
		log.Printf("run cancelled after %d ticks", sched.Processed())
	case runErr != nil:
		status = "aborted"
		log.Printf("run aborted: %v", runErr)
	}

	// Drain the event stream and flush everything before the run record is
	// written, so the API serves a complete event log.
	stopStream()
	if writer != nil {
		if err := writer.Close(); err != nil {
			log.Printf("event writer close failed: %v", err)
		}
	}

	if store != nil {
		snapshots := sched.Snapshots()
		total := decimal.Zero
		for _, snap := range snapshots {
			total = total.Add(snap.RealizedPnL)
		}
		record := persistence.RunRecord{
			ID:          runID,
			Mode:        cfg.Mode,
			Status:      status,
			Ticks:       sched.Processed(),
			RealizedPnL: total,
			StartedAt:   startedAt,
			FinishedAt:  time.Now().UTC(),
		}
		if err := store.SaveRun(context.Background(), record, snapshots); err != nil {
			log.Printf("run save failed: %v", err)
		} else {
			log.Printf("run %s saved: status=%s ticks=%d pnl=%s", runID, status, record.Ticks, total)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		os.Exit(1)
	}

	// Keep serving results until interrupted.
	<-ctx.Done()
	log.Println("shutting down")
}

// streamEvents persists execution events as they are published, batched. The
// returned stop function unsubscribes and waits until the subscriber drains
// everything already delivered, so a final flush sees the full stream.
func streamEvents(bus *events.Bus, writer *persistence.BatchWriter, runID string) (stop func()) {
	stream, unsub := bus.Subscribe(events.TopicTickSummary, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range stream {
			summary, ok := msg.(scheduler.TickSummary)
			if !ok {
				continue
			}
			for strategyID, evs := range summary.NewEvents {
				for _, ev := range evs {
					if err := writer.WriteEvent(runID, strategyID, ev); err != nil {
						log.Printf("event persist failed: %v", err)
					}
				}
			}
		}
	}()
	return func() {
		unsub()
		<-done
	}
}

func strategySymbols(defs []strategy.Definition) []string {
	seen := make(map[string]struct{}, len(defs))
	var symbols []string
	for _, def := range defs {
		if _, dup := seen[def.Symbol]; dup {
			continue
		}
		seen[def.Symbol] = struct{}{}
		symbols = append(symbols, def.Symbol)
	}
	return symbols
}

func version() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "v1.0-dev"
}
