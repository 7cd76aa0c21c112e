package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the strategy core.
type Config struct {
	Port string

	// Execution mode: "backtest" or "livesim".
	Mode string
	// SpeedMultiplier is ticks per wall-clock second in livesim mode.
	SpeedMultiplier float64

	// Strategy definitions
	StrategyConfig string

	// Tick source: "csv" or "clickhouse".
	DataSource    string
	CSVPath       string
	CSVSymbol     string
	CSVTimeframe  string
	ClickHouseDSN string
	TickSymbol    string
	TickTimeframe string
	TickFrom      time.Time
	TickTo        time.Time

	// Simulated order placement
	FeeRate     float64 // decimal (e.g. 0.0004 = 4 bps)
	SlippageBps float64 // slippage applied on fills (bps)
	SimSeed     int64

	// Candle history depth kept per symbol/timeframe
	CandleHistory int

	// Pre-trade risk limits; zero disables a check
	RiskMinOrderQty      float64
	RiskMaxOrderQty      float64
	RiskMaxOpenPositions int
	RiskMaxLossPerRun    float64

	// Run persistence
	DBPath         string
	PersistRuns    bool
	EventBatchSize int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Mode:            strings.ToLower(getEnv("MODE", "backtest")),
		SpeedMultiplier: getEnvFloat("SPEED_MULTIPLIER", 1),
		StrategyConfig:  getEnv("STRATEGY_CONFIG", "./config/strategies.yaml"),
		DataSource:      strings.ToLower(getEnv("DATA_SOURCE", "csv")),
		CSVPath:         getEnv("CSV_PATH", "./data/ticks.csv"),
		CSVSymbol:       os.Getenv("CSV_SYMBOL"),
		CSVTimeframe:    getEnv("CSV_TIMEFRAME", "5m"),
		ClickHouseDSN:   getEnv("CLICKHOUSE_DSN", "clickhouse://default@localhost:9000/market"),
		TickSymbol:      getEnv("TICK_SYMBOL", "NIFTY"),
		TickTimeframe:   getEnv("TICK_TIMEFRAME", "5m"),
		FeeRate:         getEnvFloat("FEE_RATE", 0.0004),
		SlippageBps:     getEnvFloat("SLIPPAGE_BPS", 0),
		SimSeed:         int64(getEnvInt("SIM_SEED", 0)),
		CandleHistory:   getEnvInt("CANDLE_HISTORY", 500),
		RiskMinOrderQty:      getEnvFloat("RISK_MIN_ORDER_QTY", 0),
		RiskMaxOrderQty:      getEnvFloat("RISK_MAX_ORDER_QTY", 0),
		RiskMaxOpenPositions: getEnvInt("RISK_MAX_OPEN_POSITIONS", 0),
		RiskMaxLossPerRun:    getEnvFloat("RISK_MAX_LOSS_PER_RUN", 0),
		DBPath:          getEnv("DB_PATH", "./data/runs.db"),
		PersistRuns:     getEnv("PERSIST_RUNS", "true") == "true",
		EventBatchSize:  getEnvInt("EVENT_BATCH_SIZE", 50),
	}

	if cfg.Mode != "backtest" && cfg.Mode != "livesim" {
		return nil, fmt.Errorf("MODE must be backtest or livesim, got %q", cfg.Mode)
	}
	if cfg.DataSource != "csv" && cfg.DataSource != "clickhouse" {
		return nil, fmt.Errorf("DATA_SOURCE must be csv or clickhouse, got %q", cfg.DataSource)
	}
	if cfg.Mode == "livesim" && cfg.SpeedMultiplier <= 0 {
		return nil, fmt.Errorf("SPEED_MULTIPLIER must be positive in livesim mode")
	}

	var err error
	if cfg.TickFrom, err = getEnvTime("TICK_FROM"); err != nil {
		return nil, err
	}
	if cfg.TickTo, err = getEnvTime("TICK_TO"); err != nil {
		return nil, err
	}
	if cfg.DataSource == "clickhouse" && (cfg.TickFrom.IsZero() || cfg.TickTo.IsZero()) {
		return nil, fmt.Errorf("TICK_FROM and TICK_TO are required with DATA_SOURCE=clickhouse")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvTime(key string) (time.Time, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: bad timestamp %q (want RFC3339)", key, v)
	}
	return ts, nil
}
