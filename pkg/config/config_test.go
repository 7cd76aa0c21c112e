package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "backtest" || cfg.DataSource != "csv" || cfg.Port != "8080" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.FeeRate != 0.0004 || cfg.CandleHistory != 500 {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.CSVTimeframe != "5m" || cfg.TickTimeframe != "5m" {
		t.Fatalf("timeframe defaults: %+v", cfg)
	}
}

func TestLoadLiveSim(t *testing.T) {
	t.Setenv("MODE", "livesim")
	t.Setenv("SPEED_MULTIPLIER", "500")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "livesim" || cfg.SpeedMultiplier != 500 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoadRejectsBadMode(t *testing.T) {
	t.Setenv("MODE", "turbo")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "MODE") {
		t.Fatalf("err=%v, want MODE rejection", err)
	}
}

func TestLoadRejectsBadDataSource(t *testing.T) {
	t.Setenv("DATA_SOURCE", "carrier-pigeon")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DATA_SOURCE") {
		t.Fatalf("err=%v, want DATA_SOURCE rejection", err)
	}
}

func TestLoadClickHouseNeedsRange(t *testing.T) {
	t.Setenv("DATA_SOURCE", "clickhouse")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TICK_FROM") {
		t.Fatalf("err=%v, want range requirement", err)
	}

	t.Setenv("TICK_FROM", "2025-03-10T09:15:00Z")
	t.Setenv("TICK_TO", "2025-03-10T15:30:00Z")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TickFrom.IsZero() || !cfg.TickTo.After(cfg.TickFrom) {
		t.Fatalf("range: %+v", cfg)
	}
}

func TestLoadRejectsBadTimestamp(t *testing.T) {
	t.Setenv("TICK_FROM", "yesterday")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TICK_FROM") {
		t.Fatalf("err=%v, want timestamp rejection", err)
	}
}
