// Package persistence records completed runs, their trades and their
// execution event history in SQLite, so sessions survive process restarts
// and can be inspected after the fact.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"strategy-core/internal/diagnostics"
	"strategy-core/internal/scheduler"
)

var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    status TEXT NOT NULL,
    ticks INTEGER NOT NULL,
    realized_pnl TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS run_trades (
    run_id TEXT NOT NULL,
    strategy_id TEXT NOT NULL,
    position_id TEXT NOT NULL,
    position_num INTEGER NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    qty TEXT NOT NULL,
    entry_price TEXT NOT NULL,
    exit_price TEXT NOT NULL,
    pnl TEXT NOT NULL,
    entry_time DATETIME NOT NULL,
    exit_time DATETIME NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS run_events (
    execution_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    strategy_id TEXT NOT NULL,
    node_id TEXT NOT NULL,
    parent_execution_id TEXT,
    type TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    payload TEXT,
    FOREIGN KEY(run_id) REFERENCES runs(id)
);

CREATE INDEX IF NOT EXISTS idx_run_trades_run ON run_trades(run_id);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, strategy_id);
`

// RunRecord summarizes one completed (or aborted) session.
type RunRecord struct {
	ID          string          `json:"id"`
	Mode        string          `json:"mode"`
	Status      string          `json:"status"`
	Ticks       int             `json:"ticks"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// TradeRecord is one closed trade as persisted.
type TradeRecord struct {
	RunID       string          `json:"run_id"`
	StrategyID  string          `json:"strategy_id"`
	PositionID  string          `json:"position_id"`
	PositionNum int             `json:"position_num"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Qty         decimal.Decimal `json:"qty"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	PnL         decimal.Decimal `json:"pnl"`
	EntryTime   time.Time       `json:"entry_time"`
	ExitTime    time.Time       `json:"exit_time"`
}

// Store persists runs in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates the store and applies the schema.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply run schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveRun writes the run row and every closed trade from the final snapshots
// in a single transaction. Execution events are streamed separately through
// the BatchWriter while the run is in flight.
func (s *Store) SaveRun(ctx context.Context, run RunRecord, snapshots []scheduler.StrategySnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, mode, status, ticks, realized_pnl, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Mode, run.Status, run.Ticks, run.RealizedPnL.String(), run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for _, snap := range snapshots {
		for _, tr := range snap.Trades {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO run_trades (run_id, strategy_id, position_id, position_num, symbol,
				                        side, qty, entry_price, exit_price, pnl, entry_time, exit_time)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, run.ID, snap.ID, tr.PositionID, tr.PositionNum, tr.Symbol, string(tr.Side),
				tr.Qty.String(), tr.EntryPrice.String(), tr.ExitPrice.String(), tr.PnL.String(),
				tr.EntryTime, tr.ExitTime)
			if err != nil {
				return fmt.Errorf("insert trade for %s/%s: %w", snap.ID, tr.PositionID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

const insertEventQuery = `
	INSERT INTO run_events (execution_id, run_id, strategy_id, node_id,
	                        parent_execution_id, type, timestamp, payload)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

// eventInsertOp builds the write op that persists one execution event.
func eventInsertOp(runID, strategyID string, ev diagnostics.ExecutionEvent) (WriteOp, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return WriteOp{}, fmt.Errorf("marshal payload for %s: %w", ev.ExecutionID, err)
	}
	return WriteOp{
		Query: insertEventQuery,
		Args: []any{ev.ExecutionID, runID, strategyID, ev.NodeID,
			nullable(ev.ParentExecutionID), string(ev.Type), ev.Timestamp, string(payload)},
	}, nil
}

// Run loads one run record.
func (s *Store) Run(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mode, status, ticks, realized_pnl, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrRunNotFound
	}
	return rec, err
}

// Runs lists the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, status, ticks, realized_pnl, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// TradesForRun returns the run's closed trades in entry order.
func (s *Store) TradesForRun(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, strategy_id, position_id, position_num, symbol, side,
		       qty, entry_price, exit_price, pnl, entry_time, exit_time
		FROM run_trades WHERE run_id = ? ORDER BY entry_time ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var (
			tr                         TradeRecord
			qty, entry, exitPrice, pnl string
		)
		if err := rows.Scan(&tr.RunID, &tr.StrategyID, &tr.PositionID, &tr.PositionNum,
			&tr.Symbol, &tr.Side, &qty, &entry, &exitPrice, &pnl, &tr.EntryTime, &tr.ExitTime); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if tr.Qty, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("parse trade qty %q: %w", qty, err)
		}
		if tr.EntryPrice, err = decimal.NewFromString(entry); err != nil {
			return nil, fmt.Errorf("parse entry price %q: %w", entry, err)
		}
		if tr.ExitPrice, err = decimal.NewFromString(exitPrice); err != nil {
			return nil, fmt.Errorf("parse exit price %q: %w", exitPrice, err)
		}
		if tr.PnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("parse pnl %q: %w", pnl, err)
		}
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

// EventsForRun returns the run's execution events in causal (insertion)
// order for one strategy, or for all strategies when strategyID is empty.
func (s *Store) EventsForRun(ctx context.Context, runID, strategyID string) ([]diagnostics.ExecutionEvent, error) {
	query := `
		SELECT execution_id, node_id, COALESCE(parent_execution_id, ''), type, timestamp, payload
		FROM run_events WHERE run_id = ?
	`
	args := []any{runID}
	if strategyID != "" {
		query += ` AND strategy_id = ?`
		args = append(args, strategyID)
	}
	query += ` ORDER BY rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []diagnostics.ExecutionEvent
	for rows.Next() {
		var (
			ev      diagnostics.ExecutionEvent
			typ     string
			payload string
		)
		if err := rows.Scan(&ev.ExecutionID, &ev.NodeID, &ev.ParentExecutionID, &typ, &ev.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = diagnostics.EventType(typ)
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload for %s: %w", ev.ExecutionID, err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		rec RunRecord
		pnl string
	)
	if err := row.Scan(&rec.ID, &rec.Mode, &rec.Status, &rec.Ticks, &pnl, &rec.StartedAt, &rec.FinishedAt); err != nil {
		return RunRecord{}, err
	}
	var err error
	if rec.RealizedPnL, err = decimal.NewFromString(pnl); err != nil {
		return RunRecord{}, fmt.Errorf("parse run pnl %q: %w", pnl, err)
	}
	return rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
