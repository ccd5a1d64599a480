// Package store indexes finished runs in a local sqlite database so
// past results can be listed and re-rendered without re-running them.
// Money columns are TEXT holding exact decimal strings; times are
// fixed-width UTC TEXT so date columns sort chronologically.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/quantbed/quantbed/internal/backtest"
	"github.com/quantbed/quantbed/internal/core"
	"github.com/quantbed/quantbed/internal/portfolio"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id               TEXT PRIMARY KEY,
    status           TEXT NOT NULL,
    strategies       TEXT NOT NULL DEFAULT '[]',
    symbols          TEXT NOT NULL DEFAULT '[]',
    start_date       TEXT NOT NULL DEFAULT '',
    end_date         TEXT NOT NULL DEFAULT '',
    initial_capital  TEXT NOT NULL DEFAULT '0',
    final_capital    TEXT NOT NULL DEFAULT '0',
    total_return     REAL NOT NULL DEFAULT 0,
    max_drawdown     REAL NOT NULL DEFAULT 0,
    sharpe_ratio     REAL NOT NULL DEFAULT 0,
    total_trades     INTEGER NOT NULL DEFAULT 0,
    stopped_early    INTEGER NOT NULL DEFAULT 0,
    stop_reason      TEXT NOT NULL DEFAULT '',
    error            TEXT NOT NULL DEFAULT '',
    started_at       TEXT NOT NULL DEFAULT '',
    finished_at      TEXT NOT NULL DEFAULT '',
    duration_ns      INTEGER NOT NULL DEFAULT 0,
    config_json      TEXT NOT NULL DEFAULT '',
    metrics_json     TEXT NOT NULL DEFAULT '',
    monthly_json     TEXT NOT NULL DEFAULT '',
    yearly_json      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS trades (
    run_id           TEXT NOT NULL,
    seq              INTEGER NOT NULL,
    symbol           TEXT NOT NULL,
    strategy         TEXT NOT NULL DEFAULT '',
    entry_date       TEXT NOT NULL,
    entry_price      TEXT NOT NULL DEFAULT '0',
    quantity         INTEGER NOT NULL DEFAULT 0,
    entry_commission TEXT NOT NULL DEFAULT '0',
    slippage_cost    TEXT NOT NULL DEFAULT '0',
    exit_date        TEXT NOT NULL DEFAULT '',
    exit_price       TEXT NOT NULL DEFAULT '0',
    exit_commission  TEXT NOT NULL DEFAULT '0',
    exit_reason      TEXT NOT NULL DEFAULT '',
    gross_pnl        TEXT NOT NULL DEFAULT '0',
    net_pnl          TEXT NOT NULL DEFAULT '0',
    net_pnl_pct      TEXT NOT NULL DEFAULT '0',
    holding_days     INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS snapshots (
    run_id            TEXT NOT NULL,
    date              TEXT NOT NULL,
    equity            TEXT NOT NULL DEFAULT '0',
    cash              TEXT NOT NULL DEFAULT '0',
    positions_value   TEXT NOT NULL DEFAULT '0',
    day_pnl           TEXT NOT NULL DEFAULT '0',
    day_return        REAL NOT NULL DEFAULT 0,
    cumulative_return REAL NOT NULL DEFAULT 0,
    drawdown          REAL NOT NULL DEFAULT 0,
    open_positions    INTEGER NOT NULL DEFAULT 0,
    trades_today      INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, date)
);

CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at DESC);
`

// Store is the sqlite run index.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the index at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("open %q: %w", path, err))
	}
	db.SetMaxOpenConns(1) // sqlite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("apply schema: %w", err))
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveResult persists a run and its trades and snapshots in one
// transaction. Re-saving the same run id replaces the previous rows.
func (s *Store) SaveResult(ctx context.Context, res *backtest.Result) error {
	if res == nil || res.ID == "" {
		return core.WrapError(core.ErrStorageFailed, errors.New("result has no id"))
	}

	strategies, err := toJSON(res.Strategies)
	if err != nil {
		return err
	}
	symbols, err := toJSON(res.Symbols)
	if err != nil {
		return err
	}
	configJSON, err := toJSON(res.Config)
	if err != nil {
		return err
	}
	metricsJSON, err := toJSON(res.Metrics)
	if err != nil {
		return err
	}
	monthlyJSON, err := toJSON(res.MonthlyReturns)
	if err != nil {
		return err
	}
	yearlyJSON, err := toJSON(res.YearlyReturns)
	if err != nil {
		return err
	}

	var maxDD, sharpe float64
	if res.Metrics != nil {
		maxDD = res.Metrics.MaxDrawdown
		sharpe = res.Metrics.SharpeRatio
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, status, strategies, symbols, start_date, end_date,
			 initial_capital, final_capital, total_return, max_drawdown,
			 sharpe_ratio, total_trades, stopped_early, stop_reason, error,
			 started_at, finished_at, duration_ns,
			 config_json, metrics_json, monthly_json, yearly_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.ID,
		string(res.Status),
		strategies,
		symbols,
		formatTime(res.StartDate),
		formatTime(res.EndDate),
		res.InitialCapital.String(),
		res.FinalCapital.String(),
		res.TotalReturn(),
		maxDD,
		sharpe,
		res.TotalTrades(),
		boolInt(res.StoppedEarly),
		res.StopReason,
		res.Error,
		formatTime(res.StartedAt),
		formatTime(res.FinishedAt),
		int64(res.Duration),
		configJSON,
		metricsJSON,
		monthlyJSON,
		yearlyJSON,
	); err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("insert run %s: %w", res.ID, err))
	}

	for _, table := range []string{"trades", "snapshots"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE run_id = ?`, table), res.ID); err != nil {
			return core.WrapError(core.ErrStorageFailed, fmt.Errorf("clear %s for %s: %w", table, res.ID, err))
		}
	}

	if err := s.insertTrades(ctx, tx, res.ID, res.Trades); err != nil {
		return err
	}
	if err := s.insertSnapshots(ctx, tx, res.ID, res.Snapshots); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("commit run %s: %w", res.ID, err))
	}
	return nil
}

func (s *Store) insertTrades(ctx context.Context, tx *sql.Tx, runID string, trades []*portfolio.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades
			(run_id, seq, symbol, strategy, entry_date, entry_price, quantity,
			 entry_commission, slippage_cost, exit_date, exit_price,
			 exit_commission, exit_reason, gross_pnl, net_pnl, net_pnl_pct,
			 holding_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("prepare trades: %w", err))
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx,
			runID,
			t.Seq,
			t.Symbol,
			t.Strategy,
			formatTime(t.EntryDate),
			t.EntryPrice.String(),
			t.Quantity,
			t.EntryCommission.String(),
			t.SlippageCost.String(),
			formatTime(t.ExitDate),
			t.ExitPrice.String(),
			t.ExitCommission.String(),
			string(t.ExitReason),
			t.GrossPnL.String(),
			t.NetPnL.String(),
			t.NetPnLPct.String(),
			t.HoldingDays,
		); err != nil {
			return core.WrapError(core.ErrStorageFailed, fmt.Errorf("insert trade %d: %w", t.Seq, err))
		}
	}
	return nil
}

func (s *Store) insertSnapshots(ctx context.Context, tx *sql.Tx, runID string, snaps []portfolio.DailySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshots
			(run_id, date, equity, cash, positions_value, day_pnl, day_return,
			 cumulative_return, drawdown, open_positions, trades_today)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("prepare snapshots: %w", err))
	}
	defer stmt.Close()

	for _, snap := range snaps {
		if _, err := stmt.ExecContext(ctx,
			runID,
			formatTime(snap.Date),
			snap.Equity.String(),
			snap.Cash.String(),
			snap.PositionsValue.String(),
			snap.DayPnL.String(),
			snap.DayReturn,
			snap.CumulativeReturn,
			snap.Drawdown,
			snap.OpenPositions,
			snap.TradesToday,
		); err != nil {
			return core.WrapError(core.ErrStorageFailed, fmt.Errorf("insert snapshot %s: %w", snap.Date, err))
		}
	}
	return nil
}

// GetResult reloads a stored run by id, including its trades,
// snapshots, metrics and config snapshot.
func (s *Store) GetResult(ctx context.Context, id string) (*backtest.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, strategies, symbols, start_date, end_date,
		       initial_capital, final_capital, stopped_early, stop_reason,
		       error, started_at, finished_at, duration_ns,
		       config_json, metrics_json, monthly_json, yearly_json
		FROM runs WHERE id = ?
	`, id)

	var (
		res          backtest.Result
		status       string
		strategies   string
		symbols      string
		startDate    string
		endDate      string
		initialCap   string
		finalCap     string
		stoppedEarly int
		startedAt    string
		finishedAt   string
		durationNS   int64
		configJSON   string
		metricsJSON  string
		monthlyJSON  string
		yearlyJSON   string
	)
	err := row.Scan(&res.ID, &status, &strategies, &symbols, &startDate, &endDate,
		&initialCap, &finalCap, &stoppedEarly, &res.StopReason,
		&res.Error, &startedAt, &finishedAt, &durationNS,
		&configJSON, &metricsJSON, &monthlyJSON, &yearlyJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.WrapError(core.ErrRunNotFound, fmt.Errorf("run %s", id))
	}
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("load run %s: %w", id, err))
	}

	res.Status = backtest.Status(status)
	res.StoppedEarly = stoppedEarly != 0
	res.Duration = time.Duration(durationNS)

	if err := firstErr(
		fromJSON(strategies, &res.Strategies),
		fromJSON(symbols, &res.Symbols),
		fromJSON(configJSON, &res.Config),
		fromJSON(metricsJSON, &res.Metrics),
		fromJSON(monthlyJSON, &res.MonthlyReturns),
		fromJSON(yearlyJSON, &res.YearlyReturns),
		parseTime(startDate, &res.StartDate),
		parseTime(endDate, &res.EndDate),
		parseTime(startedAt, &res.StartedAt),
		parseTime(finishedAt, &res.FinishedAt),
		parseDec(initialCap, &res.InitialCapital),
		parseDec(finalCap, &res.FinalCapital),
	); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("decode run %s: %w", id, err))
	}

	if res.Trades, err = s.loadTrades(ctx, id); err != nil {
		return nil, err
	}
	if res.Snapshots, err = s.loadSnapshots(ctx, id); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Store) loadTrades(ctx context.Context, runID string) ([]*portfolio.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, symbol, strategy, entry_date, entry_price, quantity,
		       entry_commission, slippage_cost, exit_date, exit_price,
		       exit_commission, exit_reason, gross_pnl, net_pnl, net_pnl_pct,
		       holding_days
		FROM trades WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("load trades for %s: %w", runID, err))
	}
	defer rows.Close()

	var trades []*portfolio.Trade
	for rows.Next() {
		var (
			t          portfolio.Trade
			entryDate  string
			entryPrice string
			entryComm  string
			slippage   string
			exitDate   string
			exitPrice  string
			exitComm   string
			exitReason string
			grossPnL   string
			netPnL     string
			netPnLPct  string
		)
		if err := rows.Scan(&t.Seq, &t.Symbol, &t.Strategy, &entryDate, &entryPrice,
			&t.Quantity, &entryComm, &slippage, &exitDate, &exitPrice,
			&exitComm, &exitReason, &grossPnL, &netPnL, &netPnLPct,
			&t.HoldingDays); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("scan trade: %w", err))
		}

		t.ExitReason = core.ExitReason(exitReason)
		if err := firstErr(
			parseTime(entryDate, &t.EntryDate),
			parseTime(exitDate, &t.ExitDate),
			parseDec(entryPrice, &t.EntryPrice),
			parseDec(entryComm, &t.EntryCommission),
			parseDec(slippage, &t.SlippageCost),
			parseDec(exitPrice, &t.ExitPrice),
			parseDec(exitComm, &t.ExitCommission),
			parseDec(grossPnL, &t.GrossPnL),
			parseDec(netPnL, &t.NetPnL),
			parseDec(netPnLPct, &t.NetPnLPct),
		); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("decode trade %d: %w", t.Seq, err))
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

func (s *Store) loadSnapshots(ctx context.Context, runID string) ([]portfolio.DailySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, equity, cash, positions_value, day_pnl, day_return,
		       cumulative_return, drawdown, open_positions, trades_today
		FROM snapshots WHERE run_id = ? ORDER BY date
	`, runID)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("load snapshots for %s: %w", runID, err))
	}
	defer rows.Close()

	var snaps []portfolio.DailySnapshot
	for rows.Next() {
		var (
			snap      portfolio.DailySnapshot
			date      string
			equity    string
			cash      string
			positions string
			dayPnL    string
		)
		if err := rows.Scan(&date, &equity, &cash, &positions, &dayPnL,
			&snap.DayReturn, &snap.CumulativeReturn, &snap.Drawdown,
			&snap.OpenPositions, &snap.TradesToday); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("scan snapshot: %w", err))
		}

		if err := firstErr(
			parseTime(date, &snap.Date),
			parseDec(equity, &snap.Equity),
			parseDec(cash, &snap.Cash),
			parseDec(positions, &snap.PositionsValue),
			parseDec(dayPnL, &snap.DayPnL),
		); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("decode snapshot %s: %w", date, err))
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID          string
	Status      string
	Strategies  []string
	Symbols     []string
	StartDate   time.Time
	EndDate     time.Time
	TotalReturn float64
	MaxDrawdown float64
	SharpeRatio float64
	TotalTrades int
	FinishedAt  time.Time
}

// ListRuns returns the most recent runs, newest first. A non-positive
// limit lists 20.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, strategies, symbols, start_date, end_date,
		       total_return, max_drawdown, sharpe_ratio, total_trades,
		       finished_at
		FROM runs ORDER BY finished_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("list runs: %w", err))
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r          RunSummary
			strategies string
			symbols    string
			startDate  string
			endDate    string
			finishedAt string
		)
		if err := rows.Scan(&r.ID, &r.Status, &strategies, &symbols, &startDate,
			&endDate, &r.TotalReturn, &r.MaxDrawdown, &r.SharpeRatio,
			&r.TotalTrades, &finishedAt); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("scan run: %w", err))
		}
		if err := firstErr(
			fromJSON(strategies, &r.Strategies),
			fromJSON(symbols, &r.Symbols),
			parseTime(startDate, &r.StartDate),
			parseTime(endDate, &r.EndDate),
			parseTime(finishedAt, &r.FinishedAt),
		); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("decode run %s: %w", r.ID, err))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- column codecs ---

func toJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", core.WrapError(core.ErrStorageFailed, fmt.Errorf("encode column: %w", err))
	}
	return string(data), nil
}

func fromJSON(s string, v any) error {
	if s == "" || s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

// timeLayout is fixed-width so the TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string, dst *time.Time) error {
	if s == "" {
		*dst = time.Time{}
		return nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return err
	}
	*dst = t
	return nil
}

func parseDec(s string, dst *decimal.Decimal) error {
	if s == "" {
		*dst = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
