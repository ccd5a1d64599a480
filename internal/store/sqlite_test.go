package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbed/quantbed/internal/backtest"
	"github.com/quantbed/quantbed/internal/config"
	"github.com/quantbed/quantbed/internal/core"
	"github.com/quantbed/quantbed/internal/perf"
	"github.com/quantbed/quantbed/internal/portfolio"
	"github.com/quantbed/quantbed/internal/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(id string, finishedAt time.Time) *backtest.Result {
	return &backtest.Result{
		ID:             id,
		Strategies:     []string{"ma_crossover", "rsi_reversion"},
		Symbols:        []string{"AAA", "BBB"},
		Status:         backtest.StatusCompleted,
		StartDate:      date(2024, 1, 2),
		EndDate:        date(2024, 3, 28),
		InitialCapital: dec("100000"),
		FinalCapital:   dec("104250.55"),
		Config:         config.Defaults(),
		Trades: []*portfolio.Trade{
			{
				Seq:             1,
				Symbol:          "AAA",
				Strategy:        "ma_crossover",
				EntryDate:       date(2024, 1, 15),
				EntryPrice:      dec("100.05"),
				Quantity:        50,
				EntryCommission: dec("5"),
				SlippageCost:    dec("5.00"),
				ExitDate:        date(2024, 2, 1),
				ExitPrice:       dec("108.9455"),
				ExitCommission:  dec("10.45"),
				ExitReason:      core.ExitTakeProfit,
				GrossPnL:        dec("444.775"),
				NetPnL:          dec("424.325"),
				NetPnLPct:       dec("0.0848"),
				HoldingDays:     17,
			},
			{
				// Open trade from a failed run keeps its zero exit half
				Seq:        2,
				Symbol:     "BBB",
				Strategy:   "rsi_reversion",
				EntryDate:  date(2024, 3, 1),
				EntryPrice: dec("50.025"),
				Quantity:   100,
			},
		},
		Snapshots: []portfolio.DailySnapshot{
			{
				Date:           date(2024, 1, 2),
				Equity:         dec("100000"),
				Cash:           dec("100000"),
				PositionsValue: decimal.Zero,
			},
			{
				Date:             date(2024, 1, 3),
				Equity:           dec("100150.25"),
				Cash:             dec("95000"),
				PositionsValue:   dec("5150.25"),
				DayPnL:           dec("150.25"),
				DayReturn:        0.0015,
				CumulativeReturn: 0.0015,
				OpenPositions:    1,
				TradesToday:      1,
			},
		},
		Metrics: &perf.Metrics{
			TotalReturn:     0.0425,
			SharpeRatio:     1.31,
			MaxDrawdown:     -0.062,
			TotalTrades:     2,
			WinningTrades:   1,
			LargestWin:      dec("424.325"),
			TotalCommission: dec("15.45"),
		},
		MonthlyReturns: map[string]float64{"2024-01": 0.012, "2024-02": 0.018},
		YearlyReturns:  map[string]float64{"2024": 0.0425},
		StoppedEarly:   true,
		StopReason:     "max_drawdown",
		StartedAt:      finishedAt.Add(-2 * time.Second),
		FinishedAt:     finishedAt,
		Duration:       2 * time.Second,
	}
}

func TestStore_SaveGetRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	want := sampleResult("run-1", time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, s.SaveResult(ctx, want))

	got, err := s.GetResult(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, backtest.StatusCompleted, got.Status)
	assert.Equal(t, want.Strategies, got.Strategies)
	assert.Equal(t, want.Symbols, got.Symbols)
	assert.True(t, got.StartDate.Equal(want.StartDate))
	assert.True(t, got.EndDate.Equal(want.EndDate))
	assert.True(t, got.InitialCapital.Equal(want.InitialCapital))
	assert.True(t, got.FinalCapital.Equal(want.FinalCapital), "money must round-trip exactly, got %s", got.FinalCapital)
	assert.True(t, got.StoppedEarly)
	assert.Equal(t, "max_drawdown", got.StopReason)
	assert.Equal(t, want.Duration, got.Duration)
	assert.True(t, got.FinishedAt.Equal(want.FinishedAt))

	require.NotNil(t, got.Config)
	assert.Equal(t, want.Config.Backtest.InitialCapital, got.Config.Backtest.InitialCapital)

	require.NotNil(t, got.Metrics)
	assert.InDelta(t, 1.31, got.Metrics.SharpeRatio, 1e-12)
	assert.True(t, got.Metrics.LargestWin.Equal(dec("424.325")))

	assert.Equal(t, want.MonthlyReturns, got.MonthlyReturns)
	assert.Equal(t, want.YearlyReturns, got.YearlyReturns)

	require.Len(t, got.Trades, 2)
	closed, open := got.Trades[0], got.Trades[1]
	assert.True(t, closed.EntryPrice.Equal(dec("100.05")))
	assert.True(t, closed.NetPnL.Equal(dec("424.325")))
	assert.Equal(t, core.ExitTakeProfit, closed.ExitReason)
	assert.Equal(t, 17, closed.HoldingDays)
	assert.True(t, closed.Closed())
	assert.False(t, open.Closed(), "open trade must come back with a zero exit date")

	require.Len(t, got.Snapshots, 2)
	assert.True(t, got.Snapshots[1].Equity.Equal(dec("100150.25")))
	assert.Equal(t, 1, got.Snapshots[1].OpenPositions)
}

func TestStore_ResaveReplaces(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	res := sampleResult("run-1", time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, s.SaveResult(ctx, res))

	res.FinalCapital = dec("99000")
	res.Trades = res.Trades[:1]
	require.NoError(t, s.SaveResult(ctx, res))

	got, err := s.GetResult(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, got.FinalCapital.Equal(dec("99000")))
	assert.Len(t, got.Trades, 1, "re-saving must replace, not append")

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStore_GetUnknownRun(t *testing.T) {
	s := openStore(t)

	_, err := s.GetResult(context.Background(), "missing")
	assert.True(t, errors.Is(err, core.ErrRunNotFound), "got %v", err)
}

func TestStore_SaveRejectsMissingID(t *testing.T) {
	s := openStore(t)

	err := s.SaveResult(context.Background(), &backtest.Result{})
	assert.True(t, errors.Is(err, core.ErrStorageFailed), "got %v", err)

	err = s.SaveResult(context.Background(), nil)
	assert.True(t, errors.Is(err, core.ErrStorageFailed), "got %v", err)
}

func TestStore_ListRuns(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	older := sampleResult("run-old", time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC))
	newer := sampleResult("run-new", time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, s.SaveResult(ctx, older))
	require.NoError(t, s.SaveResult(ctx, newer))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "run-new", runs[0].ID, "newest run lists first")
	assert.Equal(t, "run-old", runs[1].ID)
	assert.Equal(t, []string{"ma_crossover", "rsi_reversion"}, runs[0].Strategies)
	assert.Equal(t, 2, runs[0].TotalTrades)
	assert.InDelta(t, -0.062, runs[0].MaxDrawdown, 1e-12)
	assert.True(t, runs[0].FinishedAt.Equal(newer.FinishedAt))

	limited, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-new", limited[0].ID)
}
