package perf

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantbed/quantbed/internal/portfolio"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func snapshotCurve(equities ...string) []portfolio.DailySnapshot {
	snaps := make([]portfolio.DailySnapshot, len(equities))
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, e := range equities {
		snaps[i] = portfolio.DailySnapshot{
			Date:   base.AddDate(0, 0, i),
			Equity: dec(e),
			Cash:   dec(e),
		}
	}
	return snaps
}

func TestCalculateReturns(t *testing.T) {
	c := NewCalculator()
	c.RiskFreeRate = 0 // simplify the hand-computed ratios

	// Daily returns: +2%, +1%, -1%.
	snaps := snapshotCurve("102", "103.02", "101.9898")
	m := c.Calculate(snaps, nil, dec("100"))

	if !almostEqual(m.TotalReturn, 0.019898, 1e-9) {
		t.Errorf("TotalReturn = %f", m.TotalReturn)
	}
	wantAnn := math.Pow(1.019898, 252.0/3.0) - 1
	if !almostEqual(m.AnnualizedReturn, wantAnn, 1e-9) {
		t.Errorf("AnnualizedReturn = %f, want %f", m.AnnualizedReturn, wantAnn)
	}
	if !almostEqual(m.MeanDailyReturn, 0.02/3+0.01/3-0.01/3, 1e-9) {
		t.Errorf("MeanDailyReturn = %f", m.MeanDailyReturn)
	}

	// Sample stdev of [0.02, 0.01, -0.01] is sqrt(0.00023333...).
	wantStd := math.Sqrt(0.00023333333333333333)
	if !almostEqual(m.StdDailyReturn, wantStd, 1e-9) {
		t.Errorf("StdDailyReturn = %f, want %f", m.StdDailyReturn, wantStd)
	}
	if !almostEqual(m.AnnualizedVolatility, wantStd*math.Sqrt(252), 1e-9) {
		t.Errorf("AnnualizedVolatility = %f", m.AnnualizedVolatility)
	}

	wantSharpe := math.Sqrt(252) * m.MeanDailyReturn / wantStd
	if !almostEqual(m.SharpeRatio, wantSharpe, 1e-9) {
		t.Errorf("SharpeRatio = %f, want %f", m.SharpeRatio, wantSharpe)
	}
	// Only one negative return, so downside deviation is undefined.
	if m.SortinoRatio != 0 {
		t.Errorf("SortinoRatio = %f, want 0", m.SortinoRatio)
	}
}

func TestCalculateDrawdownAndCalmar(t *testing.T) {
	c := NewCalculator()

	snaps := snapshotCurve("110", "99", "105")
	m := c.Calculate(snaps, nil, dec("100"))

	if !almostEqual(m.MaxDrawdown, -0.10, 1e-12) {
		t.Errorf("MaxDrawdown = %f, want -0.10", m.MaxDrawdown)
	}
	wantCalmar := m.AnnualizedReturn / 0.10
	if !almostEqual(m.CalmarRatio, wantCalmar, 1e-9) {
		t.Errorf("CalmarRatio = %f, want %f", m.CalmarRatio, wantCalmar)
	}
}

func TestCalculateFlatCurveZeroRatios(t *testing.T) {
	c := NewCalculator()

	snaps := snapshotCurve("100", "100", "100")
	m := c.Calculate(snaps, nil, dec("100"))

	if m.SharpeRatio != 0 || m.SortinoRatio != 0 || m.CalmarRatio != 0 {
		t.Errorf("flat curve must zero all ratios, got %f/%f/%f",
			m.SharpeRatio, m.SortinoRatio, m.CalmarRatio)
	}
	if m.MaxDrawdown != 0 || m.AvgDrawdown != 0 || m.MaxDrawdownDays != 0 {
		t.Errorf("flat curve must have no drawdown")
	}
}

func TestCalculateEmptyInputs(t *testing.T) {
	c := NewCalculator()
	m := c.Calculate(nil, nil, dec("100"))

	if m.TotalReturn != 0 || m.TotalTrades != 0 {
		t.Errorf("empty inputs must produce a zero bundle")
	}
}

func TestTradeStats(t *testing.T) {
	c := NewCalculator()

	mk := func(net string) *portfolio.Trade {
		n := dec(net)
		return &portfolio.Trade{
			Quantity:        100,
			EntryCommission: dec("1"),
			ExitCommission:  dec("1"),
			SlippageCost:    dec("2"),
			GrossPnL:        n.Add(dec("4")),
			NetPnL:          n,
			HoldingDays:     5,
			ExitDate:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	trades := []*portfolio.Trade{mk("100"), mk("50"), mk("-30"), mk("20"), mk("-10")}

	m := c.Calculate(nil, trades, dec("100"))

	if m.TotalTrades != 5 || m.WinningTrades != 3 || m.LosingTrades != 2 {
		t.Fatalf("counts = %d/%d/%d", m.TotalTrades, m.WinningTrades, m.LosingTrades)
	}
	if !almostEqual(m.WinRate, 0.6, 1e-12) {
		t.Errorf("WinRate = %f", m.WinRate)
	}
	// profit 170 vs loss 40
	if !almostEqual(m.ProfitFactor, 4.25, 1e-9) {
		t.Errorf("ProfitFactor = %f", m.ProfitFactor)
	}
	// avg win 56.67 vs avg loss 20
	if !almostEqual(m.PayoffRatio, 170.0/3/20, 1e-9) {
		t.Errorf("PayoffRatio = %f", m.PayoffRatio)
	}
	if !m.LargestWin.Equal(dec("100")) || !m.LargestLoss.Equal(dec("-30")) {
		t.Errorf("largest = %s / %s", m.LargestWin, m.LargestLoss)
	}
	// order +,+,-,+,-
	if m.MaxWinStreak != 2 || m.MaxLossStreak != 1 {
		t.Errorf("streaks = %d/%d", m.MaxWinStreak, m.MaxLossStreak)
	}
	if !almostEqual(m.AvgHoldingDays, 5, 1e-12) {
		t.Errorf("AvgHoldingDays = %f", m.AvgHoldingDays)
	}

	if !m.TotalCommission.Equal(dec("10")) || !m.TotalSlippage.Equal(dec("10")) {
		t.Errorf("costs = %s / %s", m.TotalCommission, m.TotalSlippage)
	}
	// gross sum 150, costs 20
	if !almostEqual(m.CostImpactPct, 20.0/150*100, 1e-9) {
		t.Errorf("CostImpactPct = %f", m.CostImpactPct)
	}
}

func TestPercentileInterpolation(t *testing.T) {
	values := []float64{-0.01, 0.01, 0.02}

	// rank = 0.05 * 2 = 0.1 between the two lowest values
	if got := percentile(values, 5); !almostEqual(got, -0.008, 1e-12) {
		t.Errorf("percentile(5) = %f, want -0.008", got)
	}
	if got := percentile(values, 0); !almostEqual(got, -0.01, 1e-12) {
		t.Errorf("percentile(0) = %f, want -0.01", got)
	}
	if got := percentile(values, 100); !almostEqual(got, 0.02, 1e-12) {
		t.Errorf("percentile(100) = %f, want 0.02", got)
	}
	if got := percentile(nil, 5); got != 0 {
		t.Errorf("percentile(nil) = %f, want 0", got)
	}
}

func TestTailMean(t *testing.T) {
	values := []float64{-0.02, -0.01, 0.01, 0.02}
	if got := tailMean(values, -0.01); !almostEqual(got, -0.015, 1e-12) {
		t.Errorf("tailMean = %f, want -0.015", got)
	}
}

func TestSkewnessAndKurtosis(t *testing.T) {
	// Hand-computed on {1,2,3,4,10}: mean 4, sample std sqrt(12.5).
	values := []float64{1, 2, 3, 4, 10}

	if got := skewness(values); !almostEqual(got, 1.6970563, 1e-5) {
		t.Errorf("skewness = %f, want 1.6970563", got)
	}
	if got := kurtosis(values); !almostEqual(got, 3.152, 1e-5) {
		t.Errorf("kurtosis = %f, want 3.152", got)
	}

	if got := skewness([]float64{1, 2}); got != 0 {
		t.Errorf("skewness needs 3 values, got %f", got)
	}
	if got := kurtosis([]float64{1, 2, 3}); got != 0 {
		t.Errorf("kurtosis needs 4 values, got %f", got)
	}
	if got := skewness([]float64{5, 5, 5, 5}); got != 0 {
		t.Errorf("constant series skewness = %f, want 0", got)
	}
}

func TestPeriodReturns(t *testing.T) {
	snaps := []portfolio.DailySnapshot{
		{Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Equity: dec("110")},
		{Date: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Equity: dec("105")},
		{Date: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), Equity: dec("126")},
	}

	monthly := MonthlyReturns(snaps, dec("100"))
	if len(monthly) != 2 {
		t.Fatalf("expected 2 months, got %d", len(monthly))
	}
	if !almostEqual(monthly["2024-01"], 0.05, 1e-12) {
		t.Errorf("2024-01 = %f, want 0.05", monthly["2024-01"])
	}
	if !almostEqual(monthly["2024-02"], 0.2, 1e-12) {
		t.Errorf("2024-02 = %f, want 0.2", monthly["2024-02"])
	}

	yearly := YearlyReturns(snaps, dec("100"))
	if !almostEqual(yearly["2024"], 0.26, 1e-12) {
		t.Errorf("2024 = %f, want 0.26", yearly["2024"])
	}

	if MonthlyReturns(nil, dec("100")) != nil {
		t.Error("expected nil map for empty snapshots")
	}
}
