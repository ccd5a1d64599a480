// Package perf converts an equity curve and a trade log into
// performance and risk statistics. The calculator is pure: it never
// mutates its inputs and may be called concurrently on independent
// data.
package perf

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantbed/quantbed/internal/portfolio"
)

const (
	// DefaultRiskFreeRate is the annual risk-free rate backing the
	// Sharpe and Sortino ratios.
	DefaultRiskFreeRate = 0.035
	// DefaultTradingDays is the annualization base for daily bars.
	DefaultTradingDays = 252
)

// Calculator computes the metrics bundle for one equity curve.
type Calculator struct {
	RiskFreeRate float64
	TradingDays  int
}

// NewCalculator returns a calculator with the default annualization
// parameters.
func NewCalculator() *Calculator {
	return &Calculator{
		RiskFreeRate: DefaultRiskFreeRate,
		TradingDays:  DefaultTradingDays,
	}
}

// Metrics is the computed statistics bundle of a run.
type Metrics struct {
	// Returns.
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MeanDailyReturn  float64 `json:"mean_daily_return"`
	StdDailyReturn   float64 `json:"std_daily_return"`

	// Risk. Drawdowns are zero or negative fractions.
	AnnualizedVolatility float64 `json:"annualized_volatility"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	AvgDrawdown          float64 `json:"avg_drawdown"`
	MaxDrawdownDays      int     `json:"max_drawdown_days"`

	// Risk-adjusted ratios; zero when the denominator is zero.
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio"`

	// Tail risk over the daily return distribution.
	VaR95    float64 `json:"var_95"`
	VaR99    float64 `json:"var_99"`
	CVaR95   float64 `json:"cvar_95"`
	CVaR99   float64 `json:"cvar_99"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`

	// Trade statistics over closed trades.
	TotalTrades    int             `json:"total_trades"`
	WinningTrades  int             `json:"winning_trades"`
	LosingTrades   int             `json:"losing_trades"`
	WinRate        float64         `json:"win_rate"`
	ProfitFactor   float64         `json:"profit_factor"`
	PayoffRatio    float64         `json:"payoff_ratio"`
	LargestWin     decimal.Decimal `json:"largest_win"`
	LargestLoss    decimal.Decimal `json:"largest_loss"`
	MaxWinStreak   int             `json:"max_win_streak"`
	MaxLossStreak  int             `json:"max_loss_streak"`
	AvgHoldingDays float64         `json:"avg_holding_days"`

	// Cost impact.
	TotalCommission decimal.Decimal `json:"total_commission"`
	TotalSlippage   decimal.Decimal `json:"total_slippage"`
	CostImpactPct   float64         `json:"cost_impact_pct"`
}

// Calculate builds the full metrics bundle from the snapshot sequence
// and the closed trades of a run.
func (c *Calculator) Calculate(snapshots []portfolio.DailySnapshot, trades []*portfolio.Trade, initialCapital decimal.Decimal) *Metrics {
	m := &Metrics{}
	c.returnStats(m, snapshots, initialCapital)
	c.tradeStats(m, trades)
	return m
}

func (c *Calculator) returnStats(m *Metrics, snapshots []portfolio.DailySnapshot, initialCapital decimal.Decimal) {
	if len(snapshots) == 0 || !initialCapital.IsPositive() {
		return
	}

	equity := make([]float64, len(snapshots))
	dates := make([]time.Time, len(snapshots))
	for i, s := range snapshots {
		equity[i], _ = s.Equity.Float64()
		dates[i] = s.Date
	}
	initial, _ := initialCapital.Float64()

	returns := make([]float64, len(equity))
	prev := initial
	for i, e := range equity {
		if prev > 0 {
			returns[i] = e/prev - 1
		}
		prev = e
	}

	m.TotalReturn = equity[len(equity)-1]/initial - 1
	if base := 1 + m.TotalReturn; base > 0 {
		m.AnnualizedReturn = math.Pow(base, float64(c.TradingDays)/float64(len(equity))) - 1
	} else {
		m.AnnualizedReturn = -1
	}

	m.MeanDailyReturn = mean(returns)
	m.StdDailyReturn = stdev(returns)
	annFactor := math.Sqrt(float64(c.TradingDays))
	m.AnnualizedVolatility = m.StdDailyReturn * annFactor

	// The running peak starts at the initial capital so an immediate
	// loss already counts as drawdown.
	dd := Drawdowns(equity, initial)
	m.MaxDrawdown = maxDrawdown(dd)
	m.AvgDrawdown = avgDrawdown(dd)
	m.MaxDrawdownDays = longestUnderwater(dates, dd)

	dailyRF := math.Pow(1+c.RiskFreeRate, 1/float64(c.TradingDays)) - 1
	excess := make([]float64, len(returns))
	var negatives []float64
	for i, r := range returns {
		excess[i] = r - dailyRF
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	if m.StdDailyReturn > 0 {
		m.SharpeRatio = annFactor * mean(excess) / m.StdDailyReturn
	}
	if downside := stdev(negatives); downside > 0 {
		m.SortinoRatio = annFactor * mean(excess) / downside
	}
	if m.MaxDrawdown < 0 {
		m.CalmarRatio = m.AnnualizedReturn / math.Abs(m.MaxDrawdown)
	}

	m.VaR95 = percentile(returns, 5)
	m.VaR99 = percentile(returns, 1)
	m.CVaR95 = tailMean(returns, m.VaR95)
	m.CVaR99 = tailMean(returns, m.VaR99)
	m.Skewness = skewness(returns)
	m.Kurtosis = kurtosis(returns)
}

func (c *Calculator) tradeStats(m *Metrics, trades []*portfolio.Trade) {
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var (
		profitSum             = decimal.Zero
		lossSum               = decimal.Zero
		grossSum              = decimal.Zero
		commission            = decimal.Zero
		slippage              = decimal.Zero
		holdingDays           int
		winStreak, lossStreak int
	)

	for _, t := range trades {
		grossSum = grossSum.Add(t.GrossPnL)
		commission = commission.Add(t.EntryCommission).Add(t.ExitCommission)
		slippage = slippage.Add(t.SlippageCost)
		holdingDays += t.HoldingDays

		switch {
		case t.NetPnL.IsPositive():
			m.WinningTrades++
			profitSum = profitSum.Add(t.NetPnL)
			if t.NetPnL.GreaterThan(m.LargestWin) {
				m.LargestWin = t.NetPnL
			}
			winStreak++
			lossStreak = 0
			if winStreak > m.MaxWinStreak {
				m.MaxWinStreak = winStreak
			}
		case t.NetPnL.IsNegative():
			m.LosingTrades++
			lossSum = lossSum.Add(t.NetPnL)
			if t.NetPnL.LessThan(m.LargestLoss) {
				m.LargestLoss = t.NetPnL
			}
			lossStreak++
			winStreak = 0
			if lossStreak > m.MaxLossStreak {
				m.MaxLossStreak = lossStreak
			}
		default:
			// Breakeven trades interrupt both streaks.
			winStreak, lossStreak = 0, 0
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	if lossSum.IsNegative() {
		m.ProfitFactor, _ = profitSum.Div(lossSum.Abs()).Float64()
	}
	if m.WinningTrades > 0 && m.LosingTrades > 0 {
		avgWin := profitSum.Div(decimal.NewFromInt(int64(m.WinningTrades)))
		avgLoss := lossSum.Div(decimal.NewFromInt(int64(m.LosingTrades)))
		if !avgLoss.IsZero() {
			m.PayoffRatio, _ = avgWin.Div(avgLoss.Abs()).Float64()
		}
	}
	m.AvgHoldingDays = float64(holdingDays) / float64(m.TotalTrades)

	m.TotalCommission = commission
	m.TotalSlippage = slippage
	if !grossSum.IsZero() {
		impact, _ := commission.Add(slippage).Div(grossSum.Abs()).Float64()
		m.CostImpactPct = impact * 100
	}
}

// MonthlyReturns resamples the equity curve to the last value of each
// month and returns the percent change per period, keyed "2006-01".
// The first period's baseline is the initial capital.
func MonthlyReturns(snapshots []portfolio.DailySnapshot, initialCapital decimal.Decimal) map[string]float64 {
	return periodReturns(snapshots, initialCapital, "2006-01")
}

// YearlyReturns resamples the equity curve to the last value of each
// year, keyed "2006".
func YearlyReturns(snapshots []portfolio.DailySnapshot, initialCapital decimal.Decimal) map[string]float64 {
	return periodReturns(snapshots, initialCapital, "2006")
}

func periodReturns(snapshots []portfolio.DailySnapshot, initialCapital decimal.Decimal, layout string) map[string]float64 {
	if len(snapshots) == 0 {
		return nil
	}

	var keys []string
	last := make(map[string]decimal.Decimal)
	for _, s := range snapshots {
		k := s.Date.Format(layout)
		if _, ok := last[k]; !ok {
			keys = append(keys, k)
		}
		last[k] = s.Equity
	}

	out := make(map[string]float64, len(keys))
	prev := initialCapital
	for _, k := range keys {
		cur := last[k]
		if prev.IsPositive() {
			out[k], _ = cur.Sub(prev).Div(prev).Float64()
		}
		prev = cur
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdev is the sample standard deviation.
func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mu := mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	if len(s) == 1 {
		return s[0]
	}
	rank := p / 100 * float64(len(s)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return s[lo]
	}
	frac := rank - float64(lo)
	return s[lo] + frac*(s[hi]-s[lo])
}

// tailMean averages the values at or below the cutoff.
func tailMean(values []float64, cutoff float64) float64 {
	sum := 0.0
	n := 0
	for _, v := range values {
		if v <= cutoff {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// skewness is the bias-corrected sample skewness.
func skewness(values []float64) float64 {
	n := float64(len(values))
	if len(values) < 3 {
		return 0
	}
	s := stdev(values)
	if s == 0 {
		return 0
	}
	mu := mean(values)
	sum := 0.0
	for _, v := range values {
		z := (v - mu) / s
		sum += z * z * z
	}
	return n / ((n - 1) * (n - 2)) * sum
}

// kurtosis is the bias-corrected excess kurtosis.
func kurtosis(values []float64) float64 {
	n := float64(len(values))
	if len(values) < 4 {
		return 0
	}
	s := stdev(values)
	if s == 0 {
		return 0
	}
	mu := mean(values)
	sum := 0.0
	for _, v := range values {
		z := (v - mu) / s
		sum += z * z * z * z
	}
	return n*(n+1)/((n-1)*(n-2)*(n-3))*sum - 3*(n-1)*(n-1)/((n-2)*(n-3))
}
