// Package report renders finished runs for humans.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/quantbed/quantbed/internal/backtest"
	"github.com/quantbed/quantbed/internal/portfolio"
	"github.com/quantbed/quantbed/internal/store"
)

const defaultMaxTrades = 25

// Console renders results as text tables.
type Console struct {
	out       io.Writer
	maxTrades int
}

// NewConsole creates a renderer that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, maxTrades: defaultMaxTrades}
}

// NewConsoleWriter creates a renderer for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, maxTrades: defaultMaxTrades}
}

// Render prints the full report of one run: header, capital, metrics,
// trades and period returns. Failed runs render whatever they carry.
func (c *Console) Render(res *backtest.Result) {
	if res == nil {
		return
	}

	c.printHeader(res)
	c.printCapital(res)

	if res.Metrics != nil {
		c.printPerformance(res)
		c.printTradeStats(res)
	} else {
		fmt.Fprintln(c.out, "\nNo metrics: the run did not complete.")
	}

	c.printTrades(res.Trades)
	c.printPeriodReturns(res.MonthlyReturns, res.YearlyReturns)
}

func (c *Console) printHeader(res *backtest.Result) {
	fmt.Fprintf(c.out, "\n=== Backtest %s ===\n", res.ID)
	fmt.Fprintf(c.out, "Status:     %s\n", res.Status)
	fmt.Fprintf(c.out, "Strategies: %s\n", strings.Join(res.Strategies, ", "))
	fmt.Fprintf(c.out, "Symbols:    %s\n", strings.Join(res.Symbols, ", "))
	if !res.StartDate.IsZero() {
		fmt.Fprintf(c.out, "Period:     %s to %s (%d trading days)\n",
			res.StartDate.Format("2006-01-02"), res.EndDate.Format("2006-01-02"), len(res.Snapshots))
	}
	if res.Duration > 0 {
		fmt.Fprintf(c.out, "Duration:   %s\n", res.Duration.Round(time.Millisecond))
	}
	if res.StoppedEarly {
		fmt.Fprintf(c.out, "Stopped early: %s\n", res.StopReason)
	}
	if res.Error != "" {
		fmt.Fprintf(c.out, "Error:      %s\n", res.Error)
	}
}

func (c *Console) printCapital(res *backtest.Result) {
	netPnL := res.FinalCapital.Sub(res.InitialCapital)

	fmt.Fprintf(c.out, "\nInitial capital: %s\n", money(res.InitialCapital))
	fmt.Fprintf(c.out, "Final capital:   %s\n", money(res.FinalCapital))
	fmt.Fprintf(c.out, "Net P&L:         %s (%s)\n", money(netPnL), signedPct(res.TotalReturn()))
}

func (c *Console) printPerformance(res *backtest.Result) {
	m := res.Metrics

	fmt.Fprintln(c.out, "\n--- Performance ---")

	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	table.Append("Total return", signedPct(m.TotalReturn))
	table.Append("Annualized return", signedPct(m.AnnualizedReturn))
	table.Append("Annualized volatility", pct(m.AnnualizedVolatility))
	table.Append("Sharpe ratio", fmt.Sprintf("%.2f", m.SharpeRatio))
	table.Append("Sortino ratio", fmt.Sprintf("%.2f", m.SortinoRatio))
	table.Append("Calmar ratio", fmt.Sprintf("%.2f", m.CalmarRatio))
	table.Append("Max drawdown", fmt.Sprintf("%s (%d days underwater)", pct(m.MaxDrawdown), m.MaxDrawdownDays))
	table.Append("Avg drawdown", pct(m.AvgDrawdown))
	table.Append("VaR 95% / 99%", fmt.Sprintf("%s / %s", pct(m.VaR95), pct(m.VaR99)))
	table.Append("CVaR 95% / 99%", fmt.Sprintf("%s / %s", pct(m.CVaR95), pct(m.CVaR99)))
	table.Append("Skewness", fmt.Sprintf("%.2f", m.Skewness))
	table.Append("Kurtosis", fmt.Sprintf("%.2f", m.Kurtosis))
	table.Render()
}

func (c *Console) printTradeStats(res *backtest.Result) {
	m := res.Metrics

	fmt.Fprintln(c.out, "\n--- Trade statistics ---")
	fmt.Fprintf(c.out, "  Closed trades:  %d (%d wins / %d losses)\n",
		m.TotalTrades, m.WinningTrades, m.LosingTrades)
	if m.TotalTrades == 0 {
		return
	}
	fmt.Fprintf(c.out, "  Win rate:       %s\n", pct(m.WinRate))
	fmt.Fprintf(c.out, "  Profit factor:  %.2f\n", m.ProfitFactor)
	fmt.Fprintf(c.out, "  Payoff ratio:   %.2f\n", m.PayoffRatio)
	fmt.Fprintf(c.out, "  Largest win:    %s\n", money(m.LargestWin))
	fmt.Fprintf(c.out, "  Largest loss:   %s\n", money(m.LargestLoss))
	fmt.Fprintf(c.out, "  Streaks:        %d wins / %d losses\n", m.MaxWinStreak, m.MaxLossStreak)
	fmt.Fprintf(c.out, "  Avg holding:    %.1f days\n", m.AvgHoldingDays)
	fmt.Fprintf(c.out, "  Commission:     %s\n", money(m.TotalCommission))
	fmt.Fprintf(c.out, "  Slippage:       %s\n", money(m.TotalSlippage))
	fmt.Fprintf(c.out, "  Cost impact:    %.2f%% of gross P&L\n", m.CostImpactPct)
}

func (c *Console) printTrades(trades []*portfolio.Trade) {
	fmt.Fprintln(c.out, "\n--- Trades ---")
	if len(trades) == 0 {
		fmt.Fprintln(c.out, "  No trades were executed.")
		return
	}

	shown := trades
	if len(shown) > c.maxTrades {
		shown = shown[len(shown)-c.maxTrades:]
		fmt.Fprintf(c.out, "  (showing the last %d of %d trades)\n", c.maxTrades, len(trades))
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Symbol", "Strategy", "Entry", "Exit", "Qty", "Entry$", "Exit$", "Net P&L", "Return", "Days", "Reason")

	for _, t := range shown {
		exitDate, exitPrice, netPnL, netPct, days, reason := "-", "-", "-", "-", "-", "open"
		if t.Closed() {
			exitDate = t.ExitDate.Format("2006-01-02")
			exitPrice = t.ExitPrice.StringFixed(2)
			netPnL = money(t.NetPnL)
			netPct = signedPct(pctFloat(t.NetPnLPct))
			days = fmt.Sprintf("%d", t.HoldingDays)
			reason = string(t.ExitReason)
		}

		table.Append(
			fmt.Sprintf("%d", t.Seq),
			t.Symbol,
			t.Strategy,
			t.EntryDate.Format("2006-01-02"),
			exitDate,
			fmt.Sprintf("%d", t.Quantity),
			t.EntryPrice.StringFixed(2),
			exitPrice,
			netPnL,
			netPct,
			days,
			reason,
		)
	}
	table.Render()
}

func (c *Console) printPeriodReturns(monthly, yearly map[string]float64) {
	if len(monthly) == 0 && len(yearly) == 0 {
		return
	}

	fmt.Fprintln(c.out, "\n--- Period returns ---")

	if len(monthly) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Month", "Return")
		for _, key := range sortedKeys(monthly) {
			table.Append(key, signedPct(monthly[key]))
		}
		table.Render()
	}

	if len(yearly) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Year", "Return")
		for _, key := range sortedKeys(yearly) {
			table.Append(key, signedPct(yearly[key]))
		}
		table.Render()
	}
}

// RenderRuns prints the stored-run listing, newest first as given.
func (c *Console) RenderRuns(runs []store.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "No stored runs.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Run", "Status", "Strategies", "Symbols", "Period", "Return", "MaxDD", "Sharpe", "Trades", "Finished")

	for _, r := range runs {
		period := "-"
		if !r.StartDate.IsZero() {
			period = fmt.Sprintf("%s..%s", r.StartDate.Format("2006-01-02"), r.EndDate.Format("2006-01-02"))
		}

		table.Append(
			r.ID,
			r.Status,
			strings.Join(r.Strategies, ","),
			strings.Join(r.Symbols, ","),
			period,
			signedPct(r.TotalReturn),
			pct(r.MaxDrawdown),
			fmt.Sprintf("%.2f", r.SharpeRatio),
			fmt.Sprintf("%d", r.TotalTrades),
			r.FinishedAt.Format("2006-01-02 15:04"),
		)
	}
	table.Render()
}

// --- formatting helpers ---

func money(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func signedPct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v*100)
}

func pctFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
