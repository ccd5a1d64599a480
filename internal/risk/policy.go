// Package risk enforces entry limits, circuit breakers and protective
// exits during a simulation run.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy defines the risk limits applied during a run. Zero-valued
// fractions disable the corresponding limit.
type Policy struct {
	// MaxDrawdown is the drawdown fraction from peak equity that halts the
	// run when StopOnMaxDrawdown is set.
	MaxDrawdown decimal.Decimal
	// MaxPositionPct is the maximum fraction of equity allowed in a single position.
	MaxPositionPct decimal.Decimal
	// MaxPositions is the maximum number of concurrent positions. Zero means unlimited.
	MaxPositions int
	// MaxDailyLoss is the intraday loss fraction that suspends new entries
	// for the rest of the bar. Risk-based sizing also reads it as the
	// per-trade risk budget.
	MaxDailyLoss decimal.Decimal
	// StopLossPct and TakeProfitPct set default protective levels for new
	// positions as fractions of the entry price.
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
	// ATRStopMultiplier and ATRProfitMultiplier derive protective levels
	// from a signal-supplied ATR when no explicit levels are given.
	ATRStopMultiplier   decimal.Decimal
	ATRProfitMultiplier decimal.Decimal

	UseTrailingStop   bool
	UseDynamicStops   bool
	StopOnMaxDrawdown bool
}

// DefaultPolicy returns a Policy with sensible default values.
func DefaultPolicy() Policy {
	return Policy{
		MaxDrawdown:    decimal.NewFromFloat(0.2),
		MaxPositionPct: decimal.NewFromFloat(0.3),
		MaxPositions:   5,
		MaxDailyLoss:   decimal.NewFromFloat(0.05),
		StopLossPct:    decimal.NewFromFloat(0.08),
		TakeProfitPct:  decimal.NewFromFloat(0.15),
	}
}

// CheckResult represents the outcome of an entry check.
type CheckResult struct {
	// Allowed indicates whether the entry is permitted.
	Allowed bool
	// Reason provides explanation when the entry is rejected.
	Reason string
}

// CheckEntry validates a prospective entry against the concurrent
// position cap. Sizing limits are applied by clipping, not rejection, so
// they are not checked here.
func (p Policy) CheckEntry(openPositions int) CheckResult {
	if p.MaxPositions > 0 && openPositions >= p.MaxPositions {
		return CheckResult{
			Allowed: false,
			Reason:  fmt.Sprintf("max open positions reached: %d >= %d", openPositions, p.MaxPositions),
		}
	}
	return CheckResult{Allowed: true}
}

// DailyLossBreached reports whether the return since the bar's opening
// equity has fallen to or below the daily loss limit. A breach suspends
// new entries for the remainder of the bar; open positions are still
// managed.
func (p Policy) DailyLossBreached(dayOpenEquity, equity decimal.Decimal) bool {
	if !p.MaxDailyLoss.IsPositive() || !dayOpenEquity.IsPositive() {
		return false
	}
	dayReturn := equity.Sub(dayOpenEquity).Div(dayOpenEquity)
	return dayReturn.LessThanOrEqual(p.MaxDailyLoss.Neg())
}

// ShouldHalt reports whether the drawdown from peak equity has reached
// the maximum drawdown limit with the stop-on-max-drawdown flag set.
func (p Policy) ShouldHalt(peakEquity, equity decimal.Decimal) bool {
	if !p.StopOnMaxDrawdown || !p.MaxDrawdown.IsPositive() || !peakEquity.IsPositive() {
		return false
	}
	drawdown := equity.Sub(peakEquity).Div(peakEquity)
	return drawdown.LessThanOrEqual(p.MaxDrawdown.Neg())
}
