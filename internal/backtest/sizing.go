package backtest

import (
	"github.com/shopspring/decimal"

	"github.com/quantbed/quantbed/internal/costs"
)

// SizeMethod selects how entry notionals are computed.
type SizeMethod string

const (
	SizeFixed   SizeMethod = "fixed"
	SizePercent SizeMethod = "percent"
	SizeRisk    SizeMethod = "risk"
	SizeKelly   SizeMethod = "kelly"
)

// cashReserve keeps a sliver of cash uncommitted so commissions on the
// fill never drive the balance negative.
var cashReserve = decimal.NewFromFloat(0.95)

// Sizer computes target entry notionals. Every method's output is
// clipped to the single-position equity fraction and to 95% of
// available cash.
type Sizer struct {
	Method SizeMethod
	// Value is the notional amount for the fixed method and the equity
	// fraction for the percent and kelly methods.
	Value decimal.Decimal
	// KellyWinRate is the assumed win rate when no empirical rate is
	// tracked.
	KellyWinRate decimal.Decimal
	// MaxPositionPct caps the notional as a fraction of equity; zero
	// disables the cap.
	MaxPositionPct decimal.Decimal
	// RiskBudget is the equity fraction risked per trade by the risk
	// method.
	RiskBudget decimal.Decimal
	// StopLossPct converts the risk budget into a notional via the stop
	// distance.
	StopLossPct decimal.Decimal
}

// Notional returns the clipped target notional for a new entry, given
// the account state at decision time. Strength scales the percent and
// kelly methods. A non-positive result means no entry.
func (s Sizer) Notional(equity, cash decimal.Decimal, strength float64) decimal.Decimal {
	var notional decimal.Decimal
	str := decimal.NewFromFloat(strength)

	switch s.Method {
	case SizeFixed:
		notional = s.Value
	case SizePercent:
		notional = equity.Mul(s.Value).Mul(str)
	case SizeRisk:
		// riskBudget/stopDistance shares at price p is a notional of
		// equity * riskBudget / stopLossPct.
		if !s.StopLossPct.IsPositive() {
			return decimal.Zero
		}
		notional = equity.Mul(s.RiskBudget).Div(s.StopLossPct)
	case SizeKelly:
		edge := s.KellyWinRate.Mul(decimal.NewFromInt(2)).Sub(decimal.NewFromInt(1))
		if !edge.IsPositive() {
			return decimal.Zero
		}
		notional = equity.Mul(s.Value).Mul(edge).Mul(str)
	default:
		return decimal.Zero
	}

	if s.MaxPositionPct.IsPositive() {
		if limit := equity.Mul(s.MaxPositionPct); notional.GreaterThan(limit) {
			notional = limit
		}
	}
	if limit := cash.Mul(cashReserve); notional.GreaterThan(limit) {
		notional = limit
	}
	return notional
}

// MaxAffordable lowers qty until the notional plus its entry commission
// fits within cash, instead of rejecting the order outright.
func MaxAffordable(qty int64, price, cash decimal.Decimal, model *costs.Model) int64 {
	if !price.IsPositive() || qty <= 0 {
		return 0
	}
	if bound := cash.Div(price).IntPart(); qty > bound {
		qty = bound
	}
	for qty > 0 {
		notional := price.Mul(decimal.NewFromInt(qty))
		if notional.Add(model.BuyCost(notional)).LessThanOrEqual(cash) {
			return qty
		}
		qty--
	}
	return 0
}
