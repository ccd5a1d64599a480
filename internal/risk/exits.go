package risk

import (
	"github.com/shopspring/decimal"

	"github.com/quantbed/quantbed/internal/core"
)

// Levels holds the protective price levels attached to an open position.
// A zero decimal means the level is disabled.
type Levels struct {
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Trailing   decimal.Decimal
}

// ExitTrigger describes a protective exit decision for one bar. Price is
// the threshold level the exit executes at, not the bar's close.
type ExitTrigger struct {
	Reason core.ExitReason
	Price  decimal.Decimal
}

// EvaluateExit checks a position's levels against the bar's high/low
// range. Stop-loss is evaluated first, then take-profit, then the
// trailing stop: downside protection wins when several thresholds are
// crossed intrabar, and exactly one reason is reported.
func (p Policy) EvaluateExit(levels Levels, high, low decimal.Decimal) *ExitTrigger {
	if levels.StopLoss.IsPositive() && low.LessThanOrEqual(levels.StopLoss) {
		return &ExitTrigger{Reason: core.ExitStopLoss, Price: levels.StopLoss}
	}
	if levels.TakeProfit.IsPositive() && high.GreaterThanOrEqual(levels.TakeProfit) {
		return &ExitTrigger{Reason: core.ExitTakeProfit, Price: levels.TakeProfit}
	}
	if p.UseTrailingStop && levels.Trailing.IsPositive() && low.LessThanOrEqual(levels.Trailing) {
		return &ExitTrigger{Reason: core.ExitTrailing, Price: levels.Trailing}
	}
	return nil
}

// RaiseTrailing recomputes the trailing level from a new high watermark
// as high x (1 - stopLossPct). The level only ever moves up.
func (p Policy) RaiseTrailing(current, high decimal.Decimal) decimal.Decimal {
	if !p.UseTrailingStop || !p.StopLossPct.IsPositive() {
		return current
	}
	candidate := high.Mul(decimal.NewFromInt(1).Sub(p.StopLossPct))
	if candidate.GreaterThan(current) {
		return candidate
	}
	return current
}

// EntryLevels derives the protective levels for a new position opened at
// entryPrice. Explicit signal levels win when dynamic stops are enabled;
// otherwise an ATR estimate with configured multipliers; otherwise the
// policy's default percentages. The trailing level starts at the
// stop-loss when trailing is enabled.
func (p Policy) EntryLevels(entryPrice, signalStop, signalTake, atr decimal.Decimal) Levels {
	var levels Levels

	if p.UseDynamicStops {
		if signalStop.IsPositive() {
			levels.StopLoss = signalStop
		}
		if signalTake.IsPositive() {
			levels.TakeProfit = signalTake
		}
	}

	if levels.StopLoss.IsZero() && atr.IsPositive() && p.ATRStopMultiplier.IsPositive() {
		stop := entryPrice.Sub(atr.Mul(p.ATRStopMultiplier))
		if stop.IsPositive() {
			levels.StopLoss = stop
		}
	}
	if levels.TakeProfit.IsZero() && atr.IsPositive() && p.ATRProfitMultiplier.IsPositive() {
		levels.TakeProfit = entryPrice.Add(atr.Mul(p.ATRProfitMultiplier))
	}

	if levels.StopLoss.IsZero() && p.StopLossPct.IsPositive() {
		levels.StopLoss = entryPrice.Mul(decimal.NewFromInt(1).Sub(p.StopLossPct))
	}
	if levels.TakeProfit.IsZero() && p.TakeProfitPct.IsPositive() {
		levels.TakeProfit = entryPrice.Mul(decimal.NewFromInt(1).Add(p.TakeProfitPct))
	}

	if p.UseTrailingStop {
		levels.Trailing = levels.StopLoss
	}

	return levels
}
