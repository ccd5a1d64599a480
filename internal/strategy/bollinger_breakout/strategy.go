// Package bollinger_breakout implements a Bollinger band breakout strategy
package bollinger_breakout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantbed/quantbed/internal/core"
	"github.com/quantbed/quantbed/internal/indicator"
	"github.com/quantbed/quantbed/internal/strategy"
)

// BollingerBreakout buys closes above the upper band and exits when the
// price falls back through the middle band. Buy signals carry the
// middle band as an explicit stop level.
type BollingerBreakout struct {
	period int
	width  float64
}

// New creates a new Bollinger Breakout strategy
func New(period int, width float64) *BollingerBreakout {
	return &BollingerBreakout{
		period: period,
		width:  width,
	}
}

func (b *BollingerBreakout) Name() string { return "bollinger_breakout" }

func (b *BollingerBreakout) Description() string {
	return fmt.Sprintf("Bollinger Breakout (%d, %.1f sigma)", b.period, b.width)
}

func (b *BollingerBreakout) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{
		PriceHistory: b.period + 1,
		Indicators:   []string{"Bollinger"},
	}
}

func (b *BollingerBreakout) Init(cfg strategy.Config) error {
	b.period = strategy.IntParam(cfg.Params, "period", b.period)
	b.width = strategy.FloatParam(cfg.Params, "width", b.width)
	if b.period <= 1 {
		return fmt.Errorf("bollinger_breakout: period %d must exceed 1", b.period)
	}
	if b.width <= 0 {
		return fmt.Errorf("bollinger_breakout: width %.2f must be positive", b.width)
	}
	return nil
}

func (b *BollingerBreakout) Analyze(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	prices := strategy.Closes(ctx.Bars)
	middle, upper, _ := indicator.Bollinger(prices, b.period, b.width)
	if len(upper) < 2 {
		return nil, nil // Not enough data
	}

	currClose := prices[len(prices)-1]
	prevClose := prices[len(prices)-2]
	currUpper := upper[len(upper)-1]
	prevUpper := upper[len(upper)-2]
	currMiddle := middle[len(middle)-1]

	last := ctx.Bars[len(ctx.Bars)-1]
	var signals []core.Signal

	// Breakout: close crosses above the upper band
	if prevClose <= prevUpper && currClose > currUpper {
		signals = append(signals, core.Signal{
			Symbol:      ctx.Symbol,
			Action:      core.ActionBuy,
			Price:       last.Close,
			Strength:    b.strength(currClose, currUpper),
			StopLoss:    decimal.NewFromFloat(currMiddle),
			Reason:      fmt.Sprintf("Close (%.2f) broke above upper band (%.2f)", currClose, currUpper),
			GeneratedAt: ctx.Now,
		})
	}

	// Failed breakout: close falls back through the middle band
	if ctx.HasPosition && currClose < currMiddle {
		signals = append(signals, core.Signal{
			Symbol:      ctx.Symbol,
			Action:      core.ActionSell,
			Price:       last.Close,
			Strength:    0.5,
			Reason:      fmt.Sprintf("Close (%.2f) fell below middle band (%.2f)", currClose, currMiddle),
			GeneratedAt: ctx.Now,
		})
	}

	return signals, nil
}

// strength scales with the breakout distance, capped at 0.9
func (b *BollingerBreakout) strength(close, upper float64) float64 {
	if upper <= 0 {
		return 0.5
	}
	strength := 0.5 + ((close-upper)/upper)*20
	if strength > 0.9 {
		strength = 0.9
	}
	return strength
}
