// Package rsi_reversion implements an RSI mean-reversion strategy
package rsi_reversion

import (
	"fmt"

	"github.com/quantbed/quantbed/internal/core"
	"github.com/quantbed/quantbed/internal/indicator"
	"github.com/quantbed/quantbed/internal/strategy"
)

// RSIReversion buys oversold instruments and sells overbought ones.
type RSIReversion struct {
	period     int
	oversold   float64
	overbought float64
}

// New creates a new RSI Reversion strategy
func New(period int, oversold, overbought float64) *RSIReversion {
	return &RSIReversion{
		period:     period,
		oversold:   oversold,
		overbought: overbought,
	}
}

func (r *RSIReversion) Name() string { return "rsi_reversion" }

func (r *RSIReversion) Description() string {
	return fmt.Sprintf("RSI Reversion (%d, buy<%.0f, sell>%.0f)", r.period, r.oversold, r.overbought)
}

func (r *RSIReversion) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{
		PriceHistory: r.period + 1,
		Indicators:   []string{"RSI"},
	}
}

func (r *RSIReversion) Init(cfg strategy.Config) error {
	r.period = strategy.IntParam(cfg.Params, "period", r.period)
	r.oversold = strategy.FloatParam(cfg.Params, "oversold", r.oversold)
	r.overbought = strategy.FloatParam(cfg.Params, "overbought", r.overbought)
	if r.period <= 0 {
		return fmt.Errorf("rsi_reversion: period %d must be positive", r.period)
	}
	if r.oversold >= r.overbought {
		return fmt.Errorf("rsi_reversion: oversold %.1f must be below overbought %.1f", r.oversold, r.overbought)
	}
	return nil
}

func (r *RSIReversion) Analyze(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	rsi := indicator.RSI(strategy.Closes(ctx.Bars), r.period)
	if len(rsi) == 0 {
		return nil, nil // Not enough data
	}

	curr := rsi[len(rsi)-1]
	last := ctx.Bars[len(ctx.Bars)-1]
	var signals []core.Signal

	if curr < r.oversold {
		signals = append(signals, core.Signal{
			Symbol:      ctx.Symbol,
			Action:      core.ActionBuy,
			Price:       last.Close,
			Strength:    r.strength(r.oversold - curr),
			Reason:      fmt.Sprintf("RSI%d (%.1f) below oversold threshold (%.0f)", r.period, curr, r.oversold),
			GeneratedAt: ctx.Now,
		})
	}

	if curr > r.overbought && ctx.HasPosition {
		signals = append(signals, core.Signal{
			Symbol:      ctx.Symbol,
			Action:      core.ActionSell,
			Price:       last.Close,
			Strength:    r.strength(curr - r.overbought),
			Reason:      fmt.Sprintf("RSI%d (%.1f) above overbought threshold (%.0f)", r.period, curr, r.overbought),
			GeneratedAt: ctx.Now,
		})
	}

	return signals, nil
}

// strength scales with the distance past the threshold, capped at 0.9
func (r *RSIReversion) strength(excess float64) float64 {
	strength := 0.5 + excess/50
	if strength > 0.9 {
		strength = 0.9
	}
	return strength
}
