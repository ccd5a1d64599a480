// Package ensemble combines member strategies by weighted vote
package ensemble

import (
	"fmt"

	"github.com/quantbed/quantbed/internal/core"
	"github.com/quantbed/quantbed/internal/strategy"
)

// Member pairs a strategy with its vote weight.
type Member struct {
	Strategy strategy.Strategy
	Weight   float64
}

// Ensemble runs its members on the same context and emits a signal when
// the weighted net vote clears the threshold. Stops attached by the
// winning side's members are propagated.
type Ensemble struct {
	members   []Member
	threshold float64
}

// New creates a new Ensemble strategy
func New(threshold float64, members ...Member) *Ensemble {
	return &Ensemble{
		members:   members,
		threshold: threshold,
	}
}

func (e *Ensemble) Name() string { return "ensemble" }

func (e *Ensemble) Description() string {
	return fmt.Sprintf("Ensemble of %d strategies (threshold %.2f)", len(e.members), e.threshold)
}

func (e *Ensemble) RequiredData() strategy.DataRequirements {
	req := strategy.DataRequirements{}
	seen := make(map[string]bool)
	for _, m := range e.members {
		mr := m.Strategy.RequiredData()
		if mr.PriceHistory > req.PriceHistory {
			req.PriceHistory = mr.PriceHistory
		}
		for _, ind := range mr.Indicators {
			if !seen[ind] {
				seen[ind] = true
				req.Indicators = append(req.Indicators, ind)
			}
		}
	}
	return req
}

func (e *Ensemble) Init(cfg strategy.Config) error {
	e.threshold = strategy.FloatParam(cfg.Params, "threshold", e.threshold)
	if e.threshold <= 0 || e.threshold > 1 {
		return fmt.Errorf("ensemble: threshold %.2f must be in (0, 1]", e.threshold)
	}
	if len(e.members) == 0 {
		return fmt.Errorf("ensemble: no member strategies")
	}
	for _, m := range e.members {
		if m.Weight <= 0 {
			return fmt.Errorf("ensemble: member %q has non-positive weight", m.Strategy.Name())
		}
	}
	return nil
}

func (e *Ensemble) Analyze(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	if len(ctx.Bars) == 0 {
		return nil, nil
	}

	var (
		score       float64
		totalWeight float64
		buyVotes    int
		sellVotes   int
		carrier     *core.Signal
	)

	for i := range e.members {
		m := e.members[i]
		totalWeight += m.Weight

		signals, err := m.Strategy.Analyze(ctx)
		if err != nil {
			return nil, fmt.Errorf("ensemble member %q: %w", m.Strategy.Name(), err)
		}

		for j := range signals {
			sig := signals[j]
			switch sig.Action {
			case core.ActionBuy:
				score += m.Weight * sig.Strength
				buyVotes++
				if carrier == nil && (!sig.StopLoss.IsZero() || !sig.TakeProfit.IsZero() || !sig.ATR.IsZero()) {
					carrier = &signals[j]
				}
			case core.ActionSell:
				score -= m.Weight * sig.Strength
				sellVotes++
			}
		}
	}

	if totalWeight == 0 {
		return nil, nil
	}
	net := score / totalWeight
	if net < e.threshold && net > -e.threshold {
		return nil, nil
	}

	last := ctx.Bars[len(ctx.Bars)-1]
	sig := core.Signal{
		Symbol:      ctx.Symbol,
		Price:       last.Close,
		GeneratedAt: ctx.Now,
	}

	if net >= e.threshold {
		sig.Action = core.ActionBuy
		sig.Strength = clamp(net)
		sig.Confidence = float64(buyVotes) / float64(len(e.members))
		sig.Reason = fmt.Sprintf("%d of %d members voted buy (net %.2f)", buyVotes, len(e.members), net)
		if carrier != nil {
			sig.StopLoss = carrier.StopLoss
			sig.TakeProfit = carrier.TakeProfit
			sig.ATR = carrier.ATR
		}
	} else {
		sig.Action = core.ActionSell
		sig.Strength = clamp(-net)
		sig.Confidence = float64(sellVotes) / float64(len(e.members))
		sig.Reason = fmt.Sprintf("%d of %d members voted sell (net %.2f)", sellVotes, len(e.members), net)
	}

	return []core.Signal{sig}, nil
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
