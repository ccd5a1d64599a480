package ma_crossover

import (
	"fmt"

	"github.com/quantbed/quantbed/internal/core"
	"github.com/quantbed/quantbed/internal/indicator"
	"github.com/quantbed/quantbed/internal/strategy"
)

// MACrossover implements a moving average crossover strategy
type MACrossover struct {
	fastPeriod int
	slowPeriod int
}

// New creates a new MA Crossover strategy
func New(fastPeriod, slowPeriod int) *MACrossover {
	return &MACrossover{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
	}
}

func (m *MACrossover) Name() string {
	return "ma_crossover"
}

func (m *MACrossover) Description() string {
	return fmt.Sprintf("MA Crossover (%d/%d)", m.fastPeriod, m.slowPeriod)
}

func (m *MACrossover) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{
		PriceHistory: m.slowPeriod + 1, // Two slow MA values for cross detection
		Indicators:   []string{"SMA"},
	}
}

func (m *MACrossover) Init(cfg strategy.Config) error {
	m.fastPeriod = strategy.IntParam(cfg.Params, "fast_period", m.fastPeriod)
	m.slowPeriod = strategy.IntParam(cfg.Params, "slow_period", m.slowPeriod)
	if m.fastPeriod <= 0 || m.slowPeriod <= m.fastPeriod {
		return fmt.Errorf("ma_crossover: fast period %d must be positive and below slow period %d", m.fastPeriod, m.slowPeriod)
	}
	return nil
}

func (m *MACrossover) Analyze(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	if len(ctx.Bars) < m.slowPeriod+1 {
		return nil, nil // Not enough data
	}

	prices := strategy.Closes(ctx.Bars)

	fastMA := indicator.SMA(prices, m.fastPeriod)
	slowMA := indicator.SMA(prices, m.slowPeriod)

	if len(fastMA) < 2 || len(slowMA) < 2 {
		return nil, nil
	}

	// Get current and previous values
	currFast := fastMA[len(fastMA)-1]
	prevFast := fastMA[len(fastMA)-2]
	currSlow := slowMA[len(slowMA)-1]
	prevSlow := slowMA[len(slowMA)-2]

	last := ctx.Bars[len(ctx.Bars)-1]
	var signals []core.Signal

	// Golden Cross: fast crosses above slow
	if prevFast <= prevSlow && currFast > currSlow {
		signals = append(signals, core.Signal{
			Symbol:      ctx.Symbol,
			Action:      core.ActionBuy,
			Price:       last.Close,
			Strength:    m.strength(currFast, currSlow),
			Reason:      fmt.Sprintf("Golden Cross: MA%d (%.2f) crossed above MA%d (%.2f)", m.fastPeriod, currFast, m.slowPeriod, currSlow),
			GeneratedAt: ctx.Now,
		})
	}

	// Death Cross: fast crosses below slow
	if prevFast >= prevSlow && currFast < currSlow {
		signals = append(signals, core.Signal{
			Symbol:      ctx.Symbol,
			Action:      core.ActionSell,
			Price:       last.Close,
			Strength:    m.strength(currFast, currSlow),
			Reason:      fmt.Sprintf("Death Cross: MA%d (%.2f) crossed below MA%d (%.2f)", m.fastPeriod, currFast, m.slowPeriod, currSlow),
			GeneratedAt: ctx.Now,
		})
	}

	return signals, nil
}

// strength returns a higher weight for larger divergence
func (m *MACrossover) strength(fast, slow float64) float64 {
	diff := (fast - slow) / slow
	if diff < 0 {
		diff = -diff
	}

	// Scale to 0.5-0.9 range based on divergence
	strength := 0.5 + (diff * 10)
	if strength > 0.9 {
		strength = 0.9
	}
	return strength
}
