package strategy

import (
	"time"

	"github.com/quantbed/quantbed/internal/core"
	"github.com/quantbed/quantbed/internal/portfolio"
)

// Config holds strategy configuration
type Config struct {
	Enabled bool
	Params  map[string]any
}

// DataRequirements specifies what data a strategy needs
type DataRequirements struct {
	PriceHistory int // Bars of history needed
	Indicators   []string
}

// AnalysisContext provides data to strategies. Bars end at the decision
// bar; the strategy never sees anything later. Positions is the full
// open-position map; HasPosition covers the common single-instrument
// check.
type AnalysisContext struct {
	Symbol      string
	Bars        []core.Bar
	Positions   map[string]*portfolio.Position
	HasPosition bool
	Now         time.Time
}

// Strategy defines the interface for trading strategies
type Strategy interface {
	Name() string
	Description() string
	RequiredData() DataRequirements
	Init(cfg Config) error
	Analyze(ctx AnalysisContext) ([]core.Signal, error)
}

// Closes extracts closing prices as floats for indicator input.
func Closes(bars []core.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

// Highs extracts high prices as floats for indicator input.
func Highs(bars []core.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High.InexactFloat64()
	}
	return out
}

// Lows extracts low prices as floats for indicator input.
func Lows(bars []core.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low.InexactFloat64()
	}
	return out
}

// IntParam reads an integer parameter, tolerating the float decoding
// YAML numbers sometimes arrive as.
func IntParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// FloatParam reads a float parameter, tolerating integer decoding.
func FloatParam(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}
