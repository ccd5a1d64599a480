package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action represents a trading signal action
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// ExitReason identifies why a position was closed
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitTrailing   ExitReason = "trailing_stop"
	ExitSignal     ExitReason = "signal"
	ExitEndOfRun   ExitReason = "end_of_backtest"
)

// Bar represents one dated OHLCV observation for an instrument
type Bar struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// IsValid checks that the bar has required fields and a coherent price range
func (b Bar) IsValid() bool {
	if b.Symbol == "" || b.Date.IsZero() {
		return false
	}
	if !b.Low.IsPositive() || b.High.LessThan(b.Low) {
		return false
	}
	if b.Open.LessThan(b.Low) || b.Open.GreaterThan(b.High) {
		return false
	}
	return !b.Close.LessThan(b.Low) && !b.Close.GreaterThan(b.High)
}

// Signal represents a trading intent emitted by a strategy for one bar
type Signal struct {
	Symbol      string          `json:"symbol"`
	Action      Action          `json:"action"`
	Price       decimal.Decimal `json:"price"`                 // reference price at signal generation
	Strength    float64         `json:"strength"`              // position-sizing weight in [0,1]
	Confidence  float64         `json:"confidence,omitempty"`  // optional model confidence in [0,1]
	StopLoss    decimal.Decimal `json:"stop_loss,omitempty"`   // optional explicit stop level
	TakeProfit  decimal.Decimal `json:"take_profit,omitempty"` // optional explicit target level
	ATR         decimal.Decimal `json:"atr,omitempty"`         // optional volatility estimate for stop derivation
	Reason      string          `json:"reason"`
	Strategy    string          `json:"strategy"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// IsValid checks if the signal has required fields
func (s Signal) IsValid() bool {
	switch s.Action {
	case ActionBuy, ActionSell, ActionHold:
	default:
		return false
	}
	return s.Symbol != "" && s.Strength >= 0 && s.Strength <= 1
}
