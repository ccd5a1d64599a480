// Package portfolio tracks open positions, closed trades and daily
// equity snapshots for one simulation run. All monetary values are
// decimals so the bookkeeping identities hold exactly. The types here
// have a single owner (the running engine) and are not safe for
// concurrent mutation.
package portfolio

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio-specific errors.
var (
	// ErrPositionExists indicates the instrument already has an open position.
	ErrPositionExists = errors.New("portfolio: position already open for instrument")
	// ErrPositionNotFound indicates no open position for the instrument.
	ErrPositionNotFound = errors.New("portfolio: position not found")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("portfolio: quantity must be positive")
	// ErrTradeClosed indicates the trade's exit half is already populated.
	ErrTradeClosed = errors.New("portfolio: trade already closed")
)

// Position represents one open holding. It is created on an entry fill,
// marked to market every bar, and removed from the ledger on close.
type Position struct {
	// Symbol is the instrument identifier.
	Symbol string `json:"symbol"`
	// Name is the display name; defaults to the symbol.
	Name string `json:"name"`
	// EntryDate is the bar date the position was opened.
	EntryDate time.Time `json:"entry_date"`
	// EntryPrice is the slippage-adjusted fill price.
	EntryPrice decimal.Decimal `json:"entry_price"`
	// Quantity is the number of shares held; positive while open.
	Quantity int64 `json:"quantity"`
	// MarkPrice is the latest close used for mark-to-market.
	MarkPrice decimal.Decimal `json:"mark_price"`
	// StopLoss is the protective stop level; zero when disabled.
	StopLoss decimal.Decimal `json:"stop_loss"`
	// TakeProfit is the target level; zero when disabled.
	TakeProfit decimal.Decimal `json:"take_profit"`
	// TrailingStop is the trailing stop level; zero when disabled.
	TrailingStop decimal.Decimal `json:"trailing_stop"`
	// HighestPrice is the highest price seen since entry.
	HighestPrice decimal.Decimal `json:"highest_price"`
	// UnrealizedPnL is the mark-to-market profit or loss.
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	// UnrealizedPnLPct is the unrealized P&L as a fraction of entry cost.
	UnrealizedPnLPct decimal.Decimal `json:"unrealized_pnl_pct"`
}

// MarkValue returns the position's current mark-to-market value.
func (p *Position) MarkValue() decimal.Decimal {
	return p.MarkPrice.Mul(decimal.NewFromInt(p.Quantity))
}

// EntryCost returns the cash originally committed at the entry fill,
// excluding commission.
func (p *Position) EntryCost() decimal.Decimal {
	return p.EntryPrice.Mul(decimal.NewFromInt(p.Quantity))
}

// MarkToMarket updates the mark price, the high watermark and the
// unrealized P&L fields from the bar's close and high.
func (p *Position) MarkToMarket(close, high decimal.Decimal) {
	p.MarkPrice = close
	if high.GreaterThan(p.HighestPrice) {
		p.HighestPrice = high
	}
	cost := p.EntryCost()
	p.UnrealizedPnL = p.MarkValue().Sub(cost)
	if cost.IsPositive() {
		p.UnrealizedPnLPct = p.UnrealizedPnL.Div(cost)
	} else {
		p.UnrealizedPnLPct = decimal.Zero
	}
}
