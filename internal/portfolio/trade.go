package portfolio

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantbed/quantbed/internal/core"
)

// Trade is one round trip. The entry half is populated when the trade
// is recorded and the exit half exactly once by Close. Entry and exit
// prices are the slippage-adjusted fills.
type Trade struct {
	// Seq is the 1-based entry order assigned by the log.
	Seq int `json:"seq"`
	// Symbol is the instrument identifier.
	Symbol string `json:"symbol"`
	// Strategy names the strategy that opened the trade.
	Strategy string `json:"strategy,omitempty"`
	// EntryDate is the bar date of the entry fill.
	EntryDate time.Time `json:"entry_date"`
	// EntryPrice is the slippage-adjusted entry fill price.
	EntryPrice decimal.Decimal `json:"entry_price"`
	// Quantity is the number of shares; exits are all-or-nothing.
	Quantity int64 `json:"quantity"`
	// EntryCommission is the commission charged on the entry fill.
	EntryCommission decimal.Decimal `json:"entry_commission"`
	// SlippageCost accumulates the price impact of both fills.
	SlippageCost decimal.Decimal `json:"slippage_cost"`
	// ExitDate is the bar date of the exit fill; zero while open.
	ExitDate time.Time `json:"exit_date,omitempty"`
	// ExitPrice is the slippage-adjusted exit fill price.
	ExitPrice decimal.Decimal `json:"exit_price"`
	// ExitCommission is the commission and tax charged on the exit fill.
	ExitCommission decimal.Decimal `json:"exit_commission"`
	// ExitReason records what triggered the exit.
	ExitReason core.ExitReason `json:"exit_reason,omitempty"`
	// GrossPnL is (exit - entry) * quantity before costs.
	GrossPnL decimal.Decimal `json:"gross_pnl"`
	// NetPnL is GrossPnL minus commissions and slippage cost.
	NetPnL decimal.Decimal `json:"net_pnl"`
	// NetPnLPct is NetPnL as a fraction of the entry cost.
	NetPnLPct decimal.Decimal `json:"net_pnl_pct"`
	// HoldingDays is the calendar span between entry and exit.
	HoldingDays int `json:"holding_days"`
}

// Closed reports whether the exit half has been populated.
func (t *Trade) Closed() bool {
	return !t.ExitDate.IsZero()
}

// Close populates the exit half of the trade and derives the P&L
// fields. Calling Close twice is an error.
func (t *Trade) Close(date time.Time, price decimal.Decimal, reason core.ExitReason, commission, slippage decimal.Decimal) error {
	if t.Closed() {
		return ErrTradeClosed
	}
	t.ExitDate = date
	t.ExitPrice = price
	t.ExitReason = reason
	t.ExitCommission = commission
	t.SlippageCost = t.SlippageCost.Add(slippage)

	qty := decimal.NewFromInt(t.Quantity)
	t.GrossPnL = t.ExitPrice.Sub(t.EntryPrice).Mul(qty)
	t.NetPnL = t.GrossPnL.Sub(t.EntryCommission).Sub(t.ExitCommission).Sub(t.SlippageCost)
	cost := t.EntryPrice.Mul(qty)
	if cost.IsPositive() {
		t.NetPnLPct = t.NetPnL.Div(cost)
	}
	t.HoldingDays = int(t.ExitDate.Sub(t.EntryDate).Hours() / 24)
	return nil
}

// Log is the append-only record of every trade in a run.
type Log struct {
	trades []*Trade
}

// NewLog creates an empty trade log.
func NewLog() *Log {
	return &Log{}
}

// Append records a trade and assigns its sequence number.
func (l *Log) Append(t *Trade) {
	t.Seq = len(l.trades) + 1
	l.trades = append(l.trades, t)
}

// Len returns the number of recorded trades.
func (l *Log) Len() int {
	return len(l.trades)
}

// All returns every trade in entry order.
func (l *Log) All() []*Trade {
	return l.trades
}

// Open returns the trades whose exit half is not yet populated, in
// entry order.
func (l *Log) Open() []*Trade {
	var open []*Trade
	for _, t := range l.trades {
		if !t.Closed() {
			open = append(open, t)
		}
	}
	return open
}

// Find returns the open trade for symbol, or nil when none is open.
func (l *Log) Find(symbol string) *Trade {
	for _, t := range l.trades {
		if t.Symbol == symbol && !t.Closed() {
			return t
		}
	}
	return nil
}

// Closed returns the completed trades ordered by exit date, breaking
// ties by entry order. Streak statistics depend on this ordering.
func (l *Log) Closed() []*Trade {
	var closed []*Trade
	for _, t := range l.trades {
		if t.Closed() {
			closed = append(closed, t)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		if !closed[i].ExitDate.Equal(closed[j].ExitDate) {
			return closed[i].ExitDate.Before(closed[j].ExitDate)
		}
		return closed[i].Seq < closed[j].Seq
	})
	return closed
}
