package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySnapshot records the account state at the end of one bar after
// all fills and marks of that bar settled. Equity always equals Cash
// plus PositionsValue.
type DailySnapshot struct {
	// Date is the bar date.
	Date time.Time `json:"date"`
	// Equity is cash plus the mark value of open positions.
	Equity decimal.Decimal `json:"equity"`
	// Cash is the uninvested balance.
	Cash decimal.Decimal `json:"cash"`
	// PositionsValue is the summed mark value of open positions.
	PositionsValue decimal.Decimal `json:"positions_value"`
	// DayPnL is the equity change since the previous snapshot.
	DayPnL decimal.Decimal `json:"day_pnl"`
	// DayReturn is DayPnL over the previous equity.
	DayReturn float64 `json:"day_return"`
	// CumulativeReturn is the equity growth since inception.
	CumulativeReturn float64 `json:"cumulative_return"`
	// Drawdown is the fractional decline from the running equity peak,
	// zero or negative.
	Drawdown float64 `json:"drawdown"`
	// OpenPositions is the number of positions held at the close.
	OpenPositions int `json:"open_positions"`
	// TradesToday is the number of fills executed during the bar.
	TradesToday int `json:"trades_today"`
}

// Snapshot builds the end-of-bar record from the account state.
// prevEquity and peakEquity come from the previous snapshot and the
// running maximum; initialCapital anchors the cumulative return.
func Snapshot(date time.Time, cash decimal.Decimal, ledger *Ledger, prevEquity, peakEquity, initialCapital decimal.Decimal, tradesToday int) DailySnapshot {
	positionsValue := ledger.MarkValue()
	equity := cash.Add(positionsValue)

	snap := DailySnapshot{
		Date:           date,
		Equity:         equity,
		Cash:           cash,
		PositionsValue: positionsValue,
		DayPnL:         equity.Sub(prevEquity),
		OpenPositions:  ledger.Count(),
		TradesToday:    tradesToday,
	}
	if prevEquity.IsPositive() {
		snap.DayReturn, _ = snap.DayPnL.Div(prevEquity).Float64()
	}
	if initialCapital.IsPositive() {
		snap.CumulativeReturn, _ = equity.Sub(initialCapital).Div(initialCapital).Float64()
	}
	if peakEquity.IsPositive() && equity.LessThan(peakEquity) {
		snap.Drawdown, _ = equity.Sub(peakEquity).Div(peakEquity).Float64()
	}
	return snap
}
