package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Ledger holds the open positions of a run, at most one per instrument.
type Ledger struct {
	positions map[string]*Position
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]*Position)}
}

// Open adds a new position to the ledger. Opening a second position for
// an instrument that already has one is an error.
func (l *Ledger) Open(p *Position) error {
	if p.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if _, exists := l.positions[p.Symbol]; exists {
		return ErrPositionExists
	}
	l.positions[p.Symbol] = p
	return nil
}

// Get returns the open position for symbol, or nil when none is open.
func (l *Ledger) Get(symbol string) *Position {
	return l.positions[symbol]
}

// Has reports whether an open position exists for symbol.
func (l *Ledger) Has(symbol string) bool {
	_, exists := l.positions[symbol]
	return exists
}

// Close removes the position for symbol from the ledger and returns it.
func (l *Ledger) Close(symbol string) (*Position, error) {
	p, exists := l.positions[symbol]
	if !exists {
		return nil, ErrPositionNotFound
	}
	delete(l.positions, symbol)
	return p, nil
}

// Count returns the number of open positions.
func (l *Ledger) Count() int {
	return len(l.positions)
}

// Symbols returns the open instruments in sorted order so iteration
// within a bar is deterministic.
func (l *Ledger) Symbols() []string {
	symbols := make([]string, 0, len(l.positions))
	for s := range l.positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Positions returns the open positions in sorted-symbol order.
func (l *Ledger) Positions() []*Position {
	result := make([]*Position, 0, len(l.positions))
	for _, s := range l.Symbols() {
		result = append(result, l.positions[s])
	}
	return result
}

// PositionMap returns a copy of the open-position map keyed by symbol.
func (l *Ledger) PositionMap() map[string]*Position {
	result := make(map[string]*Position, len(l.positions))
	for s, p := range l.positions {
		result[s] = p
	}
	return result
}

// MarkValue returns the summed mark-to-market value of all open
// positions.
func (l *Ledger) MarkValue() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.positions {
		total = total.Add(p.MarkValue())
	}
	return total
}
