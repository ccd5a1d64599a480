package feed

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantbed/quantbed/internal/core"
)

// Dataset is the in-memory bar collection a run replays, keyed by
// symbol. Its underlying type matches what the engine consumes, so a
// Dataset passes straight through.
type Dataset map[string][]core.Bar

// NewDataset creates an empty dataset.
func NewDataset() Dataset {
	return make(Dataset)
}

// Add merges bars into the symbol's series.
func (d Dataset) Add(symbol string, bars []core.Bar) {
	d[symbol] = append(d[symbol], bars...)
}

// Symbols returns the instrument identifiers in sorted order.
func (d Dataset) Symbols() []string {
	out := make([]string, 0, len(d))
	for sym := range d {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// TotalBars returns the bar count across every instrument.
func (d Dataset) TotalBars() int {
	n := 0
	for _, bars := range d {
		n += len(bars)
	}
	return n
}

// Range returns the earliest and latest bar dates across every
// instrument; zero times when the dataset is empty.
func (d Dataset) Range() (start, end time.Time) {
	for _, bars := range d {
		for _, b := range bars {
			if start.IsZero() || b.Date.Before(start) {
				start = b.Date
			}
			if b.Date.After(end) {
				end = b.Date
			}
		}
	}
	return start, end
}

// Series builds a daily sequence of flat bars from consecutive closes,
// one calendar day apart. Fixture helper for tests.
func Series(symbol string, start time.Time, closes []float64) []core.Bar {
	bars := make([]core.Bar, len(closes))
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		bars[i] = core.Bar{
			Symbol: symbol,
			Date:   start.AddDate(0, 0, i),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: 1000,
		}
	}
	return bars
}
