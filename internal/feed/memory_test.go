package feed_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbed/quantbed/internal/feed"
)

func TestSeries(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := feed.Series("FIX", start, []float64{100, 101, 102.5})

	require.Len(t, bars, 3)
	for i, b := range bars {
		assert.True(t, b.IsValid(), "bar %d should be valid", i)
		assert.Equal(t, "FIX", b.Symbol)
		assert.True(t, b.Date.Equal(start.AddDate(0, 0, i)))
		assert.True(t, b.Open.Equal(b.Close), "fixture bars are flat")
	}
	assert.Equal(t, "102.5", bars[2].Close.String())
}

func TestDataset(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	ds := feed.NewDataset()
	ds.Add("BBB", feed.Series("BBB", start, []float64{1, 2}))
	ds.Add("AAA", feed.Series("AAA", start.AddDate(0, 0, 1), []float64{1, 2, 3}))

	assert.Equal(t, []string{"AAA", "BBB"}, ds.Symbols())
	assert.Equal(t, 5, ds.TotalBars())

	first, last := ds.Range()
	assert.True(t, first.Equal(start), "got %s", first)
	assert.True(t, last.Equal(start.AddDate(0, 0, 3)), "got %s", last)
}

func TestDataset_RangeEmpty(t *testing.T) {
	first, last := feed.NewDataset().Range()
	assert.True(t, first.IsZero())
	assert.True(t, last.IsZero())
}
