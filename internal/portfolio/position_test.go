package portfolio_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/quantbed/quantbed/internal/portfolio"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMarkToMarket(t *testing.T) {
	p := &portfolio.Position{
		Symbol:       "600519",
		EntryPrice:   dec("100"),
		Quantity:     200,
		HighestPrice: dec("100"),
	}

	p.MarkToMarket(dec("105"), dec("108"))
	assert.True(t, p.MarkValue().Equal(dec("21000")), "mark value %s", p.MarkValue())
	assert.True(t, p.UnrealizedPnL.Equal(dec("1000")), "unrealized %s", p.UnrealizedPnL)
	assert.True(t, p.UnrealizedPnLPct.Equal(dec("0.05")))
	assert.True(t, p.HighestPrice.Equal(dec("108")))

	// The watermark never moves down.
	p.MarkToMarket(dec("95"), dec("97"))
	assert.True(t, p.HighestPrice.Equal(dec("108")))
	assert.True(t, p.UnrealizedPnL.Equal(dec("-1000")))
}

func TestEntryCost(t *testing.T) {
	p := &portfolio.Position{Symbol: "600519", EntryPrice: dec("1700.50"), Quantity: 100}
	assert.True(t, p.EntryCost().Equal(dec("170050")), "got %s", p.EntryCost())
}
