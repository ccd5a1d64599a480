package indicator

import (
	"math"
	"testing"
)

func TestSMA_Calculate(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15}

	sma := SMA(prices, 3)

	// SMA(3) for [10,11,12,13,14,15]:
	// [0] = (10+11+12)/3 = 11
	// [1] = (11+12+13)/3 = 12
	// [2] = (12+13+14)/3 = 13
	// [3] = (13+14+15)/3 = 14

	expected := []float64{11, 12, 13, 14}

	if len(sma) != len(expected) {
		t.Fatalf("expected %d values, got %d", len(expected), len(sma))
	}

	for i, v := range expected {
		if sma[i] != v {
			t.Errorf("sma[%d] = %f, want %f", i, sma[i], v)
		}
	}
}

func TestSMA_NotEnoughData(t *testing.T) {
	prices := []float64{10, 11}
	sma := SMA(prices, 5)

	if len(sma) != 0 {
		t.Errorf("expected empty slice, got %d values", len(sma))
	}
}

func TestEMA_Calculate(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14, 15}
	ema := EMA(prices, 3)

	if len(ema) != 4 {
		t.Fatalf("expected 4 values, got %d", len(ema))
	}

	// First EMA = SMA = 11
	if ema[0] != 11 {
		t.Errorf("first EMA should equal SMA, got %f", ema[0])
	}

	// Subsequent EMAs should trend upward
	for i := 1; i < len(ema); i++ {
		if ema[i] <= ema[i-1] {
			t.Errorf("EMA should be increasing, ema[%d]=%f <= ema[%d]=%f", i, ema[i], i-1, ema[i-1])
		}
	}
}

func TestStdDev_Calculate(t *testing.T) {
	prices := []float64{2, 4, 6, 8}

	dev := StdDev(prices, 3)

	// window [2,4,6]: mean 4, var (4+0+4)/3, stdev sqrt(8/3)
	// window [4,6,8]: same spread
	want := math.Sqrt(8.0 / 3.0)

	if len(dev) != 2 {
		t.Fatalf("expected 2 values, got %d", len(dev))
	}
	for i, v := range dev {
		if !almostEqual(v, want, 1e-12) {
			t.Errorf("dev[%d] = %f, want %f", i, v, want)
		}
	}
}

func TestStdDev_ConstantSeries(t *testing.T) {
	dev := StdDev([]float64{5, 5, 5, 5, 5}, 3)
	for i, v := range dev {
		if v != 0 {
			t.Errorf("dev[%d] = %f, want 0 for constant series", i, v)
		}
	}
}

func TestRSI_Calculate(t *testing.T) {
	// Strictly rising series: no losses, RSI pegs at 100
	up := []float64{10, 11, 12, 13, 14, 15, 16, 17}
	rsi := RSI(up, 5)

	if len(rsi) != len(up)-5 {
		t.Fatalf("expected %d values, got %d", len(up)-5, len(rsi))
	}
	for i, v := range rsi {
		if v != 100 {
			t.Errorf("rsi[%d] = %f, want 100 for all-gain series", i, v)
		}
	}

	// Strictly falling series: no gains, RSI at 0
	down := []float64{17, 16, 15, 14, 13, 12, 11, 10}
	rsi = RSI(down, 5)
	for i, v := range rsi {
		if v != 0 {
			t.Errorf("rsi[%d] = %f, want 0 for all-loss series", i, v)
		}
	}
}

func TestRSI_Bounds(t *testing.T) {
	prices := []float64{44, 44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08, 45.89, 46.03, 45.61, 46.28}
	rsi := RSI(prices, 14)

	if len(rsi) != 1 {
		t.Fatalf("expected 1 value, got %d", len(rsi))
	}
	if rsi[0] < 0 || rsi[0] > 100 {
		t.Errorf("rsi out of bounds: %f", rsi[0])
	}
	// Mostly-gaining series should sit above the midline
	if rsi[0] < 50 {
		t.Errorf("expected rsi above 50 for gaining series, got %f", rsi[0])
	}
}

func TestRSI_NotEnoughData(t *testing.T) {
	if got := RSI([]float64{10, 11, 12}, 3); len(got) != 0 {
		t.Errorf("expected empty slice, got %d values", len(got))
	}
}

func TestBollinger_Calculate(t *testing.T) {
	prices := []float64{10, 10, 10, 10, 10}
	middle, upper, lower := Bollinger(prices, 3, 2)

	if len(middle) != 3 || len(upper) != 3 || len(lower) != 3 {
		t.Fatalf("expected 3 values per band, got %d/%d/%d", len(middle), len(upper), len(lower))
	}

	// Constant series: all bands collapse onto the price
	for i := range middle {
		if middle[i] != 10 || upper[i] != 10 || lower[i] != 10 {
			t.Errorf("bands[%d] = %f/%f/%f, want 10/10/10", i, middle[i], upper[i], lower[i])
		}
	}
}

func TestBollinger_Width(t *testing.T) {
	prices := []float64{2, 4, 6, 8, 10, 12}
	middle, upper, lower := Bollinger(prices, 3, 2)

	for i := range middle {
		if !almostEqual(upper[i]-middle[i], middle[i]-lower[i], 1e-12) {
			t.Errorf("bands not symmetric at %d: %f vs %f", i, upper[i]-middle[i], middle[i]-lower[i])
		}
		if upper[i] <= middle[i] {
			t.Errorf("upper band should exceed middle at %d", i)
		}
	}
}

func TestATR_Calculate(t *testing.T) {
	highs := []float64{12, 13, 14, 15}
	lows := []float64{10, 11, 12, 13}
	closes := []float64{11, 12, 13, 14}

	atr := ATR(highs, lows, closes, 3)

	// Every bar spans 2 and gaps stay inside the span, so TR is 2
	// throughout and the smoothed ATR stays at 2.
	if len(atr) != 2 {
		t.Fatalf("expected 2 values, got %d", len(atr))
	}
	for i, v := range atr {
		if !almostEqual(v, 2, 1e-12) {
			t.Errorf("atr[%d] = %f, want 2", i, v)
		}
	}
}

func TestATR_GapDay(t *testing.T) {
	// Second bar gaps up: TR uses distance from the prior close
	highs := []float64{12, 20, 21}
	lows := []float64{10, 19, 20}
	closes := []float64{11, 19.5, 20.5}

	atr := ATR(highs, lows, closes, 2)

	// TR = [2, |20-11|=9, 1.5]; first ATR = (2+9)/2 = 5.5
	if len(atr) != 2 {
		t.Fatalf("expected 2 values, got %d", len(atr))
	}
	if !almostEqual(atr[0], 5.5, 1e-12) {
		t.Errorf("atr[0] = %f, want 5.5", atr[0])
	}
}

func TestATR_MismatchedLengths(t *testing.T) {
	if got := ATR([]float64{1, 2}, []float64{1}, []float64{1, 2}, 2); len(got) != 0 {
		t.Errorf("expected empty slice on mismatched inputs, got %d values", len(got))
	}
}

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}
