package indicator

import "math"

// SMA calculates Simple Moving Average
// Returns slice of length: len(prices) - period + 1
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	// Calculate first SMA
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// EMA calculates Exponential Moving Average, seeded with the first SMA
// Returns slice of length: len(prices) - period + 1
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)
	multiplier := 2.0 / float64(period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	result = append(result, ema)

	for i := period; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
		result = append(result, ema)
	}

	return result
}

// StdDev calculates the rolling population standard deviation
// Returns slice of length: len(prices) - period + 1
func StdDev(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	means := SMA(prices, period)
	result := make([]float64, 0, len(means))
	for i, mean := range means {
		var ss float64
		for _, p := range prices[i : i+period] {
			d := p - mean
			ss += d * d
		}
		result = append(result, math.Sqrt(ss/float64(period)))
	}

	return result
}

// RSI calculates the Relative Strength Index with Wilder smoothing
// Returns slice of length: len(prices) - period
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) <= period {
		return []float64{}
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	result := make([]float64, 0, len(prices)-period)
	result = append(result, rsiValue(avgGain, avgLoss))

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		var g, l float64
		if change > 0 {
			g = change
		} else {
			l = -change
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		result = append(result, rsiValue(avgGain, avgLoss))
	}

	return result
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Bollinger calculates Bollinger Bands: the middle band is the SMA, upper
// and lower sit width standard deviations away
// Each slice has length: len(prices) - period + 1
func Bollinger(prices []float64, period int, width float64) (middle, upper, lower []float64) {
	if period <= 0 || len(prices) < period {
		return []float64{}, []float64{}, []float64{}
	}

	middle = SMA(prices, period)
	dev := StdDev(prices, period)
	upper = make([]float64, len(middle))
	lower = make([]float64, len(middle))
	for i := range middle {
		upper[i] = middle[i] + width*dev[i]
		lower[i] = middle[i] - width*dev[i]
	}

	return middle, upper, lower
}

// ATR calculates the Average True Range with Wilder smoothing. The first
// true range uses the plain high-low span since no prior close exists
// Returns slice of length: len(closes) - period + 1
func ATR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	if period <= 0 || n < period || len(highs) != n || len(lows) != n {
		return []float64{}
	}

	tr := make([]float64, n)
	tr[0] = highs[0] - lows[0]
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	atr := sum / float64(period)

	result := make([]float64, 0, n-period+1)
	result = append(result, atr)
	for i := period; i < n; i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		result = append(result, atr)
	}

	return result
}
