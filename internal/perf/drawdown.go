package perf

import "time"

// Drawdowns computes the running drawdown series of an equity curve:
// (equity - runningPeak) / runningPeak. Every value is zero or
// negative. The peak is seeded with startPeak so a curve that opens
// below its starting capital already counts as underwater; pass zero
// for pure curve-relative drawdowns.
func Drawdowns(equity []float64, startPeak float64) []float64 {
	dd := make([]float64, len(equity))
	peak := startPeak
	for i, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			dd[i] = (e - peak) / peak
		}
	}
	return dd
}

// maxDrawdown returns the most negative value of the series.
func maxDrawdown(dd []float64) float64 {
	min := 0.0
	for _, d := range dd {
		if d < min {
			min = d
		}
	}
	return min
}

// avgDrawdown returns the mean of the strictly negative values, zero
// when the curve never left its peak.
func avgDrawdown(dd []float64) float64 {
	sum := 0.0
	n := 0
	for _, d := range dd {
		if d < 0 {
			sum += d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// longestUnderwater returns the longest contiguous span, in calendar
// days inclusive, during which the drawdown stays strictly negative.
func longestUnderwater(dates []time.Time, dd []float64) int {
	longest := 0
	start := -1
	for i := range dd {
		if dd[i] < 0 {
			if start < 0 {
				start = i
			}
			span := int(dates[i].Sub(dates[start]).Hours()/24) + 1
			if span > longest {
				longest = span
			}
		} else {
			start = -1
		}
	}
	return longest
}
