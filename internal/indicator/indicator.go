// Package indicator provides technical indicators over candle series.
//
// Every function returns a series aligned with its input: output[i] is
// the indicator value at candle i, or NaN where the lookback window is
// not yet filled. Callers check definedness with Defined instead of
// relying on zero values, because zero is a legitimate reading for
// most of these indicators.
package indicator

import (
	"math"

	"crypto-strategy-engine/internal/exchange"
)

// Defined reports whether an indicator value carries a real reading.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

// Last returns the final value of a series, or NaN for an empty series.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// Closes extracts the close prices from a candle series
func Closes(klines []exchange.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}

// Volumes extracts the volumes from a candle series
func Volumes(klines []exchange.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Volume
	}
	return out
}

func undefinedSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// ===== MOVING AVERAGES =====

// SMA calculates the simple moving average over the given period.
// Defined from index period-1 onward.
func SMA(values []float64, period int) []float64 {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA calculates the exponential moving average over the given period.
// The first defined value, at index period-1, is seeded with the SMA of
// the first period values; later values use k = 2/(period+1).
func EMA(values []float64, period int) []float64 {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	ema := seed / float64(period)
	out[period-1] = ema

	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = values[i]*k + ema*(1-k)
		out[i] = ema
	}
	return out
}

// ===== OSCILLATORS =====

// RSI calculates the Relative Strength Index using Wilder smoothing.
// Defined from index period onward. When the average loss is zero the
// value saturates at 100, so a strictly rising series reads 100 rather
// than dividing by zero.
func RSI(values []float64, period int) []float64 {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) < period+1 {
		return out
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss += -delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain := 0.0
		loss := 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// Momentum calculates the price change over the given period:
// values[i] - values[i-period]. Defined from index period onward.
func Momentum(values []float64, period int) []float64 {
	out := undefinedSeries(len(values))
	if period <= 0 {
		return out
	}
	for i := period; i < len(values); i++ {
		out[i] = values[i] - values[i-period]
	}
	return out
}

// ===== MACD =====

// MACD calculates the MACD line, signal line and histogram.
// The MACD line is EMA(fast) - EMA(slow); the signal line is an EMA of
// the MACD line over its defined region.
func MACD(values []float64, fastPeriod, slowPeriod, signalPeriod int) (macd, signal, histogram []float64) {
	n := len(values)
	macd = undefinedSeries(n)
	signal = undefinedSeries(n)
	histogram = undefinedSeries(n)
	if n < slowPeriod {
		return macd, signal, histogram
	}

	fast := EMA(values, fastPeriod)
	slow := EMA(values, slowPeriod)
	for i := slowPeriod - 1; i < n; i++ {
		macd[i] = fast[i] - slow[i]
	}

	defined := macd[slowPeriod-1:]
	sig := EMA(defined, signalPeriod)
	for i, v := range sig {
		signal[slowPeriod-1+i] = v
		if Defined(v) {
			histogram[slowPeriod-1+i] = defined[i] - v
		}
	}
	return macd, signal, histogram
}

// ===== BANDS =====

// BollingerBands calculates the upper, middle and lower bands using a
// population standard deviation over the period.
func BollingerBands(values []float64, period int, stdDevMult float64) (upper, middle, lower []float64) {
	n := len(values)
	upper = undefinedSeries(n)
	middle = SMA(values, period)
	lower = undefinedSeries(n)
	if period <= 0 || n < period {
		return upper, middle, lower
	}

	for i := period - 1; i < n; i++ {
		mean := middle[i]
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - mean
			variance += d * d
		}
		stdDev := math.Sqrt(variance / float64(period))
		upper[i] = mean + stdDevMult*stdDev
		lower[i] = mean - stdDevMult*stdDev
	}
	return upper, middle, lower
}

// ===== VOLUME =====

// VolumeRatio calculates current volume relative to its rolling mean
// over the given window. The ratio defaults to 1.0 wherever the mean
// is zero or the window is not yet filled, so thin history neither
// blocks nor forces volume-gated entries.
func VolumeRatio(volumes []float64, window int) []float64 {
	out := make([]float64, len(volumes))
	for i := range out {
		out[i] = 1.0
	}
	if window <= 0 {
		return out
	}

	sum := 0.0
	for i, v := range volumes {
		sum += v
		if i >= window {
			sum -= volumes[i-window]
		}
		if i >= window-1 {
			mean := sum / float64(window)
			if mean > 0 {
				out[i] = v / mean
			}
		}
	}
	return out
}
