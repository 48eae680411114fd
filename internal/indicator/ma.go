package indicator

import (
	"math"

	"SignalSentinel/internal/model"
)

// EMA computes an exponential moving average seeded with the simple average of
// the first period defined values. Leading NaNs in values are skipped, so EMA
// can be chained onto another indicator column. Output is aligned with values
// and NaN until period values have been seen.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	seedEnd := start + period - 1
	if seedEnd >= len(values) {
		return out
	}
	sum := 0.0
	for i := start; i <= seedEnd; i++ {
		sum += values[i]
	}
	prev := sum / float64(period)
	out[seedEnd] = prev
	k := 2.0 / float64(period+1)
	for i := seedEnd + 1; i < len(values); i++ {
		prev = values[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// MACD returns the oscillator (fast EMA minus slow EMA), its signal line and
// the histogram between them.
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist []float64) {
	f := EMA(closes, fast)
	s := EMA(closes, slow)
	line = make([]float64, len(closes))
	for i := range closes {
		line[i] = f[i] - s[i]
	}
	sig = EMA(line, signal)
	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

func closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
