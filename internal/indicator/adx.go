package indicator

import (
	"math"

	"SignalSentinel/internal/model"
)

// ADX computes Wilder's average directional index. True range and directional
// movement start at index 1, the directional indices at index period and the
// ADX itself at index 2*period-1.
func ADX(candles []model.Candle, period int) []float64 {
	n := len(candles)
	out := nanSlice(n)
	if period <= 0 || n < 2*period {
		return out
	}

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		cur, prev := candles[i], candles[i-1]
		tr[i] = math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
		up := cur.High - prev.High
		down := prev.Low - cur.Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	var sTR, sPlus, sMinus float64
	for i := 1; i <= period; i++ {
		sTR += tr[i]
		sPlus += plusDM[i]
		sMinus += minusDM[i]
	}

	dx := make([]float64, n)
	dx[period] = dxValue(sTR, sPlus, sMinus)
	p := float64(period)
	for i := period + 1; i < n; i++ {
		sTR = sTR - sTR/p + tr[i]
		sPlus = sPlus - sPlus/p + plusDM[i]
		sMinus = sMinus - sMinus/p + minusDM[i]
		dx[i] = dxValue(sTR, sPlus, sMinus)
	}

	first := 2*period - 1
	sum := 0.0
	for i := period; i <= first; i++ {
		sum += dx[i]
	}
	adx := sum / p
	out[first] = adx
	for i := first + 1; i < n; i++ {
		adx = (adx*(p-1) + dx[i]) / p
		out[i] = adx
	}
	return out
}

func dxValue(sTR, sPlus, sMinus float64) float64 {
	if sTR == 0 {
		return 0
	}
	plusDI := 100 * sPlus / sTR
	minusDI := 100 * sMinus / sTR
	if plusDI+minusDI == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
}
