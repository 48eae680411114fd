package analyzer

import (
	"math"

	"SignalSentinel/internal/model"
)

type cursor struct {
	es   model.EnrichedSeries
	th   Thresholds
	last int
}

// pair returns the previous and latest values of col, ok only if both are defined.
func (c *cursor) pair(col []float64) (prev, last float64, ok bool) {
	if c.last < 1 {
		return 0, 0, false
	}
	prev, last = col[c.last-1], col[c.last]
	if math.IsNaN(prev) || math.IsNaN(last) {
		return 0, 0, false
	}
	return prev, last, true
}

func (c *cursor) at(col []float64) (float64, bool) {
	v := col[c.last]
	return v, !math.IsNaN(v)
}

// strength grades a trend reading: critical once ADX reaches the strong level.
func (c *cursor) strength(adx float64) model.Importance {
	factor := c.th.StrongTrendFactor
	if factor <= 1 {
		factor = 1.5
	}
	if adx >= c.th.ADX*factor {
		return model.Critical
	}
	return model.Normal
}

func crossing(prevA, prevB, lastA, lastB float64) (model.Direction, bool) {
	switch {
	case prevA <= prevB && lastA > lastB:
		return model.Bullish, true
	case prevA >= prevB && lastA < lastB:
		return model.Bearish, true
	}
	return "", false
}

func detectTrendCross(c *cursor) (model.Importance, model.Detail, bool) {
	pf, lf, ok := c.pair(c.es.EMAFast)
	if !ok {
		return 0, nil, false
	}
	ps, ls, ok := c.pair(c.es.EMASlow)
	if !ok {
		return 0, nil, false
	}
	adx, ok := c.at(c.es.ADX)
	if !ok || adx < c.th.ADX {
		return 0, nil, false
	}
	dir, ok := crossing(pf, ps, lf, ls)
	if !ok {
		return 0, nil, false
	}
	return c.strength(adx), model.TrendCross{Direction: dir, FastMA: lf, SlowMA: ls, ADX: adx}, true
}

func detectTrendContinuation(c *cursor) (model.Importance, model.Detail, bool) {
	n := c.th.ContinuationBars
	if n < 2 {
		n = 2
	}
	first := c.last - n + 1
	if first < 0 {
		return 0, nil, false
	}
	var dir model.Direction
	for i := first; i <= c.last; i++ {
		adx, fast, slow := c.es.ADX[i], c.es.EMAFast[i], c.es.EMASlow[i]
		if math.IsNaN(adx) || math.IsNaN(fast) || math.IsNaN(slow) {
			return 0, nil, false
		}
		if adx < c.th.ADX {
			return 0, nil, false
		}
		if i > first && !(adx > c.es.ADX[i-1]) {
			return 0, nil, false
		}
		d := model.Bearish
		if fast > slow {
			d = model.Bullish
		} else if fast == slow {
			return 0, nil, false
		}
		if i > first && d != dir {
			return 0, nil, false
		}
		dir = d
	}
	adx := c.es.ADX[c.last]
	return c.strength(adx), model.TrendContinuation{Direction: dir, ADX: adx, Bars: n}, true
}

func detectMACDCross(c *cursor) (model.Importance, model.Detail, bool) {
	pm, lm, ok := c.pair(c.es.MACD)
	if !ok {
		return 0, nil, false
	}
	ps, ls, ok := c.pair(c.es.MACDSignal)
	if !ok {
		return 0, nil, false
	}
	dir, ok := crossing(pm, ps, lm, ls)
	if !ok {
		return 0, nil, false
	}
	return model.Normal, model.MACDCross{Direction: dir, MACD: lm, Signal: ls}, true
}

func detectRSILevel(c *cursor) (model.Importance, model.Detail, bool) {
	prev, last, ok := c.pair(c.es.RSI)
	if !ok {
		return 0, nil, false
	}
	switch {
	case prev < c.th.RSIOverbought && last >= c.th.RSIOverbought:
		return model.Normal, model.RSILevel{Zone: model.Overbought, RSI: last, Threshold: c.th.RSIOverbought}, true
	case prev > c.th.RSIOversold && last <= c.th.RSIOversold:
		return model.Normal, model.RSILevel{Zone: model.Oversold, RSI: last, Threshold: c.th.RSIOversold}, true
	}
	return 0, nil, false
}

// pivotImportance ranks the primary pivot above the support and resistance levels.
var pivotImportance = map[model.PivotLevel]model.Importance{
	model.LevelP:  model.Critical,
	model.LevelR1: model.Normal,
	model.LevelS1: model.Normal,
	model.LevelR2: model.Normal,
	model.LevelS2: model.Normal,
	model.LevelR3: model.Normal,
	model.LevelS3: model.Normal,
}

func detectPivot(c *cursor) (model.Importance, model.Detail, bool) {
	levels := c.es.Pivots[c.last]
	if !levels.Defined() {
		return 0, nil, false
	}
	closePrice := c.es.Candles[c.last].Close
	var (
		best     model.PivotTouch
		found    bool
		bestDist = math.Inf(1)
	)
	levels.Each(func(level model.PivotLevel, price float64) {
		if price <= 0 || math.IsNaN(price) {
			return
		}
		dist := math.Abs(closePrice-price) / price * 100
		if dist <= c.th.PivotProximityPct && dist < bestDist {
			bestDist = dist
			best = model.PivotTouch{Level: level, Price: price, Close: closePrice, DistancePct: dist}
			found = true
		}
	})
	if !found {
		return 0, nil, false
	}
	return pivotImportance[best.Level], best, true
}
