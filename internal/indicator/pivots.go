package indicator

import (
	"time"

	"SignalSentinel/internal/model"
)

// ClassicalPivots derives floor-trader levels from one day's high, low and close.
func ClassicalPivots(high, low, close float64) model.PivotLevels {
	p := (high + low + close) / 3
	return model.PivotLevels{
		P:  p,
		R1: 2*p - low,
		S1: 2*p - high,
		R2: p + (high - low),
		S2: p - (high - low),
		R3: high + 2*(p-low),
		S3: low - 2*(high-p),
	}
}

// minSession is the shortest day whose range yields pivots. Shorter days, such
// as the Sunday evening FX open, are passed over for the day before them.
const minSession = 12 * time.Hour

type dayBar struct {
	day              time.Time
	first, last      time.Time
	high, low, close float64
	complete         bool
}

func (d dayBar) usable(step time.Duration) bool {
	return d.complete && d.last.Sub(d.first)+step >= minSession
}

// DailyPivots assigns every candle the levels of the most recent full UTC day
// before its own. The first day in the series only counts when its first
// candle opens at midnight, otherwise its range is partial.
func DailyPivots(candles []model.Candle) []model.PivotLevels {
	out := make([]model.PivotLevels, len(candles))
	step := candleStep(candles)
	levels := model.UndefinedPivots()
	var days []dayBar
	for i, c := range candles {
		t := c.OpenTime.UTC()
		day := t.Truncate(24 * time.Hour)
		if len(days) == 0 || !days[len(days)-1].day.Equal(day) {
			if n := len(days); n > 0 && days[n-1].usable(step) {
				prev := days[n-1]
				levels = ClassicalPivots(prev.high, prev.low, prev.close)
			}
			days = append(days, dayBar{
				day:      day,
				first:    t,
				last:     t,
				high:     c.High,
				low:      c.Low,
				close:    c.Close,
				complete: len(days) > 0 || t.Equal(day),
			})
		} else {
			d := &days[len(days)-1]
			if c.High > d.high {
				d.high = c.High
			}
			if c.Low < d.low {
				d.low = c.Low
			}
			d.close = c.Close
			d.last = t
		}
		out[i] = levels
	}
	return out
}

// candleStep is the smallest gap between consecutive candles, capped at a day.
func candleStep(candles []model.Candle) time.Duration {
	step := 24 * time.Hour
	for i := 1; i < len(candles); i++ {
		if d := candles[i].OpenTime.Sub(candles[i-1].OpenTime); d > 0 && d < step {
			step = d
		}
	}
	return step
}
