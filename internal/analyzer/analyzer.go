package analyzer

import (
	"fmt"

	"SignalSentinel/internal/model"
)

// AnalysisError reports a series the analyzer cannot work with. It is not
// retryable: the cycle for that job is skipped.
type AnalysisError struct {
	Instrument string
	Resolution model.Resolution
	Reason     string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis %s %s: %s", e.Instrument, e.Resolution, e.Reason)
}

// Thresholds are the static detection parameters for one run.
type Thresholds struct {
	ADX               float64
	RSIOverbought     float64
	RSIOversold       float64
	ContinuationBars  int
	StrongTrendFactor float64
	PivotProximityPct float64
}

// DefaultThresholds returns ADX 20, RSI 70/30, three-bar continuation,
// a 1.5x strong-trend factor and a 0.05% pivot band.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ADX:               20,
		RSIOverbought:     70,
		RSIOversold:       30,
		ContinuationBars:  3,
		StrongTrendFactor: 1.5,
		PivotProximityPct: 0.05,
	}
}

// detectFunc inspects the tail of an enriched series. A detector that lacks
// history reports ok=false.
type detectFunc func(c *cursor) (imp model.Importance, detail model.Detail, ok bool)

// registry is evaluated in order; output order follows it.
var registry = []struct {
	name string
	fn   detectFunc
}{
	{"trend_cross", detectTrendCross},
	{"trend_continuation", detectTrendContinuation},
	{"macd_cross", detectMACDCross},
	{"rsi_level", detectRSILevel},
	{"pivot", detectPivot},
}

// Detect runs every detector against the latest candle of es. It fails only
// for a malformed series; missing history simply yields fewer events.
func Detect(es model.EnrichedSeries, th Thresholds) ([]model.Event, error) {
	if err := check(es); err != nil {
		return nil, err
	}
	c := &cursor{es: es, th: th, last: es.Len() - 1}
	detectedAt := es.Last().OpenTime.Add(es.Resolution.Duration())

	var events []model.Event
	for _, d := range registry {
		imp, detail, ok := d.fn(c)
		if !ok {
			continue
		}
		ev, err := model.NewEvent(es.Instrument, es.Resolution, detectedAt, imp, detail)
		if err != nil {
			return nil, &AnalysisError{Instrument: es.Instrument, Resolution: es.Resolution, Reason: fmt.Sprintf("%s: %v", d.name, err)}
		}
		events = append(events, ev)
	}
	return events, nil
}

func check(es model.EnrichedSeries) error {
	fail := func(reason string) error {
		return &AnalysisError{Instrument: es.Instrument, Resolution: es.Resolution, Reason: reason}
	}
	if es.Len() == 0 {
		return fail("empty series")
	}
	if !es.Resolution.Valid() {
		return fail("unknown resolution")
	}
	if !es.Aligned() {
		return fail("derived columns not aligned with candles")
	}
	for i := 1; i < es.Len(); i++ {
		if !es.Candles[i].OpenTime.After(es.Candles[i-1].OpenTime) {
			return fail(fmt.Sprintf("open time not increasing at index %d", i))
		}
	}
	return nil
}
