package indicator

import "SignalSentinel/internal/model"

// Params holds indicator periods.
type Params struct {
	EMAFast    int
	EMASlow    int
	ADX        int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	RSI        int
}

// DefaultParams returns EMA 20/50, ADX 14, MACD 12/26/9 and RSI 14.
func DefaultParams() Params {
	return Params{
		EMAFast:    20,
		EMASlow:    50,
		ADX:        14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		RSI:        14,
	}
}

// Enrich computes every derived column for s. It is pure: the same input
// always yields the same output and s is not modified.
func Enrich(s model.Series, p Params) model.EnrichedSeries {
	c := closes(s.Candles)
	macd, sig, hist := MACD(c, p.MACDFast, p.MACDSlow, p.MACDSignal)
	return model.EnrichedSeries{
		Series:     s,
		EMAFast:    EMA(c, p.EMAFast),
		EMASlow:    EMA(c, p.EMASlow),
		ADX:        ADX(s.Candles, p.ADX),
		MACD:       macd,
		MACDSignal: sig,
		MACDHist:   hist,
		RSI:        RSI(c, p.RSI),
		Pivots:     DailyPivots(s.Candles),
	}
}

// Warmup returns the number of candles needed before every column is defined.
func (p Params) Warmup() int {
	w := p.EMASlow
	if v := 2 * p.ADX; v > w {
		w = v
	}
	if v := p.MACDSlow + p.MACDSignal - 1; v > w {
		w = v
	}
	if v := p.RSI + 1; v > w {
		w = v
	}
	return w
}
