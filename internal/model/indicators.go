package model

import "math"

// PivotLevel names one classical floor-trader level.
type PivotLevel string

const (
	LevelP  PivotLevel = "P"
	LevelR1 PivotLevel = "R1"
	LevelS1 PivotLevel = "S1"
	LevelR2 PivotLevel = "R2"
	LevelS2 PivotLevel = "S2"
	LevelR3 PivotLevel = "R3"
	LevelS3 PivotLevel = "S3"
)

// PivotLevels holds the classical pivot and support/resistance levels derived
// from one completed day. Every field is NaN when no prior day is available.
type PivotLevels struct {
	P, R1, S1, R2, S2, R3, S3 float64
}

// UndefinedPivots returns a PivotLevels with every level NaN.
func UndefinedPivots() PivotLevels {
	n := math.NaN()
	return PivotLevels{P: n, R1: n, S1: n, R2: n, S2: n, R3: n, S3: n}
}

// Defined reports whether the levels were computed.
func (p PivotLevels) Defined() bool { return !math.IsNaN(p.P) }

// Each calls fn for every level in P, R1, S1, R2, S2, R3, S3 order.
func (p PivotLevels) Each(fn func(level PivotLevel, price float64)) {
	fn(LevelP, p.P)
	fn(LevelR1, p.R1)
	fn(LevelS1, p.S1)
	fn(LevelR2, p.R2)
	fn(LevelS2, p.S2)
	fn(LevelR3, p.R3)
	fn(LevelS3, p.S3)
}

// EnrichedSeries is a Series plus derived columns aligned index for index with
// Candles. NaN marks a value that is undefined for lack of history.
type EnrichedSeries struct {
	Series

	EMAFast    []float64
	EMASlow    []float64
	ADX        []float64
	MACD       []float64
	MACDSignal []float64
	MACDHist   []float64
	RSI        []float64
	Pivots     []PivotLevels
}

// Truncate returns the first n rows of the enriched series. Every column is
// causal, so the result equals enriching the first n candles directly.
func (e EnrichedSeries) Truncate(n int) EnrichedSeries {
	if n >= len(e.Candles) {
		return e
	}
	if n < 0 {
		n = 0
	}
	out := e
	out.Candles = e.Candles[:n]
	out.EMAFast = e.EMAFast[:n]
	out.EMASlow = e.EMASlow[:n]
	out.ADX = e.ADX[:n]
	out.MACD = e.MACD[:n]
	out.MACDSignal = e.MACDSignal[:n]
	out.MACDHist = e.MACDHist[:n]
	out.RSI = e.RSI[:n]
	out.Pivots = e.Pivots[:n]
	return out
}

// Aligned reports whether every derived column has one entry per candle.
func (e EnrichedSeries) Aligned() bool {
	n := len(e.Candles)
	for _, col := range [][]float64{e.EMAFast, e.EMASlow, e.ADX, e.MACD, e.MACDSignal, e.MACDHist, e.RSI} {
		if len(col) != n {
			return false
		}
	}
	return len(e.Pivots) == n
}
