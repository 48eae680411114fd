package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidEvent is returned by NewEvent for malformed input.
var ErrInvalidEvent = errors.New("invalid event")

// Kind tags the closed set of event variants.
type Kind string

const (
	KindTrend             Kind = "trend"
	KindTrendContinuation Kind = "trend_continuation"
	KindMACDCross         Kind = "macd_cross"
	KindRSILevel          Kind = "rsi_level"
	KindPivot             Kind = "pivot"
)

// Importance is an ordinal severity. Normal is 1; anything at or above the
// configured critical floor (2 by default) bypasses the cooldown.
type Importance int

const (
	Normal   Importance = 1
	Critical Importance = 2
)

// Direction of a crossover or trend.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

func (d Direction) valid() bool { return d == Bullish || d == Bearish }

func (d Direction) word() string {
	if d == Bullish {
		return "above"
	}
	return "below"
}

// Zone of a momentum extreme.
type Zone string

const (
	Overbought Zone = "overbought"
	Oversold   Zone = "oversold"
)

// Detail is the kind-specific payload of an Event. The set of implementations
// is closed to this package.
type Detail interface {
	Kind() Kind
	validate() error
	describe() string
}

// TrendCross is a fast/slow moving-average crossover confirmed by trend strength.
type TrendCross struct {
	Direction Direction
	FastMA    float64
	SlowMA    float64
	ADX       float64
}

func (TrendCross) Kind() Kind { return KindTrend }

func (d TrendCross) validate() error {
	if !d.Direction.valid() {
		return fmt.Errorf("trend direction %q", d.Direction)
	}
	return finite(d.FastMA, d.SlowMA, d.ADX)
}

func (d TrendCross) describe() string {
	return fmt.Sprintf("EMA20 crossed %s EMA50 (ADX %.1f)", d.Direction.word(), d.ADX)
}

// TrendContinuation is a run of strictly rising trend strength above threshold.
type TrendContinuation struct {
	Direction Direction
	ADX       float64
	Bars      int
}

func (TrendContinuation) Kind() Kind { return KindTrendContinuation }

func (d TrendContinuation) validate() error {
	if !d.Direction.valid() {
		return fmt.Errorf("trend direction %q", d.Direction)
	}
	if d.Bars < 2 {
		return fmt.Errorf("continuation needs at least 2 bars, got %d", d.Bars)
	}
	return finite(d.ADX)
}

func (d TrendContinuation) describe() string {
	return fmt.Sprintf("%s trend strengthening, ADX rising %d bars to %.1f", title(string(d.Direction)), d.Bars, d.ADX)
}

// MACDCross is the oscillator crossing its signal line.
type MACDCross struct {
	Direction Direction
	MACD      float64
	Signal    float64
}

func (MACDCross) Kind() Kind { return KindMACDCross }

func (d MACDCross) validate() error {
	if !d.Direction.valid() {
		return fmt.Errorf("macd direction %q", d.Direction)
	}
	return finite(d.MACD, d.Signal)
}

func (d MACDCross) describe() string {
	return fmt.Sprintf("MACD crossed %s signal (%.5f / %.5f)", d.Direction.word(), d.MACD, d.Signal)
}

// RSILevel is the momentum index entering an extreme zone.
type RSILevel struct {
	Zone      Zone
	RSI       float64
	Threshold float64
}

func (RSILevel) Kind() Kind { return KindRSILevel }

func (d RSILevel) validate() error {
	if d.Zone != Overbought && d.Zone != Oversold {
		return fmt.Errorf("rsi zone %q", d.Zone)
	}
	if d.RSI < 0 || d.RSI > 100 {
		return fmt.Errorf("rsi %.2f out of range", d.RSI)
	}
	return finite(d.RSI, d.Threshold)
}

func (d RSILevel) describe() string {
	return fmt.Sprintf("RSI %s at %.1f (threshold %.0f)", d.Zone, d.RSI, d.Threshold)
}

// PivotTouch is the latest close sitting inside the proximity band of a level.
type PivotTouch struct {
	Level       PivotLevel
	Price       float64
	Close       float64
	DistancePct float64
}

func (PivotTouch) Kind() Kind { return KindPivot }

func (d PivotTouch) validate() error {
	switch d.Level {
	case LevelP, LevelR1, LevelS1, LevelR2, LevelS2, LevelR3, LevelS3:
	default:
		return fmt.Errorf("pivot level %q", d.Level)
	}
	if d.DistancePct < 0 {
		return fmt.Errorf("negative pivot distance")
	}
	return finite(d.Price, d.Close, d.DistancePct)
}

func (d PivotTouch) describe() string {
	return fmt.Sprintf("price %.5f near pivot %s %.5f (%.3f%%)", d.Close, d.Level, d.Price, d.DistancePct)
}

// Event is an immutable detection result. Build one with NewEvent.
type Event struct {
	detail     Detail
	importance Importance
	instrument string
	resolution Resolution
	detectedAt time.Time
	message    string
}

// NewEvent validates its input and renders the event message.
func NewEvent(instrument string, res Resolution, detectedAt time.Time, importance Importance, detail Detail) (Event, error) {
	if strings.TrimSpace(instrument) == "" {
		return Event{}, fmt.Errorf("%w: empty instrument", ErrInvalidEvent)
	}
	if !res.Valid() {
		return Event{}, fmt.Errorf("%w: resolution %q", ErrInvalidEvent, res)
	}
	if detectedAt.IsZero() {
		return Event{}, fmt.Errorf("%w: zero detection time", ErrInvalidEvent)
	}
	if importance < Normal {
		return Event{}, fmt.Errorf("%w: importance %d", ErrInvalidEvent, importance)
	}
	if detail == nil {
		return Event{}, fmt.Errorf("%w: nil detail", ErrInvalidEvent)
	}
	if err := detail.validate(); err != nil {
		return Event{}, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, detail.Kind(), err)
	}
	return Event{
		detail:     detail,
		importance: importance,
		instrument: instrument,
		resolution: res,
		detectedAt: detectedAt.UTC(),
		message:    instrument + ": " + detail.describe(),
	}, nil
}

func (e Event) Kind() Kind             { return e.detail.Kind() }
func (e Event) Detail() Detail         { return e.detail }
func (e Event) Importance() Importance { return e.importance }
func (e Event) Instrument() string     { return e.instrument }
func (e Event) Resolution() Resolution { return e.resolution }
func (e Event) DetectedAt() time.Time  { return e.detectedAt }
func (e Event) Message() string        { return e.message }

// CooldownKey identifies "the same situation" for throttling.
func (e Event) CooldownKey() string {
	return e.instrument + "|" + string(e.resolution) + "|" + string(e.Kind())
}

func finite(vs ...float64) error {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("non-finite value")
		}
	}
	return nil
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
