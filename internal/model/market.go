package model

import (
	"fmt"
	"strings"
	"time"
)

// Candle represents a single OHLCV bar. OpenTime is always UTC.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Series is an ordered run of candles for one instrument at one resolution.
// OpenTime is strictly increasing.
type Series struct {
	Instrument string
	Resolution Resolution
	Candles    []Candle
}

// Len returns the number of candles.
func (s Series) Len() int { return len(s.Candles) }

// Last returns the most recent candle. It panics on an empty series.
func (s Series) Last() Candle { return s.Candles[len(s.Candles)-1] }

// Tail returns a copy of the series holding at most the last n candles.
func (s Series) Tail(n int) Series {
	out := s
	if n < len(s.Candles) {
		out.Candles = s.Candles[len(s.Candles)-n:]
	}
	return out
}

// Resolution is a canonical candle period tag such as "5m", "1h", "4h" or "1d".
type Resolution string

const (
	Res1m  Resolution = "1m"
	Res5m  Resolution = "5m"
	Res15m Resolution = "15m"
	Res30m Resolution = "30m"
	Res1h  Resolution = "1h"
	Res4h  Resolution = "4h"
	Res1d  Resolution = "1d"
)

var resolutionDurations = map[Resolution]time.Duration{
	Res1m:  time.Minute,
	Res5m:  5 * time.Minute,
	Res15m: 15 * time.Minute,
	Res30m: 30 * time.Minute,
	Res1h:  time.Hour,
	Res4h:  4 * time.Hour,
	Res1d:  24 * time.Hour,
}

// resolutionAliases maps the short numeric tags used in configuration files
// ("5" meaning five minutes, "D" meaning daily) onto canonical resolutions.
var resolutionAliases = map[string]Resolution{
	"1":   Res1m,
	"5":   Res5m,
	"15":  Res15m,
	"30":  Res30m,
	"60":  Res1h,
	"60m": Res1h,
	"240": Res4h,
	"d":   Res1d,
	"1d":  Res1d,
	"day": Res1d,
}

// ParseResolution normalises a resolution tag.
func ParseResolution(s string) (Resolution, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if r, ok := resolutionAliases[v]; ok {
		return r, nil
	}
	r := Resolution(v)
	if _, ok := resolutionDurations[r]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown resolution %q", s)
}

// Duration returns the candle period, or zero for an unknown resolution.
func (r Resolution) Duration() time.Duration { return resolutionDurations[r] }

// Valid reports whether r is one of the canonical resolutions.
func (r Resolution) Valid() bool { return r.Duration() > 0 }

func (r Resolution) String() string { return string(r) }

// Base returns the finer resolution that r can be resampled from and how many
// base candles make one r candle. ok is false when r has no resample source.
func (r Resolution) Base() (base Resolution, factor int, ok bool) {
	switch r {
	case Res4h:
		return Res1h, 4, true
	}
	return "", 0, false
}
