package model

import (
	"reflect"
	"testing"
	"time"
)

func hourly(start time.Time, n int) []Candle {
	out := make([]Candle, n)
	for i := 0; i < n; i++ {
		p := 1.1 + float64(i%7)*0.001 - float64(i%3)*0.0005
		out[i] = Candle{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     p,
			High:     p + 0.002 + float64(i%5)*0.0001,
			Low:      p - 0.002 - float64(i%4)*0.0001,
			Close:    p + 0.0007,
			Volume:   float64(100 + i),
		}
	}
	return out
}

func TestResample_FourHourBuckets(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	in := hourly(start, 8)
	out := Resample(in, 4*time.Hour)
	if len(out) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(out))
	}
	for b := 0; b < 2; b++ {
		group := in[b*4 : b*4+4]
		got := out[b]
		if !got.OpenTime.Equal(start.Add(time.Duration(b*4) * time.Hour)) {
			t.Errorf("bucket %d: open time %v", b, got.OpenTime)
		}
		if got.Open != group[0].Open {
			t.Errorf("bucket %d: open %v, want %v", b, got.Open, group[0].Open)
		}
		if got.Close != group[3].Close {
			t.Errorf("bucket %d: close %v, want %v", b, got.Close, group[3].Close)
		}
		hi, lo, vol := group[0].High, group[0].Low, 0.0
		for _, c := range group {
			if c.High > hi {
				hi = c.High
			}
			if c.Low < lo {
				lo = c.Low
			}
			vol += c.Volume
		}
		if got.High != hi || got.Low != lo || got.Volume != vol {
			t.Errorf("bucket %d: got h=%v l=%v v=%v, want h=%v l=%v v=%v", b, got.High, got.Low, got.Volume, hi, lo, vol)
		}
	}
}

func TestResample_PartialLeadingBucket(t *testing.T) {
	start := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)
	out := Resample(hourly(start, 6), 4*time.Hour)
	if len(out) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(out))
	}
	if want := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC); !out[0].OpenTime.Equal(want) {
		t.Errorf("first bucket opens at %v, want %v", out[0].OpenTime, want)
	}
}

func TestResample_SkipsEmptyBuckets(t *testing.T) {
	start := time.Date(2024, 3, 8, 16, 0, 0, 0, time.UTC)
	in := hourly(start, 4)
	gap := hourly(start.Add(56*time.Hour), 4)
	out := Resample(append(in, gap...), 4*time.Hour)
	if len(out) != 2 {
		t.Fatalf("expected 2 buckets across the gap, got %d", len(out))
	}
}

func TestResample_Idempotent(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	in := hourly(start, 97)
	for _, offset := range []time.Duration{0, time.Hour, 2 * time.Hour, 3 * time.Hour} {
		once := ResampleAligned(in, 4*time.Hour, offset)
		twice := ResampleAligned(once, 4*time.Hour, offset)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("offset %v: resampling is not idempotent", offset)
		}
		again := ResampleAligned(in, 4*time.Hour, offset)
		if !reflect.DeepEqual(once, again) {
			t.Errorf("offset %v: resampling is not deterministic", offset)
		}
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in   string
		want Resolution
	}{
		{"5", Res5m},
		{"60", Res1h},
		{"1h", Res1h},
		{"4h", Res4h},
		{"4H", Res4h},
		{"D", Res1d},
		{"1d", Res1d},
	}
	for _, tt := range tests {
		got, err := ParseResolution(tt.in)
		if err != nil {
			t.Errorf("ParseResolution(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseResolution(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := ParseResolution("7h"); err == nil {
		t.Error("expected error for unknown resolution")
	}
}
