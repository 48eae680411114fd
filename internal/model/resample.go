package model

import "time"

// Resample buckets candles into windows of length d aligned to the Unix epoch.
// See ResampleAligned.
func Resample(candles []Candle, d time.Duration) []Candle {
	return ResampleAligned(candles, d, 0)
}

// ResampleAligned buckets candles into windows of length d whose boundaries sit
// at offset from the Unix epoch. Each output candle takes the first open, the
// last close, the extreme high and low and the summed volume of its bucket, and
// opens at the bucket boundary. Buckets without input candles are omitted.
// The input must be ordered by OpenTime.
func ResampleAligned(candles []Candle, d, offset time.Duration) []Candle {
	if d <= 0 || len(candles) == 0 {
		return nil
	}
	out := make([]Candle, 0, len(candles)/2+1)
	var cur Candle
	var curStart time.Time
	open := false
	for _, c := range candles {
		start := bucketStart(c.OpenTime, d, offset)
		if !open || !start.Equal(curStart) {
			if open {
				out = append(out, cur)
			}
			cur = Candle{
				OpenTime: start,
				Open:     c.Open,
				High:     c.High,
				Low:      c.Low,
				Close:    c.Close,
				Volume:   c.Volume,
			}
			curStart = start
			open = true
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	if open {
		out = append(out, cur)
	}
	return out
}

func bucketStart(t time.Time, d, offset time.Duration) time.Time {
	ns := t.UnixNano() - int64(offset)
	rem := ns % int64(d)
	if rem < 0 {
		rem += int64(d)
	}
	return time.Unix(0, ns-rem+int64(offset)).UTC()
}
