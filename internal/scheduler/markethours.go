package scheduler

import "time"

// IsForexOpen reports whether spot FX trades at t, i.e. between Sunday
// 22:00 UTC and Friday 22:00 UTC.
func IsForexOpen(t time.Time) bool {
	t = t.UTC()
	switch t.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return t.Hour() >= 22
	case time.Friday:
		return t.Hour() < 22
	}
	return true
}
