package utils

import "time"

// StartOfDay returns midnight of t's calendar day in t's own location.
// Truncating against the epoch would give UTC midnight instead.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
