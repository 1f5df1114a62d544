package utils_test

import (
	"testing"
	"time"

	"github.com/tanzheen/church-book-exchange/internal/utils"
)

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*60*60)

	// 01:30 local time is still the previous day in UTC; the day boundary
	// must follow the local clock.
	at := time.Date(2026, time.September, 1, 1, 30, 45, 0, loc)
	got := utils.StartOfDay(at)

	want := time.Date(2026, time.September, 1, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("StartOfDay() = %v, want %v", got, want)
	}
	if got.Location() != loc {
		t.Errorf("StartOfDay() location = %v, want %v", got.Location(), loc)
	}

	utcTrunc := at.Truncate(24 * time.Hour)
	if got.Equal(utcTrunc) {
		t.Errorf("StartOfDay() matches UTC truncation %v; expected local midnight", utcTrunc)
	}
}
