package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWeekOfMidWeek(t *testing.T) {
	ref := time.Date(2026, time.February, 11, 15, 30, 0, 0, time.UTC)

	dates := WeekOf(ref)
	assert.Equal(t, WeekDates{"115.02.09", "115.02.10", "115.02.11", "115.02.12", "115.02.13"}, dates)
}

func TestWeekOfWeekendBelongsToPrecedingMonday(t *testing.T) {
	sunday := time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2026, time.February, 14, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "115.02.09", WeekOf(sunday)[0])
	assert.Equal(t, "115.02.09", WeekOf(saturday)[0])
}

func TestWeekOfCrossesYearBoundary(t *testing.T) {
	ref := time.Date(2025, time.December, 31, 8, 0, 0, 0, time.UTC)

	dates := WeekOf(ref)
	assert.Equal(t, WeekDates{"114.12.29", "114.12.30", "114.12.31", "115.01.01", "115.01.02"}, dates)
}

func TestWeekStartKeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*60*60)
	ref := time.Date(2026, time.February, 9, 0, 30, 0, 0, loc)

	start := WeekStart(ref)
	assert.Equal(t, loc, start.Location())
	assert.Equal(t, 9, start.Day())
	assert.Equal(t, 0, start.Hour())
	assert.Equal(t, time.Date(2026, time.February, 13, 0, 0, 0, 0, loc), DateOfDay(ref, 5))
}
