package service

import (
	"fmt"
	"time"
)

// eraOffset converts a Gregorian year to the regional era year used on notices.
const eraOffset = 1911

// WeekDates holds the formatted dates of Monday..Friday, index 0 being Monday.
type WeekDates [5]string

// WeekStart returns midnight of the Monday on or before ref, in ref's location.
func WeekStart(ref time.Time) time.Time {
	offset := (int(ref.Weekday()) + 6) % 7
	y, m, d := ref.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, ref.Location())
}

// DateOfDay returns the calendar date of school day (1=Mon..5=Fri) in the week containing ref.
func DateOfDay(ref time.Time, day int) time.Time {
	return WeekStart(ref).AddDate(0, 0, day-1)
}

// FormatEraDate formats t as {era_year}.{MM}.{DD}, e.g. 2026-02-09 -> 115.02.09.
func FormatEraDate(t time.Time) string {
	y, m, d := t.Date()
	return fmt.Sprintf("%d.%02d.%02d", y-eraOffset, int(m), d)
}

// WeekOf resolves the five formatted weekday dates of the week containing ref.
func WeekOf(ref time.Time) WeekDates {
	monday := WeekStart(ref)
	var dates WeekDates
	for i := range dates {
		dates[i] = FormatEraDate(monday.AddDate(0, 0, i))
	}
	return dates
}
