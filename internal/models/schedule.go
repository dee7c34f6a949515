package models

import (
	"fmt"
	"strconv"
)

// School week bounds. Day 1 is Monday, day 5 is Friday.
const (
	FirstSchoolDay = 1
	LastSchoolDay  = 5
)

// Slot identifies a (weekday, period) cell in the weekly timetable grid.
type Slot struct {
	Day    int `json:"day"`
	Period int `json:"period"`
}

// Valid reports whether the slot fits a grid with the given number of periods per day.
func (s Slot) Valid(periods int) bool {
	return s.Day >= FirstSchoolDay && s.Day <= LastSchoolDay && s.Period >= 1 && s.Period <= periods
}

// Key returns the compact "day_period" form used in template tags and cache keys.
func (s Slot) Key() string {
	return strconv.Itoa(s.Day) + "_" + strconv.Itoa(s.Period)
}

// Tag returns the grid cell placeholder, e.g. {{3_4}}.
func (s Slot) Tag() string {
	return "{{" + s.Key() + "}}"
}

func (s Slot) String() string {
	return fmt.Sprintf("day %d period %d", s.Day, s.Period)
}

// AllSlots enumerates every grid slot, day-major.
func AllSlots(periods int) []Slot {
	if periods <= 0 {
		return nil
	}
	slots := make([]Slot, 0, (LastSchoolDay-FirstSchoolDay+1)*periods)
	for day := FirstSchoolDay; day <= LastSchoolDay; day++ {
		for period := 1; period <= periods; period++ {
			slots = append(slots, Slot{Day: day, Period: period})
		}
	}
	return slots
}
