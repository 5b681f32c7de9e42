package model

import (
	"fmt"
	"time"
)

type Interval string

const (
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
)

// Recurrence describes how a repetitive task comes back.
type Recurrence struct {
	Interval   Interval `json:"interval"`
	Frequency  int      `json:"frequency,omitempty"`  // every N units, 0 means 1
	DaysOfWeek []int    `json:"daysOfWeek,omitempty"` // weekly only, 0 = Sunday
	DayOfMonth int      `json:"dayOfMonth,omitempty"` // monthly only, clamped to month end
}

func (r Recurrence) Validate() error {
	switch r.Interval {
	case IntervalDaily, IntervalMonthly:
	case IntervalWeekly:
		if len(r.DaysOfWeek) == 0 {
			return fmt.Errorf("weekly recurrence needs at least one weekday")
		}
	default:
		return fmt.Errorf("unknown recurrence interval %q", r.Interval)
	}
	if r.Frequency < 0 {
		return fmt.Errorf("recurrence frequency must not be negative")
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("weekday %d out of range 0-6", d)
		}
	}
	if r.DayOfMonth < 0 || r.DayOfMonth > 31 {
		return fmt.Errorf("day of month %d out of range 1-31", r.DayOfMonth)
	}
	return nil
}

func (r Recurrence) Clone() Recurrence {
	c := r
	c.DaysOfWeek = append([]int(nil), r.DaysOfWeek...)
	if len(r.DaysOfWeek) == 0 {
		c.DaysOfWeek = nil
	}
	return c
}

func (r Recurrence) every() int {
	if r.Frequency <= 0 {
		return 1
	}
	return r.Frequency
}

// NextOccurrence returns the first occurrence day strictly after the calendar day of from.
// The result is midnight in from's location.
func (r Recurrence) NextOccurrence(from time.Time) time.Time {
	day := startOfDay(from)
	n := r.every()
	switch r.Interval {
	case IntervalWeekly:
		today := int(day.Weekday())
		first := 7
		next := -1
		for _, d := range r.DaysOfWeek {
			if d > today && (next == -1 || d < next) {
				next = d
			}
			if d < first {
				first = d
			}
		}
		if next != -1 {
			return day.AddDate(0, 0, next-today)
		}
		// wrap into the week that is n weeks ahead
		return day.AddDate(0, 0, 7-today+first+7*(n-1))
	case IntervalMonthly:
		dom := r.DayOfMonth
		if dom == 0 {
			dom = day.Day()
		}
		candidate := dateInMonth(day.Year(), day.Month(), dom, day.Location())
		if candidate.After(day) {
			return candidate
		}
		return dateInMonth(day.Year(), day.Month()+time.Month(n), dom, day.Location())
	default:
		return day.AddDate(0, 0, n)
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dateInMonth clamps day to the last day of the month; month may overflow into later years.
func dateInMonth(year int, month time.Month, day int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, loc)
}
