// Package recurrence computes the next absolute occurrence of a weekly
// class slot. It is pure: no clocks, no storage, no timezone loading.
// All arithmetic happens in the location carried by the caller's "now".
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date ("HH:MM").
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight, used for same-day ordering.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// At anchors the time-of-day onto the date of ref, in ref's location.
func (t TimeOfDay) At(ref time.Time) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour, t.Minute, 0, 0, ref.Location())
}

// NextOccurrence returns the earliest instant at or after now that falls on
// day at start. A slot whose start time already passed today rolls over to
// next week, never to later the same day.
func NextOccurrence(day time.Weekday, start TimeOfDay, now time.Time) time.Time {
	nowDay := isoDay(now.Weekday())
	slotDay := isoDay(day)
	nowMinutes := now.Hour()*60 + now.Minute()

	var daysAhead int
	switch {
	case nowDay == slotDay && nowMinutes < start.Minutes():
		daysAhead = 0
	case slotDay > nowDay:
		daysAhead = slotDay - nowDay
	default:
		daysAhead = 7 - nowDay + slotDay
	}

	return start.At(now.AddDate(0, 0, daysAhead))
}

// isoDay maps Go's Sunday-first weekday to ISO numbering (Mon=1..Sun=7).
func isoDay(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}
