package recurrence

import (
	"testing"
	"time"
)

// Monday 2025-03-10 is the anchor week used across these tests.
func mondayAt(hour, minute int) time.Time {
	return time.Date(2025, time.March, 10, hour, minute, 0, 0, time.UTC)
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()
	got, err := ParseTimeOfDay("09:05")
	if err != nil {
		t.Fatalf("ParseTimeOfDay error: %v", err)
	}
	if got.Hour != 9 || got.Minute != 5 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got.String() != "09:05" {
		t.Fatalf("String() = %q", got.String())
	}

	for _, raw := range []string{"24:00", "12:60", "noon", "12", "12:00:00"} {
		if _, err := ParseTimeOfDay(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestNextOccurrence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		day   time.Weekday
		start TimeOfDay
		now   time.Time
		want  time.Time
	}{
		{
			// Slot later this week.
			name:  "wednesday class seen on monday morning",
			day:   time.Wednesday,
			start: TimeOfDay{Hour: 10},
			now:   mondayAt(9, 0),
			want:  time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC),
		},
		{
			// Same day but the start already passed: next week, never today.
			name:  "monday class seen after it started",
			day:   time.Monday,
			start: TimeOfDay{Hour: 10},
			now:   mondayAt(11, 0),
			want:  time.Date(2025, time.March, 17, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "same day before start",
			day:   time.Monday,
			start: TimeOfDay{Hour: 10},
			now:   mondayAt(9, 30),
			want:  mondayAt(10, 0),
		},
		{
			name:  "same day exactly at start rolls over",
			day:   time.Monday,
			start: TimeOfDay{Hour: 10},
			now:   mondayAt(10, 0),
			want:  time.Date(2025, time.March, 17, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "slot day earlier in week",
			day:   time.Monday,
			start: TimeOfDay{Hour: 8},
			now:   time.Date(2025, time.March, 13, 12, 0, 0, 0, time.UTC), // Thursday
			want:  time.Date(2025, time.March, 17, 8, 0, 0, 0, time.UTC),
		},
		{
			// Sunday is day 7, so it always follows a mid-week "now".
			name:  "sunday slot from wednesday",
			day:   time.Sunday,
			start: TimeOfDay{Hour: 18, Minute: 30},
			now:   time.Date(2025, time.March, 12, 9, 0, 0, 0, time.UTC), // Wednesday
			want:  time.Date(2025, time.March, 16, 18, 30, 0, 0, time.UTC),
		},
		{
			name:  "sunday slot from sunday evening",
			day:   time.Sunday,
			start: TimeOfDay{Hour: 18, Minute: 30},
			now:   time.Date(2025, time.March, 16, 20, 0, 0, 0, time.UTC),
			want:  time.Date(2025, time.March, 23, 18, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := NextOccurrence(tt.day, tt.start, tt.now)
			if !got.Equal(tt.want) {
				t.Fatalf("NextOccurrence = %v, want %v", got, tt.want)
			}
		})
	}
}

// The resolved occurrence is never in the past, always lands on the slot's
// weekday, and is within seven days of now.
func TestNextOccurrenceProperties(t *testing.T) {
	t.Parallel()
	start := TimeOfDay{Hour: 14, Minute: 15}
	for day := time.Sunday; day <= time.Saturday; day++ {
		for hour := 0; hour < 24; hour += 3 {
			for offset := 0; offset < 7; offset++ {
				now := mondayAt(hour, 7).AddDate(0, 0, offset)
				got := NextOccurrence(day, start, now)
				if got.Before(now) {
					t.Fatalf("day=%v now=%v: occurrence %v is in the past", day, now, got)
				}
				if got.Weekday() != day {
					t.Fatalf("day=%v now=%v: occurrence %v on wrong weekday", day, now, got)
				}
				if got.Sub(now) > 7*24*time.Hour {
					t.Fatalf("day=%v now=%v: occurrence %v more than a week out", day, now, got)
				}
			}
		}
	}
}
