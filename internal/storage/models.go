package storage

import (
	"time"

	"studymate/internal/recurrence"
)

// Priority orders tasks by urgency.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Subject is a course the student attends. NotificationMinutesBefore is the
// lead time applied to class alarms for every slot of this subject.
type Subject struct {
	ID                        int64  `db:"id" json:"id"`
	Name                      string `db:"name" json:"name"`
	Professor                 string `db:"professor" json:"professor,omitempty"`
	Location                  string `db:"location" json:"location"`
	Color                     int    `db:"color" json:"color"`
	NotificationMinutesBefore int    `db:"notification_minutes_before" json:"notification_minutes_before"`
	Position                  int    `db:"position" json:"position"`
}

// ScheduleSlot is one weekly recurring class window belonging to a Subject.
// Slots are replaced whole on edit, never mutated field-by-field.
type ScheduleSlot struct {
	ID        int64
	SubjectID int64
	DayOfWeek time.Weekday
	StartTime recurrence.TimeOfDay
	EndTime   recurrence.TimeOfDay
}

// Task is a deadline-bearing to-do, optionally tied to a subject.
type Task struct {
	ID          int64
	Name        string
	Description string
	DueDate     time.Time
	Priority    Priority
	SubjectID   *int64
	IsCompleted bool
	CreatedAt   time.Time
}

// TimerPhase is the pomodoro countdown lifecycle state.
type TimerPhase string

const (
	PhaseStopped  TimerPhase = "stopped"
	PhaseRunning  TimerPhase = "running"
	PhasePaused   TimerPhase = "paused"
	PhaseFinished TimerPhase = "finished"
)

// TimerMode selects which configured duration the countdown uses.
type TimerMode string

const (
	ModeFocus      TimerMode = "focus"
	ModeShortBreak TimerMode = "short_break"
	ModeLongBreak  TimerMode = "long_break"
)

// IsBreak reports whether the mode counts down a rest interval.
func (m TimerMode) IsBreak() bool { return m == ModeShortBreak || m == ModeLongBreak }

// TimerState is the singleton persisted pomodoro record. It is written only
// by the timer engine; widgets and UI surfaces are read-only observers.
type TimerState struct {
	Phase             TimerPhase `db:"phase" json:"phase"`
	Mode              TimerMode  `db:"mode" json:"mode"`
	RemainingSeconds  int        `db:"remaining_seconds" json:"remaining_seconds"`
	FocusMinutes      int        `db:"focus_minutes" json:"focus_minutes"`
	ShortBreakMinutes int        `db:"short_break_minutes" json:"short_break_minutes"`
	LongBreakMinutes  int        `db:"long_break_minutes" json:"long_break_minutes"`
	UpdatedAt         time.Time  `db:"-" json:"updated_at"`
}

// DefaultTimerState mirrors the classic 25/5/15 pomodoro split.
func DefaultTimerState() TimerState {
	return TimerState{
		Phase:             PhaseStopped,
		Mode:              ModeFocus,
		RemainingSeconds:  25 * 60,
		FocusMinutes:      25,
		ShortBreakMinutes: 5,
		LongBreakMinutes:  15,
	}
}

// ModeSeconds returns the configured duration of the given mode, in seconds.
func (t TimerState) ModeSeconds(m TimerMode) int {
	switch m {
	case ModeShortBreak:
		return t.ShortBreakMinutes * 60
	case ModeLongBreak:
		return t.LongBreakMinutes * 60
	default:
		return t.FocusMinutes * 60
	}
}
