package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TimerState loads the singleton pomodoro record. A missing row yields the
// default 25/5/15 state rather than an error, so a fresh install behaves
// like a stopped timer.
func (s *Store) TimerState(ctx context.Context) (TimerState, error) {
	var row struct {
		Phase             string `db:"phase"`
		Mode              string `db:"mode"`
		RemainingSeconds  int    `db:"remaining_seconds"`
		FocusMinutes      int    `db:"focus_minutes"`
		ShortBreakMinutes int    `db:"short_break_minutes"`
		LongBreakMinutes  int    `db:"long_break_minutes"`
		UpdatedAt         string `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT phase, mode, remaining_seconds, focus_minutes, short_break_minutes, long_break_minutes, updated_at
		 FROM timer_state WHERE id=1`)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultTimerState(), nil
	}
	if err != nil {
		return TimerState{}, err
	}

	st := TimerState{
		Phase:             TimerPhase(row.Phase),
		Mode:              TimerMode(row.Mode),
		RemainingSeconds:  row.RemainingSeconds,
		FocusMinutes:      row.FocusMinutes,
		ShortBreakMinutes: row.ShortBreakMinutes,
		LongBreakMinutes:  row.LongBreakMinutes,
	}
	if at, perr := time.Parse(time.RFC3339Nano, row.UpdatedAt); perr == nil {
		st.UpdatedAt = at.Local()
	}
	return st, nil
}

// SaveTimerState upserts the singleton record. Callers (the timer engine)
// serialize writes; the upsert keeps the write itself atomic.
func (s *Store) SaveTimerState(ctx context.Context, st TimerState) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO timer_state(id, phase, mode, remaining_seconds, focus_minutes, short_break_minutes, long_break_minutes, updated_at)
		 VALUES(1,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   phase=excluded.phase,
		   mode=excluded.mode,
		   remaining_seconds=excluded.remaining_seconds,
		   focus_minutes=excluded.focus_minutes,
		   short_break_minutes=excluded.short_break_minutes,
		   long_break_minutes=excluded.long_break_minutes,
		   updated_at=excluded.updated_at`,
		string(st.Phase), string(st.Mode), st.RemainingSeconds,
		st.FocusMinutes, st.ShortBreakMinutes, st.LongBreakMinutes,
		st.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}
