package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"studymate/internal/recurrence"
)

func (s *Store) CreateSubject(ctx context.Context, sub *Subject) error {
	if sub.NotificationMinutesBefore <= 0 {
		sub.NotificationMinutesBefore = 15
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects(name, professor, location, color, notification_minutes_before, position)
		 VALUES(?,?,?,?,?,?)`,
		sub.Name, sub.Professor, sub.Location, sub.Color, sub.NotificationMinutesBefore, sub.Position,
	)
	if err != nil {
		return err
	}
	sub.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdateSubject(ctx context.Context, sub Subject) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subjects SET name=?, professor=?, location=?, color=?, notification_minutes_before=?, position=?
		 WHERE id=?`,
		sub.Name, sub.Professor, sub.Location, sub.Color, sub.NotificationMinutesBefore, sub.Position, sub.ID,
	)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// DeleteSubject removes the subject; its schedule slots go with it (FK cascade).
func (s *Store) DeleteSubject(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subjects WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *Store) GetSubject(ctx context.Context, id int64) (Subject, error) {
	var sub Subject
	err := s.db.GetContext(ctx, &sub, `SELECT * FROM subjects WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Subject{}, ErrNotFound
	}
	return sub, err
}

func (s *Store) ListSubjects(ctx context.Context) ([]Subject, error) {
	var subs []Subject
	err := s.db.SelectContext(ctx, &subs, `SELECT * FROM subjects ORDER BY position, id`)
	return subs, err
}

// ---- schedule slots ----

// slotRow is the raw table shape; times are kept as "HH:MM" text.
type slotRow struct {
	ID        int64  `db:"id"`
	SubjectID int64  `db:"subject_id"`
	DayOfWeek int    `db:"day_of_week"`
	StartTime string `db:"start_time"`
	EndTime   string `db:"end_time"`
}

func (r slotRow) toSlot() (ScheduleSlot, error) {
	start, err := recurrence.ParseTimeOfDay(r.StartTime)
	if err != nil {
		return ScheduleSlot{}, err
	}
	end, err := recurrence.ParseTimeOfDay(r.EndTime)
	if err != nil {
		return ScheduleSlot{}, err
	}
	return ScheduleSlot{
		ID:        r.ID,
		SubjectID: r.SubjectID,
		DayOfWeek: time.Weekday(r.DayOfWeek),
		StartTime: start,
		EndTime:   end,
	}, nil
}

func (s *Store) CreateSlot(ctx context.Context, slot *ScheduleSlot) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_slots(subject_id, day_of_week, start_time, end_time) VALUES(?,?,?,?)`,
		slot.SubjectID, int(slot.DayOfWeek), slot.StartTime.String(), slot.EndTime.String(),
	)
	if err != nil {
		return err
	}
	slot.ID, err = res.LastInsertId()
	return err
}

func (s *Store) DeleteSlot(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedule_slots WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *Store) GetSlot(ctx context.Context, id int64) (ScheduleSlot, error) {
	var row slotRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM schedule_slots WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduleSlot{}, ErrNotFound
	}
	if err != nil {
		return ScheduleSlot{}, err
	}
	return row.toSlot()
}

func (s *Store) SlotsForSubject(ctx context.Context, subjectID int64) ([]ScheduleSlot, error) {
	var rows []slotRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM schedule_slots WHERE subject_id=? ORDER BY day_of_week, start_time`, subjectID)
	if err != nil {
		return nil, err
	}
	return slotsFromRows(rows)
}

func (s *Store) ListSlots(ctx context.Context) ([]ScheduleSlot, error) {
	var rows []slotRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM schedule_slots ORDER BY day_of_week, start_time`)
	if err != nil {
		return nil, err
	}
	return slotsFromRows(rows)
}

func slotsFromRows(rows []slotRow) ([]ScheduleSlot, error) {
	slots := make([]ScheduleSlot, 0, len(rows))
	for _, r := range rows {
		slot, err := r.toSlot()
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
