package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// taskRow is the raw table shape; instants are RFC3339 text in the local zone.
type taskRow struct {
	ID          int64         `db:"id"`
	Name        string        `db:"name"`
	Description string        `db:"description"`
	DueDate     string        `db:"due_date"`
	Priority    int           `db:"priority"`
	SubjectID   sql.NullInt64 `db:"subject_id"`
	IsCompleted bool          `db:"is_completed"`
	CreatedAt   string        `db:"created_at"`
}

func (r taskRow) toTask() (Task, error) {
	due, err := time.Parse(time.RFC3339Nano, r.DueDate)
	if err != nil {
		return Task{}, fmt.Errorf("task %d: bad due_date: %w", r.ID, err)
	}
	created, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return Task{}, fmt.Errorf("task %d: bad created_at: %w", r.ID, err)
	}
	t := Task{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		DueDate:     due.Local(),
		Priority:    Priority(r.Priority),
		IsCompleted: r.IsCompleted,
		CreatedAt:   created.Local(),
	}
	if r.SubjectID.Valid {
		id := r.SubjectID.Int64
		t.SubjectID = &id
	}
	return t, nil
}

func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(name, description, due_date, priority, subject_id, is_completed, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		t.Name, t.Description, t.DueDate.Format(time.RFC3339Nano), int(t.Priority),
		nullID(t.SubjectID), t.IsCompleted, t.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	t.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdateTask(ctx context.Context, t Task) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET name=?, description=?, due_date=?, priority=?, subject_id=?, is_completed=? WHERE id=?`,
		t.Name, t.Description, t.DueDate.Format(time.RFC3339Nano), int(t.Priority),
		nullID(t.SubjectID), t.IsCompleted, t.ID,
	)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *Store) SetTaskCompleted(ctx context.Context, id int64, completed bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET is_completed=? WHERE id=?`, completed, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *Store) GetTask(ctx context.Context, id int64) (Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM tasks WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	return row.toTask()
}

func (s *Store) ListTasks(ctx context.Context) ([]Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM tasks ORDER BY due_date, id`)
	if err != nil {
		return nil, err
	}
	return tasksFromRows(rows)
}

// PendingTasks returns uncompleted tasks; this is the set boot recovery
// re-registers alarms for.
func (s *Store) PendingTasks(ctx context.Context) ([]Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM tasks WHERE is_completed=0 ORDER BY due_date, id`)
	if err != nil {
		return nil, err
	}
	return tasksFromRows(rows)
}

func tasksFromRows(rows []taskRow) ([]Task, error) {
	tasks := make([]Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTask()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func nullID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
