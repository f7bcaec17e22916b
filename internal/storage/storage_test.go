package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"studymate/internal/recurrence"
	logx "studymate/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "studymate.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSubjectRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sub := &Subject{Name: "Calculus", Location: "B204", NotificationMinutesBefore: 20}
	if err := st.CreateSubject(ctx, sub); err != nil {
		t.Fatalf("CreateSubject: %v", err)
	}
	if sub.ID == 0 {
		t.Fatal("expected assigned id")
	}

	got, err := st.GetSubject(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubject: %v", err)
	}
	if got.Name != "Calculus" || got.NotificationMinutesBefore != 20 {
		t.Fatalf("unexpected subject: %+v", got)
	}

	got.Location = "C101"
	if err := st.UpdateSubject(ctx, got); err != nil {
		t.Fatalf("UpdateSubject: %v", err)
	}
	got, _ = st.GetSubject(ctx, sub.ID)
	if got.Location != "C101" {
		t.Fatalf("update not persisted: %+v", got)
	}

	if _, err := st.GetSubject(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteSubjectCascadesSlots(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sub := &Subject{Name: "Physics"}
	if err := st.CreateSubject(ctx, sub); err != nil {
		t.Fatalf("CreateSubject: %v", err)
	}
	slot := &ScheduleSlot{
		SubjectID: sub.ID,
		DayOfWeek: time.Wednesday,
		StartTime: recurrence.TimeOfDay{Hour: 10},
		EndTime:   recurrence.TimeOfDay{Hour: 12},
	}
	if err := st.CreateSlot(ctx, slot); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}

	got, err := st.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if got.DayOfWeek != time.Wednesday || got.StartTime.String() != "10:00" {
		t.Fatalf("unexpected slot: %+v", got)
	}

	if err := st.DeleteSubject(ctx, sub.ID); err != nil {
		t.Fatalf("DeleteSubject: %v", err)
	}
	if _, err := st.GetSlot(ctx, slot.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("slot should be gone with its subject, got %v", err)
	}
}

func TestPendingTasks(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	due := time.Now().Add(48 * time.Hour).Truncate(time.Second)

	open := &Task{Name: "essay", DueDate: due, Priority: PriorityHigh}
	done := &Task{Name: "reading", DueDate: due, IsCompleted: true}
	for _, task := range []*Task{open, done} {
		if err := st.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}

	pending, err := st.PendingTasks(ctx)
	if err != nil {
		t.Fatalf("PendingTasks: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != open.ID {
		t.Fatalf("unexpected pending set: %+v", pending)
	}
	if !pending[0].DueDate.Equal(due) {
		t.Fatalf("due date drifted: got %v want %v", pending[0].DueDate, due)
	}

	if err := st.SetTaskCompleted(ctx, open.ID, true); err != nil {
		t.Fatalf("SetTaskCompleted: %v", err)
	}
	pending, _ = st.PendingTasks(ctx)
	if len(pending) != 0 {
		t.Fatalf("expected no pending tasks, got %+v", pending)
	}
}

func TestTimerStateDefaultAndUpsert(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	got, err := st.TimerState(ctx)
	if err != nil {
		t.Fatalf("TimerState: %v", err)
	}
	want := DefaultTimerState()
	if got.Phase != want.Phase || got.RemainingSeconds != want.RemainingSeconds {
		t.Fatalf("expected default state, got %+v", got)
	}

	got.Phase = PhaseRunning
	got.RemainingSeconds = 1200
	if err := st.SaveTimerState(ctx, got); err != nil {
		t.Fatalf("SaveTimerState: %v", err)
	}
	// Second save must update, not duplicate.
	got.RemainingSeconds = 1199
	if err := st.SaveTimerState(ctx, got); err != nil {
		t.Fatalf("SaveTimerState(2): %v", err)
	}

	reloaded, err := st.TimerState(ctx)
	if err != nil {
		t.Fatalf("TimerState reload: %v", err)
	}
	if reloaded.Phase != PhaseRunning || reloaded.RemainingSeconds != 1199 {
		t.Fatalf("unexpected reload: %+v", reloaded)
	}
}
