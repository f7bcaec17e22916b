package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"studymate/internal/eventbus"
	"studymate/internal/recurrence"
	"studymate/internal/storage"
	logx "studymate/pkg/logx"
)

// slotPayload is the wire shape for schedule slots. Times travel as
// "HH:MM" strings and the weekday as 0 (Sunday) through 6 (Saturday).
type slotPayload struct {
	ID        int64  `json:"id,omitempty"`
	SubjectID int64  `json:"subject_id"`
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func slotToPayload(s storage.ScheduleSlot) slotPayload {
	return slotPayload{
		ID:        s.ID,
		SubjectID: s.SubjectID,
		DayOfWeek: int(s.DayOfWeek),
		StartTime: s.StartTime.String(),
		EndTime:   s.EndTime.String(),
	}
}

type taskPayload struct {
	ID          int64     `json:"id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	DueDate     time.Time `json:"due_date"`
	Priority    int       `json:"priority"`
	SubjectID   *int64    `json:"subject_id,omitempty"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

func taskToPayload(t storage.Task) taskPayload {
	return taskPayload{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		DueDate:     t.DueDate,
		Priority:    int(t.Priority),
		SubjectID:   t.SubjectID,
		IsCompleted: t.IsCompleted,
		CreatedAt:   t.CreatedAt,
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return false
	}
	return true
}

// ---- health ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

// ---- subjects ----

func (s *Server) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := s.store.ListSubjects(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if subjects == nil {
		subjects = []storage.Subject{}
	}
	writeJSON(w, http.StatusOK, subjects)
}

func (s *Server) handleCreateSubject(w http.ResponseWriter, r *http.Request) {
	var sub storage.Subject
	if !decodeBody(w, r, &sub) {
		return
	}
	if strings.TrimSpace(sub.Name) == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "name is required")
		return
	}
	if err := s.store.CreateSubject(r.Context(), &sub); err != nil {
		writeStoreError(w, err)
		return
	}
	s.bus.Publish(eventbus.Event{Scope: eventbus.ScopeSchedule})
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleGetSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid id")
		return
	}
	sub, err := s.store.GetSubject(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handleUpdateSubject saves the subject and re-registers every slot alarm,
// since the per-subject lead time may have changed.
func (s *Server) handleUpdateSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid id")
		return
	}
	var sub storage.Subject
	if !decodeBody(w, r, &sub) {
		return
	}
	sub.ID = id
	if err := s.store.UpdateSubject(r.Context(), sub); err != nil {
		writeStoreError(w, err)
		return
	}

	slots, err := s.store.SlotsForSubject(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	for _, slot := range slots {
		if err := s.alarms.ScheduleClass(r.Context(), sub, slot); err != nil {
			s.log.Warn("class alarm reschedule failed",
				logx.Int64("slot", slot.ID), logx.Err(err))
		}
	}

	s.bus.Publish(eventbus.Event{Scope: eventbus.ScopeSchedule})
	writeJSON(w, http.StatusOK, sub)
}

// handleDeleteSubject cancels the subject's slot alarms before the cascade
// delete removes the slots themselves.
func (s *Server) handleDeleteSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid id")
		return
	}
	slots, err := s.store.SlotsForSubject(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	for _, slot := range slots {
		if err := s.alarms.CancelSlot(r.Context(), slot.ID); err != nil {
			s.log.Warn("slot alarm cancel failed",
				logx.Int64("slot", slot.ID), logx.Err(err))
		}
	}
	if err := s.store.DeleteSubject(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	s.bus.Publish(eventbus.Event{Scope: eventbus.ScopeSchedule})
	w.WriteHeader(http.StatusNoContent)
}

// ---- slots ----

func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid id")
		return
	}
	slots, err := s.store.SlotsForSubject(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]slotPayload, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slotToPayload(slot))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSlot(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid id")
		return
	}
	var p slotPayload
	if !decodeBody(w, r, &p) {
		return
	}
	if p.DayOfWeek < 0 || p.DayOfWeek > 6 {
		writeError(w, http.StatusBadRequest, "validation_error", "day_of_week must be 0..6")
		return
	}
	start, err := recurrence.ParseTimeOfDay(p.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid start_time")
		return
	}
	end, err := recurrence.ParseTimeOfDay(p.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid end_time")
		return
	}
	if end.Minutes() <= start.Minutes() {
		writeError(w, http.StatusBadRequest, "validation_error", "end_time must be after start_time")
		return
	}

	// Alarms carry the subject name, so a missing subject fails here and
	// not at fire time.
	sub, err := s.store.GetSubject(r.Context(), subjectID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	slot := storage.ScheduleSlot{
		SubjectID: subjectID,
		DayOfWeek: time.Weekday(p.DayOfWeek),
		StartTime: start,
		EndTime:   end,
	}
	if err := s.store.CreateSlot(r.Context(), &slot); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.alarms.ScheduleClass(r.Context(), sub, slot); err != nil {
		s.log.Warn("class alarm registration failed",
			logx.Int64("slot", slot.ID), logx.Err(err))
	}

	s.bus.Publish(eventbus.Event{Scope: eventbus.ScopeSchedule})
	writeJSON(w, http.StatusCreated, slotToPayload(slot))
}

func (s *Server) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid id")
		return
	}
	if err := s.alarms.CancelSlot(r.Context(), id); err != nil {
		s.log.Warn("slot alarm cancel failed", logx.Int64("slot", id), logx.Err(err))
	}
	if err := s.store.DeleteSlot(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	s.bus.Publish(eventbus.Event{Scope: eventbus.ScopeSchedule})
	w.WriteHeader(http.StatusNoContent)
}

// ---- tasks ----

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []storage.Task
		err   error
	)
	if r.URL.Query().Get("pending") == "1" {
		tasks, err = s.store.PendingTasks(r.Context())
	} else {
		tasks, err = s.store.ListTasks(r.Context())
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]taskPayload, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToPayload(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var p taskPayload
	if !decodeBody(w, r, &p) {
		return
	}
	if strings.TrimSpace(p.Name) == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "name is required")
		return
	}
	if p.DueDate.IsZero() {
		writeError(w, http.StatusBadRequest, "validation_error", "due_date is required")
		return
	}

	task := storage.Task{
		Name:        p.Name,
		Description: p.Description,
		DueDate:     p.DueDate,
		Priority:    storage.Priority(p.Priority),
		SubjectID:   p.SubjectID,
	}
	if err := s.store.CreateTask(r.Context(), &task); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.alarms.ScheduleTask(r.Context(), task); err != nil {
		s.log.Warn("task alarm registration failed",
			logx.Int64("task", task.ID), logx.Err(err))
	}

	s.bus.Publish(eventbus.Event{Scope: eventbus.ScopeTasks})
	writeJSON(w, http.StatusCreated, taskToPayload(task))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid id")
		return
	}
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskToPayload(task))
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid id")
		return
	}
	var p taskPayload
	if !decodeBody(w, r, &p) {
		return
	}
	task := storage.Task{
		ID:          id,
		Name:        p.Name,
		Description: p.Description,
		DueDate:     p.DueDate,
		Priority:    storage.Priority(p.Priority),
		SubjectID:   p.SubjectID,
		IsCompleted: p.IsCompleted,
	}
	if err := s.store.UpdateTask(r.Context(), task); err != nil {
		writeStoreError(w, err)
		return
	}

	// A moved deadline replaces the old registration atomically; a task
	// marked done must never fire.
	if task.IsCompleted {
		if err := s.alarms.CancelTask(r.Context(), id); err != nil {
			s.log.Warn("task alarm cancel failed", logx.Int64("task", id), logx.Err(err))
		}
	} else if err := s.alarms.ScheduleTask(r.Context(), task); err != nil {
		s.log.Warn("task alarm reschedule failed", logx.Int64("task", id), logx.Err(err))
	}

	s.bus.Publish(eventbus.Event{Scope: eventbus.ScopeTasks})
	writeJSON(w, http.StatusOK, taskToPayload(task))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid id")
		return
	}
	if err := s.alarms.CancelTask(r.Context(), id); err != nil {
		s.log.Warn("task alarm cancel failed", logx.Int64("task", id), logx.Err(err))
	}
	if err := s.store.DeleteTask(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	s.bus.Publish(eventbus.Event{Scope: eventbus.ScopeTasks})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid id")
		return
	}
	// Optional body; default is marking done.
	req := struct {
		Completed *bool `json:"completed"`
	}{}
	_ = json.NewDecoder(r.Body).Decode(&req)
	completed := req.Completed == nil || *req.Completed

	if err := s.store.SetTaskCompleted(r.Context(), id, completed); err != nil {
		writeStoreError(w, err)
		return
	}
	if completed {
		if err := s.alarms.CancelTask(r.Context(), id); err != nil {
			s.log.Warn("task alarm cancel failed", logx.Int64("task", id), logx.Err(err))
		}
	} else if task, err := s.store.GetTask(r.Context(), id); err == nil {
		if err := s.alarms.ScheduleTask(r.Context(), task); err != nil {
			s.log.Warn("task alarm reschedule failed", logx.Int64("task", id), logx.Err(err))
		}
	}

	s.bus.Publish(eventbus.Event{Scope: eventbus.ScopeTasks})
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskToPayload(task))
}

// ---- timer ----

func (s *Server) handleTimerState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.timer.Snapshot())
}

func (s *Server) handleTimerStart(w http.ResponseWriter, r *http.Request) {
	if err := s.timer.Start(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.timer.Snapshot())
}

func (s *Server) handleTimerPause(w http.ResponseWriter, r *http.Request) {
	if err := s.timer.Pause(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.timer.Snapshot())
}

func (s *Server) handleTimerReset(w http.ResponseWriter, r *http.Request) {
	if err := s.timer.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.timer.Snapshot())
}

func (s *Server) handleTimerMode(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Mode string `json:"mode"`
	}{}
	if !decodeBody(w, r, &req) {
		return
	}
	mode := storage.TimerMode(req.Mode)
	switch mode {
	case storage.ModeFocus, storage.ModeShortBreak, storage.ModeLongBreak:
	default:
		writeError(w, http.StatusBadRequest, "validation_error", "mode must be focus, short_break or long_break")
		return
	}
	if err := s.timer.SetMode(r.Context(), mode); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.timer.Snapshot())
}

func (s *Server) handleTimerDurations(w http.ResponseWriter, r *http.Request) {
	req := struct {
		FocusMinutes      int `json:"focus_minutes"`
		ShortBreakMinutes int `json:"short_break_minutes"`
		LongBreakMinutes  int `json:"long_break_minutes"`
	}{}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.timer.UpdateDurations(r.Context(), req.FocusMinutes, req.ShortBreakMinutes, req.LongBreakMinutes); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.timer.Snapshot())
}

// ---- notifications ----

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.notes.Recent(limit))
}
