package alarms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"studymate/internal/recurrence"
	"studymate/internal/storage"
	logx "studymate/pkg/logx"
)

// Source is the read side of the domain store the scheduler derives
// wake-ups from.
type Source interface {
	ListSubjects(ctx context.Context) ([]storage.Subject, error)
	SlotsForSubject(ctx context.Context, subjectID int64) ([]storage.ScheduleSlot, error)
	PendingTasks(ctx context.Context) ([]storage.Task, error)
}

type Config struct {
	// DefaultLeadMinutes is the class alarm lead used when a subject has no
	// per-subject value. Matches the mobile app's 15 minute default.
	DefaultLeadMinutes int

	// TaskLead is how long before a task's due date its alarm fires.
	TaskLead time.Duration

	// ReconcileSpec is a cron spec for the periodic re-registration pass.
	// Class alarms are one-shot, so after one fires the next weekly
	// occurrence has to be re-derived; the reconcile job does that without
	// waiting for a restart. Empty disables the job.
	ReconcileSpec string
}

func (c Config) withDefaults() Config {
	if c.DefaultLeadMinutes <= 0 {
		c.DefaultLeadMinutes = 15
	}
	if c.TaskLead <= 0 {
		c.TaskLead = time.Hour
	}
	return c
}

// Service turns domain entities into keyed driver registrations.
type Service struct {
	cfg    Config
	source Source
	driver Driver
	log    logx.Logger

	// now is swappable for tests.
	now func() time.Time

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, source Source, driver Driver, log logx.Logger) *Service {
	return &Service{
		cfg:    cfg.withDefaults(),
		source: source,
		driver: driver,
		log:    log,
		now:    time.Now,
	}
}

// Start launches the periodic reconcile job. The boot-time Recover pass is
// the caller's responsibility (it wants to inspect the report).
func (s *Service) Start(ctx context.Context) error {
	spec := s.cfg.ReconcileSpec
	if spec == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		rep := s.Recover(context.Background())
		s.log.Debug("reconcile pass done",
			logx.Int("classes", rep.Classes),
			logx.Int("tasks", rep.Tasks),
			logx.Int("skipped", rep.Skipped),
			logx.Int("failed", rep.Failed))
	})
	if err != nil {
		return fmt.Errorf("reconcile spec %q: %w", spec, err)
	}
	c.Start()
	s.c = c
	s.log.Info("alarm reconcile scheduled", logx.String("spec", spec))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
}

// ScheduleClass registers the wake-up for a slot's next weekly occurrence,
// lead minutes ahead of the class start. Re-scheduling the same slot
// supersedes the previous registration.
func (s *Service) ScheduleClass(ctx context.Context, subject storage.Subject, slot storage.ScheduleSlot) error {
	lead := subject.NotificationMinutesBefore
	if lead <= 0 {
		lead = s.cfg.DefaultLeadMinutes
	}
	next := recurrence.NextOccurrence(slot.DayOfWeek, slot.StartTime, s.now())
	at := next.Add(-time.Duration(lead) * time.Minute)

	return s.driver.Register(ctx, Registration{
		Key:      NewKey(CategoryClass, slot.ID),
		At:       at,
		Title:    fmt.Sprintf("Class: %s", subject.Name),
		Body:     fmt.Sprintf("Your %s class starts in %d minutes at %s", subject.Name, lead, subject.Location),
		Category: CategoryClass,
	})
}

// ScheduleTask registers the wake-up one lead interval before the due date.
// Tasks whose notification instant already passed are silently skipped;
// a stale deadline must not fire retroactively.
func (s *Service) ScheduleTask(ctx context.Context, task storage.Task) error {
	at := task.DueDate.Add(-s.cfg.TaskLead)
	if !at.After(s.now()) {
		s.log.Debug("task alarm skipped, instant already passed",
			logx.Int64("task", task.ID), logx.Time("at", at))
		// A registration from an earlier due date may still be pending; it
		// must not fire for a deadline that is now stale.
		return s.driver.Cancel(ctx, NewKey(CategoryTask, task.ID))
	}

	return s.driver.Register(ctx, Registration{
		Key:      NewKey(CategoryTask, task.ID),
		At:       at,
		Title:    fmt.Sprintf("Task: %s", task.Name),
		Body:     fmt.Sprintf("Your task %q is due in 1 hour", task.Name),
		Category: CategoryTask,
	})
}

// SchedulePomodoro registers the phase-completion notification, keyed by
// mode so repeated completions of the same mode replace each other.
func (s *Service) SchedulePomodoro(ctx context.Context, mode storage.TimerMode, at time.Time) error {
	title, body := "Focus time finished", "Time to take a break!"
	if mode.IsBreak() {
		title, body = "Break finished", "Time to get back to studying!"
	}

	return s.driver.Register(ctx, Registration{
		Key:      NewKey(CategoryPomodoro, pomodoroEntity(mode)),
		At:       at,
		Title:    title,
		Body:     body,
		Category: CategoryPomodoro,
	})
}

// Cancel removes any outstanding registration for key. Unknown keys are a
// no-op, so callers can cancel unconditionally on entity deletion.
func (s *Service) Cancel(ctx context.Context, key Key) error {
	return s.driver.Cancel(ctx, key)
}

func (s *Service) CancelSlot(ctx context.Context, slotID int64) error {
	return s.Cancel(ctx, NewKey(CategoryClass, slotID))
}

func (s *Service) CancelTask(ctx context.Context, taskID int64) error {
	return s.Cancel(ctx, NewKey(CategoryTask, taskID))
}

func pomodoroEntity(mode storage.TimerMode) int64 {
	switch mode {
	case storage.ModeShortBreak:
		return 2
	case storage.ModeLongBreak:
		return 3
	default:
		return 1
	}
}

// recoverable reports whether err is a policy denial rather than a hard
// driver failure.
func recoverable(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
