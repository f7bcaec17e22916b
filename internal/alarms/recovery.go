package alarms

import (
	"context"

	logx "studymate/pkg/logx"
)

// RecoveryReport counts what a Recover pass did.
type RecoveryReport struct {
	Classes int // class alarms registered
	Tasks   int // task alarms registered
	Skipped int // stale tasks not scheduled
	Failed  int // per-entity failures (logged, not fatal)
}

// Recover re-derives every outstanding wake-up from the store: all slots of
// all subjects plus all pending tasks. It is the sole mechanism for
// restoring registrations lost to a process restart and also serves as the
// periodic reconcile pass.
//
// Individual failures are logged and counted; the pass always runs to the
// end of the entity list.
func (s *Service) Recover(ctx context.Context) RecoveryReport {
	var rep RecoveryReport

	subjects, err := s.source.ListSubjects(ctx)
	if err != nil {
		s.log.Error("recovery: listing subjects failed", logx.Err(err))
		rep.Failed++
	}
	for _, subject := range subjects {
		slots, err := s.source.SlotsForSubject(ctx, subject.ID)
		if err != nil {
			s.log.Warn("recovery: listing slots failed",
				logx.Int64("subject", subject.ID), logx.Err(err))
			rep.Failed++
			continue
		}
		for _, slot := range slots {
			if err := s.ScheduleClass(ctx, subject, slot); err != nil {
				rep.Failed++
				if recoverable(err) {
					s.log.Warn("recovery: class alarm denied by policy",
						logx.Int64("slot", slot.ID))
				} else {
					s.log.Warn("recovery: class alarm failed",
						logx.Int64("slot", slot.ID), logx.Err(err))
				}
				continue
			}
			rep.Classes++
		}
	}

	tasks, err := s.source.PendingTasks(ctx)
	if err != nil {
		s.log.Error("recovery: listing tasks failed", logx.Err(err))
		rep.Failed++
	}
	now := s.now()
	for _, task := range tasks {
		if !task.DueDate.Add(-s.cfg.TaskLead).After(now) {
			rep.Skipped++
			continue
		}
		if err := s.ScheduleTask(ctx, task); err != nil {
			rep.Failed++
			if recoverable(err) {
				s.log.Warn("recovery: task alarm denied by policy",
					logx.Int64("task", task.ID))
			} else {
				s.log.Warn("recovery: task alarm failed",
					logx.Int64("task", task.ID), logx.Err(err))
			}
			continue
		}
		rep.Tasks++
	}

	s.log.Info("alarm recovery complete",
		logx.Int("classes", rep.Classes),
		logx.Int("tasks", rep.Tasks),
		logx.Int("skipped", rep.Skipped),
		logx.Int("failed", rep.Failed))
	return rep
}
