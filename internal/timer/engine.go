// Package timer implements the pomodoro countdown state machine. The state
// lives in a single persisted record written synchronously on every
// transition, so the UI process can die mid-countdown and a fresh process
// (or the widget surface) picks up exactly where it left off.
package timer

import (
	"context"
	"sync"
	"time"

	"studymate/internal/eventbus"
	"studymate/internal/storage"
	logx "studymate/pkg/logx"
)

// Scheduler is the alarm path used for phase-completion notifications.
type Scheduler interface {
	SchedulePomodoro(ctx context.Context, mode storage.TimerMode, at time.Time) error
}

// Store persists the singleton timer record.
type Store interface {
	TimerState(ctx context.Context) (storage.TimerState, error)
	SaveTimerState(ctx context.Context, st storage.TimerState) error
}

// Engine owns the timer state cell. All writes go through its operations;
// the tick loop and user-triggered transitions serialize on one mutex, so
// no transition ever observes a half-applied decrement.
type Engine struct {
	store  Store
	alarms Scheduler
	bus    *eventbus.Bus
	log    logx.Logger

	// tick is the countdown resolution. Tests shrink it.
	tick time.Duration

	mu     sync.Mutex
	st     storage.TimerState
	gen    uint64
	cancel context.CancelFunc
}

func New(store Store, alarms Scheduler, bus *eventbus.Bus, log logx.Logger) *Engine {
	return &Engine{
		store:  store,
		alarms: alarms,
		bus:    bus,
		log:    log,
		tick:   time.Second,
		st:     storage.DefaultTimerState(),
	}
}

// Restore loads the persisted record and, when the process died while the
// timer was Running, resumes the countdown from the persisted remaining
// seconds instead of restarting at the configured duration.
func (e *Engine) Restore(ctx context.Context) error {
	st, err := e.store.TimerState(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.st = st
	resume := st.Phase == storage.PhaseRunning && st.RemainingSeconds > 0
	if st.Phase == storage.PhaseRunning && st.RemainingSeconds <= 0 {
		// Died exactly on the boundary; settle into Finished without firing
		// a notification for a completion the user may have seen long ago.
		e.st.Phase = storage.PhaseFinished
		e.st.RemainingSeconds = 0
		_ = e.persistLocked(ctx)
	}
	if resume {
		e.startLoopLocked()
	}
	e.mu.Unlock()

	e.log.Info("timer state restored",
		logx.String("phase", string(st.Phase)),
		logx.String("mode", string(st.Mode)),
		logx.Int("remaining", st.RemainingSeconds),
		logx.Bool("resumed", resume))
	return nil
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() storage.TimerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st
}

// Start moves Stopped/Paused/Finished into Running. Calling it while
// already Running is a no-op: there is never a second concurrent countdown.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.st.Phase == storage.PhaseRunning {
		e.mu.Unlock()
		return nil
	}
	// A completed (or drained) timer starts over at the mode's duration;
	// a paused one resumes from its frozen remaining value.
	if e.st.Phase == storage.PhaseFinished || e.st.RemainingSeconds <= 0 {
		e.st.RemainingSeconds = e.st.ModeSeconds(e.st.Mode)
	}
	e.st.Phase = storage.PhaseRunning
	err := e.persistLocked(ctx)
	e.startLoopLocked()
	e.mu.Unlock()

	e.publish()
	return err
}

// Pause freezes the countdown at its current remaining value.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	if e.st.Phase != storage.PhaseRunning {
		e.mu.Unlock()
		return nil
	}
	e.cancelLoopLocked()
	e.st.Phase = storage.PhasePaused
	err := e.persistLocked(ctx)
	e.mu.Unlock()

	e.publish()
	return err
}

// Reset stops any countdown and reloads the current mode's full duration.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	err := e.resetLocked(ctx)
	e.mu.Unlock()

	e.publish()
	return err
}

// SetMode switches Focus/ShortBreak/LongBreak. An active countdown is
// stopped first; the new mode always begins from its full duration.
func (e *Engine) SetMode(ctx context.Context, mode storage.TimerMode) error {
	switch mode {
	case storage.ModeFocus, storage.ModeShortBreak, storage.ModeLongBreak:
	default:
		mode = storage.ModeFocus
	}

	e.mu.Lock()
	e.st.Mode = mode
	err := e.resetLocked(ctx)
	e.mu.Unlock()

	e.publish()
	return err
}

// UpdateDurations changes the configured interval lengths, clamped to the
// app's bounds. Unless a countdown is running, the displayed remaining time
// reflects the new duration immediately.
func (e *Engine) UpdateDurations(ctx context.Context, focus, shortBreak, longBreak int) error {
	e.mu.Lock()
	e.st.FocusMinutes = clamp(focus, 1, 60)
	e.st.ShortBreakMinutes = clamp(shortBreak, 1, 30)
	e.st.LongBreakMinutes = clamp(longBreak, 1, 45)

	var err error
	if e.st.Phase != storage.PhaseRunning {
		err = e.resetLocked(ctx)
	} else {
		err = e.persistLocked(ctx)
	}
	e.mu.Unlock()

	e.publish()
	return err
}

// Stop cancels the tick loop without touching the persisted record, so a
// Running phase survives process teardown and Restore resumes it.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.cancelLoopLocked()
	e.mu.Unlock()
}

// ---- internals ----

// resetLocked implements the shared "back to Stopped at full duration"
// transition. Call with e.mu held.
func (e *Engine) resetLocked(ctx context.Context) error {
	e.cancelLoopLocked()
	e.st.Phase = storage.PhaseStopped
	e.st.RemainingSeconds = e.st.ModeSeconds(e.st.Mode)
	return e.persistLocked(ctx)
}

// startLoopLocked cancels any previous loop and launches a fresh one.
// Call with e.mu held.
func (e *Engine) startLoopLocked() {
	e.cancelLoopLocked()
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	gen := e.gen
	go e.run(ctx, gen)
}

// cancelLoopLocked tears down the current loop and bumps the generation so
// an in-flight tick that already passed the context check self-terminates
// instead of applying a stale decrement. Call with e.mu held.
func (e *Engine) cancelLoopLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
}

func (e *Engine) run(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.step(gen) {
				return
			}
		}
	}
}

// step applies one second of countdown. It returns false when the loop
// should exit: stale generation, phase changed underneath us, or finished.
func (e *Engine) step(gen uint64) bool {
	e.mu.Lock()
	if e.gen != gen || e.st.Phase != storage.PhaseRunning {
		e.mu.Unlock()
		return false
	}

	e.st.RemainingSeconds--
	if e.st.RemainingSeconds <= 0 {
		e.st.RemainingSeconds = 0
		e.st.Phase = storage.PhaseFinished
		mode := e.st.Mode
		if err := e.persistLocked(context.Background()); err != nil {
			e.log.Warn("persisting finished state failed", logx.Err(err))
		}
		e.cancelLoopLocked()
		e.mu.Unlock()

		e.publish()
		// Exactly one completion notification per finish: the loop exits
		// right after this and a re-Start builds a new countdown.
		if err := e.alarms.SchedulePomodoro(context.Background(), mode, time.Now()); err != nil {
			e.log.Warn("pomodoro completion notification failed", logx.Err(err))
		}
		return false
	}

	if err := e.persistLocked(context.Background()); err != nil {
		e.log.Warn("persisting tick failed", logx.Err(err))
	}
	e.mu.Unlock()

	e.publish()
	return true
}

// persistLocked writes the state before the transition returns. Call with
// e.mu held.
func (e *Engine) persistLocked(ctx context.Context) error {
	e.st.UpdatedAt = time.Now()
	return e.store.SaveTimerState(ctx, e.st)
}

func (e *Engine) publish() {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Scope: eventbus.ScopeTimer, Data: e.Snapshot()})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
