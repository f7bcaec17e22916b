package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"studymate/internal/eventbus"
	"studymate/internal/storage"
	logx "studymate/pkg/logx"
)

type memStore struct {
	mu    sync.Mutex
	st    storage.TimerState
	saves int
}

func newMemStore() *memStore {
	return &memStore{st: storage.DefaultTimerState()}
}

func (m *memStore) TimerState(ctx context.Context) (storage.TimerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st, nil
}

func (m *memStore) SaveTimerState(ctx context.Context, st storage.TimerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = st
	m.saves++
	return nil
}

func (m *memStore) saved() storage.TimerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

type countingScheduler struct {
	mu    sync.Mutex
	calls []storage.TimerMode
}

func (c *countingScheduler) SchedulePomodoro(ctx context.Context, mode storage.TimerMode, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, mode)
	return nil
}

func (c *countingScheduler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func newTestEngine(t *testing.T, store Store) (*Engine, *countingScheduler) {
	t.Helper()
	sched := &countingScheduler{}
	e := New(store, sched, eventbus.New(), logx.Nop())
	e.tick = 2 * time.Millisecond
	t.Cleanup(e.Stop)
	return e, sched
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStartIsNoOpWhileRunning(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	e, _ := newTestEngine(t, store)
	ctx := context.Background()

	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return e.Snapshot().RemainingSeconds < 25*60 })

	before := e.Snapshot().RemainingSeconds
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start(again): %v", err)
	}
	after := e.Snapshot().RemainingSeconds
	if after > before {
		t.Fatalf("second Start reset the countdown: %d -> %d", before, after)
	}
	if e.Snapshot().Phase != storage.PhaseRunning {
		t.Fatalf("phase = %v", e.Snapshot().Phase)
	}
}

func TestPauseFreezesAndResumeContinuesExactly(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	e, _ := newTestEngine(t, store)
	ctx := context.Background()

	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return e.Snapshot().RemainingSeconds <= 25*60-3 })

	if err := e.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	frozen := e.Snapshot().RemainingSeconds
	if e.Snapshot().Phase != storage.PhasePaused {
		t.Fatalf("phase = %v", e.Snapshot().Phase)
	}

	// The paused value must not drift while no loop is running.
	time.Sleep(20 * time.Millisecond)
	if got := e.Snapshot().RemainingSeconds; got != frozen {
		t.Fatalf("remaining drifted while paused: %d -> %d", frozen, got)
	}
	// The persisted record matches what observers see.
	if store.saved().RemainingSeconds != frozen || store.saved().Phase != storage.PhasePaused {
		t.Fatalf("persisted state lags: %+v", store.saved())
	}

	// Resume picks up from the frozen value, not a reset.
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start(resume): %v", err)
	}
	if got := e.Snapshot().RemainingSeconds; got != frozen {
		t.Fatalf("resume changed remaining before first tick: %d != %d", got, frozen)
	}
	waitFor(t, func() bool { return e.Snapshot().RemainingSeconds < frozen })
}

func TestCountdownFinishesExactlyOnce(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	e, sched := newTestEngine(t, store)
	ctx := context.Background()

	// 1-minute focus keeps the test fast at a 2ms tick.
	if err := e.UpdateDurations(ctx, 1, 5, 15); err != nil {
		t.Fatalf("UpdateDurations: %v", err)
	}
	if got := e.Snapshot().RemainingSeconds; got != 60 {
		t.Fatalf("remaining = %d, want 60", got)
	}

	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return e.Snapshot().Phase == storage.PhaseFinished })

	st := e.Snapshot()
	if st.RemainingSeconds != 0 {
		t.Fatalf("remaining = %d after finish", st.RemainingSeconds)
	}
	if sched.count() != 1 {
		t.Fatalf("completion fired %d times", sched.count())
	}

	// No stray loop keeps decrementing or re-firing.
	time.Sleep(30 * time.Millisecond)
	if got := e.Snapshot(); got.RemainingSeconds != 0 || got.Phase != storage.PhaseFinished {
		t.Fatalf("state changed after finish: %+v", got)
	}
	if sched.count() != 1 {
		t.Fatalf("completion re-fired: %d", sched.count())
	}
}

func TestUpdateDurationsWhileStopped(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	e, _ := newTestEngine(t, store)
	ctx := context.Background()

	// New focus duration shows up immediately when not running.
	if err := e.UpdateDurations(ctx, 50, 5, 15); err != nil {
		t.Fatalf("UpdateDurations: %v", err)
	}
	st := e.Snapshot()
	if st.RemainingSeconds != 50*60 || st.Phase != storage.PhaseStopped {
		t.Fatalf("unexpected state: %+v", st)
	}

	// Out-of-range values clamp to the app's bounds.
	if err := e.UpdateDurations(ctx, 120, 99, 0); err != nil {
		t.Fatalf("UpdateDurations(clamp): %v", err)
	}
	st = e.Snapshot()
	if st.FocusMinutes != 60 || st.ShortBreakMinutes != 30 || st.LongBreakMinutes != 1 {
		t.Fatalf("clamping failed: %+v", st)
	}
}

func TestSetModeStopsAndReloadsDuration(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	e, _ := newTestEngine(t, store)
	ctx := context.Background()

	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.SetMode(ctx, storage.ModeShortBreak); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	st := e.Snapshot()
	if st.Phase != storage.PhaseStopped || st.Mode != storage.ModeShortBreak {
		t.Fatalf("unexpected state: %+v", st)
	}
	if st.RemainingSeconds != st.ShortBreakMinutes*60 {
		t.Fatalf("remaining = %d, want %d", st.RemainingSeconds, st.ShortBreakMinutes*60)
	}

	// No loop survived the mode switch.
	time.Sleep(20 * time.Millisecond)
	if got := e.Snapshot().RemainingSeconds; got != st.RemainingSeconds {
		t.Fatalf("countdown kept running after SetMode: %d", got)
	}
}

func TestStartAfterFinishedBeginsFreshCountdown(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	store.st.Phase = storage.PhaseFinished
	store.st.RemainingSeconds = 0
	e, _ := newTestEngine(t, store)
	ctx := context.Background()

	if err := e.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st := e.Snapshot()
	if st.Phase != storage.PhaseRunning || st.RemainingSeconds != st.FocusMinutes*60 {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestRestoreResumesPersistedRunningState(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	store.st.Phase = storage.PhaseRunning
	store.st.RemainingSeconds = 600
	e, _ := newTestEngine(t, store)

	if err := e.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	st := e.Snapshot()
	if st.Phase != storage.PhaseRunning || st.RemainingSeconds > 600 {
		t.Fatalf("unexpected restored state: %+v", st)
	}
	// The countdown actually resumed from where the old process stopped.
	waitFor(t, func() bool { return e.Snapshot().RemainingSeconds < 600 })
}
