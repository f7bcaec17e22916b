package alarms

import (
	"context"
	"sync"
	"testing"
	"time"

	logx "studymate/pkg/logx"
)

type deliveries struct {
	mu   sync.Mutex
	regs []Registration
}

func (d *deliveries) deliver(ctx context.Context, r Registration) {
	d.mu.Lock()
	d.regs = append(d.regs, r)
	d.mu.Unlock()
}

func (d *deliveries) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.regs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestTimerDriverDeliversPastInstantImmediately(t *testing.T) {
	t.Parallel()
	got := &deliveries{}
	d := NewTimerDriver(got.deliver, logx.Nop())
	defer d.Stop()

	r := Registration{Key: NewKey(CategoryTask, 1), At: time.Now().Add(-time.Minute), Title: "t"}
	if err := d.Register(context.Background(), r); err != nil {
		t.Fatalf("Register: %v", err)
	}
	waitFor(t, func() bool { return got.count() == 1 })
}

func TestTimerDriverReplaceIsAtomic(t *testing.T) {
	t.Parallel()
	got := &deliveries{}
	d := NewTimerDriver(got.deliver, logx.Nop())
	defer d.Stop()

	key := NewKey(CategoryTask, 2)
	ctx := context.Background()

	// First registration would fire almost immediately; the replacement
	// pushes it far out. The superseded timer must never deliver.
	if err := d.Register(ctx, Registration{Key: key, At: time.Now().Add(20 * time.Millisecond)}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := d.Register(ctx, Registration{Key: key, At: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Register(replace): %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if got.count() != 0 {
		t.Fatalf("superseded registration fired: %+v", got.regs)
	}
	if d.Pending() != 1 {
		t.Fatalf("expected exactly 1 pending registration, got %d", d.Pending())
	}
}

func TestTimerDriverStaleCallbackAfterCancelAndReregister(t *testing.T) {
	t.Parallel()
	got := &deliveries{}
	d := NewTimerDriver(got.deliver, logx.Nop())
	defer d.Stop()

	key := NewKey(CategoryTask, 7)
	ctx := context.Background()

	// A timer can be mid-fire when Cancel stops it (Stop returns false and
	// the callback still runs). Model that window by invoking the first
	// registration's callback directly after a Cancel and re-Register.
	old := Registration{Key: key, At: time.Now().Add(time.Hour), Title: "old"}
	if err := d.Register(ctx, old); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d.mu.Lock()
	oldVer := d.vers[key]
	d.mu.Unlock()

	if err := d.Cancel(ctx, key); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	next := Registration{Key: key, At: time.Now().Add(time.Hour), Title: "next"}
	if err := d.Register(ctx, next); err != nil {
		t.Fatalf("Register(new): %v", err)
	}

	d.fire(old, oldVer)
	if got.count() != 0 {
		t.Fatalf("stale callback delivered after cancel and re-register: %+v", got.regs)
	}
	// The new registration's bookkeeping must survive the stale callback.
	if d.Pending() != 1 {
		t.Fatalf("expected the new registration to stay pending, got %d", d.Pending())
	}

	d.mu.Lock()
	newVer := d.vers[key]
	d.mu.Unlock()
	d.fire(next, newVer)
	waitFor(t, func() bool { return got.count() == 1 })
	got.mu.Lock()
	title := got.regs[0].Title
	got.mu.Unlock()
	if title != "next" {
		t.Fatalf("wrong registration delivered: %q", title)
	}
}

func TestTimerDriverCancelIsIdempotent(t *testing.T) {
	t.Parallel()
	got := &deliveries{}
	d := NewTimerDriver(got.deliver, logx.Nop())
	defer d.Stop()

	key := NewKey(CategoryClass, 3)
	ctx := context.Background()

	// Cancel of a never-registered key is a no-op.
	if err := d.Cancel(ctx, key); err != nil {
		t.Fatalf("Cancel(unknown): %v", err)
	}

	if err := d.Register(ctx, Registration{Key: key, At: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := d.Cancel(ctx, key); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := d.Cancel(ctx, key); err != nil {
		t.Fatalf("Cancel(again): %v", err)
	}
	if d.Pending() != 0 {
		t.Fatalf("expected no pending registrations, got %d", d.Pending())
	}
}
