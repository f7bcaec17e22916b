package alarms

import (
	"context"
	"sync"
	"time"

	logx "studymate/pkg/logx"
)

// DeliverFunc renders a fired registration to the user (notification sinks).
type DeliverFunc func(ctx context.Context, r Registration)

// TimerDriver is the in-process Driver implementation, backed by
// time.AfterFunc. Versions come from one driver-wide monotonic counter, so a
// version is never reused for a key: a superseded or cancelled timer that
// fires late can never match the current registration and drops itself
// silently.
type TimerDriver struct {
	deliver DeliverFunc
	log     logx.Logger

	mu     sync.Mutex
	seq    uint64
	timers map[Key]*time.Timer
	vers   map[Key]uint64
}

func NewTimerDriver(deliver DeliverFunc, log logx.Logger) *TimerDriver {
	return &TimerDriver{
		deliver: deliver,
		log:     log,
		timers:  map[Key]*time.Timer{},
		vers:    map[Key]uint64{},
	}
}

func (d *TimerDriver) Register(ctx context.Context, r Registration) error {
	delay := time.Until(r.At)
	if delay < 0 {
		delay = 0
	}

	d.mu.Lock()
	if t, ok := d.timers[r.Key]; ok {
		_ = t.Stop()
	}
	d.seq++
	ver := d.seq
	d.vers[r.Key] = ver

	reg := r
	d.timers[r.Key] = time.AfterFunc(delay, func() { d.fire(reg, ver) })
	d.mu.Unlock()

	d.log.Debug("alarm registered",
		logx.Int64("key", int64(reg.Key)),
		logx.String("category", reg.Category.String()),
		logx.Time("at", r.At),
		logx.Duration("in", delay))
	return nil
}

// fire is the timer callback. A callback whose version no longer matches the
// key's current one was cancelled or replaced while in flight; it must not
// deliver and must not touch the newer registration's bookkeeping.
func (d *TimerDriver) fire(reg Registration, ver uint64) {
	d.mu.Lock()
	if d.vers[reg.Key] != ver {
		d.mu.Unlock()
		return
	}
	delete(d.timers, reg.Key)
	delete(d.vers, reg.Key)
	d.mu.Unlock()

	d.log.Debug("alarm fired",
		logx.Int64("key", int64(reg.Key)),
		logx.String("category", reg.Category.String()),
		logx.String("title", reg.Title))
	d.deliver(context.Background(), reg)
}

func (d *TimerDriver) Cancel(ctx context.Context, key Key) error {
	d.mu.Lock()
	if t, ok := d.timers[key]; ok {
		_ = t.Stop()
		delete(d.timers, key)
		delete(d.vers, key)
	}
	d.mu.Unlock()
	return nil
}

// Pending reports the number of outstanding registrations.
func (d *TimerDriver) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels every outstanding timer. Registrations are not persisted:
// after a restart the recovery protocol rebuilds them from the store.
func (d *TimerDriver) Stop() {
	d.mu.Lock()
	for _, t := range d.timers {
		_ = t.Stop()
	}
	d.timers = map[Key]*time.Timer{}
	d.vers = map[Key]uint64{}
	d.mu.Unlock()
}
