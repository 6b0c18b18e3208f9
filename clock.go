package pusher

import (
	"log/slog"
	"sync"
	"time"
)

// Timer is a single pending callback scheduled by a Clock. It mirrors the
// subset of time.Timer that Timeout needs, so a fake clock can stand in for
// tests without a dependency on wall-clock time.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// Clock abstracts scheduling so Transport, Connection, and Timeout can run
// against either real time or a deterministic fake in tests. This is the Go
// analogue of Twisted's task.Clock / IReactorTime used throughout
// original_source/test/.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock is the production Clock, backed by the runtime's timers.
var RealClock Clock = realClock{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return &realTimer{t: time.AfterFunc(d, f)}
}

type realTimer struct{ t *time.Timer }

func (r *realTimer) Stop() bool                  { return r.t.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }

// FakeClock is a virtual clock for tests: Advance moves to the new virtual
// time first and then fires any timer whose deadline falls at or before it,
// in deadline order. A timer scheduled by a callback that fires mid-advance
// is due relative to the new time, so it fires in the same Advance only if
// its delay is zero. Modeled directly on Twisted's task.Clock.advance.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

// NewFakeClock returns a FakeClock starting at the given virtual time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f, active: true}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves virtual time forward by d, then fires the timers due by the
// new time in deadline order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if !t.active || t.deadline.After(target) {
				continue
			}
			if next == nil || t.deadline.Before(next.deadline) {
				next = t
			}
		}
		if next == nil {
			c.mu.Unlock()
			return
		}
		next.active = false
		cb := next.f
		c.mu.Unlock()
		cb()
	}
}

type fakeTimer struct {
	clock    *FakeClock
	deadline time.Time
	f        func()
	active   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.active = false
	return was
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.active = true
	t.deadline = t.clock.now.Add(d)
	return was
}

// Timeout is a one-shot, restartable, cancellable callback scheduled on a
// Clock and dispatched through a loop so its firing never overlaps other
// state-machine work. Modeled on utils.py's Timeout class.
type Timeout struct {
	mu       sync.Mutex
	duration time.Duration
	clock    Clock
	loop     *loop
	callback func()
	timer    Timer
	timedOut bool
	logger   *slog.Logger
}

// NewTimeout builds a Timeout that, once started, fires callback after d by
// submitting it to lp.
func NewTimeout(d time.Duration, callback func(), clock Clock, lp *loop, logger *slog.Logger) *Timeout {
	return &Timeout{duration: d, clock: clock, loop: lp, callback: callback, logger: logger}
}

// Active reports whether the timeout is currently armed.
func (t *Timeout) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// Start arms the timeout if it is not already running.
func (t *Timeout) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.logger.Debug("pusher: timeout already running, start is a no-op")
		return
	}
	t.timedOut = false
	t.timer = t.clock.AfterFunc(t.duration, t.fire)
}

func (t *Timeout) fire() {
	t.mu.Lock()
	t.timer = nil
	t.timedOut = true
	cb := t.callback
	t.mu.Unlock()
	t.loop.submit(cb)
}

// Stop cancels a running timeout. Stopping an inactive timeout logs and
// does nothing.
func (t *Timeout) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil {
		t.logger.Debug("pusher: cannot stop an inactive timeout")
		return
	}
	t.timer.Stop()
	t.timer = nil
}

// Reset rearms a running timeout with its existing duration, or with d if
// d is nonzero. Resetting an inactive timeout logs and does nothing.
func (t *Timeout) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil {
		t.logger.Debug("pusher: cannot reset an inactive timeout")
		return
	}
	if d > 0 {
		t.duration = d
	}
	t.timer.Reset(t.duration)
}
