package pusher

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFakeClockAdvanceFiresDueTimer(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	fired := false
	clock.AfterFunc(5*time.Second, func() { fired = true })

	clock.Advance(4 * time.Second)
	if fired {
		t.Error("Expected timer not to fire before its deadline")
	}
	clock.Advance(1 * time.Second)
	if !fired {
		t.Error("Expected timer to fire once its deadline is reached")
	}
}

func TestFakeClockAdvanceOrdersMultipleTimers(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var order []int
	clock.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	clock.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	clock.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	clock.Advance(3 * time.Second)

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("Expected %d firings, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Expected order %v, got %v", want, order)
			break
		}
	}
}

func TestFakeClockTimerScheduledMidAdvanceIsDueFromNewTime(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var chained bool
	clock.AfterFunc(1*time.Second, func() {
		clock.AfterFunc(1*time.Second, func() { chained = true })
	})

	clock.Advance(2 * time.Second)
	if chained {
		t.Error("Expected a timer scheduled during Advance to be due 1s after the advanced time, not within the same Advance call")
	}
	clock.Advance(1 * time.Second)
	if !chained {
		t.Error("Expected the timer scheduled during the first Advance to fire once its deadline is reached")
	}
}

func TestFakeClockTimerStop(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	fired := false
	timer := clock.AfterFunc(1*time.Second, func() { fired = true })
	timer.Stop()
	clock.Advance(2 * time.Second)
	if fired {
		t.Error("Expected stopped timer not to fire")
	}
}

func TestFakeClockTimerReset(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	fired := false
	timer := clock.AfterFunc(1*time.Second, func() { fired = true })
	clock.Advance(500 * time.Millisecond)
	timer.Reset(1 * time.Second)
	clock.Advance(900 * time.Millisecond)
	if fired {
		t.Error("Expected timer not to have fired yet after reset")
	}
	clock.Advance(200 * time.Millisecond)
	if !fired {
		t.Error("Expected timer to fire after the reset deadline")
	}
}

func newTestTimeout(d time.Duration, cb func(), clock Clock) (*Timeout, *loop) {
	lp := newLoop()
	return NewTimeout(d, cb, clock, lp, discardLogger()), lp
}

func TestTimeoutFiresAfterDuration(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	fired := make(chan struct{}, 1)
	timeout, lp := newTestTimeout(5*time.Second, func() { fired <- struct{}{} }, clock)
	defer lp.stop()

	timeout.Start()
	clock.Advance(5 * time.Second)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Expected timeout callback to fire")
	}
}

func TestTimeoutStopPreventsFiring(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	fired := make(chan struct{}, 1)
	timeout, lp := newTestTimeout(5*time.Second, func() { fired <- struct{}{} }, clock)
	defer lp.stop()

	timeout.Start()
	timeout.Stop()
	clock.Advance(10 * time.Second)

	select {
	case <-fired:
		t.Fatal("Expected stopped timeout not to fire")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimeoutActiveReflectsState(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	timeout, lp := newTestTimeout(5*time.Second, func() {}, clock)
	defer lp.stop()

	if timeout.Active() {
		t.Error("Expected timeout to be inactive before Start")
	}
	timeout.Start()
	if !timeout.Active() {
		t.Error("Expected timeout to be active after Start")
	}
	timeout.Stop()
	if timeout.Active() {
		t.Error("Expected timeout to be inactive after Stop")
	}
}

func TestTimeoutResetRearmsWithNewDuration(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	fired := make(chan struct{}, 1)
	timeout, lp := newTestTimeout(5*time.Second, func() { fired <- struct{}{} }, clock)
	defer lp.stop()

	timeout.Start()
	timeout.Reset(1 * time.Second)
	clock.Advance(1 * time.Second)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Expected timeout to fire after the shortened reset duration")
	}
}
