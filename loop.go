package pusher

// loop is a single-consumer work queue: one goroutine draining a channel of
// closures. Transport and Connection share one loop so that state
// transitions, timer firings, and inbound wire events never run
// concurrently with each other — the Go rendition of "all core mutation
// confined to a single worker" (spec.md §5).
type loop struct {
	work chan func()
	done chan struct{}
}

func newLoop() *loop {
	l := &loop{
		work: make(chan func()),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *loop) run() {
	for {
		select {
		case fn := <-l.work:
			fn()
		case <-l.done:
			return
		}
	}
}

// submit enqueues fn to run on the loop goroutine and blocks until it has
// finished executing. Callers already running on the loop goroutine must
// never call submit — it would deadlock waiting for itself. Internal code
// calls the unexported "Core" methods directly in that situation instead.
func (l *loop) submit(fn func()) {
	ack := make(chan struct{})
	l.work <- func() {
		defer close(ack)
		fn()
	}
	<-ack
}

// stop terminates the loop goroutine. Not part of the public API: it is
// only used to release resources when a Client is discarded in tests.
func (l *loop) stop() {
	close(l.done)
}
