package pusher

import (
	"context"
	"sync"
)

// fakeProtocol is a test double for Protocol, grounded in
// original_source/test/helpers.py's FakeProtocol.
type fakeProtocol struct {
	mu      sync.Mutex
	onEvent func(Event)
	sent    []Event

	lostCh           chan ConnectionLostInfo
	disconnectCalled chan struct{}
}

func newFakeProtocol() *fakeProtocol {
	return &fakeProtocol{
		lostCh:           make(chan ConnectionLostInfo, 1),
		disconnectCalled: make(chan struct{}, 1),
	}
}

func (p *fakeProtocol) SetOnEvent(f func(Event)) {
	p.mu.Lock()
	p.onEvent = f
	p.mu.Unlock()
}

func (p *fakeProtocol) OnConnectionLost() <-chan ConnectionLostInfo { return p.lostCh }

func (p *fakeProtocol) SendEvent(e Event) error {
	p.mu.Lock()
	p.sent = append(p.sent, e)
	p.mu.Unlock()
	return nil
}

func (p *fakeProtocol) Disconnect() {
	select {
	case p.disconnectCalled <- struct{}{}:
	default:
	}
	select {
	case p.lostCh <- ConnectionLostInfo{Clean: true}:
	default:
	}
}

// deliver simulates an inbound wire event from the server.
func (p *fakeProtocol) deliver(e Event) {
	p.mu.Lock()
	cb := p.onEvent
	p.mu.Unlock()
	if cb != nil {
		cb(e)
	}
}

// simulateLost simulates the connection dropping unexpectedly.
func (p *fakeProtocol) simulateLost(info ConnectionLostInfo) {
	select {
	case p.lostCh <- info:
	default:
	}
}

func (p *fakeProtocol) sentEvents() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.sent...)
}

// fakeDialer is a test double for Dialer that hands out fakeProtocols and
// reports every successfully dialed one on the dialed channel.
type fakeDialer struct {
	mu        sync.Mutex
	queuedErrs []error
	dialCount int
	dialed    chan *fakeProtocol
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeProtocol, 16)}
}

// failNextDial queues one dial failure; each call to Dial consumes the
// oldest queued error, if any, before succeeding.
func (d *fakeDialer) failNextDial(err error) {
	d.mu.Lock()
	d.queuedErrs = append(d.queuedErrs, err)
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(ctx context.Context) (Protocol, error) {
	d.mu.Lock()
	d.dialCount++
	var err error
	if len(d.queuedErrs) > 0 {
		err, d.queuedErrs = d.queuedErrs[0], d.queuedErrs[1:]
	}
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	proto := newFakeProtocol()
	d.dialed <- proto
	return proto, nil
}
