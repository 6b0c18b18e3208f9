package pusher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TransportState is one of the states in the Transport lifecycle (spec.md
// §4.5): it manages raw WebSocket connect/reconnect/backoff, independent of
// Pusher protocol semantics.
type TransportState string

const (
	TransportDisconnected  TransportState = "disconnected"
	TransportConnecting    TransportState = "connecting"
	TransportConnected     TransportState = "connected"
	TransportReconnecting  TransportState = "reconnecting"
	TransportDisconnecting TransportState = "disconnecting"
)

const (
	maxReconnectDelaySeconds     = 10
	connectAttemptTimeoutSeconds = 30
)

// Transport owns the raw WebSocket lifecycle: dialing, exponential backoff
// on failure, and surfacing connected/disconnected/connecting_in events to
// whatever is bound to it (normally a Connection). It never looks at Pusher
// protocol framing beyond forwarding decoded Events.
type Transport struct {
	*EventEmitter

	dialer Dialer
	onEvent func(Event)
	clock  Clock
	loop   *loop
	logger *slog.Logger

	mu        sync.RWMutex
	state     TransportState
	prevState TransportState
	running   bool
	protocol  Protocol

	connectAttemptCount  int
	connectAttemptCancel context.CancelFunc
	connectAttemptTimeout *Timeout
	connectWaitTimer     Timer
}

// NewTransport builds a Transport that dials through dialer and forwards
// every decoded inbound Event to onEvent. onEvent must not be nil.
func NewTransport(dialer Dialer, onEvent func(Event), clock Clock, lp *loop, logger *slog.Logger) *Transport {
	if onEvent == nil {
		panic("pusher: Transport onEvent must not be nil")
	}
	t := &Transport{
		EventEmitter: NewEventEmitter(logger),
		dialer:       dialer,
		onEvent:      onEvent,
		clock:        clock,
		loop:         lp,
		logger:       logger,
		state:        TransportDisconnected,
	}
	t.connectAttemptTimeout = NewTimeout(connectAttemptTimeoutSeconds*time.Second, t.disconnect, clock, lp, logger)
	return t
}

// State returns the current transport state. Safe to call from any
// goroutine.
func (t *Transport) State() TransportState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Transport) setState(s TransportState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s == t.state {
		return
	}
	t.prevState = t.state
	t.state = s
	t.logger.Debug("pusher: transport state change", "from", t.prevState, "to", s)
}

// Start begins the connect/reconnect loop. A no-op if already running.
func (t *Transport) Start() { t.loop.submit(t.startCore) }

func (t *Transport) startCore() {
	if t.running {
		return
	}
	t.running = true
	t.connect()
}

// Stop tears down the connection and suppresses further reconnect attempts.
func (t *Transport) Stop() { t.loop.submit(t.stopCore) }

func (t *Transport) stopCore() {
	if !t.running {
		return
	}
	t.running = false
	t.disconnect()
}

// Reconnect tears down the current connection (if any) and immediately
// begins reconnecting, as if the connection had been lost.
func (t *Transport) Reconnect() { t.loop.submit(t.reconnectCore) }

func (t *Transport) reconnectCore() {
	t.disconnect()
}

// SendEvent forwards ev to the protocol if connected; otherwise it is
// dropped with a warning. Safe to call from any goroutine — it does not
// route through the loop since it only reads state.
func (t *Transport) SendEvent(e Event) {
	t.mu.RLock()
	state := t.state
	proto := t.protocol
	t.mu.RUnlock()

	if state != TransportConnected || proto == nil {
		t.logger.Warn("pusher: dropping event, transport is not connected", "event", e.Name)
		return
	}
	if err := proto.SendEvent(e); err != nil {
		t.logger.Warn("pusher: failed to send event", "event", e.Name, "error", err)
	}
}

// clampReconnectWait computes clamp(2^attempt, 1, maxReconnectDelaySeconds),
// guarding against the shift overflowing once attempt grows large during a
// prolonged outage (spec.md's Python original has arbitrary-precision ints
// and never needed this guard).
func clampReconnectWait(attempt int) int {
	shift := attempt
	if shift > 10 {
		shift = 10
	}
	wait := 1 << uint(shift)
	if wait > maxReconnectDelaySeconds {
		wait = maxReconnectDelaySeconds
	}
	if wait < 1 {
		wait = 1
	}
	return wait
}

// connect schedules the next connection attempt after an exponential
// backoff delay. Must run on the loop.
func (t *Transport) connect() {
	if t.State() != TransportDisconnected {
		return
	}
	t.setState(TransportConnecting)

	wait := clampReconnectWait(t.connectAttemptCount)
	t.EmitEvent(NewEvent("connecting_in", map[string]any{"delay": wait}))
	if t.connectAttemptCount == 0 {
		t.EmitEvent(NewEvent("started_connecting", nil))
	}
	t.connectAttemptCount++

	t.connectWaitTimer = t.clock.AfterFunc(time.Duration(wait)*time.Second, func() {
		t.loop.submit(t.doConnect)
	})
}

// doConnect starts an asynchronous dial attempt. Must run on the loop; the
// dial itself runs on its own goroutine and reports back through the loop,
// the Go equivalent of spec.md §9's cancellable async connect promise.
func (t *Transport) doConnect() {
	ctx, cancel := context.WithCancel(context.Background())
	t.connectAttemptCancel = cancel
	t.connectAttemptTimeout.Start()

	attemptID := uuid.NewString()
	logger := t.logger.With("attempt_id", attemptID)
	logger.Debug("pusher: dialing")

	go func() {
		proto, err := t.dialer.Dial(ctx)
		t.loop.submit(func() {
			if err != nil {
				logger.Debug("pusher: connection attempt failed", "error", err)
				t.failed(err)
				return
			}
			logger.Debug("pusher: connection attempt succeeded")
			t.connected(proto)
		})
	}()
}

// connected transitions to the connected state and wires up the new
// protocol. Must run on the loop.
func (t *Transport) connected(proto Protocol) {
	t.mu.Lock()
	t.protocol = proto
	t.mu.Unlock()

	t.setState(TransportConnected)
	t.connectAttemptCount = 0
	t.connectAttemptTimeout.Stop()

	proto.SetOnEvent(func(ev Event) {
		t.loop.submit(func() { t.onEvent(ev) })
	})

	lost := proto.OnConnectionLost()
	go func() {
		info, ok := <-lost
		if !ok {
			return
		}
		t.loop.submit(func() { t.lost(info) })
	}()

	t.EmitEvent(NewEvent("connected", nil))
}

// failed handles a failed connect attempt. Must run on the loop.
func (t *Transport) failed(err error) {
	prev := t.State()
	t.setState(TransportDisconnected)
	if prev != TransportDisconnecting {
		t.connect()
	}
}

// lost handles an unexpected or graceful loss of an established connection.
// Must run on the loop.
func (t *Transport) lost(info ConnectionLostInfo) {
	prev := t.State()
	t.setState(TransportDisconnected)
	t.EmitEvent(NewEvent("disconnected", nil))
	if prev == TransportConnected && !info.Clean {
		t.logger.Info("pusher: connection lost unexpectedly", "reason", info.Reason)
	}
	if prev != TransportDisconnecting {
		t.connect()
	}
}

// disconnect tears down whatever is currently in flight: an established
// protocol, or a pending connect attempt. Must run on the loop.
func (t *Transport) disconnect() {
	prev := t.State()
	if t.running {
		t.setState(TransportReconnecting)
	} else {
		t.setState(TransportDisconnecting)
	}

	switch prev {
	case TransportConnected:
		t.mu.RLock()
		proto := t.protocol
		t.mu.RUnlock()
		if proto != nil {
			proto.Disconnect()
		}
	case TransportConnecting:
		waitPending := t.connectWaitTimer != nil && t.connectWaitTimer.Stop()
		t.connectAttemptTimeout.Stop()
		if t.connectAttemptCancel != nil {
			t.connectAttemptCancel()
		}
		if waitPending {
			// No dial was started, so no failure will arrive for this
			// attempt; report it here.
			t.failed(context.Canceled)
		}
	}
}
