package pusher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ConnectionState is one of the states in the Connection lifecycle
// (spec.md §4.6): it layers Pusher protocol semantics (socket_id, keepalive,
// error codes) on top of Transport's raw connect/reconnect lifecycle. There
// is deliberately no "failed" state — a fatal server error stops the
// connection outright rather than parking it in a terminal failure state.
type ConnectionState string

const (
	StateInitialized ConnectionState = "initialized"
	StateConnecting  ConnectionState = "connecting"
	StateConnected   ConnectionState = "connected"
	StateUnavailable ConnectionState = "unavailable"
	StateDisconnected ConnectionState = "disconnected"
)

const (
	defaultActivityTimeout    = 120 * time.Second
	pongTimeoutDuration       = 30 * time.Second
	unavailableAfterConnecting = 30 * time.Second
)

// Connection manages the Pusher protocol handshake, keepalive ping/pong,
// and server error handling over a Transport. It is the layer application
// code and Channel registrations bind to.
type Connection struct {
	*EventEmitter

	transport      *Transport
	onChannelEvent func(Event)
	loop           *loop
	logger         *slog.Logger

	mu       sync.RWMutex
	state    ConnectionState
	prevState ConnectionState
	running  bool
	socketID string

	activityTimeout    *Timeout
	pongTimeout        *Timeout
	unavailableTimeout *Timeout

	handlers map[string]func(Event)
}

// NewConnection builds a Connection dialing through dialer. onChannelEvent
// is invoked for every inbound event scoped to a channel; it must not be
// nil.
func NewConnection(dialer Dialer, onChannelEvent func(Event), clock Clock, lp *loop, logger *slog.Logger) *Connection {
	if onChannelEvent == nil {
		panic("pusher: Connection onChannelEvent must not be nil")
	}
	c := &Connection{
		EventEmitter:   NewEventEmitter(logger),
		onChannelEvent: onChannelEvent,
		loop:           lp,
		logger:         logger,
		state:          StateInitialized,
	}
	c.transport = NewTransport(dialer, c.handleEvent, clock, lp, logger)
	_ = c.transport.BindAll(NewFuncListener(c.onTransportEvent))

	c.activityTimeout = NewTimeout(defaultActivityTimeout, c.keepalive, clock, lp, logger)
	c.pongTimeout = NewTimeout(pongTimeoutDuration, c.transport.reconnectCore, clock, lp, logger)
	c.unavailableTimeout = NewTimeout(unavailableAfterConnecting, c.goUnavailable, clock, lp, logger)

	c.handlers = map[string]func(Event){
		"pusher:connection_established": c.handleConnected,
		"pusher:error":                  c.handleError,
		"pusher:ping":                   c.handlePing,
		"pusher:pong":                   c.handlePong,
	}
	return c
}

// State returns the current connection state. Safe from any goroutine.
func (c *Connection) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SocketID returns the socket_id assigned by the server on the current (or
// most recent) connection, or "" if none has been assigned yet.
func (c *Connection) SocketID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.socketID
}

func (c *Connection) setState(s ConnectionState) {
	c.mu.Lock()
	if s == c.state {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.prevState = prev
	c.state = s
	c.mu.Unlock()

	c.logger.Info("pusher: connection state change", "from", prev, "to", s)
	c.EmitEvent(NewEvent(string(s), map[string]any{"previous": prev}))
	c.EmitEvent(NewEvent("state_change", map[string]any{"current": s, "previous": prev}))
}

// Start begins connecting. A no-op if already running.
func (c *Connection) Start() { c.loop.submit(c.startCore) }

func (c *Connection) startCore() {
	if c.running {
		return
	}
	c.running = true
	c.transport.startCore()
}

// Stop disconnects and suppresses further reconnection.
func (c *Connection) Stop() { c.loop.submit(c.stopCore) }

func (c *Connection) stopCore() {
	if !c.running {
		return
	}
	c.running = false
	c.transport.stopCore()
}

// SendEvent writes ev to the wire if connected, or reports ErrNotConnected.
// Safe to call from any goroutine, including reentrantly from within a
// listener invoked on the loop (e.g. a channel's auto-resubscribe hook),
// since it never submits to the loop itself.
func (c *Connection) SendEvent(e Event) error {
	if c.State() != StateConnected {
		return fmt.Errorf("%w: %s", ErrNotConnected, e.Name)
	}
	c.transport.SendEvent(e)
	return nil
}

// onTransportEvent reacts to Transport lifecycle events. Invoked
// synchronously by Transport.EmitEvent, always from within the loop.
func (c *Connection) onTransportEvent(ev Event) {
	switch ev.Name {
	case "started_connecting":
		c.setState(StateConnecting)
		c.unavailableTimeout.Start()
	case "connected":
		c.activityTimeout.Start()
	case "disconnected":
		if c.activityTimeout.Active() {
			c.activityTimeout.Stop()
		}
		if c.pongTimeout.Active() {
			c.pongTimeout.Stop()
		}
		if c.running {
			c.setState(StateConnecting)
		} else {
			c.setState(StateDisconnected)
		}
	case "connecting_in":
		c.EmitEvent(ev)
	default:
		c.logger.Debug("pusher: ignoring transport event", "name", ev.Name)
	}
}

// handleEvent is the Transport's onEvent callback: it receives every
// decoded inbound Event. Always invoked on the loop.
func (c *Connection) handleEvent(ev Event) {
	switch {
	case ev.Channel != "":
		c.onChannelEvent(ev)
	default:
		if h, ok := c.handlers[ev.Name]; ok {
			h(ev)
		} else {
			c.logger.Warn("pusher: unrecognized pusher event", "name", ev.Name)
		}
	}
	c.activityTimeout.Reset(0)
}

func (c *Connection) keepalive() {
	c.pongTimeout.Start()
	c.transport.SendEvent(Event{Name: "pusher:ping"})
}

func (c *Connection) goUnavailable() {
	c.setState(StateUnavailable)
}

func (c *Connection) handleConnected(ev Event) {
	c.unavailableTimeout.Stop()

	var data struct {
		SocketID        string `json:"socket_id"`
		ActivityTimeout int    `json:"activity_timeout"`
	}
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		c.logger.Warn("pusher: could not read connection_established payload", "error", err)
	}

	c.mu.Lock()
	c.socketID = data.SocketID
	c.mu.Unlock()

	if data.ActivityTimeout > 0 {
		c.activityTimeout.Reset(time.Duration(data.ActivityTimeout) * time.Second)
	}

	c.logger.Info("pusher: connection established", "socket_id", data.SocketID)
	c.setState(StateConnected)
}

func (c *Connection) handleError(ev Event) {
	var data struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(ev.Data, &data); err != nil || data.Code == 0 {
		c.logger.Warn("pusher: could not read error payload", "data", string(ev.Data))
		errEvent := ev
		errEvent.Name = "error"
		c.EmitEvent(errEvent)
		return
	}

	desc := pusherErrorDescriptions[data.Code]
	perr := &PusherError{
		Code:        data.Code,
		Message:     data.Message,
		Description: desc,
		Fatal:       data.Code >= 4000 && data.Code < 4100,
	}

	switch {
	case desc != "":
		c.logger.Warn("pusher: server error", "code", data.Code, "description", desc)
	default:
		c.logger.Warn("pusher: server error", "code", data.Code, "message", data.Message)
	}

	errEvent := ev
	errEvent.Name = "error"
	errEvent.Attrs = map[string]any{"error": perr}
	c.EmitEvent(errEvent)

	switch {
	case perr.Fatal:
		c.logger.Error("pusher: connection parameters cannot succeed, stopping")
		c.stopCore()
	case data.Code >= 4100 && data.Code < 4300:
		// Retryable: Transport's own reconnect/backoff handles recovery once
		// the server closes the socket.
	case data.Code == 4301:
		c.logger.Info("pusher: client event rate limited", "code", data.Code)
	}
}

func (c *Connection) handlePing(Event) {
	c.logger.Debug("pusher: unexpected ping from server")
	if err := c.SendEvent(Event{Name: "pusher:pong"}); err != nil {
		c.logger.Warn("pusher: failed to reply to ping", "error", err)
	}
}

func (c *Connection) handlePong(Event) {
	c.pongTimeout.Stop()
	c.activityTimeout.Start()
}
