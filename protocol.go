package pusher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/net/websocket"
)

// ConnectionLostInfo describes why a Protocol's underlying socket closed.
type ConnectionLostInfo struct {
	Clean  bool
	Reason string
}

// Protocol is the adapter contract over a single live WebSocket connection
// (spec.md §4.4). It has exactly one connection's worth of lifetime: once
// OnConnectionLost fires, the Protocol is done and a new one must be dialed.
type Protocol interface {
	// SetOnEvent installs the callback invoked for every decoded inbound
	// Event. Must be called before inbound frames are expected to be
	// handled; events received before it is set are dropped.
	SetOnEvent(func(Event))
	// OnConnectionLost returns a channel that receives exactly one
	// ConnectionLostInfo when the connection ends, for any reason.
	OnConnectionLost() <-chan ConnectionLostInfo
	// SendEvent serializes and writes ev to the socket.
	SendEvent(Event) error
	// Disconnect initiates a graceful close. Idempotent.
	Disconnect()
}

// Dialer establishes a new Protocol, honoring ctx cancellation during the
// dial. This merges spec.md §4.4's "endpoint + factory" pairing into a
// single Go interface.
type Dialer interface {
	Dial(ctx context.Context) (Protocol, error)
}

type wsDialer struct {
	url    string
	origin string
	logger *slog.Logger
}

// NewWebSocketDialer builds a Dialer that connects to url (a ws:// or
// wss:// endpoint) using golang.org/x/net/websocket, the library both
// teacher repos in the reference corpus use for this role.
func NewWebSocketDialer(url, origin string, logger *slog.Logger) Dialer {
	if origin == "" {
		origin = "http://localhost"
	}
	return &wsDialer{url: url, origin: origin, logger: logger}
}

func (d *wsDialer) Dial(ctx context.Context) (Protocol, error) {
	type result struct {
		conn *websocket.Conn
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		conn, err := websocket.Dial(d.url, "", d.origin)
		resCh <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			r := <-resCh
			if r.err == nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-resCh:
		if r.err != nil {
			return nil, r.err
		}
		return newWSProtocol(r.conn, d.logger), nil
	}
}

type wsProtocol struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu      sync.Mutex
	onEvent func(Event)
	closed  bool

	lostCh   chan ConnectionLostInfo
	lostOnce sync.Once
}

func newWSProtocol(conn *websocket.Conn, logger *slog.Logger) *wsProtocol {
	p := &wsProtocol{conn: conn, logger: logger, lostCh: make(chan ConnectionLostInfo, 1)}
	go p.readLoop()
	return p
}

func (p *wsProtocol) SetOnEvent(f func(Event)) {
	p.mu.Lock()
	p.onEvent = f
	p.mu.Unlock()
}

func (p *wsProtocol) OnConnectionLost() <-chan ConnectionLostInfo { return p.lostCh }

func (p *wsProtocol) readLoop() {
	// websocket.Message does not report the type of the frame it read, so
	// this codec records it for the binary-frame check below.
	var payloadType byte
	frameCodec := websocket.Codec{Unmarshal: func(data []byte, pt byte, v interface{}) error {
		payloadType = pt
		*v.(*string) = string(data)
		return nil
	}}
	for {
		var raw string
		if err := frameCodec.Receive(p.conn, &raw); err != nil {
			clean := errors.Is(err, io.EOF)
			p.completeLost(ConnectionLostInfo{Clean: clean, Reason: err.Error()})
			return
		}

		if payloadType == websocket.BinaryFrame {
			p.logger.Error("pusher: received a binary websocket frame, which is not supported")
			p.completeLost(ConnectionLostInfo{Clean: false, Reason: ErrBinaryFrameNotSupported.Error()})
			p.conn.Close()
			return
		}

		ev, err := LoadEvent([]byte(raw))
		if err != nil {
			p.logger.Warn("pusher: dropping malformed frame", "error", err)
			continue
		}

		p.mu.Lock()
		cb := p.onEvent
		p.mu.Unlock()
		if cb != nil {
			cb(ev)
		}
	}
}

func (p *wsProtocol) SendEvent(e Event) error {
	raw, err := SerializeEvent(e)
	if err != nil {
		return err
	}
	return websocket.Message.Send(p.conn, string(raw))
}

func (p *wsProtocol) Disconnect() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.conn.Close()
}

func (p *wsProtocol) completeLost(info ConnectionLostInfo) {
	p.lostOnce.Do(func() {
		p.lostCh <- info
	})
}
