package pusher

import (
	"fmt"
	"log/slog"
)

// ClientName and ClientVersion identify this library to Pusher in the
// endpoint URL's client/version query parameters, the Go equivalent of
// client.py's "twistedpusher/{VERSION}" identification.
const (
	ClientName    = "pusher-go"
	ClientVersion = "0.1.0"

	protocolVersion = 7
	defaultHost     = "ws.pusherapp.com"
)

// clientOptions configures a Client beyond its Config.
type clientOptions struct {
	logger *slog.Logger
	clock  Clock
	origin string
}

// ClientOption customizes NewClient.
type ClientOption func(*clientOptions)

// WithLogger overrides the default slog.Logger used throughout the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = logger }
}

// WithClock overrides the Clock used for all timers, for deterministic
// tests.
func WithClock(clock Clock) ClientOption {
	return func(o *clientOptions) { o.clock = clock }
}

// WithOrigin sets the Origin header sent during the WebSocket handshake.
func WithOrigin(origin string) ClientOption {
	return func(o *clientOptions) { o.origin = origin }
}

func defaultClientOptions() *clientOptions {
	return &clientOptions{logger: slog.Default(), clock: RealClock}
}

// Client is the top-level Pusher connection: it owns the Connection state
// machine, the channel registry, and a client-wide event emitter that
// receives every event for a subscribed channel in addition to that
// channel's own listeners (client.py's PusherService._on_event does the same
// double-dispatch). Events for channels that are not subscribed are dropped.
//
// NewClient only constructs; call Connect to begin connecting, mirroring
// the PusherService/Pusher split in the original — this library leaves
// process-shutdown wiring (e.g. signal.NotifyContext) to the embedder.
type Client struct {
	*EventEmitter

	config Config
	logger *slog.Logger

	loop       *loop
	connection *Connection
	channels   *channelRegistry
}

// NewClient builds a Client for cfg. It does not connect; call Connect.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	o := defaultClientOptions()
	for _, opt := range opts {
		opt(o)
	}

	c := &Client{
		EventEmitter: NewEventEmitter(o.logger),
		config:       cfg,
		logger:       o.logger,
		loop:         newLoop(),
	}

	dialer := NewWebSocketDialer(buildEndpointURL(cfg), o.origin, o.logger)
	c.connection = NewConnection(dialer, c.dispatchChannelEvent, o.clock, c.loop, o.logger)
	c.channels = newChannelRegistry(c.connection, o.logger)
	return c
}

func (c *Client) dispatchChannelEvent(ev Event) {
	ch, ok := c.channels.channel(ev.Channel)
	if !ok {
		return
	}
	ch.EmitEvent(ev)
	c.EmitEvent(ev)
}

func buildEndpointURL(cfg Config) string {
	if cfg.EndpointString != "" {
		return cfg.EndpointString
	}
	scheme, port := "wss", 443
	if cfg.Insecure {
		scheme, port = "ws", 80
	}
	return fmt.Sprintf("%s://%s:%d/app/%s?client=%s&version=%s&protocol=%d",
		scheme, defaultHost, port, cfg.Key, ClientName, ClientVersion, protocolVersion)
}

// Connect begins connecting to Pusher and reconnecting automatically on
// failure, until Disconnect is called.
func (c *Client) Connect() { c.connection.Start() }

// Disconnect tears down the connection and suppresses reconnection.
func (c *Client) Disconnect() { c.connection.Stop() }

// State returns the current connection state.
func (c *Client) State() ConnectionState { return c.connection.State() }

// SocketID returns the socket_id assigned by the server, or "" if not yet
// connected.
func (c *Client) SocketID() string { return c.connection.SocketID() }

// Subscribe subscribes to a channel, creating it if this is the first
// subscription. Subscribing to an already-subscribed channel returns the
// existing Channel and logs a warning, matching client.py's behavior.
func (c *Client) Subscribe(name string, opts ...ChannelOption) (*Channel, error) {
	return c.channels.subscribe(name, opts...)
}

// Unsubscribe unsubscribes from a channel previously returned by Subscribe.
func (c *Client) Unsubscribe(name string) { c.channels.unsubscribe(name) }

// Channel returns a previously subscribed channel by name.
func (c *Client) Channel(name string) (*Channel, error) {
	ch, ok := c.channels.channel(name)
	if !ok {
		return nil, fmt.Errorf("pusher: not subscribed to channel %q", name)
	}
	return ch, nil
}
