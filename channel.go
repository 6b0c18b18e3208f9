package pusher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

var validChannelName = regexp.MustCompile(`^[A-Za-z_\-=@,.;]+$`)

// channelGlobalBinding pairs a global listener with its filter policy. This
// is the explicit replacement for channel.py's ListenerWrapper doppelganger:
// rather than wrapping the listener in a hash-and-equality-forwarding proxy
// just so unbind can find it again, the filter flag is stored alongside the
// listener and both are searched by the listener's own identity.
type channelGlobalBinding struct {
	listener           Listener
	ignorePusherEvents bool
}

// Channel represents a subscription to a single Pusher channel. It embeds
// an EventEmitter for per-event-name bindings (e.g.
// "pusher:subscription_succeeded") and additionally maintains its own
// filtered global-listener registry via BindAll/UnbindAll.
type Channel struct {
	*EventEmitter

	name            string
	connection      *Connection
	parseDataAsJSON bool
	logger          *slog.Logger

	globalMu       sync.Mutex
	globalBindings []channelGlobalBinding
}

func newChannel(name string, conn *Connection, parseDataAsJSON bool, logger *slog.Logger) (*Channel, error) {
	if name == "" || !validChannelName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrBadChannelName, name)
	}
	ch := &Channel{
		EventEmitter:    NewEventEmitter(logger),
		name:            name,
		connection:      conn,
		parseDataAsJSON: parseDataAsJSON,
		logger:          logger,
	}
	_ = ch.EventEmitter.Bind("pusher_internal:subscription_succeeded", NewFuncListener(ch.onSubscriptionSucceeded))
	_ = conn.Bind("connected", NewFuncListener(func(Event) { ch.Subscribe() }))
	return ch, nil
}

// Name returns the channel's name.
func (ch *Channel) Name() string { return ch.name }

// BindAll registers listener for every event delivered on this channel. If
// ignorePusherEvents is true (the common case), pusher:/pusher_internal:
// control events are filtered out before reaching listener.
func (ch *Channel) BindAll(listener Listener, ignorePusherEvents bool) error {
	if listener == nil {
		return ErrNilListener
	}
	ch.globalMu.Lock()
	defer ch.globalMu.Unlock()
	ch.globalBindings = append(ch.globalBindings, channelGlobalBinding{listener, ignorePusherEvents})
	return nil
}

// UnbindAll removes a listener previously registered via BindAll.
func (ch *Channel) UnbindAll(listener Listener) {
	ch.globalMu.Lock()
	defer ch.globalMu.Unlock()
	for i, b := range ch.globalBindings {
		if b.listener == listener {
			ch.globalBindings = append(ch.globalBindings[:i], ch.globalBindings[i+1:]...)
			return
		}
	}
	ch.logger.Warn("pusher: unbind_all: listener was not bound to channel", "channel", ch.name)
}

// EmitEvent dispatches ev to the channel's filtered global listeners, then
// to its per-name listeners. If the channel was created with
// WithJSONData(), a string-typed data payload is parsed as JSON first.
func (ch *Channel) EmitEvent(ev Event) {
	if ch.parseDataAsJSON {
		var asString string
		if json.Unmarshal(ev.Data, &asString) == nil && json.Valid([]byte(asString)) {
			ev.Data = json.RawMessage(asString)
		}
	}

	ch.globalMu.Lock()
	bindings := append([]channelGlobalBinding(nil), ch.globalBindings...)
	ch.globalMu.Unlock()
	for _, b := range bindings {
		if b.ignorePusherEvents && isPusherControlName(ev.Name) {
			continue
		}
		ch.dispatch(b.listener, ev)
	}

	ch.EventEmitter.emitNamed(ev)
}

func (ch *Channel) onSubscriptionSucceeded(ev Event) {
	ch.logger.Debug("pusher: subscribed", "channel", ch.name)
	renamed := ev
	renamed.Name = "pusher:subscription_succeeded"
	ch.EmitEvent(renamed)
}

// Subscribe sends the pusher:subscribe event for this channel. Application
// code should use Client.Subscribe instead of calling this directly.
func (ch *Channel) Subscribe() {
	data, _ := json.Marshal(map[string]string{"channel": ch.name})
	if err := ch.connection.SendEvent(Event{Name: "pusher:subscribe", Data: data}); err != nil {
		ch.logger.Warn("pusher: failed to send subscribe", "channel", ch.name, "error", err)
	}
}

// Unsubscribe sends the pusher:unsubscribe event for this channel.
// Application code should use Client.Unsubscribe instead of calling this
// directly.
func (ch *Channel) Unsubscribe() {
	data, _ := json.Marshal(map[string]string{"channel": ch.name})
	if err := ch.connection.SendEvent(Event{Name: "pusher:unsubscribe", Data: data}); err != nil {
		ch.logger.Warn("pusher: failed to send unsubscribe", "channel", ch.name, "error", err)
	}
}

// PrivateChannel is a sentinel: it constructs (so buildChannel-style
// dispatch on name prefix type-checks cleanly) but always fails, matching
// twistedpusher's PrivateChannel raising NotImplementedError. Private
// channel authentication is a declared non-goal.
type PrivateChannel struct{ *Channel }

// PresenceChannel is the presence-channel counterpart of PrivateChannel.
type PresenceChannel struct{ *Channel }

func newPrivateChannel(name string, _ *Connection, _ *slog.Logger) (*PrivateChannel, error) {
	if name == "" || !validChannelName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrBadChannelName, name)
	}
	return nil, fmt.Errorf("pusher: private channels: %w", ErrNotImplemented)
}

func newPresenceChannel(name string, _ *Connection, _ *slog.Logger) (*PresenceChannel, error) {
	if name == "" || !validChannelName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrBadChannelName, name)
	}
	return nil, fmt.Errorf("pusher: presence channels: %w", ErrNotImplemented)
}

// channelOptions configures a channel subscription.
type channelOptions struct {
	parseDataAsJSON bool
}

// ChannelOption customizes a Subscribe call.
type ChannelOption func(*channelOptions)

// WithJSONData causes the channel's event data to be parsed as JSON before
// listeners see it, when the payload arrives as a JSON-encoded string.
func WithJSONData() ChannelOption {
	return func(o *channelOptions) { o.parseDataAsJSON = true }
}

func applyChannelOptions(opts []ChannelOption) channelOptions {
	var o channelOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// channelRegistry tracks subscribed channels for a Client, mirroring
// client.py's self.channels dict plus buildChannel's name-prefix dispatch.
type channelRegistry struct {
	mu       sync.Mutex
	channels map[string]*Channel
	conn     *Connection
	logger   *slog.Logger
}

func newChannelRegistry(conn *Connection, logger *slog.Logger) *channelRegistry {
	return &channelRegistry{channels: make(map[string]*Channel), conn: conn, logger: logger}
}

func (r *channelRegistry) subscribe(name string, opts ...ChannelOption) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.channels[name]; ok {
		r.logger.Warn("pusher: already subscribed to channel", "channel", name)
		return existing, nil
	}

	switch {
	case strings.HasPrefix(name, "presence-"):
		if _, err := newPresenceChannel(name, r.conn, r.logger); err != nil {
			return nil, err
		}
	case strings.HasPrefix(name, "private-"):
		if _, err := newPrivateChannel(name, r.conn, r.logger); err != nil {
			return nil, err
		}
	}

	o := applyChannelOptions(opts)
	ch, err := newChannel(name, r.conn, o.parseDataAsJSON, r.logger)
	if err != nil {
		return nil, err
	}
	r.channels[name] = ch
	if r.conn.State() == StateConnected {
		ch.Subscribe()
	}
	return ch, nil
}

func (r *channelRegistry) unsubscribe(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[name]
	if !ok {
		r.logger.Warn("pusher: attempted to unsubscribe from a channel that was never subscribed", "channel", name)
		return
	}
	delete(r.channels, name)
	ch.Unsubscribe()
}

func (r *channelRegistry) channel(name string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[name]
	return ch, ok
}
