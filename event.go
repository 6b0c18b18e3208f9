package pusher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Event is the wire-level unit of Pusher communication, and also doubles as
// the payload handed to EventEmitter listeners for purely in-process
// notifications (state changes, lifecycle signals) that never touch the
// wire. This is a deliberate departure from events.py's Event(dict), which
// relied on dynamic attribute access for the same two roles (spec.md §9:
// "model as a tagged record ... do not mirror the dual access pattern").
type Event struct {
	// Name is the Pusher event name, e.g. "pusher:ping" or a bound app event.
	Name string
	// Data is the decoded JSON payload, present for wire events.
	Data json.RawMessage
	// Channel is the channel the event is scoped to, or "" if unscoped.
	// Channel names are validated non-empty (see validChannelName), so the
	// zero value safely doubles as "no channel".
	Channel string
	// Extra holds wire fields beyond event/data/channel, tolerated on
	// receive and otherwise ignored (spec.md §3).
	Extra map[string]json.RawMessage
	// Attrs holds attributes attached to purely in-process events (e.g.
	// state_change's "current"/"previous", connecting_in's "delay"). Never
	// serialized to the wire.
	Attrs map[string]any
}

// NewEvent builds an in-process event carrying attrs, for EventEmitter
// consumers that never touch the wire codec.
func NewEvent(name string, attrs map[string]any) Event {
	return Event{Name: name, Attrs: attrs}
}

// Attr retrieves an in-process attribute attached via NewEvent.
func (e Event) Attr(key string) (any, bool) {
	v, ok := e.Attrs[key]
	return v, ok
}

// DataInto unmarshals the event's data payload into dest. A convenience
// carried forward from both teacher repos' UnmarshalDataString, simplified
// because LoadEvent already performs the pusher:-prefixed double-decode at
// parse time, so Data is always a plain JSON value by the time callers see
// it.
func (e Event) DataInto(dest any) error {
	return json.Unmarshal(e.Data, dest)
}

func isPusherControlName(name string) bool {
	return strings.HasPrefix(name, "pusher:") || strings.HasPrefix(name, "pusher_internal:")
}

// isFalsyData reports whether a data payload should be considered "falsy"
// for serialization purposes, mirroring Python's truthiness test applied to
// Event.data in events.py's serialize_pusher_event (empty dict, empty
// string, None, etc. are all falsy and serialize to "").
func isFalsyData(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	switch strings.TrimSpace(string(raw)) {
	case "", "{}", "[]", "null", "false", "0", `""`:
		return true
	default:
		return false
	}
}

// LoadEvent decodes a raw wire frame into an Event, applying the rename and
// double-decode rules from spec.md §4.2 / events.py's load_pusher_event:
//  1. the wire "event" field becomes Name; its absence is ErrBadEventName.
//  2. if Name has a pusher:/pusher_internal: prefix and "data" is present as
//     a JSON string, that string is parsed again as JSON.
//  3. "channel", when present, becomes Channel.
//  4. any remaining fields are preserved in Extra.
//  5. empty input or non-object JSON is ErrInvalidEvent.
func LoadEvent(raw []byte) (Event, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Event{}, fmt.Errorf("%w: empty input", ErrInvalidEvent)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	nameRaw, ok := fields["event"]
	if !ok {
		return Event{}, ErrBadEventName
	}
	var name string
	if err := json.Unmarshal(nameRaw, &name); err != nil || name == "" {
		return Event{}, ErrBadEventName
	}
	delete(fields, "event")

	data, hasData := fields["data"]
	delete(fields, "data")
	if !hasData {
		data = json.RawMessage(`{}`)
	} else if isPusherControlName(name) {
		var inner string
		if err := json.Unmarshal(data, &inner); err == nil && json.Valid([]byte(inner)) {
			data = json.RawMessage(inner)
		}
	}

	var channel string
	if chRaw, ok := fields["channel"]; ok {
		_ = json.Unmarshal(chRaw, &channel)
		delete(fields, "channel")
	}

	var extra map[string]json.RawMessage
	if len(fields) > 0 {
		extra = fields
	}

	return Event{Name: name, Data: data, Channel: channel, Extra: extra}, nil
}

// SerializeEvent encodes an Event back into a wire frame, per spec.md §4.2 /
// events.py's serialize_pusher_event: name becomes "event"; data is omitted
// down to "" when falsy; channel is included only when non-empty.
func SerializeEvent(e Event) ([]byte, error) {
	if e.Name == "" {
		return nil, ErrBadEventName
	}
	out := make(map[string]any, 3)
	out["event"] = e.Name
	if isFalsyData(e.Data) {
		out["data"] = ""
	} else {
		out["data"] = json.RawMessage(e.Data)
	}
	if e.Channel != "" {
		out["channel"] = e.Channel
	}
	return json.Marshal(out)
}

func (e *Event) UnmarshalJSON(b []byte) error {
	loaded, err := LoadEvent(b)
	if err != nil {
		return err
	}
	*e = loaded
	return nil
}

func (e Event) MarshalJSON() ([]byte, error) {
	return SerializeEvent(e)
}
