package pusher

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestLoadEventBasic(t *testing.T) {
	ev, err := LoadEvent([]byte(`{"event":"my-event","data":{"foo":"bar"},"channel":"my-channel"}`))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ev.Name != "my-event" {
		t.Errorf("Expected name %q, got %q", "my-event", ev.Name)
	}
	if ev.Channel != "my-channel" {
		t.Errorf("Expected channel %q, got %q", "my-channel", ev.Channel)
	}
	var data map[string]string
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		t.Fatalf("Expected data to unmarshal, got %v", err)
	}
	if data["foo"] != "bar" {
		t.Errorf("Expected data.foo to be %q, got %q", "bar", data["foo"])
	}
}

func TestLoadEventMissingDataDefaultsEmptyObject(t *testing.T) {
	ev, err := LoadEvent([]byte(`{"event":"my-event"}`))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(ev.Data) != "{}" {
		t.Errorf("Expected data to default to {}, got %s", ev.Data)
	}
}

func TestLoadEventMissingNameIsBadEventName(t *testing.T) {
	_, err := LoadEvent([]byte(`{"data":{}}`))
	if !errors.Is(err, ErrBadEventName) {
		t.Errorf("Expected ErrBadEventName, got %v", err)
	}
}

func TestLoadEventEmptyInputIsInvalid(t *testing.T) {
	_, err := LoadEvent(nil)
	if !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("Expected ErrInvalidEvent, got %v", err)
	}
}

func TestLoadEventNonObjectIsInvalid(t *testing.T) {
	_, err := LoadEvent([]byte(`[1,2,3]`))
	if !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("Expected ErrInvalidEvent, got %v", err)
	}
}

func TestLoadEventDoubleDecodesPusherPrefixedData(t *testing.T) {
	raw := `{"event":"pusher:connection_established","data":"{\"socket_id\":\"abc\",\"activity_timeout\":120}"}`
	ev, err := LoadEvent([]byte(raw))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var data struct {
		SocketID        string `json:"socket_id"`
		ActivityTimeout int    `json:"activity_timeout"`
	}
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		t.Fatalf("Expected double-decoded data to unmarshal, got %v", err)
	}
	if data.SocketID != "abc" || data.ActivityTimeout != 120 {
		t.Errorf("Expected decoded socket_id/activity_timeout, got %+v", data)
	}
}

func TestLoadEventPusherInternalPrefixDoubleDecodes(t *testing.T) {
	raw := `{"event":"pusher_internal:subscription_succeeded","data":"{\"presence\":{}}"}`
	ev, err := LoadEvent([]byte(raw))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(ev.Data) != `{"presence":{}}` {
		t.Errorf("Expected decoded data, got %s", ev.Data)
	}
}

func TestLoadEventNonPusherPrefixLeavesStringData(t *testing.T) {
	raw := `{"event":"app-event","data":"plain string"}`
	ev, err := LoadEvent([]byte(raw))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var s string
	if err := json.Unmarshal(ev.Data, &s); err != nil {
		t.Fatalf("Expected data to still be a JSON string, got %v", err)
	}
	if s != "plain string" {
		t.Errorf("Expected %q, got %q", "plain string", s)
	}
}

func TestLoadEventPreservesExtraFields(t *testing.T) {
	ev, err := LoadEvent([]byte(`{"event":"e","extra_field":42}`))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ev.Extra == nil {
		t.Fatal("Expected Extra to be populated")
	}
	var n int
	if err := json.Unmarshal(ev.Extra["extra_field"], &n); err != nil || n != 42 {
		t.Errorf("Expected extra_field to be 42, got %v (err %v)", n, err)
	}
}

func TestSerializeEventBasic(t *testing.T) {
	raw, err := SerializeEvent(Event{Name: "my-event", Data: json.RawMessage(`{"foo":"bar"}`), Channel: "my-channel"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Expected serialized output to be valid JSON, got %v", err)
	}
	if decoded["event"] != "my-event" || decoded["channel"] != "my-channel" {
		t.Errorf("Expected event/channel fields to round-trip, got %+v", decoded)
	}
}

func TestSerializeEventFalsyDataBecomesEmptyString(t *testing.T) {
	for _, falsy := range []json.RawMessage{nil, []byte("{}"), []byte("null"), []byte(`""`)} {
		raw, err := SerializeEvent(Event{Name: "e", Data: falsy})
		if err != nil {
			t.Fatalf("Expected no error for %s, got %v", falsy, err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("Expected valid JSON, got %v", err)
		}
		if decoded["data"] != "" {
			t.Errorf("Expected data %q to serialize as empty string, got %v", falsy, decoded["data"])
		}
	}
}

func TestSerializeEventNoNameIsBadEventName(t *testing.T) {
	_, err := SerializeEvent(Event{})
	if !errors.Is(err, ErrBadEventName) {
		t.Errorf("Expected ErrBadEventName, got %v", err)
	}
}

func TestSerializeEventOmitsChannelWhenAbsent(t *testing.T) {
	raw, err := SerializeEvent(Event{Name: "e"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if _, ok := decoded["channel"]; ok {
		t.Errorf("Expected channel field to be omitted, got %+v", decoded)
	}
}

func TestEventRoundTrip(t *testing.T) {
	original := Event{Name: "pusher:ping"}
	raw, err := SerializeEvent(original)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	loaded, err := LoadEvent(raw)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if loaded.Name != original.Name {
		t.Errorf("Expected name to round-trip, got %q", loaded.Name)
	}
}

func TestEventDataInto(t *testing.T) {
	ev := Event{Data: json.RawMessage(`{"a":1}`)}
	var dest struct {
		A int `json:"a"`
	}
	if err := ev.DataInto(&dest); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if dest.A != 1 {
		t.Errorf("Expected a=1, got %d", dest.A)
	}
}

func TestEventAttr(t *testing.T) {
	ev := NewEvent("state_change", map[string]any{"current": StateConnected})
	v, ok := ev.Attr("current")
	if !ok {
		t.Fatal("Expected attr to be present")
	}
	if !reflect.DeepEqual(v, StateConnected) {
		t.Errorf("Expected %v, got %v", StateConnected, v)
	}
	if _, ok := ev.Attr("missing"); ok {
		t.Error("Expected missing attr to be absent")
	}
}
