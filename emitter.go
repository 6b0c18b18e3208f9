package pusher

import (
	"log/slog"
	"sync"
)

// Listener receives emitted events. Implementations are compared by
// identity (interface equality) when unbinding, which is why Go's
// incomparable func values can't serve directly as listeners — see
// NewFuncListener for the common case of wrapping a plain closure.
//
// This replaces events.py/channel.py's ListenerWrapper doppelganger class,
// which hashed and compared a wrapper equal to the underlying listener so
// unbind could find it. Go interface equality gives the same "compare by
// identity" behavior for free, so bindings are stored directly as
// (listener) pairs and searched by == rather than through a wrapper hack.
type Listener interface {
	Handle(Event)
}

// FuncListener adapts a plain func(Event) into a Listener. Two FuncListener
// values are never == to each other even with identical funcs, so keep the
// pointer returned by NewFuncListener if you intend to Unbind it later.
type FuncListener struct {
	fn func(Event)
}

// NewFuncListener wraps fn as a Listener.
func NewFuncListener(fn func(Event)) *FuncListener {
	return &FuncListener{fn: fn}
}

func (f *FuncListener) Handle(e Event) { f.fn(e) }

// AssertionPanic marks a panic that EmitEvent must propagate rather than
// trap and log — the Go analogue of events.py's "AssertionError escapes
// emit_event while other exceptions are reported as a warning", used by
// tests that want a broken listener to fail loudly.
type AssertionPanic struct {
	Err error
}

func (a AssertionPanic) Error() string { return a.Err.Error() }

// EventEmitter is a name-indexed plus global listener registry. Binding the
// same listener both globally and to a specific name is not de-duplicated:
// it fires twice, matching events.py's EventEmitter (see
// test_collapsing_of_duplicate_binds).
type EventEmitter struct {
	mu              sync.Mutex
	listeners       map[string][]Listener
	globalListeners []Listener
	logger          *slog.Logger
}

// NewEventEmitter builds an emitter that logs trapped listener errors
// through logger.
func NewEventEmitter(logger *slog.Logger) *EventEmitter {
	return &EventEmitter{listeners: make(map[string][]Listener), logger: logger}
}

// Bind registers listener for events named name.
func (e *EventEmitter) Bind(name string, listener Listener) error {
	if listener == nil {
		return ErrNilListener
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[name] = append(e.listeners[name], listener)
	return nil
}

// BindAll registers listener for every event regardless of name.
func (e *EventEmitter) BindAll(listener Listener) error {
	if listener == nil {
		return ErrNilListener
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globalListeners = append(e.globalListeners, listener)
	return nil
}

// Unbind removes a listener previously bound to name. Unbinding a listener
// that was never bound logs a warning rather than failing.
func (e *EventEmitter) Unbind(name string, listener Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.listeners[name]
	for i, l := range list {
		if l == listener {
			e.listeners[name] = append(list[:i], list[i+1:]...)
			return
		}
	}
	e.logger.Warn("pusher: unbind: listener was not bound", "event", name)
}

// UnbindAll removes a listener previously bound via BindAll.
func (e *EventEmitter) UnbindAll(listener Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, l := range e.globalListeners {
		if l == listener {
			e.globalListeners = append(e.globalListeners[:i], e.globalListeners[i+1:]...)
			return
		}
	}
	e.logger.Warn("pusher: unbind_all: listener was not bound")
}

// EmitEvent dispatches ev to every global listener, then every listener
// bound to ev.Name.
func (e *EventEmitter) EmitEvent(ev Event) {
	e.emitGlobal(ev)
	e.emitNamed(ev)
}

func (e *EventEmitter) emitGlobal(ev Event) {
	e.mu.Lock()
	global := append([]Listener(nil), e.globalListeners...)
	e.mu.Unlock()
	for _, l := range global {
		e.dispatch(l, ev)
	}
}

func (e *EventEmitter) emitNamed(ev Event) {
	e.mu.Lock()
	named := append([]Listener(nil), e.listeners[ev.Name]...)
	e.mu.Unlock()
	for _, l := range named {
		e.dispatch(l, ev)
	}
}

// dispatch invokes listener, trapping any panic as a logged warning except
// AssertionPanic, which propagates.
func (e *EventEmitter) dispatch(listener Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(AssertionPanic); ok {
				panic(r)
			}
			e.logger.Warn("pusher: listener panicked", "event", ev.Name, "error", r)
		}
	}()
	listener.Handle(ev)
}
