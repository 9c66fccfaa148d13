package engine

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chaz8081/wavelink/internal/logging"
	"github.com/chaz8081/wavelink/internal/packet"
)

// Event is what a listener receives. Payload holds the parsed record
// (packet.BatteryStatus, packet.ButtonEvent, ...) or the raw bytes for ids
// without one.
type Event struct {
	Name    packet.EventName
	Frame   packet.Frame
	Payload any
}

// Listener handles one event. A returned error is reported as a
// *ListenerError and does not stop the remaining listeners.
type Listener func(Event) error

// Registrar is anything listeners can be attached to.
type Registrar interface {
	On(name packet.EventName, l Listener)
}

// Dispatcher routes frames to listeners by event name.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[packet.EventName][]Listener
	report    func(error)

	// stopped ends a dispatch between listeners once it returns true.
	stopped func() bool
}

// NewDispatcher creates a dispatcher that sends listener and payload errors
// to report. A nil report discards them.
func NewDispatcher(report func(error)) *Dispatcher {
	if report == nil {
		report = func(error) {}
	}
	return &Dispatcher{
		listeners: make(map[packet.EventName][]Listener),
		report:    report,
		stopped:   func() bool { return false },
	}
}

// On appends l to the listeners for name. Listeners run in registration order.
func (d *Dispatcher) On(name packet.EventName, l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[name] = append(d.listeners[name], l)
}

// Listeners returns the number of listeners registered for name.
func (d *Dispatcher) Listeners(name packet.EventName) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[name])
}

// Dispatch parses f's payload and invokes its listeners synchronously.
// A payload that fails to parse is reported and no listener runs. Once the
// owning engine is closed no further listener runs.
func (d *Dispatcher) Dispatch(f packet.Frame) {
	name := f.Event()
	if !f.ID.Known() {
		logging.Debug("Unknown frame id",
			zap.Uint8("id", uint8(f.ID)),
			zap.Stringer("type", f.Type),
			logging.Hex("payload", f.Payload),
		)
	}

	payload, err := packet.ParsePayload(f)
	if err != nil {
		d.report(err)
		return
	}

	d.mu.RLock()
	ls := make([]Listener, len(d.listeners[name]))
	copy(ls, d.listeners[name])
	d.mu.RUnlock()

	ev := Event{Name: name, Frame: f, Payload: payload}
	for i, l := range ls {
		if d.stopped() {
			return
		}
		if err := invoke(l, ev); err != nil {
			d.report(&ListenerError{Event: name, Index: i, Err: err})
		}
	}
}

func invoke(l Listener, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l(ev)
}

// Subscribe registers fn for name with the payload asserted to T. A payload
// of another type is reported as a listener error.
func Subscribe[T any](r Registrar, name packet.EventName, fn func(T) error) {
	r.On(name, func(ev Event) error {
		v, ok := ev.Payload.(T)
		if !ok {
			return fmt.Errorf("%s payload is %T, not %T", ev.Name, ev.Payload, v)
		}
		return fn(v)
	})
}
