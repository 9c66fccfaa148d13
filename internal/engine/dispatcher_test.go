package engine

import (
	"errors"
	"testing"

	"github.com/chaz8081/wavelink/internal/packet"
)

func TestDispatcherRoutesByEvent(t *testing.T) {
	var reported []error
	d := NewDispatcher(func(err error) { reported = append(reported, err) })

	var names []packet.EventName
	for _, name := range []packet.EventName{packet.EventIdentify, packet.EventRecenter} {
		d.On(name, func(ev Event) error {
			names = append(names, ev.Name)
			return nil
		})
	}

	d.Dispatch(packet.Frame{Header: packet.Header{Type: packet.TypeResponse, ID: packet.IDRecenter}})
	d.Dispatch(packet.Frame{Header: packet.Header{Type: packet.TypeResponse, ID: packet.IDIdentify}})

	if len(names) != 2 || names[0] != packet.EventRecenter || names[1] != packet.EventIdentify {
		t.Errorf("dispatched = %v, want [recenter identify]", names)
	}
	if len(reported) != 0 {
		t.Errorf("reported = %v", reported)
	}
}

func TestDispatcherListenerRegisteredDuringDispatch(t *testing.T) {
	d := NewDispatcher(nil)
	var late int
	d.On(packet.EventIdentify, func(Event) error {
		d.On(packet.EventIdentify, func(Event) error {
			late++
			return nil
		})
		return nil
	})

	f := packet.Frame{Header: packet.Header{Type: packet.TypeResponse, ID: packet.IDIdentify}}
	d.Dispatch(f)
	if late != 0 {
		t.Errorf("listener added mid-dispatch ran %d times on the same frame", late)
	}
	d.Dispatch(f)
	if late != 1 {
		t.Errorf("late listener calls = %d, want 1", late)
	}
	if d.Listeners(packet.EventIdentify) != 3 {
		t.Errorf("Listeners() = %d, want 3", d.Listeners(packet.EventIdentify))
	}
}

func TestSubscribeTypeMismatch(t *testing.T) {
	var reported []error
	d := NewDispatcher(func(err error) { reported = append(reported, err) })

	called := false
	Subscribe(d, packet.EventIdentify, func(packet.BatteryStatus) error {
		called = true
		return nil
	})
	d.Dispatch(packet.Frame{Header: packet.Header{Type: packet.TypeResponse, ID: packet.IDIdentify}})

	if called {
		t.Error("typed listener called with the wrong payload type")
	}
	var le *ListenerError
	if len(reported) != 1 || !errors.As(reported[0], &le) {
		t.Errorf("reported = %v, want one *ListenerError", reported)
	}
}

func TestSubscribeButton(t *testing.T) {
	d := NewDispatcher(nil)
	var got packet.ButtonEvent
	Subscribe(d, packet.EventButton, func(ev packet.ButtonEvent) error {
		got = ev
		return nil
	})
	d.Dispatch(packet.Frame{
		Header:  packet.Header{Type: packet.TypeStream, ID: packet.IDButtonEvent, PayloadSize: 2},
		Payload: []byte{0x02, byte(packet.ActionDown)},
	})
	if got.Button != packet.ButtonC || got.Action != packet.ActionDown {
		t.Errorf("ButtonEvent = %+v, want C Down", got)
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Errorf("DefaultOptions().Validate() error = %v", err)
	}
	if err := (Options{}).Validate(); err != nil {
		t.Errorf("zero Options.Validate() error = %v", err)
	}
	bad := []Options{
		{Layout: packet.Layout{SizeWidth: 3}},
		{Framing: packet.Framing(9)},
		{MaxPendingWrites: -1},
		{ResponseTimeout: -1},
		{MTU: -5},
		{ErrorBuffer: -1},
	}
	for i, o := range bad {
		if err := o.Validate(); err == nil {
			t.Errorf("bad[%d].Validate() = nil, want error", i)
		}
	}
}
