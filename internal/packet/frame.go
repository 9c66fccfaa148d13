// Package packet implements the Wave API wire format: frame headers, the
// reassembly of notification fragments into frames, and the per-id payload
// records the ring streams back to the host.
package packet

import "fmt"

// Type is the direction/semantics field of a frame header.
type Type uint8

const (
	TypeRequest  Type = 1
	TypeResponse Type = 2
	TypeStream   Type = 3
)

// Valid reports whether t is one of the enumerated frame types.
func (t Type) Valid() bool {
	return t >= TypeRequest && t <= TypeStream
}

func (t Type) String() string {
	switch t {
	case TypeRequest:
		return "request"
	case TypeResponse:
		return "response"
	case TypeStream:
		return "stream"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// ID is the logical channel of a frame.
type ID uint8

const (
	IDDatastream    ID = 1
	IDBatteryStatus ID = 2
	IDDeviceInfo    ID = 3
	IDButtonEvent   ID = 4
	IDDeviceMode    ID = 5
	IDIdentify      ID = 6
	IDRecenter      ID = 7
	IDDisplayFrame  ID = 8
	IDRawData       ID = 9
	IDSpectrogram   ID = 10
	IDAPIConfig     ID = 11
)

// EventName is the listener registry key derived from a frame ID.
type EventName string

const (
	EventData         EventName = "data"
	EventBattery      EventName = "battery"
	EventDeviceInfo   EventName = "device_info"
	EventButton       EventName = "button"
	EventDeviceMode   EventName = "device_mode"
	EventIdentify     EventName = "identify"
	EventRecenter     EventName = "recenter"
	EventDisplayFrame EventName = "display_frame"
	EventRawData      EventName = "raw_data"
	EventSpectrogram  EventName = "spectrogram"
	EventAPIConfig    EventName = "api_config"
	EventUnknown      EventName = "unknown"
)

var eventNames = map[ID]EventName{
	IDDatastream:    EventData,
	IDBatteryStatus: EventBattery,
	IDDeviceInfo:    EventDeviceInfo,
	IDButtonEvent:   EventButton,
	IDDeviceMode:    EventDeviceMode,
	IDIdentify:      EventIdentify,
	IDRecenter:      EventRecenter,
	IDDisplayFrame:  EventDisplayFrame,
	IDRawData:       EventRawData,
	IDSpectrogram:   EventSpectrogram,
	IDAPIConfig:     EventAPIConfig,
}

// Events lists every event name in id order, followed by EventUnknown.
func Events() []EventName {
	names := make([]EventName, 0, len(eventNames)+1)
	for id := IDDatastream; id <= IDAPIConfig; id++ {
		names = append(names, eventNames[id])
	}
	return append(names, EventUnknown)
}

// Known reports whether id belongs to the enumeration this package understands.
// Unknown ids still decode; they are routed to EventUnknown.
func (id ID) Known() bool {
	_, ok := eventNames[id]
	return ok
}

// Event returns the event name frames with this id are dispatched under.
func (id ID) Event() EventName {
	if name, ok := eventNames[id]; ok {
		return name
	}
	return EventUnknown
}

func (id ID) String() string {
	if name, ok := eventNames[id]; ok {
		return string(name)
	}
	return fmt.Sprintf("unknown(%d)", uint8(id))
}

// Header is the fixed part of every frame.
type Header struct {
	Type        Type
	ID          ID
	PayloadSize int
}

// Frame is one complete protocol message. A decoded Frame owns its payload.
type Frame struct {
	Header
	Payload []byte
}

// Event is shorthand for f.ID.Event().
func (f Frame) Event() EventName {
	return f.ID.Event()
}

func (f Frame) String() string {
	return fmt.Sprintf("{type: %s, id: %s, payload_size: %d}", f.Type, f.ID, f.PayloadSize)
}
