package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"strings"
)

// Vec3 is an x, y, z sensor triple.
type Vec3 [3]float32

// Quaternion is a w, x, y, z orientation.
type Quaternion [4]float32

// Peak is the tap detector output carried in every datastream record.
type Peak struct {
	Detected     bool
	NormVelocity float32
}

// Datastream is the 105-byte motion record streamed on IDDatastream.
type Datastream struct {
	Gyro        Vec3
	Accel       Vec3
	Mag         Vec3
	RawPose     Quaternion
	CurrentPose Quaternion
	Euler       Vec3
	LinearAccel Vec3
	Tap         Peak
	TimestampUS uint64
}

// RawData is the 32-byte unfused gyro/accel record streamed on IDRawData.
type RawData struct {
	Gyro        Vec3
	Accel       Vec3
	TimestampUS uint64
}

const (
	SpectrogramChannels = 6
	SpectrogramBins     = 16
)

// Spectrogram is one column per channel (acc x/y/z, gyro x/y/z).
type Spectrogram struct {
	Bins        [SpectrogramChannels][SpectrogramBins]float32
	TimestampUS uint64
}

// BatteryStatus reports the ring's battery. The compact one-byte form only
// carries Percentage.
type BatteryStatus struct {
	Voltage    float32
	Percentage float32
	Charging   bool
}

// ButtonID names one of the ring's buttons.
type ButtonID uint8

const (
	ButtonA ButtonID = iota
	ButtonB
	ButtonC
	ButtonD
)

func (b ButtonID) String() string {
	if b <= ButtonD {
		return string(rune('A' + b))
	}
	return fmt.Sprintf("button(%d)", uint8(b))
}

// ButtonAction is what happened to a button.
type ButtonAction uint8

const (
	ActionUp ButtonAction = iota
	ActionDown
	ActionLong
	ActionLongUp
	ActionExtraLong
	ActionExtraLongUp
	ActionClick
	ActionDoubleClick
)

var actionNames = [...]string{"Up", "Down", "Long", "LongUp", "ExtraLong", "ExtraLongUp", "Click", "DoubleClick"}

func (a ButtonAction) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// ButtonEvent is a press/release report. Timestamp is zero in the short form.
type ButtonEvent struct {
	Button    ButtonID
	Action    ButtonAction
	Timestamp float32
}

// DeviceMode is the ring's operating mode.
type DeviceMode uint8

const (
	ModeStandalone DeviceMode = 100 + iota
	ModeSoftwave
	ModeWavefront
	ModeAPI
	ModeWork
	ModeInit
)

var modeNames = [...]string{"standalone", "softwave", "wavefront", "api", "work", "init"}

func (m DeviceMode) String() string {
	if m >= ModeStandalone && int(m-ModeStandalone) < len(modeNames) {
		return modeNames[m-ModeStandalone]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// DatastreamType selects which motion stream the ring sends in API mode.
type DatastreamType uint8

const (
	DatastreamNone DatastreamType = iota
	DatastreamMotion
	DatastreamRaw
)

var datastreamNames = [...]string{"none", "motion", "raw"}

func (d DatastreamType) String() string {
	if int(d) < len(datastreamNames) {
		return datastreamNames[d]
	}
	return fmt.Sprintf("datastream(%d)", uint8(d))
}

// ParseDatastreamType parses "none", "motion" or "raw".
func ParseDatastreamType(s string) (DatastreamType, error) {
	for i, name := range datastreamNames {
		if strings.EqualFold(s, name) {
			return DatastreamType(i), nil
		}
	}
	return 0, fmt.Errorf("packet: unknown datastream type %q", s)
}

// APIConfig selects the API mode streams. On the wire it is the naturally
// aligned record {u8 type, bool spectrogram, 2 pad bytes, f32 sample rate}.
type APIConfig struct {
	Datastream  DatastreamType
	Spectrogram bool
	SampleRate  float32
}

// MarshalBinary encodes c in its 8-byte wire form.
func (c APIConfig) MarshalBinary() ([]byte, error) {
	b := make([]byte, apiConfigSize)
	b[0] = byte(c.Datastream)
	if c.Spectrogram {
		b[1] = 1
	}
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(c.SampleRate))
	return b, nil
}

// Version is a semantic firmware version.
type Version struct {
	Major, Minor, Patch uint8
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// DeviceInfo identifies the ring.
type DeviceInfo struct {
	Firmware     Version
	BoardVersion string
	Address      net.HardwareAddr
	SerialNumber string
}

const (
	datastreamSize  = 105
	rawDataSize     = 32
	spectrogramSize = SpectrogramChannels*SpectrogramBins*4 + 8
	deviceInfoSize  = 35
	batterySize     = 9
	buttonShortSize = 2
	buttonLongSize  = 8
	apiConfigSize   = 8
)

// ParsePayload decodes f.Payload according to f.ID. Ids without a record
// type, and unknown ids, yield the raw payload bytes.
func ParsePayload(f Frame) (any, error) {
	p := f.Payload
	switch f.ID {
	case IDDatastream:
		var d Datastream
		if err := readFixed(f.ID, p, datastreamSize, &d); err != nil {
			return nil, err
		}
		return d, nil
	case IDRawData:
		var d RawData
		if err := readFixed(f.ID, p, rawDataSize, &d); err != nil {
			return nil, err
		}
		return d, nil
	case IDSpectrogram:
		var s Spectrogram
		if err := readFixed(f.ID, p, spectrogramSize, &s); err != nil {
			return nil, err
		}
		return s, nil
	case IDBatteryStatus:
		return parseBattery(p)
	case IDButtonEvent:
		return parseButton(p)
	case IDDeviceInfo:
		return parseDeviceInfo(p)
	case IDDeviceMode:
		if len(p) != 1 {
			return nil, payloadErr(f.ID, "want 1 byte, got %d", len(p))
		}
		return DeviceMode(p[0]), nil
	case IDAPIConfig:
		return parseAPIConfig(p)
	default:
		return p, nil
	}
}

func readFixed(id ID, p []byte, size int, v any) error {
	if len(p) != size {
		return payloadErr(id, "want %d bytes, got %d", size, len(p))
	}
	if err := binary.Read(bytes.NewReader(p), binary.LittleEndian, v); err != nil {
		return fmt.Errorf("packet: %s payload: %w: %w", id, ErrPayloadDecode, err)
	}
	return nil
}

func parseBattery(p []byte) (BatteryStatus, error) {
	switch len(p) {
	case 1:
		return BatteryStatus{Percentage: float32(p[0])}, nil
	case batterySize:
		var b BatteryStatus
		if err := readFixed(IDBatteryStatus, p, batterySize, &b); err != nil {
			return BatteryStatus{}, err
		}
		return b, nil
	default:
		return BatteryStatus{}, payloadErr(IDBatteryStatus, "want 1 or %d bytes, got %d", batterySize, len(p))
	}
}

func parseButton(p []byte) (ButtonEvent, error) {
	if len(p) != buttonShortSize && len(p) != buttonLongSize {
		return ButtonEvent{}, payloadErr(IDButtonEvent, "want %d or %d bytes, got %d", buttonShortSize, buttonLongSize, len(p))
	}
	ev := ButtonEvent{Button: ButtonID(p[0]), Action: ButtonAction(p[1])}
	if ev.Button > ButtonD {
		return ButtonEvent{}, payloadErr(IDButtonEvent, "button id %d", p[0])
	}
	if ev.Action > ActionDoubleClick {
		return ButtonEvent{}, payloadErr(IDButtonEvent, "action %d", p[1])
	}
	if len(p) == buttonLongSize {
		ev.Timestamp = math.Float32frombits(binary.LittleEndian.Uint32(p[4:8]))
	}
	return ev, nil
}

func parseDeviceInfo(p []byte) (DeviceInfo, error) {
	if len(p) != deviceInfoSize {
		return DeviceInfo{}, payloadErr(IDDeviceInfo, "want %d bytes, got %d", deviceInfoSize, len(p))
	}
	addr := make(net.HardwareAddr, 6)
	copy(addr, p[12:18])
	return DeviceInfo{
		Firmware:     Version{Major: p[0], Minor: p[1], Patch: p[2]},
		BoardVersion: cString(p[3:12]),
		Address:      addr,
		SerialNumber: cString(p[18:35]),
	}, nil
}

func parseAPIConfig(p []byte) (APIConfig, error) {
	if len(p) != apiConfigSize {
		return APIConfig{}, payloadErr(IDAPIConfig, "want %d bytes, got %d", apiConfigSize, len(p))
	}
	c := APIConfig{
		Datastream:  DatastreamType(p[0]),
		Spectrogram: p[1] != 0,
		SampleRate:  math.Float32frombits(binary.LittleEndian.Uint32(p[4:8])),
	}
	if c.Datastream > DatastreamRaw {
		return APIConfig{}, payloadErr(IDAPIConfig, "datastream type %d", p[0])
	}
	return c, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

func payloadErr(id ID, format string, args ...any) error {
	return fmt.Errorf("packet: %s payload: %s: %w", id, fmt.Sprintf(format, args...), ErrPayloadDecode)
}
