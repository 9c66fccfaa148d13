package packet

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Framing selects how frames are delimited on the wire.
type Framing int

const (
	// FramingLength places header+payload frames back to back; the header's
	// payload_size is the only boundary information. An invalid type or an
	// oversized payload_size loses the boundary and is fatal.
	FramingLength Framing = iota
	// FramingCOBS encodes every frame with COBS and terminates it with 0x00,
	// which is what shipping Wave firmware does on the API characteristic.
	// The delimiter resynchronises the stream, so a packet with an invalid
	// type or bad COBS encoding is reported as ErrInvalidFrame and skipped
	// rather than treated as fatal. A payload_size over the ceiling, or an
	// undelimited run past it, still loses the boundary.
	FramingCOBS
)

func (f Framing) String() string {
	switch f {
	case FramingLength:
		return "length"
	case FramingCOBS:
		return "cobs"
	default:
		return fmt.Sprintf("framing(%d)", int(f))
	}
}

// ParseFraming maps a config string to a Framing.
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(s) {
	case "", "length":
		return FramingLength, nil
	case "cobs":
		return FramingCOBS, nil
	default:
		return 0, fmt.Errorf("packet: unknown framing %q", s)
	}
}

// Layout describes the byte layout of the frame header: type (1 byte),
// id (1 byte), then payload_size in SizeWidth bytes of ByteOrder.
// The zero value is the device layout (2-byte little-endian size).
type Layout struct {
	SizeWidth int
	ByteOrder binary.ByteOrder
}

// DefaultLayout returns the `<BBH` header used by Wave firmware.
func DefaultLayout() Layout {
	return Layout{SizeWidth: 2, ByteOrder: binary.LittleEndian}
}

// Validate rejects size widths the header cannot express.
func (l Layout) Validate() error {
	switch l.SizeWidth {
	case 0, 1, 2, 4:
		return nil
	default:
		return fmt.Errorf("packet: size width must be 1, 2 or 4 bytes, got %d", l.SizeWidth)
	}
}

// HeaderSize is the number of bytes before the payload.
func (l Layout) HeaderSize() int {
	return 2 + l.width()
}

// MaxPayload is the largest payload_size the layout can represent.
func (l Layout) MaxPayload() int {
	switch l.width() {
	case 1:
		return math.MaxUint8
	case 4:
		return int(min(uint64(math.MaxUint32), uint64(math.MaxInt)))
	default:
		return math.MaxUint16
	}
}

func (l Layout) width() int {
	if l.SizeWidth == 0 {
		return 2
	}
	return l.SizeWidth
}

func (l Layout) order() binary.ByteOrder {
	if l.ByteOrder == nil {
		return binary.LittleEndian
	}
	return l.ByteOrder
}

func (l Layout) putSize(b []byte, n int) {
	switch l.width() {
	case 1:
		b[0] = uint8(n)
	case 4:
		l.order().PutUint32(b, uint32(n))
	default:
		l.order().PutUint16(b, uint16(n))
	}
}

func (l Layout) size(b []byte) int {
	switch l.width() {
	case 1:
		return int(b[0])
	case 4:
		return int(l.order().Uint32(b))
	default:
		return int(l.order().Uint16(b))
	}
}

// ParseByteOrder maps "little"/"big" (and the usual abbreviations) to a binary.ByteOrder.
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(s) {
	case "", "little", "le", "little_endian":
		return binary.LittleEndian, nil
	case "big", "be", "big_endian":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("packet: unknown byte order %q", s)
	}
}
