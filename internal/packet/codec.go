package packet

import "fmt"

// Query is an outbound request built by a caller. Payload may be nil.
type Query struct {
	Type    Type
	ID      ID
	Payload []byte
}

// NewQuery validates type and id against the enumeration and that the payload
// fits the default header layout.
func NewQuery(t Type, id ID, payload []byte) (Query, error) {
	if !t.Valid() {
		return Query{}, fmt.Errorf("packet: query type %d out of range: %w", uint8(t), ErrInvalidFrame)
	}
	if !id.Known() {
		return Query{}, fmt.Errorf("packet: query id %d out of range: %w", uint8(id), ErrInvalidFrame)
	}
	if len(payload) > DefaultLayout().MaxPayload() {
		return Query{}, fmt.Errorf("packet: query payload %d bytes: %w", len(payload), ErrFrameTooLarge)
	}
	return Query{Type: t, ID: id, Payload: payload}, nil
}

// Fits reports whether the query's payload size is representable in l.
func (q Query) Fits(l Layout) bool {
	return len(q.Payload) <= l.MaxPayload()
}

func (q Query) String() string {
	return fmt.Sprintf("{type: %s, id: %s, payload_size: %d}", q.Type, q.ID, len(q.Payload))
}

// Encode serializes q into header_size + len(q.Payload) bytes.
// The payload must fit the layout (see Query.Fits).
func Encode(q Query, l Layout) []byte {
	hs := l.HeaderSize()
	buf := make([]byte, hs+len(q.Payload))
	buf[0] = byte(q.Type)
	buf[1] = byte(q.ID)
	l.putSize(buf[2:hs], len(q.Payload))
	copy(buf[hs:], q.Payload)
	return buf
}

// DecodeHeader reads the header at the start of b. It returns ErrTruncated
// when b is shorter than the header and ErrInvalidFrame for an unknown type.
// Unknown ids are not an error.
func DecodeHeader(b []byte, l Layout) (Header, error) {
	hs := l.HeaderSize()
	if len(b) < hs {
		return Header{}, ErrTruncated
	}
	h := Header{
		Type:        Type(b[0]),
		ID:          ID(b[1]),
		PayloadSize: l.size(b[2:hs]),
	}
	if !h.Type.Valid() {
		return h, fmt.Errorf("packet: frame type %d: %w", b[0], ErrInvalidFrame)
	}
	return h, nil
}

// Decode parses one frame from the start of b. Bytes past the frame are
// ignored. The returned payload does not alias b.
func Decode(b []byte, l Layout) (Frame, error) {
	h, err := DecodeHeader(b, l)
	if err != nil {
		return Frame{}, err
	}
	hs := l.HeaderSize()
	if len(b)-hs < h.PayloadSize {
		return Frame{}, ErrTruncated
	}
	payload := make([]byte, h.PayloadSize)
	copy(payload, b[hs:hs+h.PayloadSize])
	return Frame{Header: h, Payload: payload}, nil
}

// EncodeFramed encodes q and applies framing fr, giving the bytes handed to the transport.
func EncodeFramed(q Query, l Layout, fr Framing) []byte {
	b := Encode(q, l)
	if fr == FramingCOBS {
		return cobsEncode(b)
	}
	return b
}
