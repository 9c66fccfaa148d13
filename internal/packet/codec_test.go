package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncodeLayout(t *testing.T) {
	q := Query{Type: TypeResponse, ID: IDBatteryStatus, Payload: []byte{0x57}}
	got := Encode(q, DefaultLayout())
	want := []byte{0x02, 0x02, 0x01, 0x00, 0x57}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % x, want % x", got, want)
	}
}

func TestEncodeNoPayload(t *testing.T) {
	got := Encode(BatteryQuery(), DefaultLayout())
	want := []byte{0x01, 0x02, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = % x, want % x", got, want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	layouts := []struct {
		name   string
		layout Layout
	}{
		{"default", DefaultLayout()},
		{"zero value", Layout{}},
		{"one byte", Layout{SizeWidth: 1}},
		{"big endian u16", Layout{SizeWidth: 2, ByteOrder: binary.BigEndian}},
		{"big endian u32", Layout{SizeWidth: 4, ByteOrder: binary.BigEndian}},
	}
	queries := []Query{
		BatteryQuery(),
		StartAPIMode(),
		{Type: TypeStream, ID: IDDatastream, Payload: bytes.Repeat([]byte{0xAB}, datastreamSize)},
		{Type: TypeResponse, ID: IDDisplayFrame, Payload: []byte{0x00, 0x01, 0x00}},
		{Type: TypeRequest, ID: IDRecenter, Payload: []byte{}},
	}

	for _, lc := range layouts {
		t.Run(lc.name, func(t *testing.T) {
			for _, q := range queries {
				b := Encode(q, lc.layout)
				if len(b) != lc.layout.HeaderSize()+len(q.Payload) {
					t.Fatalf("Encode(%s) len = %d, want %d", q, len(b), lc.layout.HeaderSize()+len(q.Payload))
				}
				f, err := Decode(b, lc.layout)
				if err != nil {
					t.Fatalf("Decode(%s) error = %v", q, err)
				}
				if f.Type != q.Type || f.ID != q.ID {
					t.Errorf("Decode(%s) header = %s", q, f)
				}
				if f.PayloadSize != len(q.Payload) {
					t.Errorf("PayloadSize = %d, want %d", f.PayloadSize, len(q.Payload))
				}
				if !bytes.Equal(f.Payload, q.Payload) {
					t.Errorf("Payload = % x, want % x", f.Payload, q.Payload)
				}
			}
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"partial header", []byte{0x02, 0x02, 0x01}},
		{"partial payload", []byte{0x03, 0x01, 0x03, 0x00, 0xAA, 0xBB}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, DefaultLayout())
			if !errors.Is(err, ErrTruncated) {
				t.Errorf("Decode() error = %v, want ErrTruncated", err)
			}
		})
	}
}

func TestDecodeInvalidType(t *testing.T) {
	for _, typ := range []byte{0x00, 0x04, 0xFF} {
		_, err := Decode([]byte{typ, 0x02, 0x00, 0x00}, DefaultLayout())
		if !errors.Is(err, ErrInvalidFrame) {
			t.Errorf("Decode(type=%d) error = %v, want ErrInvalidFrame", typ, err)
		}
	}
}

func TestDecodeUnknownID(t *testing.T) {
	f, err := Decode([]byte{0x03, 0x7F, 0x01, 0x00, 0x42}, DefaultLayout())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if f.ID.Known() {
		t.Errorf("ID %d reported as known", f.ID)
	}
	if f.Event() != EventUnknown {
		t.Errorf("Event() = %q, want %q", f.Event(), EventUnknown)
	}
}

func TestDecodeCopiesPayload(t *testing.T) {
	b := []byte{0x02, 0x02, 0x01, 0x00, 0x57}
	f, err := Decode(b, DefaultLayout())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	b[4] = 0x00
	if f.Payload[0] != 0x57 {
		t.Error("decoded payload aliases the input buffer")
	}
}

func TestNewQueryValidates(t *testing.T) {
	if _, err := NewQuery(Type(9), IDBatteryStatus, nil); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("NewQuery(bad type) error = %v, want ErrInvalidFrame", err)
	}
	if _, err := NewQuery(TypeRequest, ID(200), nil); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("NewQuery(bad id) error = %v, want ErrInvalidFrame", err)
	}
	if _, err := NewQuery(TypeRequest, IDDisplayFrame, make([]byte, 70000)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("NewQuery(huge payload) error = %v, want ErrFrameTooLarge", err)
	}
	if _, err := NewQuery(TypeRequest, IDIdentify, nil); err != nil {
		t.Errorf("NewQuery(valid) error = %v", err)
	}
}

func TestLayoutValidate(t *testing.T) {
	for _, w := range []int{0, 1, 2, 4} {
		if err := (Layout{SizeWidth: w}).Validate(); err != nil {
			t.Errorf("Validate(width=%d) error = %v", w, err)
		}
	}
	for _, w := range []int{3, 8, -1} {
		if err := (Layout{SizeWidth: w}).Validate(); err == nil {
			t.Errorf("Validate(width=%d) should fail", w)
		}
	}
}

func TestParseByteOrderAndFraming(t *testing.T) {
	if o, err := ParseByteOrder("big"); err != nil || o != binary.BigEndian {
		t.Errorf("ParseByteOrder(big) = %v, %v", o, err)
	}
	if o, err := ParseByteOrder(""); err != nil || o != binary.LittleEndian {
		t.Errorf("ParseByteOrder(\"\") = %v, %v", o, err)
	}
	if _, err := ParseByteOrder("middle"); err == nil {
		t.Error("ParseByteOrder(middle) should fail")
	}
	if f, err := ParseFraming("COBS"); err != nil || f != FramingCOBS {
		t.Errorf("ParseFraming(COBS) = %v, %v", f, err)
	}
	if _, err := ParseFraming("slip"); err == nil {
		t.Error("ParseFraming(slip) should fail")
	}
}

func TestEvents(t *testing.T) {
	names := Events()
	if len(names) != 12 {
		t.Fatalf("Events() has %d names, want 12", len(names))
	}
	if names[0] != EventData || names[len(names)-1] != EventUnknown {
		t.Errorf("Events() = %v, want data first and unknown last", names)
	}
}
