package main

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/pterm/pterm"

	"github.com/chaz8081/wavelink/internal/engine"
	"github.com/chaz8081/wavelink/internal/packet"
)

func init() {
	pterm.DisableColor()
}

func TestParseCapture(t *testing.T) {
	capture := `# battery response split across two notifications
02 02
01:00:57   # trailing comment

03040200 0106
`
	fragments, err := parseCapture(strings.NewReader(capture))
	if err != nil {
		t.Fatalf("parseCapture() error = %v", err)
	}
	want := [][]byte{
		{0x02, 0x02},
		{0x01, 0x00, 0x57},
		{0x03, 0x04, 0x02, 0x00, 0x01, 0x06},
	}
	if len(fragments) != len(want) {
		t.Fatalf("got %d fragments, want %d", len(fragments), len(want))
	}
	for i := range want {
		if !bytes.Equal(fragments[i], want[i]) {
			t.Errorf("fragment[%d] = % x, want % x", i, fragments[i], want[i])
		}
	}
}

func TestParseCaptureRejectsBadHex(t *testing.T) {
	_, err := parseCapture(strings.NewReader("02 02\n0g\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("parseCapture() error = %v, want line 2 error", err)
	}
}

func TestDecodeFragments(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)
	fragments := [][]byte{
		{0x02, 0x02},
		{0x01, 0x00, 0x57, 0x03, 0x04, 0x02},
		{0x00, 0x01, 0x06},
	}
	if err := decodeFragments(fragments, engine.Options{}, p); err != nil {
		t.Fatalf("decodeFragments() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"battery", "87%", "button", "B Click"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if p.counts[packet.EventBattery] != 1 || p.counts[packet.EventButton] != 1 {
		t.Errorf("counts = %v", p.counts)
	}
}

func TestDecodeFragmentsCOBS(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)
	frame := packet.EncodeFramed(packet.Query{Type: packet.TypeResponse, ID: packet.IDBatteryStatus, Payload: []byte{0x57}},
		packet.DefaultLayout(), packet.FramingCOBS)

	if err := decodeFragments([][]byte{frame[:3], frame[3:]}, engine.Options{Framing: packet.FramingCOBS}, p); err != nil {
		t.Fatalf("decodeFragments() error = %v", err)
	}
	if p.counts[packet.EventBattery] != 1 {
		t.Errorf("battery count = %d, want 1", p.counts[packet.EventBattery])
	}
}

func TestDecodeFragmentsFatal(t *testing.T) {
	p := newPrinter(&bytes.Buffer{})
	err := decodeFragments([][]byte{{0x09, 0x01, 0x00, 0x00}}, engine.Options{}, p)
	if !errors.Is(err, packet.ErrInvalidFrame) {
		t.Errorf("decodeFragments() error = %v, want ErrInvalidFrame", err)
	}
}

func TestDecodeFragmentsTrailingBytes(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)
	if err := decodeFragments([][]byte{{0x02, 0x02, 0x01}}, engine.Options{}, p); err != nil {
		t.Fatalf("decodeFragments() error = %v", err)
	}
	if p.errors != 1 || !strings.Contains(out.String(), "3 bytes left over") {
		t.Errorf("errors = %d, output:\n%s", p.errors, out.String())
	}
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   engine.Event
		want string
	}{
		{
			name: "compact battery",
			ev:   engine.Event{Name: packet.EventBattery, Payload: packet.BatteryStatus{Percentage: 87}},
			want: "87%",
		},
		{
			name: "full battery",
			ev:   engine.Event{Name: packet.EventBattery, Payload: packet.BatteryStatus{Voltage: 3.9, Percentage: 50, Charging: true}},
			want: "50% 3.90V charging=true",
		},
		{
			name: "device mode",
			ev:   engine.Event{Name: packet.EventDeviceMode, Payload: packet.ModeAPI},
			want: "api",
		},
		{
			name: "device info",
			ev: engine.Event{Name: packet.EventDeviceInfo, Payload: packet.DeviceInfo{
				Firmware:     packet.Version{Major: 1, Minor: 4},
				SerialNumber: "GW1",
				Address:      net.HardwareAddr{1, 2, 3, 4, 5, 6},
			}},
			want: "firmware=1.4.0",
		},
		{
			name: "api config",
			ev:   engine.Event{Name: packet.EventAPIConfig, Payload: packet.APIConfig{Datastream: packet.DatastreamMotion, SampleRate: 400}},
			want: "datastream=motion spectrogram=false rate=400Hz",
		},
		{
			name: "unknown id",
			ev: engine.Event{
				Name:    packet.EventUnknown,
				Frame:   packet.Frame{Header: packet.Header{Type: packet.TypeStream, ID: 0x7F}},
				Payload: []byte{0xDE, 0xAD},
			},
			want: "id=127 de ad",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatEvent(tt.ev)
			if !strings.Contains(got, tt.want) {
				t.Errorf("formatEvent() = %q, want it to contain %q", got, tt.want)
			}
			if !strings.HasPrefix(got, string(tt.ev.Name)) {
				t.Errorf("formatEvent() = %q, want event name prefix", got)
			}
		})
	}
}

func TestPrinterSummary(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)
	_ = p.handle(engine.Event{Name: packet.EventIdentify, Payload: []byte{}})
	out.Reset()
	if err := p.summary(); err != nil {
		t.Fatalf("summary() error = %v", err)
	}
	if !strings.Contains(out.String(), "identify") || !strings.Contains(out.String(), "errors") {
		t.Errorf("summary output:\n%s", out.String())
	}
}
