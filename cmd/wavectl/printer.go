package main

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/pterm/pterm"

	"github.com/chaz8081/wavelink/internal/engine"
	"github.com/chaz8081/wavelink/internal/packet"
)

// printer writes dispatched events and engine errors to the terminal and
// keeps per-event counts for the closing summary.
type printer struct {
	out  io.Writer
	info *pterm.PrefixPrinter
	warn *pterm.PrefixPrinter

	mu     sync.Mutex
	counts map[packet.EventName]int
	errors int
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:    out,
		info:   pterm.Info.WithWriter(out),
		warn:   pterm.Warning.WithWriter(out),
		counts: make(map[packet.EventName]int),
	}
}

// attach registers the printer for every event name.
func (p *printer) attach(r engine.Registrar) {
	for _, name := range packet.Events() {
		r.On(name, p.handle)
	}
}

func (p *printer) handle(ev engine.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[ev.Name]++
	p.info.Println(formatEvent(ev))
	return nil
}

func (p *printer) reportError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors++
	p.warn.Println(err.Error())
}

// drain prints whatever is waiting on errs without blocking.
func (p *printer) drain(errs <-chan error) {
	for {
		select {
		case err := <-errs:
			p.reportError(err)
		default:
			return
		}
	}
}

// summary renders a table of event counts.
func (p *printer) summary() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data := pterm.TableData{{"Event", "Frames"}}
	for _, name := range packet.Events() {
		if n := p.counts[name]; n > 0 {
			data = append(data, []string{string(name), strconv.Itoa(n)})
		}
	}
	data = append(data, []string{"errors", strconv.Itoa(p.errors)})
	return pterm.DefaultTable.WithHasHeader().WithWriter(p.out).WithData(data).Render()
}

// formatEvent renders one event as a single line.
func formatEvent(ev engine.Event) string {
	prefix := fmt.Sprintf("%-13s %-8s", ev.Name, ev.Frame.Type)
	switch v := ev.Payload.(type) {
	case packet.BatteryStatus:
		if v.Voltage == 0 {
			return fmt.Sprintf("%s %.0f%%", prefix, v.Percentage)
		}
		return fmt.Sprintf("%s %.0f%% %.2fV charging=%t", prefix, v.Percentage, v.Voltage, v.Charging)
	case packet.ButtonEvent:
		return fmt.Sprintf("%s %s %s t=%.3f", prefix, v.Button, v.Action, v.Timestamp)
	case packet.DeviceInfo:
		return fmt.Sprintf("%s firmware=%s board=%s serial=%s mac=%s", prefix, v.Firmware, v.BoardVersion, v.SerialNumber, v.Address)
	case packet.DeviceMode:
		return fmt.Sprintf("%s %s", prefix, v)
	case packet.Datastream:
		return fmt.Sprintf("%s accel=%v gyro=%v euler=%v tap=%t t=%dus", prefix, v.Accel, v.Gyro, v.Euler, v.Tap.Detected, v.TimestampUS)
	case packet.RawData:
		return fmt.Sprintf("%s accel=%v gyro=%v t=%dus", prefix, v.Accel, v.Gyro, v.TimestampUS)
	case packet.APIConfig:
		return fmt.Sprintf("%s datastream=%s spectrogram=%t rate=%.0fHz", prefix, v.Datastream, v.Spectrogram, v.SampleRate)
	case packet.Spectrogram:
		return fmt.Sprintf("%s %dx%d bins t=%dus", prefix, packet.SpectrogramChannels, packet.SpectrogramBins, v.TimestampUS)
	case []byte:
		if ev.Name == packet.EventUnknown {
			prefix = fmt.Sprintf("%s id=%d", prefix, uint8(ev.Frame.ID))
		}
		if len(v) == 0 {
			return prefix
		}
		return fmt.Sprintf("%s % x", prefix, v)
	default:
		return fmt.Sprintf("%s %v", prefix, v)
	}
}
