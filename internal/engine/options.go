package engine

import (
	"fmt"
	"time"

	"github.com/chaz8081/wavelink/internal/packet"
)

const (
	DefaultResponseTimeout  = 5 * time.Second
	DefaultMaxPendingWrites = 64
	DefaultErrorBuffer      = 16
)

// Options configures an Engine. The zero value is usable and matches the
// device defaults.
type Options struct {
	Layout  packet.Layout
	Framing packet.Framing

	// MaxPayload caps inbound payload_size. Zero means the layout's limit.
	MaxPayload int

	// MaxPendingWrites is the queue depth at which SendQuery returns
	// ErrBackpressure. Zero leaves the queue unbounded.
	MaxPendingWrites int

	// ResponseTimeout bounds Request.
	ResponseTimeout time.Duration

	// MTU splits each encoded frame into writes of at most MTU bytes.
	// Zero writes whole frames.
	MTU int

	// WriteInterval is the minimum spacing between transport writes.
	// Zero means unpaced.
	WriteInterval time.Duration

	// ErrorBuffer is the capacity of the Errors channel.
	ErrorBuffer int
}

// DefaultOptions returns the recommended options. New fills zero fields from
// it, except MaxPendingWrites.
func DefaultOptions() Options {
	return Options{
		Layout:           packet.DefaultLayout(),
		Framing:          packet.FramingLength,
		MaxPendingWrites: DefaultMaxPendingWrites,
		ResponseTimeout:  DefaultResponseTimeout,
		ErrorBuffer:      DefaultErrorBuffer,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if err := o.Layout.Validate(); err != nil {
		return err
	}
	switch o.Framing {
	case packet.FramingLength, packet.FramingCOBS:
	default:
		return fmt.Errorf("engine: unknown framing %d", o.Framing)
	}
	if o.MaxPayload < 0 {
		return fmt.Errorf("engine: max_payload must be >= 0, got %d", o.MaxPayload)
	}
	if o.MaxPendingWrites < 0 {
		return fmt.Errorf("engine: max_pending_writes must be >= 0, got %d", o.MaxPendingWrites)
	}
	if o.ResponseTimeout < 0 {
		return fmt.Errorf("engine: response_timeout must be >= 0, got %s", o.ResponseTimeout)
	}
	if o.MTU < 0 {
		return fmt.Errorf("engine: mtu must be >= 0, got %d", o.MTU)
	}
	if o.WriteInterval < 0 {
		return fmt.Errorf("engine: write_interval must be >= 0, got %s", o.WriteInterval)
	}
	if o.ErrorBuffer < 0 {
		return fmt.Errorf("engine: error_buffer must be >= 0, got %d", o.ErrorBuffer)
	}
	return nil
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Layout.ByteOrder == nil {
		o.Layout.ByteOrder = d.Layout.ByteOrder
	}
	if o.Layout.SizeWidth == 0 {
		o.Layout.SizeWidth = d.Layout.SizeWidth
	}
	if o.ResponseTimeout == 0 {
		o.ResponseTimeout = d.ResponseTimeout
	}
	if o.ErrorBuffer == 0 {
		o.ErrorBuffer = d.ErrorBuffer
	}
	return o
}
