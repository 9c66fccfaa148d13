package packet

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
)

// ReassemblerOptions configures frame boundary detection.
type ReassemblerOptions struct {
	Layout  Layout
	Framing Framing
	// MaxPayload caps the payload_size a peer may declare. Zero means no
	// ceiling beyond what Layout can express.
	MaxPayload int
}

// Reassembler turns notification fragments into frames. It owns its buffer
// and is not safe for concurrent use: feed it from one goroutine, in arrival order.
type Reassembler struct {
	opts ReassemblerOptions
	buf  []byte
	off  int
	err  error
}

// NewReassembler creates an empty reassembler.
func NewReassembler(opts ReassemblerOptions) *Reassembler {
	return &Reassembler{opts: opts}
}

// Feed appends fragment to the buffer and returns a sequence of the frames
// that are now complete, in arrival order. Frames not consumed (the caller
// stops ranging early) stay buffered and are yielded by the next sequence.
//
// A non-nil error paired with a zero Frame is either frame-local (a corrupt
// COBS packet; iteration continues) or joined with ErrBoundaryLost, after
// which the reassembler yields that error on every Feed until Reset.
func (r *Reassembler) Feed(fragment []byte) iter.Seq2[Frame, error] {
	if r.err == nil {
		r.append(fragment)
	}
	return func(yield func(Frame, error) bool) {
		for {
			f, err := r.next()
			if errors.Is(err, ErrTruncated) {
				return
			}
			if !yield(f, err) || r.err != nil {
				return
			}
		}
	}
}

// Buffered returns the number of bytes held that are not yet part of a yielded frame.
func (r *Reassembler) Buffered() int {
	return len(r.buf) - r.off
}

// Reset discards buffered bytes and any boundary-loss state.
func (r *Reassembler) Reset() {
	r.buf = nil
	r.off = 0
	r.err = nil
}

func (r *Reassembler) append(fragment []byte) {
	if r.off > 0 {
		n := copy(r.buf, r.buf[r.off:])
		r.buf = r.buf[:n]
		r.off = 0
	}
	r.buf = append(r.buf, fragment...)
}

func (r *Reassembler) next() (Frame, error) {
	if r.err != nil {
		return Frame{}, r.err
	}
	if r.opts.Framing == FramingCOBS {
		return r.nextDelimited()
	}
	return r.nextLengthPrefixed()
}

func (r *Reassembler) nextLengthPrefixed() (Frame, error) {
	data := r.buf[r.off:]
	h, err := DecodeHeader(data, r.opts.Layout)
	if errors.Is(err, ErrTruncated) {
		return Frame{}, ErrTruncated
	}
	if err != nil {
		return Frame{}, r.fail(err)
	}
	if err := r.checkSize(h); err != nil {
		return Frame{}, r.fail(err)
	}
	f, err := Decode(data, r.opts.Layout)
	if err != nil {
		return Frame{}, err
	}
	r.off += r.opts.Layout.HeaderSize() + h.PayloadSize
	return f, nil
}

func (r *Reassembler) nextDelimited() (Frame, error) {
	for {
		data := r.buf[r.off:]
		idx := bytes.IndexByte(data, cobsDelimiter)
		if idx < 0 {
			if r.opts.MaxPayload > 0 && len(data) > cobsMaxEncoded(r.opts.Layout.HeaderSize()+r.opts.MaxPayload) {
				return Frame{}, r.fail(fmt.Errorf("packet: %d undelimited bytes buffered: %w", len(data), ErrFrameTooLarge))
			}
			return Frame{}, ErrTruncated
		}
		r.off += idx + 1
		if idx == 0 {
			continue
		}
		decoded, err := cobsDecode(data[:idx])
		if err != nil {
			return Frame{}, err
		}
		if len(decoded) == 0 {
			continue
		}
		h, err := DecodeHeader(decoded, r.opts.Layout)
		if errors.Is(err, ErrTruncated) {
			return Frame{}, fmt.Errorf("packet: %d-byte packet shorter than header: %w", len(decoded), ErrInvalidFrame)
		}
		if err != nil {
			return Frame{}, err
		}
		if err := r.checkSize(h); err != nil {
			return Frame{}, r.fail(err)
		}
		f, err := Decode(decoded, r.opts.Layout)
		if errors.Is(err, ErrTruncated) {
			return Frame{}, fmt.Errorf("packet: payload_size %d but packet carries %d bytes: %w",
				h.PayloadSize, len(decoded)-r.opts.Layout.HeaderSize(), ErrInvalidFrame)
		}
		return f, err
	}
}

func (r *Reassembler) checkSize(h Header) error {
	if r.opts.MaxPayload > 0 && h.PayloadSize > r.opts.MaxPayload {
		return fmt.Errorf("packet: %s payload_size %d exceeds %d: %w", h.ID, h.PayloadSize, r.opts.MaxPayload, ErrFrameTooLarge)
	}
	return nil
}

func (r *Reassembler) fail(err error) error {
	r.err = errors.Join(ErrBoundaryLost, err)
	r.buf = nil
	r.off = 0
	return r.err
}
