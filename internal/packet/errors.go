package packet

import "errors"

var (
	// ErrTruncated means the buffer does not yet hold a whole frame. The
	// reassembler treats it as "wait for more data"; it never leaves this package.
	ErrTruncated = errors.New("packet: truncated frame")

	// ErrInvalidFrame is returned for a header whose type is outside the enumeration,
	// or for a delimited packet that cannot be decoded.
	ErrInvalidFrame = errors.New("packet: invalid frame")

	// ErrFrameTooLarge is returned when a header declares a payload above the configured ceiling.
	ErrFrameTooLarge = errors.New("packet: frame too large")

	// ErrBoundaryLost marks reassembly errors after which the byte stream can
	// no longer be split into frames. It is always joined with the cause.
	ErrBoundaryLost = errors.New("packet: frame boundary lost")

	// ErrPayloadDecode is returned when a per-id payload parser rejects its content.
	ErrPayloadDecode = errors.New("packet: payload decode")
)
