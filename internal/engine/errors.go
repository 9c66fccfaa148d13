package engine

import (
	"errors"
	"fmt"

	"github.com/chaz8081/wavelink/internal/packet"
)

var (
	// ErrClosed is returned by every operation once the engine has begun teardown.
	ErrClosed = errors.New("engine: closed")

	// ErrBackpressure is returned by SendQuery when the write queue is at its threshold.
	ErrBackpressure = errors.New("engine: write queue full")

	// ErrTimedOut is returned by Request when no response arrived in time.
	ErrTimedOut = errors.New("engine: response timed out")
)

// ListenerError reports a listener that returned an error or panicked.
type ListenerError struct {
	Event packet.EventName
	Index int // registration position among the event's listeners
	Err   error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("engine: %s listener %d: %v", e.Event, e.Index, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }

// WriteError reports a transport write that failed. The query is dropped and
// the queue moves on.
type WriteError struct {
	Query packet.Query
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("engine: write %s: %v", e.Query, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
