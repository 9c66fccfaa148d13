// Package engine drives the Wave packet protocol over a byte transport.
//
// An Engine owns one connection's reassembly buffer, listener registry and
// outbound write queue. Inbound notification fragments go to Feed, which
// reassembles, decodes and dispatches frames synchronously. Outbound queries
// go through SendQuery or Request and are written by a single goroutine in
// call order.
//
//	e := engine.New(char.Write, engine.Options{})
//	engine.Subscribe(e, packet.EventBattery, func(b packet.BatteryStatus) error {
//	    fmt.Println(b.Percentage)
//	    return nil
//	})
//	char.OnNotify(func(b []byte) { e.Feed(b) })
//	e.SendQuery(packet.StartAPIMode())
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chaz8081/wavelink/internal/logging"
	"github.com/chaz8081/wavelink/internal/packet"
)

// State is the engine lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateReceiving
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Engine is the per-connection packet engine. Feed must be called from one
// goroutine at a time; every other method is safe for concurrent use.
type Engine struct {
	opts    Options
	write   WriteFunc
	limiter *rate.Limiter

	feedMu sync.Mutex // guards reasm
	reasm  *packet.Reassembler

	disp    *Dispatcher
	writes  *writeQueue
	pending *pendingRequests

	state      atomic.Int32
	errs       chan error
	done       chan struct{}
	writerDone chan struct{}
	cancel     context.CancelFunc
	closeOnce  sync.Once
	cause      error
}

// New creates an engine that writes through write and starts its writer
// goroutine. Zero option fields take DefaultOptions values; opts should have
// passed Validate.
func New(write WriteFunc, opts Options) *Engine {
	opts = opts.withDefaults()

	limit := rate.Inf
	if opts.WriteInterval > 0 {
		limit = rate.Every(opts.WriteInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		opts:    opts,
		write:   write,
		limiter: rate.NewLimiter(limit, 1),
		reasm: packet.NewReassembler(packet.ReassemblerOptions{
			Layout:     opts.Layout,
			Framing:    opts.Framing,
			MaxPayload: opts.MaxPayload,
		}),
		writes:     newWriteQueue(opts.MaxPendingWrites),
		pending:    newPendingRequests(),
		errs:       make(chan error, opts.ErrorBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		cancel:     cancel,
	}
	e.disp = NewDispatcher(e.report)
	e.disp.stopped = func() bool { return e.State() == StateClosed }
	go e.writeLoop(ctx)
	return e
}

// On registers a listener. See Dispatcher.On.
func (e *Engine) On(name packet.EventName, l Listener) {
	e.disp.On(name, l)
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Errors returns the engine's error channel. It carries payload decode
// failures, listener errors, write failures and the fatal error that closed
// the engine. It is never closed; select on Done as well.
func (e *Engine) Errors() <-chan error {
	return e.errs
}

// Done is closed when the engine begins teardown.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Err returns the fatal error that closed the engine, or nil.
func (e *Engine) Err() error {
	select {
	case <-e.done:
		return e.cause
	default:
		return nil
	}
}

// Feed hands one inbound fragment to the engine. Every frame it completes is
// decoded and dispatched before Feed returns. A boundary-losing error closes
// the engine and is returned; frame-local errors go to Errors. If a listener
// closes the engine, Feed stops dispatching and returns ErrClosed.
func (e *Engine) Feed(fragment []byte) error {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()
	defer func() {
		if e.State() == StateClosed {
			e.reasm.Reset()
		}
	}()

	if e.State() == StateClosed {
		return ErrClosed
	}
	e.state.CompareAndSwap(int32(StateIdle), int32(StateReceiving))

	for f, err := range e.reasm.Feed(fragment) {
		if e.State() == StateClosed {
			return ErrClosed
		}
		if err != nil {
			if errors.Is(err, packet.ErrBoundaryLost) {
				logging.Error("Frame boundary lost, closing engine",
					zap.Error(err),
					zap.Int("buffered", e.reasm.Buffered()),
				)
				e.shutdown(err)
				return err
			}
			e.report(err)
			continue
		}
		e.pending.resolve(f)
		e.disp.Dispatch(f)
	}
	if e.State() == StateClosed {
		return ErrClosed
	}
	return nil
}

// SendQuery encodes q and queues it for writing.
func (e *Engine) SendQuery(q packet.Query) error {
	return e.enqueue(q, nil)
}

// Request sends q and waits for the next Response frame with the same id.
// Concurrent requests for one id are answered in send order. There is no retry.
func (e *Engine) Request(ctx context.Context, q packet.Query) (packet.Frame, error) {
	req, err := e.pending.add(q.ID)
	if err != nil {
		return packet.Frame{}, err
	}
	if err := e.enqueue(q, req); err != nil {
		e.pending.remove(req)
		return packet.Frame{}, err
	}

	timer := time.NewTimer(e.opts.ResponseTimeout)
	defer timer.Stop()

	select {
	case r := <-req.ch:
		return r.frame, r.err
	case <-timer.C:
		if !e.pending.remove(req) {
			r := <-req.ch
			return r.frame, r.err
		}
		return packet.Frame{}, fmt.Errorf("engine: %s after %s: %w", q, e.opts.ResponseTimeout, ErrTimedOut)
	case <-ctx.Done():
		if !e.pending.remove(req) {
			r := <-req.ch
			return r.frame, r.err
		}
		return packet.Frame{}, ctx.Err()
	}
}

func (e *Engine) enqueue(q packet.Query, req *pendingRequest) error {
	if e.State() == StateClosed {
		return ErrClosed
	}
	if !q.Type.Valid() {
		return fmt.Errorf("engine: query type %d: %w", uint8(q.Type), packet.ErrInvalidFrame)
	}
	if !q.Fits(e.opts.Layout) {
		return fmt.Errorf("engine: query payload %d bytes: %w", len(q.Payload), packet.ErrFrameTooLarge)
	}
	return e.writes.push(writeItem{
		query: q,
		data:  packet.EncodeFramed(q, e.opts.Layout, e.opts.Framing),
		req:   req,
	})
}

// Queued returns the number of queries waiting to be written.
func (e *Engine) Queued() int {
	return e.writes.len()
}

// Buffered returns the number of received bytes not yet part of a frame.
// It must not be called from a listener.
func (e *Engine) Buffered() int {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()
	return e.reasm.Buffered()
}

// Pending returns the number of requests awaiting a response.
func (e *Engine) Pending() int {
	return e.pending.len()
}

// Close tears the engine down: queued writes and buffered bytes are
// discarded, pending requests fail with ErrClosed and no listener runs
// afterwards. A write already in flight may complete. Close is idempotent.
func (e *Engine) Close() error {
	e.shutdown(nil)
	return nil
}

func (e *Engine) shutdown(cause error) {
	e.closeOnce.Do(func() {
		e.state.Store(int32(StateClosed))
		e.cause = cause
		close(e.done)
		e.cancel()

		dropped := e.writes.discard()
		e.pending.failAll(ErrClosed)

		// A running Feed resets the buffer itself on the way out.
		if e.feedMu.TryLock() {
			e.reasm.Reset()
			e.feedMu.Unlock()
		}

		if cause != nil {
			e.report(cause)
		}
		logging.Debug("Engine closed",
			zap.Int("dropped_writes", len(dropped)),
			zap.NamedError("cause", cause),
		)
	})
}

// report delivers err on the error channel without blocking.
func (e *Engine) report(err error) {
	select {
	case e.errs <- err:
	default:
		logging.Warn("Error channel full, dropping report", zap.Error(err))
	}
}
