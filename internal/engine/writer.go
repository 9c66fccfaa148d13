package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chaz8081/wavelink/internal/logging"
	"github.com/chaz8081/wavelink/internal/packet"
)

// WriteFunc performs one transport write. The engine never calls it
// concurrently with itself.
type WriteFunc func(ctx context.Context, b []byte) error

type writeItem struct {
	query packet.Query
	data  []byte
	req   *pendingRequest
}

// writeQueue is the FIFO between SendQuery callers and the writer goroutine.
// A max of zero means no bound.
type writeQueue struct {
	mu     sync.Mutex
	items  []writeItem
	max    int
	closed bool
	signal chan struct{}
}

func newWriteQueue(limit int) *writeQueue {
	return &writeQueue{max: limit, signal: make(chan struct{}, 1)}
}

func (q *writeQueue) push(it writeItem) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.max > 0 && len(q.items) >= q.max {
		n := len(q.items)
		q.mu.Unlock()
		return fmt.Errorf("engine: %d writes queued: %w", n, ErrBackpressure)
	}
	q.items = append(q.items, it)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

func (q *writeQueue) pop() (writeItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.items) == 0 {
		return writeItem{}, false
	}
	it := q.items[0]
	q.items[0] = writeItem{}
	q.items = q.items[1:]
	return it, true
}

// discard closes the queue and returns what was still waiting.
func (q *writeQueue) discard() []writeItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	items := q.items
	q.items = nil
	return items
}

func (q *writeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// writeLoop drains the queue one item at a time until ctx is cancelled.
func (e *Engine) writeLoop(ctx context.Context) {
	defer close(e.writerDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.writes.signal:
		}
		for {
			it, ok := e.writes.pop()
			if !ok {
				break
			}
			e.transmit(ctx, it)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (e *Engine) transmit(ctx context.Context, it writeItem) {
	chunks := chunkFrame(it.data, e.opts.MTU)
	for i, chunk := range chunks {
		if err := e.limiter.Wait(ctx); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := e.write(ctx, chunk); err != nil {
			werr := &WriteError{Query: it.query, Err: err}
			logging.Warn("Write failed",
				zap.Stringer("query", it.query),
				zap.Int("chunk", i),
				zap.Int("chunks", len(chunks)),
				zap.Error(err),
			)
			e.report(werr)
			if it.req != nil {
				e.pending.fail(it.req, werr)
			}
			return
		}
	}
	logging.Debug("Query written",
		zap.Stringer("query", it.query),
		zap.Int("chunks", len(chunks)),
	)
}
