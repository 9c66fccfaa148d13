package engine

import (
	"sync"

	"github.com/chaz8081/wavelink/internal/packet"
)

type result struct {
	frame packet.Frame
	err   error
}

type pendingRequest struct {
	id packet.ID
	ch chan result // buffered, written at most once
}

// pendingRequests matches Response frames to outstanding requests, oldest
// first per id.
type pendingRequests struct {
	mu     sync.Mutex
	byID   map[packet.ID][]*pendingRequest
	closed bool
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{byID: make(map[packet.ID][]*pendingRequest)}
}

func (p *pendingRequests) add(id packet.ID) (*pendingRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	req := &pendingRequest{id: id, ch: make(chan result, 1)}
	p.byID[id] = append(p.byID[id], req)
	return req, nil
}

// resolve hands a Response frame to the oldest request waiting on its id.
func (p *pendingRequests) resolve(f packet.Frame) bool {
	if f.Type != packet.TypeResponse {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.byID[f.ID]
	if len(q) == 0 {
		return false
	}
	req := q[0]
	p.drop(f.ID, 0)
	req.ch <- result{frame: f}
	return true
}

// fail completes req with err if it is still pending.
func (p *pendingRequests) fail(req *pendingRequest, err error) {
	if p.remove(req) {
		req.ch <- result{err: err}
	}
}

// remove forgets req. It reports false if req was already completed.
func (p *pendingRequests) remove(req *pendingRequest) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range p.byID[req.id] {
		if r == req {
			p.drop(req.id, i)
			return true
		}
	}
	return false
}

func (p *pendingRequests) failAll(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, q := range p.byID {
		for _, req := range q {
			req.ch <- result{err: err}
		}
		delete(p.byID, id)
	}
}

func (p *pendingRequests) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, q := range p.byID {
		n += len(q)
	}
	return n
}

func (p *pendingRequests) drop(id packet.ID, i int) {
	q := p.byID[id]
	q = append(q[:i], q[i+1:]...)
	if len(q) == 0 {
		delete(p.byID, id)
		return
	}
	p.byID[id] = q
}
