package bridge

import (
	"context"
	"io"
	"sync"
)

// byteQueue is an unbounded ordered byte buffer between the backend
// reader and the socket writer. The reader side must never stall on a
// slow socket, and no output may be dropped, so the queue grows instead
// of shedding. Memory is bounded in practice by how far a stalled client
// can fall behind before its socket dies.
type byteQueue struct {
	mu     sync.Mutex
	buf    []byte
	closed bool
	notify chan struct{}
}

func newByteQueue() *byteQueue {
	return &byteQueue{notify: make(chan struct{}, 1)}
}

// Push appends p. Never blocks.
func (q *byteQueue) Push(p []byte) {
	if len(p) == 0 {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.buf = append(q.buf, p...)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Next blocks until data is available and returns everything buffered so
// far, preserving push order. Returns io.EOF once the queue is closed and
// drained, or the context error on cancellation.
func (q *byteQueue) Next(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			out := q.buf
			q.buf = nil
			q.mu.Unlock()
			return out, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, io.EOF
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close marks the queue finished. Pending data remains readable; Next
// returns io.EOF after the drain.
func (q *byteQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
