package ssehttp

import (
	"context"
	"errors"
	"sync"

	"github.com/schemahub/registry-mcp-go/transport"
)

// ErrQueueFull is returned by Send when a bounded outbound queue is at
// capacity. The default queue is unbounded and never returns it.
var ErrQueueFull = errors.New("outbound queue full")

// frameQueue is the FIFO buffer between Send and the single SSE drain loop.
// Enqueue never blocks: a bounded queue fails fast with ErrQueueFull and a
// closed queue fails with transport.ErrClosed rather than dropping frames
// silently.
type frameQueue struct {
	mu     sync.Mutex
	frames []string
	closed bool
	bound  int // <= 0 means unbounded

	// signal wakes the drain loop; capacity 1 is enough because the loop
	// re-checks the buffer before waiting. The transport is single-peer so
	// there is exactly one consumer.
	signal chan struct{}
}

func newFrameQueue(bound int) *frameQueue {
	return &frameQueue{bound: bound, signal: make(chan struct{}, 1)}
}

func (q *frameQueue) enqueue(frame string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return transport.ErrClosed
	}
	if q.bound > 0 && len(q.frames) >= q.bound {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.frames = append(q.frames, frame)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// dequeue blocks until a frame is available, the queue is closed, or ctx is
// done. Buffered frames drain before the closed state is reported.
func (q *frameQueue) dequeue(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.frames) > 0 {
			frame := q.frames[0]
			q.frames = q.frames[1:]
			q.mu.Unlock()
			return frame, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return "", transport.ErrClosed
		}

		select {
		case <-q.signal:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (q *frameQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}
