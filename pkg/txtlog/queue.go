package txtlog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultQueueCapacity is used when a non-positive capacity is requested.
const DefaultQueueCapacity = 256

// Entry is a formatted record waiting to be written.
type Entry struct {
	Seq  uint32
	Time time.Time
	Line []byte
}

// Queue is a bounded many-producer, single-consumer FIFO.
//
// Enqueue never blocks: a full queue rejects the entry with ErrQueueFull.
// Dequeue blocks until an entry arrives or the queue is closed and drained.
type Queue struct {
	ch     chan Entry
	mu     sync.Mutex
	closed bool
}

// NewQueue creates a queue holding at most capacity entries.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{ch: make(chan Entry, capacity)}
}

// Enqueue appends e to the queue. Entries are delivered in the order their
// Enqueue calls acquired the queue lock.
func (q *Queue) Enqueue(e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue waits for the next entry. It returns ErrClosed once the queue is
// closed and every queued entry has been delivered, and a wrapped context
// error if ctx ends first.
func (q *Queue) Dequeue(ctx context.Context) (Entry, error) {
	select {
	case e, ok := <-q.ch:
		if !ok {
			return Entry{}, ErrClosed
		}
		return e, nil
	case <-ctx.Done():
		return Entry{}, fmt.Errorf("dequeue: %w", ctx.Err())
	}
}

// Close rejects further entries. Entries already queued remain available to
// Dequeue. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Len returns the number of queued entries.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
