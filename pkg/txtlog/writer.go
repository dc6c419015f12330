package txtlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// WriterState is the lifecycle state of a Writer.
type WriterState int32

const (
	WriterIdle WriterState = iota
	WriterRunning
	WriterStopped
)

func (s WriterState) String() string {
	switch s {
	case WriterIdle:
		return "idle"
	case WriterRunning:
		return "running"
	case WriterStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Writer is the single consumer that drains a Queue into an io.Writer.
type Writer struct {
	queue   *Queue
	out     io.Writer
	onWrite func(Entry)
	logger  *slog.Logger

	state    atomic.Int32
	written  atomic.Uint64
	failures atomic.Uint64
	done     chan struct{}

	// processed counts entries taken off the queue and handled, written or
	// not. progress is closed and replaced each time it grows.
	mu        sync.Mutex
	processed uint64
	progress  chan struct{}
}

// NewWriter creates a writer draining q into out. onWrite, if set, is called
// after each successful append.
func NewWriter(q *Queue, out io.Writer, onWrite func(Entry), logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		queue:    q,
		out:      out,
		onWrite:  onWrite,
		logger:   logger,
		done:     make(chan struct{}),
		progress: make(chan struct{}),
	}
}

// Run drains the queue until it is closed. A failed append is logged and the
// entry discarded. Any dequeue failure other than a clean close is returned
// wrapped in ErrReceive; callers should treat it as fatal.
func (w *Writer) Run(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(WriterIdle), int32(WriterRunning)) {
		return errors.New("writer already started")
	}
	defer func() {
		w.state.Store(int32(WriterStopped))
		close(w.done)
	}()

	for {
		e, err := w.queue.Dequeue(ctx)
		if errors.Is(err, ErrClosed) {
			w.logger.Info("writer stopped", "written", w.written.Load(), "write_failures", w.failures.Load())
			return nil
		}
		if err != nil {
			w.logger.Error("queue receive failed", "err", err)
			return fmt.Errorf("%w: %w", ErrReceive, err)
		}

		w.append(e)
		w.advance()
	}
}

func (w *Writer) append(e Entry) {
	if _, err := w.out.Write(e.Line); err != nil {
		w.failures.Add(1)
		w.logger.Error("append failed, record discarded", "seq", e.Seq, "err", err)
		return
	}
	w.written.Add(1)
	if w.onWrite != nil {
		w.onWrite(e)
	}
}

func (w *Writer) advance() {
	w.mu.Lock()
	w.processed++
	close(w.progress)
	w.progress = make(chan struct{})
	w.mu.Unlock()
}

// WaitProcessed blocks until n entries in total have been handled, the
// writer has stopped, or ctx ends.
func (w *Writer) WaitProcessed(ctx context.Context, n uint64) error {
	for {
		w.mu.Lock()
		if w.processed >= n {
			w.mu.Unlock()
			return nil
		}
		progress := w.progress
		w.mu.Unlock()

		select {
		case <-progress:
		case <-w.done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("wait for writer: %w", ctx.Err())
		}
	}
}

// Done is closed when Run returns.
func (w *Writer) Done() <-chan struct{} { return w.done }

// State returns the current lifecycle state.
func (w *Writer) State() WriterState { return WriterState(w.state.Load()) }

// Written returns the number of entries appended.
func (w *Writer) Written() uint64 { return w.written.Load() }

// Failures returns the number of entries discarded after a failed append.
func (w *Writer) Failures() uint64 { return w.failures.Load() }
