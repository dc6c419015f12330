package txtlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modoterra/rtilog/pkg/core"
)

// Options configures a Logger.
type Options struct {
	QueueCapacity int
	Logger        *slog.Logger

	// Clock supplies record timestamps. Defaults to time.Now.
	Clock func() time.Time

	// OnWrite is called by the writer after each line is appended.
	OnWrite func(core.LogLine)
}

// Logger owns the log file, the sequence counter, the submission queue and
// the writer draining it.
type Logger struct {
	// gate orders submissions against file changes: Submit holds it shared
	// while it checks accepting and enqueues.
	gate      sync.RWMutex
	accepting bool
	closed    bool
	// fileOps serializes Open and CloseFile.
	fileOps sync.Mutex

	seq     Sequence
	queue   *Queue
	file    logFile
	writer  *Writer
	dropped atomic.Uint64
	clock   func() time.Time
	logger  *slog.Logger
}

// New creates a Logger with no file open. Call Open before submitting and
// Run to start the writer.
func New(opts Options) *Logger {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	l := &Logger{
		queue:  NewQueue(opts.QueueCapacity),
		clock:  opts.Clock,
		logger: opts.Logger,
	}

	var onWrite func(Entry)
	if opts.OnWrite != nil {
		cb := opts.OnWrite
		onWrite = func(e Entry) {
			cb(core.LogLine{Seq: e.Seq, TsUnixMs: e.Time.UnixMilli(), Line: string(e.Line)})
		}
	}
	l.writer = NewWriter(l.queue, &l.file, onWrite, opts.Logger.With("component", "writer"))
	opts.Logger.Debug("text log created", "queue_capacity", l.queue.Cap())
	return l
}

// Open opens path for appending, creating it if needed. If a file is
// already open, records accepted so far are written to it before it is
// replaced; submissions fail with ErrNotReady meanwhile.
func (l *Logger) Open(ctx context.Context, path string) error {
	l.fileOps.Lock()
	defer l.fileOps.Unlock()

	wasOpen, _ := l.file.state()
	if wasOpen {
		if err := l.pause(ctx); err != nil {
			l.resume()
			return err
		}
	}
	err := l.file.open(path)
	if open, _ := l.file.state(); open {
		l.resume()
	}
	if err != nil {
		return err
	}
	l.logger.Info("log file opened", "path", path)
	return nil
}

// CloseFile writes out every accepted record, then closes the log file
// without stopping the pipeline. Later submissions fail with ErrNotReady
// until Open is called again. If ctx ends first the file stays open.
func (l *Logger) CloseFile(ctx context.Context) error {
	l.fileOps.Lock()
	defer l.fileOps.Unlock()

	if err := l.pause(ctx); err != nil {
		if open, _ := l.file.state(); open {
			l.resume()
		}
		return err
	}
	return l.file.close()
}

// pause stops accepting submissions and waits until the writer has handled
// every record accepted before that point.
func (l *Logger) pause(ctx context.Context) error {
	l.gate.Lock()
	l.accepting = false
	target := uint64(l.seq.Current())
	l.gate.Unlock()

	return l.writer.WaitProcessed(ctx, target)
}

func (l *Logger) resume() {
	l.gate.Lock()
	l.accepting = !l.closed
	l.gate.Unlock()
}

// Run runs the writer until the queue is closed and drained.
func (l *Logger) Run(ctx context.Context) error {
	return l.writer.Run(ctx)
}

// Submit formats and enqueues one record. It returns the sequence value after
// the record was assigned, i.e. the record's own number plus one.
func (l *Logger) Submit(cat core.Category, payload string) (uint32, error) {
	if !cat.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}
	if len(payload) > MaxPayload {
		return 0, fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLong, len(payload), MaxPayload)
	}
	payload = EscapePayload(payload)

	l.gate.RLock()
	if !l.accepting {
		l.gate.RUnlock()
		return 0, ErrNotReady
	}
	next, err := l.seq.Reserve(func(seq uint32) error {
		now := l.clock()
		line := Format(cat, payload, seq, now)
		return l.queue.Enqueue(Entry{Seq: seq, Time: now, Line: []byte(line)})
	})
	l.gate.RUnlock()
	if err != nil {
		if errors.Is(err, ErrQueueFull) {
			l.dropped.Add(1)
			l.logger.Warn("submission dropped", "category", cat, "err", err)
		}
		return 0, err
	}
	return next, nil
}

// Index returns the current sequence value.
func (l *Logger) Index() uint32 {
	return l.seq.Current()
}

// Status returns a snapshot of the log state.
func (l *Logger) Status() core.Status {
	open, path := l.file.state()
	return core.Status{
		FileOpen:      open,
		Path:          path,
		Index:         l.seq.Current(),
		Written:       l.writer.Written(),
		WriteFailures: l.writer.Failures(),
		Dropped:       l.dropped.Load(),
	}
}

// WriterState returns the writer's lifecycle state.
func (l *Logger) WriterState() WriterState {
	return l.writer.State()
}

// Pending returns the number of queued, unwritten records.
func (l *Logger) Pending() int {
	return l.queue.Len()
}

// Close stops accepting submissions, waits for the writer to drain the queue
// and closes the file. If ctx ends before the writer stops, Close returns an
// error and leaves the file open; the caller is expected to cancel the
// writer's context.
func (l *Logger) Close(ctx context.Context) error {
	l.gate.Lock()
	l.accepting = false
	l.closed = true
	l.gate.Unlock()
	l.queue.Close()

	select {
	case <-l.writer.Done():
	case <-ctx.Done():
		return fmt.Errorf("drain interrupted with %d records pending: %w", l.queue.Len(), ctx.Err())
	}

	return l.file.close()
}
