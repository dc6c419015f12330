package daemon

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/modoterra/rtilog/pkg/core"
	"github.com/modoterra/rtilog/pkg/transport/uds"
)

// StatusSource provides the status snapshot to publish.
type StatusSource interface {
	Status() core.Status
}

// Broadcaster delivers an event to every subscriber.
type Broadcaster interface {
	Broadcast(msg uds.Message)
}

// PushLoop samples the status every interval and broadcasts it to
// subscribers when it changed since the last broadcast.
type PushLoop struct {
	source   StatusSource
	out      Broadcaster
	interval atomic.Int64
	reset    chan struct{}
	last     *core.Status
	logger   *slog.Logger
}

// NewPushLoop creates a push loop publishing source's status to out.
func NewPushLoop(source StatusSource, out Broadcaster, interval time.Duration, logger *slog.Logger) *PushLoop {
	pl := &PushLoop{source: source, out: out, reset: make(chan struct{}, 1), logger: logger}
	pl.interval.Store(int64(interval))
	return pl
}

// Interval returns the current push period.
func (pl *PushLoop) Interval() time.Duration {
	return time.Duration(pl.interval.Load())
}

// SetInterval changes the push period. Non-positive values are ignored.
func (pl *PushLoop) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	pl.interval.Store(int64(d))
	select {
	case pl.reset <- struct{}{}:
	default:
	}
}

// Run starts the push loop. Blocks until ctx is cancelled.
func (pl *PushLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(pl.Interval())
	defer ticker.Stop()

	pl.tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pl.reset:
			ticker.Reset(pl.Interval())
			pl.logger.Info("push period changed", "interval", pl.Interval())
		case <-ticker.C:
			pl.tick()
		}
	}
}

func (pl *PushLoop) tick() {
	s := pl.source.Status()
	if pl.last != nil && !statusChanged(*pl.last, s) {
		return
	}
	pl.last = &s

	evt, err := uds.NewEvent(uds.EventStatusPush, s)
	if err != nil {
		pl.logger.Error("status push marshal error", "err", err)
		return
	}
	pl.out.Broadcast(evt)
}

// statusChanged ignores DroppedEvents: a push dropped for a slow client
// must not itself cause another push.
func statusChanged(a, b core.Status) bool {
	return a.FileOpen != b.FileOpen ||
		a.Path != b.Path ||
		a.Index != b.Index ||
		a.Written != b.Written ||
		a.WriteFailures != b.WriteFailures ||
		a.Dropped != b.Dropped ||
		a.BootID != b.BootID
}
