// Package daemon wires the text log pipeline to the command server and runs
// the rtilogd lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/modoterra/rtilog/pkg/core"
	"github.com/modoterra/rtilog/pkg/transport/uds"
	"github.com/modoterra/rtilog/pkg/txtlog"
)

// sd_notify states passed to Options.Notify.
const (
	NotifyReady    = "READY=1"
	NotifyStopping = "STOPPING=1"
)

// minPushPeriod is the shortest period SETPUSHPERIOD accepts.
const minPushPeriod = 100 * time.Millisecond

// lineBacklog bounds the log.line events waiting to be broadcast.
const lineBacklog = 256

// Options configures a Daemon.
type Options struct {
	SocketPath    string
	LogFile       string
	QueueCapacity int
	PushInterval  time.Duration
	DrainTimeout  time.Duration
	Logger        *slog.Logger

	// Clock supplies record timestamps. Defaults to time.Now.
	Clock func() time.Time

	// Notify reports lifecycle transitions to the service manager.
	Notify func(state string)
}

// Daemon is the rtilogd process: command server, text log and status push.
type Daemon struct {
	server       *uds.Server
	txt          *txtlog.Logger
	coord        *Coordinator
	push         *PushLoop
	lines        chan core.LogLine
	bootID       string
	drainTimeout time.Duration
	notify       func(string)
	logger       *slog.Logger
}

// New creates a daemon and opens the log file, if one is configured.
func New(opts Options) (*Daemon, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = time.Second
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 5 * time.Second
	}
	if opts.Notify == nil {
		opts.Notify = func(string) {}
	}

	d := &Daemon{
		server:       uds.NewServer(opts.SocketPath, opts.Logger.With("component", "server")),
		coord:        NewCoordinator(),
		lines:        make(chan core.LogLine, lineBacklog),
		bootID:       uuid.NewString(),
		drainTimeout: opts.DrainTimeout,
		notify:       opts.Notify,
		logger:       opts.Logger,
	}
	d.txt = txtlog.New(txtlog.Options{
		QueueCapacity: opts.QueueCapacity,
		Logger:        opts.Logger,
		Clock:         opts.Clock,
		OnWrite:       d.queueLine,
	})
	d.push = NewPushLoop(d, d.server, opts.PushInterval, opts.Logger.With("component", "push"))

	if opts.LogFile != "" {
		if err := d.txt.Open(context.Background(), opts.LogFile); err != nil {
			return nil, err
		}
	}

	d.registerHandlers()
	return d, nil
}

// Status returns the status fields published to subscribers.
func (d *Daemon) Status() core.Status {
	s := d.txt.Status()
	s.BootID = d.bootID
	s.DroppedEvents = d.server.DroppedEvents()
	return s
}

// Exit requests shutdown, as the EXIT command does.
func (d *Daemon) Exit(code int64, reason string) {
	if d.coord.Trigger(code, reason) {
		d.logger.Info("exit requested", "flag", code, "reason", reason)
	}
}

// Done is closed once shutdown has been requested.
func (d *Daemon) Done() <-chan struct{} { return d.coord.Done() }

// Server returns the underlying UDS server (for broadcasting events).
func (d *Daemon) Server() *uds.Server {
	return d.server
}

// Run serves commands until ctx is cancelled or EXIT is received, then shuts
// down in order: stop taking requests, drain the queue, close the file.
// A writer receive failure ends Run early with an error.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.server.Listen(); err != nil {
		return err
	}

	writerCtx, abortWriter := context.WithCancel(context.Background())
	defer abortWriter()
	writerErr := make(chan error, 1)
	go func() { writerErr <- d.txt.Run(writerCtx) }()

	serveCtx, stopServing := context.WithCancel(context.Background())
	defer stopServing()
	go func() {
		if err := d.server.Serve(serveCtx); err != nil {
			d.logger.Error("serve error", "err", err)
		}
	}()
	go d.push.Run(serveCtx)
	go d.publishLines(serveCtx)

	d.notify(NotifyReady)
	d.logger.Info("rtilogd ready", "boot_id", d.bootID, "commands", len(d.server.Methods()))

	select {
	case <-ctx.Done():
		d.Exit(1, "signal")
	case <-d.coord.Done():
	case err := <-writerErr:
		d.server.Shutdown()
		if cerr := d.txt.CloseFile(context.Background()); cerr != nil {
			d.logger.Error("close log file", "err", cerr)
		}
		return fmt.Errorf("writer: %w", err)
	}

	d.notify(NotifyStopping)
	d.logger.Info("shutting down", "reason", d.coord.Reason(), "pending", d.txt.Pending())

	d.server.Shutdown()
	stopServing()

	drainCtx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()
	if err := d.txt.Close(drainCtx); err != nil {
		abortWriter()
		<-writerErr
		if cerr := d.txt.CloseFile(context.Background()); cerr != nil {
			d.logger.Error("close log file", "err", cerr)
		}
		return err
	}
	if err := <-writerErr; err != nil {
		return fmt.Errorf("writer: %w", err)
	}

	d.logger.Info("shutdown complete", "txt_idx", d.txt.Index(), "exit_flag", d.coord.Code())
	return nil
}

// queueLine is the writer's OnWrite hook. It never blocks the writer; lines
// are dropped when subscribers fall behind.
func (d *Daemon) queueLine(line core.LogLine) {
	select {
	case d.lines <- line:
	default:
	}
}

func (d *Daemon) publishLines(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-d.lines:
			evt, err := uds.NewEvent(uds.EventLogLine, line)
			if err != nil {
				d.logger.Error("log line marshal error", "err", err)
				continue
			}
			d.server.Broadcast(evt)
		}
	}
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.MethodPing, d.handlePing)
	d.server.Handle(uds.MethodStatus, d.handleStatus)
	for _, cat := range core.Categories() {
		d.server.Handle(cat.Command(), d.logHandler(cat))
	}
	d.server.Handle(uds.CmdGetTxtIdx, d.handleGetTxtIdx)
	d.server.Handle(uds.CmdExit, d.handleExit)
	d.server.Handle(uds.CmdOpenTxtFile, d.handleOpenTxtFile)
	d.server.Handle(uds.CmdCloseTxtFile, d.handleCloseTxtFile)
	d.server.Handle(uds.CmdSetPushPeriod, d.handleSetPushPeriod)
}

func (d *Daemon) handlePing(_ context.Context, _ uds.Message) (any, error) {
	return uds.PingResponse{Pong: true}, nil
}

func (d *Daemon) handleStatus(_ context.Context, _ uds.Message) (any, error) {
	return d.Status(), nil
}

// logHandler returns the LOGTXT<CATEGORY> handler for cat.
func (d *Daemon) logHandler(cat core.Category) uds.HandlerFunc {
	return func(_ context.Context, msg uds.Message) (any, error) {
		if d.coord.Triggered() {
			return nil, errors.New(uds.ErrTextShutdown)
		}
		next, err := d.txt.Submit(cat, msg.Text())
		if err != nil {
			d.logger.Debug("submission rejected", "category", cat, "err", err)
			return nil, commandError(err)
		}
		return strconv.FormatUint(uint64(next), 10), nil
	}
}

func (d *Daemon) handleGetTxtIdx(_ context.Context, _ uds.Message) (any, error) {
	return strconv.FormatUint(uint64(d.txt.Index()), 10), nil
}

func (d *Daemon) handleExit(_ context.Context, msg uds.Message) (any, error) {
	flag, err := strconv.ParseInt(strings.TrimSpace(msg.Text()), 0, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %q", uds.ErrTextBadArgument, msg.Text())
	}
	if flag != 0 {
		d.Exit(flag, "command")
	}
	return strconv.FormatInt(flag, 10), nil
}

func (d *Daemon) handleOpenTxtFile(ctx context.Context, msg uds.Message) (any, error) {
	path := strings.TrimSpace(msg.Text())
	if path == "" {
		path = d.txt.Status().Path
	}
	if path == "" {
		return "0", nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.drainTimeout)
	defer cancel()
	if err := d.txt.Open(ctx, path); err != nil {
		d.logger.Error("open log file", "path", path, "err", err)
		return "0", nil
	}
	return "1", nil
}

func (d *Daemon) handleCloseTxtFile(ctx context.Context, _ uds.Message) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, d.drainTimeout)
	defer cancel()
	if err := d.txt.CloseFile(ctx); err != nil {
		d.logger.Error("close log file", "err", err)
		return "1", nil
	}
	return "0", nil
}

func (d *Daemon) handleSetPushPeriod(_ context.Context, msg uds.Message) (any, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(msg.Text()), 64)
	period := time.Duration(secs * float64(time.Second))
	if err != nil || period < minPushPeriod {
		return nil, fmt.Errorf("%s: %q", uds.ErrTextBadArgument, msg.Text())
	}
	d.push.SetInterval(period)
	return strconv.FormatFloat(d.push.Interval().Seconds(), 'f', -1, 64), nil
}

// commandError maps pipeline errors to the short codes sent to callers.
func commandError(err error) error {
	switch {
	case errors.Is(err, txtlog.ErrNotReady):
		return errors.New(uds.ErrTextNotReady)
	case errors.Is(err, txtlog.ErrQueueFull):
		return errors.New(uds.ErrTextQueueFull)
	case errors.Is(err, txtlog.ErrPayloadTooLong):
		return errors.New(uds.ErrTextTooLong)
	case errors.Is(err, txtlog.ErrClosed):
		return errors.New(uds.ErrTextShutdown)
	default:
		return err
	}
}
