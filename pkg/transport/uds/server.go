package uds

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HandlerFunc processes a request and returns a response data payload or error.
type HandlerFunc func(ctx context.Context, req Message) (any, error)

// Outbound limits per client. A peer that stops reading fills its send
// buffer; broadcasts to it are then dropped, and once a single write stalls
// for writeTimeout the peer is disconnected.
const (
	sendBuffer    = 64
	writeTimeout  = 5 * time.Second
	shutdownFlush = time.Second
)

// client is a connected peer. All writes go through send and are performed
// by writeLoop, so no server lock is ever held across a socket write.
type client struct {
	conn net.Conn
	send chan []byte
	quit chan struct{}
	done chan struct{}

	mu        sync.Mutex
	flushBy   time.Time
	timeout   time.Duration
	quitOnce  sync.Once
	closeOnce sync.Once
}

func newClient(conn net.Conn, timeout time.Duration) *client {
	return &client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		timeout: timeout,
	}
}

// enqueue queues a response, waiting for buffer space until the peer is
// gone. writeLoop bounds that wait through its write deadline.
func (c *client) enqueue(line []byte) bool {
	select {
	case c.send <- line:
		return true
	case <-c.done:
		return false
	}
}

// offer queues a broadcast without waiting.
func (c *client) offer(line []byte) bool {
	select {
	case c.send <- line:
		return true
	default:
		return false
	}
}

func (c *client) writeLoop() {
	defer c.close()
	for {
		select {
		case line := <-c.send:
			if !c.write(line) {
				return
			}
		case <-c.quit:
			for {
				select {
				case line := <-c.send:
					if !c.write(line) {
						return
					}
				default:
					return
				}
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) write(line []byte) bool {
	c.mu.Lock()
	deadline := time.Now().Add(c.timeout)
	if !c.flushBy.IsZero() {
		deadline = c.flushBy
	}
	c.conn.SetWriteDeadline(deadline)
	c.mu.Unlock()

	_, err := c.conn.Write(line)
	return err == nil
}

// shutdown asks writeLoop to flush what is queued by the given time and
// then close the connection.
func (c *client) shutdown(by time.Time) {
	c.mu.Lock()
	c.flushBy = by
	c.conn.SetWriteDeadline(by)
	c.mu.Unlock()
	c.quitOnce.Do(func() { close(c.quit) })
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Server listens on a Unix domain socket and dispatches NDJSON messages.
type Server struct {
	socketPath string
	listener   net.Listener
	handlers   map[string]HandlerFunc
	clients    map[net.Conn]*client
	mu         sync.RWMutex
	inflight   sync.WaitGroup
	writers    sync.WaitGroup
	stopping   bool
	dropped    atomic.Uint64
	timeout    time.Duration
	logger     *slog.Logger
}

// NewServer creates a new UDS server.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]HandlerFunc),
		clients:    make(map[net.Conn]*client),
		timeout:    writeTimeout,
		logger:     logger,
	}
}

// Handle registers a handler for a method. Handlers must be registered
// before Start.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.handlers[method] = h
}

// Methods returns the registered method names, sorted.
func (s *Server) Methods() []string {
	out := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Start listens and serves until ctx is cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Listen binds the socket. It removes any stale socket file first.
func (s *Server) Listen() error {
	// Remove stale socket
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("server listening", "socket", s.socketPath)
	return nil
}

// Serve accepts connections on the socket bound by Listen.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.RLock()
	ln := s.listener
	s.mu.RUnlock()
	if ln == nil {
		return errors.New("serve: not listening")
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isStopping() {
				return nil // shutting down
			}
			s.logger.Error("accept error", "err", err)
			continue
		}
		c := newClient(conn, s.timeout)
		s.mu.Lock()
		if s.stopping {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.clients[conn] = c
		s.writers.Add(1)
		s.mu.Unlock()
		go func() {
			defer s.writers.Done()
			c.writeLoop()
		}()
		go s.handleConn(ctx, c)
	}
}

// Broadcast queues an event for every connected client. Clients whose
// send buffer is full miss the event.
func (s *Server) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("broadcast marshal error", "err", err)
		return
	}
	line := append(data, '\n')

	for _, c := range s.snapshot() {
		if !c.offer(line) {
			s.dropped.Add(1)
			s.logger.Debug("broadcast dropped for slow client", "method", msg.Method)
		}
	}
}

// DroppedEvents returns the number of broadcasts not delivered to slow clients.
func (s *Server) DroppedEvents() uint64 {
	return s.dropped.Load()
}

func (s *Server) snapshot() []*client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// Shutdown stops accepting connections and requests, waits for requests
// already being handled to respond, then closes every connection.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	s.inflight.Wait()

	by := time.Now().Add(shutdownFlush)
	for _, c := range s.snapshot() {
		c.shutdown(by)
	}
	s.writers.Wait()
	os.Remove(s.socketPath)
}

func (s *Server) isStopping() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopping
}

// begin registers an in-flight request unless the server is stopping.
func (s *Server) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *Server) handleConn(ctx context.Context, c *client) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.conn)
		s.mu.Unlock()
		c.shutdown(time.Now().Add(shutdownFlush))
	}()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max line

	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			s.logger.Error("invalid message", "err", err)
			continue
		}

		if msg.Type != MsgTypeReq {
			continue
		}

		if !s.begin() {
			s.writeMessage(c, NewErrorResponse(msg.ID, msg.Method, ErrTextShutdown))
			continue
		}
		s.dispatch(ctx, c, msg)
		s.inflight.Done()
	}
}

func (s *Server) dispatch(ctx context.Context, c *client, msg Message) {
	handler, ok := s.handlers[msg.Method]
	if !ok {
		resp := NewErrorResponse(msg.ID, msg.Method, fmt.Sprintf("%s: %s", ErrTextUnknownCmd, msg.Method))
		s.writeMessage(c, resp)
		return
	}

	result, err := handler(ctx, msg)
	var resp Message
	if err != nil {
		resp = NewErrorResponse(msg.ID, msg.Method, err.Error())
	} else if resp, err = NewResponse(msg.ID, msg.Method, result); err != nil {
		resp = NewErrorResponse(msg.ID, msg.Method, err.Error())
	}
	s.writeMessage(c, resp)
}

func (s *Server) writeMessage(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("marshal response error", "err", err)
		return
	}
	data = append(data, '\n')
	if !c.enqueue(data) {
		s.logger.Debug("response dropped, client gone", "method", msg.Method)
	}
}
