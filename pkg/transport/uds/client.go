package uds

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrConnClosed is returned for requests on a closed connection.
var ErrConnClosed = errors.New("connection closed")

// EventHandler is called when the server pushes an event.
type EventHandler func(msg Message)

// Client connects to an rtilogd server over a Unix domain socket.
type Client struct {
	conn      net.Conn
	scanner   *bufio.Scanner
	mu        sync.Mutex
	wmu       sync.Mutex
	pending   map[string]chan Message
	events    EventHandler
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the daemon socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", socketPath, err)
	}
	c := &Client{
		conn:    conn,
		scanner: bufio.NewScanner(conn),
		pending: make(map[string]chan Message),
		done:    make(chan struct{}),
	}
	c.scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	go c.readLoop()
	return c, nil
}

// OnEvent registers a handler for server-pushed events.
func (c *Client) OnEvent(h EventHandler) {
	c.mu.Lock()
	c.events = h
	c.mu.Unlock()
}

// Request sends a request and waits for the correlated response.
func (c *Client) Request(ctx context.Context, method string, data any) (Message, error) {
	msg, err := NewRequest(method, data)
	if err != nil {
		return Message{}, err
	}

	ch := make(chan Message, 1)
	c.mu.Lock()
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	raw, err := json.Marshal(msg)
	if err != nil {
		return Message{}, err
	}
	raw = append(raw, '\n')

	c.wmu.Lock()
	_, err = c.conn.Write(raw)
	c.wmu.Unlock()
	if err != nil {
		return Message{}, fmt.Errorf("write: %w", err)
	}

	select {
	case resp := <-ch:
		return checkResponse(method, resp)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-c.done:
		// the response may have arrived just before the connection closed
		select {
		case resp := <-ch:
			return checkResponse(method, resp)
		default:
			return Message{}, ErrConnClosed
		}
	}
}

func checkResponse(method string, resp Message) (Message, error) {
	if resp.Error != "" {
		return resp, &ServerError{Method: method, Msg: resp.Error}
	}
	return resp, nil
}

// Command sends a text command and returns the text response.
func (c *Client) Command(ctx context.Context, name, text string) (string, error) {
	resp, err := c.Request(ctx, name, text)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer c.closeOnce.Do(func() { close(c.done) })

	for c.scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(c.scanner.Bytes(), &msg); err != nil {
			continue
		}

		switch msg.Type {
		case MsgTypeRes:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		case MsgTypeEvt:
			c.mu.Lock()
			h := c.events
			c.mu.Unlock()
			if h != nil {
				h(msg)
			}
		}
	}
}

// ServerError is an error reported by the server in a response.
type ServerError struct {
	Method string
	Msg    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server error: %s", e.Method, e.Msg)
}
