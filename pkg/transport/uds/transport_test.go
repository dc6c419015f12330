package uds

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func startTestServer(t *testing.T, register func(*Server)) (*Server, string, context.CancelFunc) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "test.sock")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	srv := NewServer(sock, logger)
	srv.Handle(MethodPing, func(_ context.Context, _ Message) (any, error) {
		return PingResponse{Pong: true}, nil
	})
	if register != nil {
		register(srv)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Start(ctx)

	// Wait for socket to appear
	for i := 0; i < 50; i++ {
		if _, err := os.Stat(sock); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return srv, sock, cancel
}

func dialTest(t *testing.T, sock string) *Client {
	t.Helper()
	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPingRoundTrip(t *testing.T) {
	srv, sock, cancel := startTestServer(t, nil)
	defer cancel()
	defer srv.Shutdown()

	client := dialTest(t, sock)

	ctx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()

	resp, err := client.Request(ctx, MethodPing, nil)
	if err != nil {
		t.Fatalf("ping request: %v", err)
	}

	var pong PingResponse
	if err := resp.UnmarshalData(&pong); err != nil {
		t.Fatalf("unmarshal pong: %v", err)
	}
	if !pong.Pong {
		t.Error("expected pong=true")
	}
}

func TestCommandTextRoundTrip(t *testing.T) {
	srv, sock, cancel := startTestServer(t, func(s *Server) {
		s.Handle("ECHO", func(_ context.Context, req Message) (any, error) {
			return strings.ToUpper(req.Text()), nil
		})
	})
	defer cancel()
	defer srv.Shutdown()

	client := dialTest(t, sock)
	ctx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()

	got, err := client.Command(ctx, "ECHO", "72f sunny")
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	if got != "72F SUNNY" {
		t.Errorf("expected 72F SUNNY, got %q", got)
	}
}

func TestUnknownMethod(t *testing.T) {
	srv, sock, cancel := startTestServer(t, nil)
	defer cancel()
	defer srv.Shutdown()

	client := dialTest(t, sock)
	ctx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()

	_, err := client.Request(ctx, "NoSuchMethod", nil)
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if !strings.HasPrefix(se.Msg, ErrTextUnknownCmd) {
		t.Errorf("unexpected error text %q", se.Msg)
	}
}

func TestHandlerErrorIsReturned(t *testing.T) {
	srv, sock, cancel := startTestServer(t, func(s *Server) {
		s.Handle("FAIL", func(_ context.Context, _ Message) (any, error) {
			return nil, errors.New(ErrTextNotReady)
		})
	})
	defer cancel()
	defer srv.Shutdown()

	client := dialTest(t, sock)
	ctx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer reqCancel()

	_, err := client.Command(ctx, "FAIL", "")
	var se *ServerError
	if !errors.As(err, &se) || se.Msg != ErrTextNotReady {
		t.Fatalf("expected %q server error, got %v", ErrTextNotReady, err)
	}
}

func TestBroadcastEvent(t *testing.T) {
	srv, sock, cancel := startTestServer(t, nil)
	defer cancel()
	defer srv.Shutdown()

	client := dialTest(t, sock)

	evtCh := make(chan Message, 1)
	client.OnEvent(func(msg Message) {
		evtCh <- msg
	})

	// Ensure connection is established by doing a ping first
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pingCancel()
	if _, err := client.Request(pingCtx, MethodPing, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}

	evt, _ := NewEvent(EventStatusPush, map[string]uint32{"txt_idx": 3})
	srv.Broadcast(evt)

	select {
	case msg := <-evtCh:
		if msg.Method != EventStatusPush {
			t.Errorf("expected method %s, got %s", EventStatusPush, msg.Method)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for broadcast event")
	}
}

func TestShutdownWaitsForInflightRequest(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	srv, sock, cancel := startTestServer(t, func(s *Server) {
		s.Handle("SLOW", func(_ context.Context, _ Message) (any, error) {
			close(started)
			<-release
			return "done", nil
		})
	})
	defer cancel()

	client := dialTest(t, sock)

	respCh := make(chan string, 1)
	go func() {
		ctx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer reqCancel()
		got, err := client.Command(ctx, "SLOW", "")
		if err != nil {
			got = "error: " + err.Error()
		}
		respCh <- got
	}()

	<-started
	shutdownDone := make(chan struct{})
	go func() {
		srv.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		t.Fatal("shutdown returned while a request was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if got := <-respCh; got != "done" {
		t.Errorf("expected done, got %q", got)
	}
	<-shutdownDone
}

func TestIdleSubscriberDoesNotBlockRequests(t *testing.T) {
	srv, sock, cancel := startTestServer(t, func(s *Server) {
		s.Handle("ECHO", func(_ context.Context, req Message) (any, error) {
			return req.Text(), nil
		})
	})
	defer cancel()

	// connected but never reads
	idle, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial idle: %v", err)
	}
	defer idle.Close()

	client := dialTest(t, sock)

	stop := make(chan struct{})
	flooded := make(chan struct{})
	go func() {
		defer close(flooded)
		evt, _ := NewEvent(EventLogLine, strings.Repeat("x", 4096))
		for {
			select {
			case <-stop:
				return
			default:
				srv.Broadcast(evt)
			}
		}
	}()

	payload := strings.Repeat("p", 200)
	for i := 0; i < 300; i++ {
		ctx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
		got, err := client.Command(ctx, "ECHO", payload)
		reqCancel()
		if err != nil {
			t.Fatalf("request %d failed with idle subscriber connected: %v", i, err)
		}
		if got != payload {
			t.Fatalf("request %d: unexpected response", i)
		}
	}
	close(stop)
	<-flooded

	if srv.DroppedEvents() == 0 {
		t.Error("expected broadcasts to the idle subscriber to be dropped")
	}

	shutdownDone := make(chan struct{})
	go func() {
		srv.Shutdown()
		close(shutdownDone)
	}()
	select {
	case <-shutdownDone:
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown blocked on idle subscriber")
	}
}
