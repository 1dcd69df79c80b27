package gameclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type gameServer struct {
	server      *httptest.Server
	connections atomic.Int32
	received    chan string
	// script runs per connection with its 1-based index.
	script func(n int32, conn *websocket.Conn)
}

func newGameServer(t *testing.T, script func(n int32, conn *websocket.Conn)) *gameServer {
	t.Helper()
	gs := &gameServer{received: make(chan string, 64), script: script}
	upgrader := websocket.Upgrader{}
	gs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := gs.connections.Add(1)
		go func() {
			for {
				_, payload, err := conn.ReadMessage()
				if err != nil {
					return
				}
				gs.received <- string(payload)
			}
		}()
		if gs.script != nil {
			gs.script(n, conn)
			return
		}
		holdOpen(conn)
	}))
	t.Cleanup(gs.server.Close)
	return gs
}

func (gs *gameServer) url() string {
	return "ws" + strings.TrimPrefix(gs.server.URL, "http")
}

func (gs *gameServer) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-gs.received:
		if got != want {
			t.Fatalf("server received %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not receive %q", want)
	}
}

func holdOpen(conn *websocket.Conn) {
	time.Sleep(2 * time.Second)
}

func newTestClient(t *testing.T, url string, mutate func(*Config)) *Client {
	t.Helper()
	config := Config{
		URL:        url,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
		Logf:       t.Logf,
	}
	if mutate != nil {
		mutate(&config)
	}
	client, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func runClient(t *testing.T, client *Client) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		done <- client.Run(ctx)
		close(finished)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-finished:
		case <-time.After(2 * time.Second):
			t.Error("client did not stop")
		}
	})
	return cancel, done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type collector struct {
	mu     sync.Mutex
	frames []Frame
}

func (c *collector) add(frame Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
}

func (c *collector) snapshot() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.frames...)
}

func TestOutboundQueuedUntilOpen(t *testing.T) {
	gs := newGameServer(t, func(_ int32, conn *websocket.Conn) { holdOpen(conn) })
	client := newTestClient(t, gs.url(), nil)

	first, _ := NewFrame(TypeGame, "look")
	second, _ := NewFrame(TypeGame, "north")
	client.Send(first)
	client.Send(second)
	if client.Pending() != 2 {
		t.Fatalf("pending = %d", client.Pending())
	}

	runClient(t, client)
	gs.expect(t, `{"type":"game","data":"look"}`)
	gs.expect(t, `{"type":"game","data":"north"}`)
	waitFor(t, "outbox drained", func() bool { return client.Pending() == 0 })
}

func TestInboundQueuedForFirstSubscriber(t *testing.T) {
	gs := newGameServer(t, func(_ int32, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"game","data":"one"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat","data":"two"}`))
		holdOpen(conn)
	})
	client := newTestClient(t, gs.url(), nil)
	runClient(t, client)

	waitFor(t, "queued frames", func() bool {
		client.deliverMu.Lock()
		defer client.deliverMu.Unlock()
		return len(client.inbox) == 2
	})

	var got collector
	unsubscribe := client.Subscribe(got.add)
	defer unsubscribe()
	frames := got.snapshot()
	if len(frames) != 2 || frames[0].Text() != "one" || frames[1].Type != TypeChat {
		t.Fatalf("frames = %+v", frames)
	}

	var late collector
	client.Subscribe(late.add)
	if len(late.snapshot()) != 0 {
		t.Fatal("queued frames must only reach the first subscriber")
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	gs := newGameServer(t, func(_ int32, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"data":"typeless"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"game","data":"ok"}`))
		holdOpen(conn)
	})
	client := newTestClient(t, gs.url(), nil)
	var got collector
	client.Subscribe(got.add)
	runClient(t, client)

	waitFor(t, "valid frame", func() bool { return len(got.snapshot()) == 1 })
	if frame := got.snapshot()[0]; frame.Text() != "ok" {
		t.Fatalf("frame = %+v", frame)
	}
	if client.State() != StateOpen {
		t.Fatalf("state = %s, want open", client.State())
	}
	if gs.connections.Load() != 1 {
		t.Fatalf("connections = %d", gs.connections.Load())
	}
}

func TestRetryFalseStopsReconnecting(t *testing.T) {
	gs := newGameServer(t, func(_ int32, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","data":"You must be logged in to play.","retry":false}`))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ""), time.Now().Add(time.Second))
	})
	client := newTestClient(t, gs.url(), nil)
	var got collector
	client.Subscribe(got.add)
	_, done := runClient(t, client)

	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("Run = %v, want ErrStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client kept running")
	}
	if client.State() != StateStopped {
		t.Fatalf("state = %s", client.State())
	}
	time.Sleep(100 * time.Millisecond)
	if gs.connections.Load() != 1 {
		t.Fatalf("connections = %d, want 1", gs.connections.Load())
	}
	if frames := got.snapshot(); len(frames) != 1 || frames[0].Type != TypeError {
		t.Fatalf("frames = %+v", frames)
	}
}

func TestReconnectsWithBackoff(t *testing.T) {
	gs := newGameServer(t, func(n int32, conn *websocket.Conn) {
		if n == 1 {
			return
		}
		holdOpen(conn)
	})
	var mu sync.Mutex
	var states []State
	client := newTestClient(t, gs.url(), func(c *Config) {
		c.OnState = func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		}
	})
	runClient(t, client)

	waitFor(t, "second connection", func() bool { return gs.connections.Load() >= 2 })
	waitFor(t, "reopen", func() bool { return client.State() == StateOpen })

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateConnecting, StateOpen, StateBackoff, StateConnecting, StateOpen}
	if len(states) < len(want) {
		t.Fatalf("states = %v", states)
	}
	for i, s := range want {
		if states[i] != s {
			t.Fatalf("states = %v, want prefix %v", states, want)
		}
	}
}

func TestUnreachableServerBacksOff(t *testing.T) {
	gs := newGameServer(t, nil)
	target := gs.url()
	gs.server.Close()

	var backoffs atomic.Int32
	client := newTestClient(t, target, func(c *Config) {
		c.OnState = func(s State) {
			if s == StateBackoff {
				backoffs.Add(1)
			}
		}
	})
	runClient(t, client)
	waitFor(t, "repeated backoff", func() bool { return backoffs.Load() >= 3 })
}

func TestKeepAlivePing(t *testing.T) {
	gs := newGameServer(t, func(_ int32, conn *websocket.Conn) { holdOpen(conn) })
	client := newTestClient(t, gs.url(), func(c *Config) { c.PingInterval = 20 * time.Millisecond })
	runClient(t, client)
	gs.expect(t, `{"type":"ping"}`)
}

func TestRunRejectsSecondCaller(t *testing.T) {
	gs := newGameServer(t, func(_ int32, conn *websocket.Conn) { holdOpen(conn) })
	client := newTestClient(t, gs.url(), nil)
	runClient(t, client)
	waitFor(t, "open", func() bool { return client.State() == StateOpen })
	if err := client.Run(context.Background()); err == nil {
		t.Fatal("expected second Run to fail")
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDrainWaitsForQueuedFrames(t *testing.T) {
	gs := newGameServer(t, func(_ int32, conn *websocket.Conn) { holdOpen(conn) })
	client := newTestClient(t, gs.url(), nil)
	if err := client.Drain(context.Background()); err != nil {
		t.Fatalf("Drain on empty outbox: %v", err)
	}

	first, _ := NewFrame(TypeGame, "look")
	second, _ := NewFrame(TypeGame, "north")
	client.Send(first)
	client.Send(second)
	runClient(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if client.Pending() != 0 {
		t.Fatalf("pending = %d after drain", client.Pending())
	}
	gs.expect(t, `{"type":"game","data":"look"}`)
	gs.expect(t, `{"type":"game","data":"north"}`)
}

func TestDrainHonoursContextWhileUnreachable(t *testing.T) {
	client := newTestClient(t, "ws://127.0.0.1:1/play", nil)
	command, _ := NewFrame(TypeGame, "look")
	client.Send(command)
	runClient(t, client)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := client.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain err = %v, want deadline exceeded", err)
	}
	if client.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", client.Pending())
	}
}

func TestCancelClosesSocketNormally(t *testing.T) {
	closeCodes := make(chan int, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				code := -1
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) {
					code = closeErr.Code
				}
				closeCodes <- code
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, "ws"+strings.TrimPrefix(server.URL, "http"), nil)
	cancel, done := runClient(t, client)
	waitFor(t, "open", func() bool { return client.State() == StateOpen })
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v", err)
	}

	select {
	case code := <-closeCodes:
		if code != websocket.CloseNormalClosure {
			t.Fatalf("close code = %d, want %d", code, websocket.CloseNormalClosure)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server saw no close")
	}
}

func TestHandlerMayUnsubscribeItself(t *testing.T) {
	gs := newGameServer(t, func(_ int32, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"game","data":"one"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"game","data":"two"}`))
		holdOpen(conn)
	})
	client := newTestClient(t, gs.url(), nil)

	var got collector
	var unsubscribe func()
	unsubscribe = client.Subscribe(func(f Frame) {
		got.add(f)
		unsubscribe()
	})
	runClient(t, client)

	waitFor(t, "second frame queued", func() bool {
		client.deliverMu.Lock()
		defer client.deliverMu.Unlock()
		return len(client.inbox) == 1
	})
	frames := got.snapshot()
	if len(frames) != 1 || frames[0].Text() != "one" {
		t.Fatalf("frames = %+v", frames)
	}
}
