package gameclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

// State is the connection lifecycle stage.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateBackoff
	// StateStopped is terminal: the server refused further retries.
	StateStopped
	// StateClosed is terminal: the Run context ended.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrStopped is returned by Run after the server sent retry:false.
var ErrStopped = errors.New("game server asked the client not to reconnect")

const (
	defaultMinBackoff   = 500 * time.Millisecond
	defaultMaxBackoff   = 30 * time.Second
	defaultInboxLimit   = 256
	writeWait           = 5 * time.Second
	defaultDialDeadline = 10 * time.Second
)

// Dialer opens the game socket. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Config controls a Client.
type Config struct {
	// URL is the ws(s) URL of the /play endpoint, including any query.
	URL    string
	Header http.Header
	Dialer Dialer

	MinBackoff time.Duration
	MaxBackoff time.Duration
	// PingInterval enables keep-alive ping frames while open when positive.
	PingInterval time.Duration
	// InboxLimit bounds frames held for the first subscriber.
	InboxLimit int

	Logf func(format string, args ...any)
	// OnState observes every state change. It runs on the Run goroutine.
	OnState func(State)
}

// Client maintains the game socket and its queues.
type Client struct {
	url          string
	header       http.Header
	dialer       Dialer
	backoff      *backoff.Backoff
	pingInterval time.Duration
	inboxLimit   int
	logf         func(format string, args ...any)

	state   atomic.Int32
	running atomic.Bool

	outMu   sync.Mutex
	outbox  []Frame
	outWake chan struct{}
	// drained is closed when a non-empty outbox has been fully written.
	drained chan struct{}

	// deliverMu serializes handler calls so queued frames reach the first
	// subscriber before anything received later. It also guards inbox.
	deliverMu sync.Mutex
	inbox     []Frame

	handlersMu sync.Mutex
	handlers   []subscription
	nextSubID  int

	onState func(State)
}

type subscription struct {
	id      int
	handler func(Frame)
}

// New validates the config and builds an idle client.
func New(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("game socket url is required")
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultDialDeadline,
		}
	}
	minBackoff := config.MinBackoff
	if minBackoff <= 0 {
		minBackoff = defaultMinBackoff
	}
	maxBackoff := config.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	if minBackoff > maxBackoff {
		minBackoff = maxBackoff
	}
	inboxLimit := config.InboxLimit
	if inboxLimit <= 0 {
		inboxLimit = defaultInboxLimit
	}
	logf := config.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Client{
		url:          config.URL,
		header:       config.Header.Clone(),
		dialer:       dialer,
		backoff:      &backoff.Backoff{Min: minBackoff, Max: maxBackoff, Factor: 2, Jitter: true},
		pingInterval: config.PingInterval,
		inboxLimit:   inboxLimit,
		logf:         logf,
		outWake:      make(chan struct{}, 1),
		onState:      config.OnState,
	}, nil
}

// State reports the current lifecycle stage.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(next State) {
	previous := State(c.state.Swap(int32(next)))
	if previous == next {
		return
	}
	if c.onState != nil {
		c.onState(next)
	}
}

// Send queues a frame. It is written immediately when the socket is open,
// otherwise on the next successful connect.
func (c *Client) Send(frame Frame) {
	c.outMu.Lock()
	c.outbox = append(c.outbox, frame)
	c.outMu.Unlock()
	select {
	case c.outWake <- struct{}{}:
	default:
	}
}

// Drain blocks until every queued outbound frame has been written to an open
// socket, or ctx ends. It does not start a connection; Run must be active.
func (c *Client) Drain(ctx context.Context) error {
	c.outMu.Lock()
	if len(c.outbox) == 0 {
		c.outMu.Unlock()
		return nil
	}
	if c.drained == nil {
		c.drained = make(chan struct{})
	}
	drained := c.drained
	c.outMu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports how many outbound frames are waiting.
func (c *Client) Pending() int {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return len(c.outbox)
}

// Subscribe registers a handler for inbound frames. The first subscriber also
// receives every frame queued before it subscribed. Handlers run on the read
// loop and must not call Subscribe; they may unsubscribe. The returned func
// unsubscribes.
func (c *Client) Subscribe(handler func(Frame)) func() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.handlersMu.Lock()
	c.nextSubID++
	subID := c.nextSubID
	c.handlers = append(c.handlers, subscription{id: subID, handler: handler})
	c.handlersMu.Unlock()

	queued := c.inbox
	c.inbox = nil
	for _, frame := range queued {
		handler(frame)
	}
	return func() {
		c.handlersMu.Lock()
		defer c.handlersMu.Unlock()
		for i, sub := range c.handlers {
			if sub.id == subID {
				c.handlers = append(c.handlers[:i:i], c.handlers[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) deliver(frame Frame) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.handlersMu.Lock()
	handlers := c.handlers
	c.handlersMu.Unlock()

	if len(handlers) == 0 {
		if len(c.inbox) >= c.inboxLimit {
			c.logf("gameclient: inbox full, dropping oldest %s frame", c.inbox[0].Type)
			c.inbox = c.inbox[1:]
		}
		c.inbox = append(c.inbox, frame)
		return
	}
	for _, sub := range handlers {
		sub.handler(frame)
	}
}

// Run drives the connection state machine until ctx ends or the server stops
// reconnection. One timer schedules every connect attempt.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("game client is already running")
	}
	defer c.running.Store(false)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			c.setState(StateClosed)
			return ctx.Err()
		case <-timer.C:
		}

		c.setState(StateConnecting)
		conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateClosed)
				return ctx.Err()
			}
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			c.scheduleRetry(timer, fmt.Sprintf("dial failed status=%d: %v", status, err))
			continue
		}

		c.backoff.Reset()
		c.setState(StateOpen)
		stopped, err := c.serve(ctx, conn)
		if stopped {
			c.setState(StateStopped)
			return ErrStopped
		}
		if ctx.Err() != nil {
			c.setState(StateClosed)
			return ctx.Err()
		}
		c.scheduleRetry(timer, fmt.Sprintf("connection lost: %v", err))
	}
}

func (c *Client) scheduleRetry(timer *time.Timer, reason string) {
	attempt := int(c.backoff.Attempt()) + 1
	delay := c.backoff.Duration()
	c.setState(StateBackoff)
	c.logf("gameclient: %s; retry %d in %s", reason, attempt, delay)
	timer.Reset(delay)
}

// serve pumps one open connection. It reports whether the server asked the
// client to stop reconnecting.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) (bool, error) {
	done := make(chan struct{})
	writerDone := make(chan error, 1)
	go func() { writerDone <- c.writeLoop(conn, done) }()
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = conn.Close()
		case <-done:
		}
	}()

	stopped, readErr := c.readLoop(conn)
	close(done)
	_ = conn.Close()
	writeErr := <-writerDone
	if readErr == nil {
		readErr = writeErr
	}
	return stopped, readErr
}

func (c *Client) readLoop(conn *websocket.Conn) (bool, error) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return false, err
		}
		frame, err := DecodeFrame(payload)
		if err != nil {
			c.logf("gameclient: dropping malformed frame: %v", err)
			continue
		}
		c.deliver(frame)
		if frame.StopsReconnect() {
			return true, nil
		}
	}
}

// writeLoop flushes the outbox and sends keep-alive pings until done closes
// or a write fails. Unsent frames stay queued for the next connection.
func (c *Client) writeLoop(conn *websocket.Conn, done <-chan struct{}) error {
	var ping <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		if err := c.flush(conn); err != nil {
			_ = conn.Close()
			return err
		}
		select {
		case <-done:
			return nil
		case <-c.outWake:
		case <-ping:
			if err := writeMessage(conn, []byte(`{"type":"ping"}`)); err != nil {
				_ = conn.Close()
				return err
			}
		}
	}
}

func (c *Client) flush(conn *websocket.Conn) error {
	for {
		c.outMu.Lock()
		if len(c.outbox) == 0 {
			c.outMu.Unlock()
			return nil
		}
		frame := c.outbox[0]
		c.outMu.Unlock()

		payload, err := json.Marshal(frame)
		if err != nil {
			c.logf("gameclient: dropping unencodable %s frame: %v", frame.Type, err)
		} else if err := writeMessage(conn, payload); err != nil {
			return err
		}

		c.outMu.Lock()
		c.outbox = c.outbox[1:]
		if len(c.outbox) == 0 && c.drained != nil {
			close(c.drained)
			c.drained = nil
		}
		c.outMu.Unlock()
	}
}

func writeMessage(conn *websocket.Conn, payload []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
