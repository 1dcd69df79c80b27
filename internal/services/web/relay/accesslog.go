package relay

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// EventKind classifies access-log events.
type EventKind string

const (
	EventConnect         EventKind = "connect"
	EventUpstreamConnect EventKind = "upstream-connect"
	EventError           EventKind = "error"
	EventDisconnect      EventKind = "disconnect"
)

// Event is one access-log record for a pairing.
type Event struct {
	Kind       EventKind
	Time       time.Time
	PairingID  string
	ClientAddr string
	Path       string
	UserID     string
	Detail     string
	// Request is a Common Log Format record written verbatim on its own line.
	Request string
}

// DefaultAccessLogCapacity bounds the number of queued, unwritten events.
const DefaultAccessLogCapacity = 1024

// AccessLogger writes pairing events from a single background goroutine.
// Log never blocks: when the queue is full the event is dropped and counted.
type AccessLogger struct {
	out     *log.Logger
	events  chan Event
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewAccessLogger starts the writer goroutine. A nil writer logs to the
// standard logger's output.
func NewAccessLogger(w io.Writer, capacity int) *AccessLogger {
	if w == nil {
		w = log.Writer()
	}
	if capacity <= 0 {
		capacity = DefaultAccessLogCapacity
	}
	l := &AccessLogger{
		out:    log.New(w, "", 0),
		events: make(chan Event, capacity),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Log enqueues an event.
func (l *AccessLogger) Log(event Event) {
	if l == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.dropped.Add(1)
		return
	}
	select {
	case l.events <- event:
	default:
		l.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded.
func (l *AccessLogger) Dropped() int64 {
	if l == nil {
		return 0
	}
	return l.dropped.Load()
}

// Close flushes queued events and stops the writer.
func (l *AccessLogger) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.events)
	l.mu.Unlock()
	<-l.done
	if dropped := l.dropped.Load(); dropped > 0 {
		l.out.Printf("relay access log dropped=%d", dropped)
	}
}

func (l *AccessLogger) run() {
	defer close(l.done)
	for event := range l.events {
		if event.Request != "" {
			l.out.Print(event.Request)
		}
		l.out.Print(formatEvent(event))
	}
}

func formatEvent(event Event) string {
	line := fmt.Sprintf("%s relay event=%s pairing=%s client=%s path=%q",
		event.Time.UTC().Format(time.RFC3339), event.Kind, event.PairingID, event.ClientAddr, event.Path)
	if event.UserID != "" {
		line += fmt.Sprintf(" user=%q", event.UserID)
	}
	if event.Detail != "" {
		line += fmt.Sprintf(" detail=%q", event.Detail)
	}
	return line
}

// commonLogLine renders the upgrade request in Common Log Format, with the
// WS pseudo-method and the socket origin in the referrer slot.
func commonLogLine(r *http.Request, clientAddr string, at time.Time) string {
	scheme := "ws"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "wss"
	}
	return fmt.Sprintf(`%s - - [%s] "WS %s HTTP/%d.%d" %d - "%s://%s" "%s"`,
		clientAddr,
		at.Format("02/Jan/2006:15:04:05 -0700"),
		r.URL.Path,
		r.ProtoMajor, r.ProtoMinor,
		http.StatusSwitchingProtocols,
		scheme, r.Host,
		r.UserAgent(),
	)
}
