package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	apperrors "github.com/textadventure/web/internal/platform/errors"
)

func TestNewConnectorNormalizesScheme(t *testing.T) {
	tests := map[string]string{
		"ws://game:8081/play":   "ws://game:8081/play",
		"http://game:8081/play": "ws://game:8081/play",
		"https://game/play":     "wss://game/play",
	}
	for raw, want := range tests {
		c, err := NewConnector(raw, 0)
		if err != nil {
			t.Fatalf("NewConnector(%q): %v", raw, err)
		}
		if got := c.Target(nil).String(); got != want {
			t.Fatalf("Target(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNewConnectorRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://game/play", "ws:///play", "://bad"} {
		if _, err := NewConnector(raw, 0); err == nil {
			t.Fatalf("NewConnector(%q) expected error", raw)
		}
	}
}

func TestConnectorTargetMergesQuery(t *testing.T) {
	c, err := NewConnector("ws://game/play?version=2", 0)
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}
	target := c.Target(url.Values{"session": {"abc"}, "version": {"3"}})
	query := target.Query()
	if query.Get("session") != "abc" || query.Get("version") != "3" {
		t.Fatalf("query = %v", query)
	}
}

func TestConnectMapsHandshakeRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	c, err := NewConnector("ws"+strings.TrimPrefix(server.URL, "http")+"/play", time.Second)
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}
	_, err = c.Connect(context.Background(), nil, "token")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Metadata["Status"] != "403" {
		t.Fatalf("metadata = %+v", appErr)
	}
}

func TestConnectMapsRefusedConnection(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	target := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	c, err := NewConnector(target, time.Second)
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}
	if _, err := c.Connect(context.Background(), nil, "token"); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
}
