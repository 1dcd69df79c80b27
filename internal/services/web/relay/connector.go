package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	apperrors "github.com/textadventure/web/internal/platform/errors"
	"github.com/textadventure/web/internal/platform/timeouts"
)

// ErrUpstreamUnavailable is matched (errors.Is) by every upstream dial failure:
// refused connections, TLS failures, and handshakes that did not return 101.
var ErrUpstreamUnavailable = apperrors.New(apperrors.CodeUpstreamUnavailable, "upstream game server is unavailable")

// UpstreamConnector opens the outbound half of a pairing.
type UpstreamConnector interface {
	Connect(ctx context.Context, query url.Values, accessToken string) (Conn, error)
}

// Connector dials the fixed upstream game endpoint.
type Connector struct {
	baseURL *url.URL
	dialer  *websocket.Dialer
}

// NewConnector parses the upstream WebSocket URL. http(s) schemes are
// accepted and rewritten to ws(s).
func NewConnector(rawURL string, dialTimeout time.Duration) (*Connector, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("upstream websocket url is required")
	}
	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream websocket url: %w", err)
	}
	switch baseURL.Scheme {
	case "ws", "wss":
	case "http":
		baseURL.Scheme = "ws"
	case "https":
		baseURL.Scheme = "wss"
	default:
		return nil, fmt.Errorf("upstream websocket url %q must use ws or wss", rawURL)
	}
	if baseURL.Host == "" {
		return nil, fmt.Errorf("upstream websocket url %q has no host", rawURL)
	}
	if dialTimeout <= 0 {
		dialTimeout = timeouts.UpstreamDial
	}
	return &Connector{
		baseURL: baseURL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: dialTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}, nil
}

// Target returns the URL Connect would dial for the given inbound query.
// Inbound parameters override parameters already present on the base URL.
func (c *Connector) Target(query url.Values) *url.URL {
	target := *c.baseURL
	merged := target.Query()
	for key, values := range query {
		merged[key] = append([]string(nil), values...)
	}
	target.RawQuery = merged.Encode()
	return &target
}

// Connect dials the upstream, attaching the bearer token and forwarding the
// inbound query parameters.
func (c *Connector) Connect(ctx context.Context, query url.Values, accessToken string) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))

	target := c.Target(query)
	conn, resp, err := c.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		metadata := map[string]string{"Target": redactedTarget(target)}
		if resp != nil {
			metadata["Status"] = strconv.Itoa(resp.StatusCode)
		}
		return nil, &apperrors.Error{
			Code:     apperrors.CodeUpstreamUnavailable,
			Message:  "dial upstream game server",
			Metadata: metadata,
			Cause:    err,
		}
	}
	return conn, nil
}

func redactedTarget(target *url.URL) string {
	clone := *target
	clone.RawQuery = ""
	return clone.String()
}
