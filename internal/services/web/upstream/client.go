// Package upstream calls the game API's account endpoints on behalf of the
// browser: password token exchange, registration, and guest login.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/textadventure/web/internal/platform/errors"
	"github.com/textadventure/web/internal/platform/timeouts"
)

const (
	tracerName   = "github.com/textadventure/web/internal/services/web/upstream"
	maxBodyBytes = 1 << 20
)

// Config defines the upstream API endpoint and the confidential client
// credentials attached to token requests.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
}

// Client is a thin JSON/form client for the upstream account endpoints.
type Client struct {
	baseURL      *url.URL
	clientID     string
	clientSecret string
	httpClient   *http.Client
	tracer       trace.Tracer
}

// StatusError carries a non-2xx upstream response so handlers can relay the
// status and body verbatim.
type StatusError struct {
	Call        string
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.Call, e.StatusCode)
}

// NewClient validates the base URL and builds a client.
func NewClient(config Config) (*Client, error) {
	raw := strings.TrimSpace(config.BaseURL)
	if raw == "" {
		return nil, errors.New("upstream base url is required")
	}
	baseURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("upstream base url %q must be absolute", raw)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeouts.UpstreamRequest}
	}
	return &Client{
		baseURL:      baseURL,
		clientID:     config.ClientID,
		clientSecret: config.ClientSecret,
		httpClient:   httpClient,
		tracer:       otel.Tracer(tracerName),
	}, nil
}

// RequestToken exchanges user credentials for an upstream access token.
func (c *Client) RequestToken(ctx context.Context, username, password string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("token"), strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp TokenResponse
	if err := c.do(ctx, "token", req, &resp); err != nil {
		return TokenResponse{}, err
	}
	if err := resp.validate(); err != nil {
		return TokenResponse{}, err
	}
	return resp, nil
}

// Register creates an upstream account.
func (c *Client) Register(ctx context.Context, email, password string) error {
	req, err := c.newJSONRequest(ctx, "register", registerRequest{Email: email, Password: password})
	if err != nil {
		return err
	}
	return c.do(ctx, "register", req, nil)
}

// GuestLogin creates or renews a guest account. Empty identifiers request a
// fresh guest.
func (c *Client) GuestLogin(ctx context.Context, guest GuestRequest) (GuestResponse, error) {
	req, err := c.newJSONRequest(ctx, "guest", guest)
	if err != nil {
		return GuestResponse{}, err
	}
	var resp GuestResponse
	if err := c.do(ctx, "guest", req, &resp); err != nil {
		return GuestResponse{}, err
	}
	if err := resp.validate(); err != nil {
		return GuestResponse{}, err
	}
	return resp, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.baseURL.String(), "/") + "/" + path
}

func (c *Client) newJSONRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(ctx context.Context, call string, req *http.Request, out any) error {
	ctx, span := c.tracer.Start(ctx, "upstream."+call, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "upstream unavailable")
		return apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "call upstream "+call, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "read upstream body")
		return apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "read upstream "+call+" response", err)
	}
	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.Int64("upstream.duration_ms", time.Since(start).Milliseconds()),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		span.SetStatus(otelcodes.Error, "upstream rejected")
		return &StatusError{
			Call:        call,
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		span.RecordError(err)
		return apperrors.Wrap(apperrors.CodeUpstreamRejected, "decode upstream "+call+" response", err)
	}
	return nil
}
