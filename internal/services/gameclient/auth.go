package gameclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/publicsuffix"

	apperrors "github.com/textadventure/web/internal/platform/errors"
	"github.com/textadventure/web/internal/platform/timeouts"
	"github.com/textadventure/web/internal/services/web/session"
	"github.com/textadventure/web/internal/services/web/shell"
)

const maxResponseBytes = 1 << 20

// Session is an authenticated BFF session held in a cookie jar.
type Session struct {
	BaseURL  *url.URL
	Jar      http.CookieJar
	Identity session.Identity
	// GuestID and GuestSecret are set for guest sessions and let the same
	// guest log in again later.
	GuestID     string
	GuestSecret string
}

// Login authenticates with username and password.
func Login(ctx context.Context, httpClient *http.Client, baseURL, username, password string) (*Session, error) {
	return authenticate(ctx, httpClient, baseURL, "login", map[string]string{
		"username": username,
		"password": password,
	})
}

// Guest starts a guest session. Empty identifiers create a new guest.
func Guest(ctx context.Context, httpClient *http.Client, baseURL, guestID, guestSecret string) (*Session, error) {
	payload := map[string]string{}
	if guestID != "" || guestSecret != "" {
		payload["guest_id"] = guestID
		payload["guest_secret"] = guestSecret
	}
	return authenticate(ctx, httpClient, baseURL, "guest", payload)
}

func authenticate(ctx context.Context, httpClient *http.Client, rawBaseURL, path string, payload any) (*Session, error) {
	baseURL, err := url.Parse(strings.TrimSpace(rawBaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", rawBaseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	client := &http.Client{Timeout: timeouts.UpstreamRequest}
	if httpClient != nil {
		copied := *httpClient
		client = &copied
	}
	client.Jar = jar

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL.JoinPath(path).String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "post "+path, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "read "+path+" response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(path, resp.StatusCode, respBody)
	}

	var guest struct {
		GuestID     string `json:"guest_id"`
		GuestSecret string `json:"guest_secret"`
	}
	if err := json.Unmarshal(respBody, &guest); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeProtocolError, "decode "+path+" response", err)
	}

	identity, err := fetchIdentity(ctx, client, baseURL)
	if err != nil {
		return nil, err
	}
	return &Session{
		BaseURL:     baseURL,
		Jar:         jar,
		Identity:    identity,
		GuestID:     guest.GuestID,
		GuestSecret: guest.GuestSecret,
	}, nil
}

func responseError(path string, status int, body []byte) error {
	code := apperrors.CodeUpstreamRejected
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		code = apperrors.CodeAuthenticationFailed
	}
	return apperrors.WithMetadata(code, fmt.Sprintf("%s failed: %s", path, strings.TrimSpace(string(body))), map[string]string{
		"Status": strconv.Itoa(status),
	})
}

// fetchIdentity loads the shell page and reads its identity bootstrap.
func fetchIdentity(ctx context.Context, client *http.Client, baseURL *url.URL) (session.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.JoinPath("/").String(), nil)
	if err != nil {
		return session.Identity{}, fmt.Errorf("build shell request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return session.Identity{}, apperrors.Wrap(apperrors.CodeUpstreamUnavailable, "get shell", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return session.Identity{}, responseError("shell", resp.StatusCode, nil)
	}
	identity, ok, err := ReadBootstrap(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return session.Identity{}, err
	}
	if !ok {
		return session.Identity{}, apperrors.New(apperrors.CodeAuthenticationFailed, "shell carries no identity; session cookie was not accepted")
	}
	return identity, nil
}

// ReadBootstrap finds the identity annotation in a shell document. It
// reports false when the page has none.
func ReadBootstrap(r io.Reader) (session.Identity, bool, error) {
	tokenizer := html.NewTokenizer(r)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != nil && err != io.EOF {
				return session.Identity{}, false, fmt.Errorf("parse shell: %w", err)
			}
			return session.Identity{}, false, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.DataAtom == atom.Body {
				return session.Identity{}, false, nil
			}
			if token.DataAtom != atom.Meta || attr(token, "name") != "user" {
				continue
			}
			identity, err := shell.DecodeBootstrap(attr(token, "content"))
			if err != nil {
				return session.Identity{}, false, apperrors.Wrap(apperrors.CodeProtocolError, "decode identity bootstrap", err)
			}
			return identity, true, nil
		}
	}
}

func attr(token html.Token, key string) string {
	for _, a := range token.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// PlayURL returns the game socket URL, optionally joining a game session.
func (s *Session) PlayURL(gameSession string) string {
	target := s.BaseURL.JoinPath("play")
	switch target.Scheme {
	case "https":
		target.Scheme = "wss"
	default:
		target.Scheme = "ws"
	}
	if gameSession != "" {
		target.RawQuery = url.Values{"session": {gameSession}}.Encode()
	}
	return target.String()
}

// Dialer returns a WebSocket dialer that presents the session cookie.
func (s *Session) Dialer() *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeouts.UpstreamDial,
		Jar:              s.Jar,
	}
}
