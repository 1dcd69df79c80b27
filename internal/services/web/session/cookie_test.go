package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSetCookieFromRequestRoundTrip(t *testing.T) {
	codec := newTestCodec(t, func() time.Time { return fixedNow })
	token, signed, err := codec.Sign(Claims{UserID: "7", Email: "p@q.com", AccessToken: "tok"})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	rr := httptest.NewRecorder()
	SetCookie(rr, token, signed.ExpiresAt, true)
	cookie, err := http.ParseSetCookie(rr.Header().Get("Set-Cookie"))
	if err != nil {
		t.Fatalf("ParseSetCookie() error = %v", err)
	}
	if cookie.Name != CookieName || !cookie.HttpOnly || !cookie.Secure {
		t.Fatalf("unexpected cookie attributes: %+v", cookie)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: cookie.Value})
	got, err := FromRequest(req, codec)
	if err != nil {
		t.Fatalf("FromRequest() error = %v", err)
	}
	if got.AccessToken != "tok" || got.UserID != "7" {
		t.Fatalf("FromRequest() = %+v", got)
	}
}

func TestFromRequestWithoutCookie(t *testing.T) {
	codec := newTestCodec(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := FromRequest(req, codec); !errors.Is(err, ErrMissing) {
		t.Fatalf("FromRequest() error = %v, want ErrMissing", err)
	}
}

func TestClearCookieExpiresSession(t *testing.T) {
	rr := httptest.NewRecorder()
	ClearCookie(rr, false)
	cookie, err := http.ParseSetCookie(rr.Header().Get("Set-Cookie"))
	if err != nil {
		t.Fatalf("ParseSetCookie() error = %v", err)
	}
	if cookie.Name != CookieName || cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Fatalf("expected cleared session cookie, got %+v", cookie)
	}
}

func TestClaimsContextRoundTrip(t *testing.T) {
	if _, ok := ClaimsFromContext(context.Background()); ok {
		t.Fatal("expected no claims in empty context")
	}
	ctx := WithClaims(context.Background(), Claims{UserID: "1"})
	got, ok := ClaimsFromContext(ctx)
	if !ok || got.UserID != "1" {
		t.Fatalf("ClaimsFromContext() = %+v, %v", got, ok)
	}
}
