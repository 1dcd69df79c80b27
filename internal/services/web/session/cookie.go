package session

import (
	"context"
	"net/http"
	"time"
)

// CookieName is the browser cookie carrying the session credential.
const CookieName = "session"

// SetCookie writes the session cookie, expiring with the credential.
func SetCookie(w http.ResponseWriter, token string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest reads and verifies the session cookie.
func FromRequest(r *http.Request, codec *Codec) (Claims, error) {
	if r == nil || codec == nil {
		return Claims{}, ErrMissing
	}
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Claims{}, ErrMissing
	}
	return codec.Verify(cookie.Value)
}

type claimsContextKey struct{}

// WithClaims stores verified claims in context for downstream handlers.
func WithClaims(ctx context.Context, claims Claims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the verified claims stored by WithClaims.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	if ctx == nil {
		return Claims{}, false
	}
	claims, ok := ctx.Value(claimsContextKey{}).(Claims)
	return claims, ok
}
