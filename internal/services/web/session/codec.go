package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/textadventure/web/internal/platform/errors"
)

// DefaultTTL is the credential lifetime used when the codec is built without one.
const DefaultTTL = 24 * time.Hour

const issuer = "adventure-web"

var (
	// ErrMissing reports a request that carries no session credential.
	ErrMissing = apperrors.New(apperrors.CodeSessionMissing, "session credential is missing")
	// ErrInvalidSignature reports a tampered, malformed, or foreign credential.
	ErrInvalidSignature = apperrors.New(apperrors.CodeSessionInvalidSignature, "session signature is invalid")
	// ErrExpired reports a correctly signed credential past its expiry.
	ErrExpired = apperrors.New(apperrors.CodeSessionExpired, "session is expired")
)

// Claims is the decoded session credential.
type Claims struct {
	UserID      string
	Email       string
	IsAdmin     bool
	IsGuest     bool
	AccessToken string
	ExpiresAt   time.Time
}

// Identity is the non-sensitive view of a session handed to browsers.
type Identity struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
	IsGuest bool   `json:"is_guest"`
}

// Identity strips the upstream access token from the claims.
func (c Claims) Identity() Identity {
	return Identity{
		ID:      c.UserID,
		Email:   c.Email,
		IsAdmin: c.IsAdmin,
		IsGuest: c.IsGuest,
	}
}

// tokenClaims is the internal claims type used for JWT encoding.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email       string `json:"email,omitempty"`
	IsAdmin     bool   `json:"is_admin,omitempty"`
	IsGuest     bool   `json:"is_guest,omitempty"`
	AccessToken string `json:"access_token"`
}

// Codec signs and verifies session credentials with a shared secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec builds a codec. A zero ttl selects DefaultTTL and a nil clock
// selects time.Now.
func NewCodec(secret string, ttl time.Duration, now func() time.Time) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    now,
	}, nil
}

// TTL returns the lifetime applied to credentials signed without an expiry.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Sign encodes claims into an opaque credential. A zero ExpiresAt is replaced
// with now+TTL; the effective claims are returned alongside the token.
func (c *Codec) Sign(claims Claims) (string, Claims, error) {
	claims.UserID = strings.TrimSpace(claims.UserID)
	if claims.UserID == "" {
		return "", Claims{}, errors.New("session user id is required")
	}
	if strings.TrimSpace(claims.AccessToken) == "" {
		return "", Claims{}, errors.New("session access token is required")
	}

	now := c.now().UTC()
	if claims.ExpiresAt.IsZero() {
		claims.ExpiresAt = now.Add(c.ttl)
	}
	claims.ExpiresAt = claims.ExpiresAt.UTC().Truncate(time.Second)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   claims.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
		Email:       claims.Email,
		IsAdmin:     claims.IsAdmin,
		IsGuest:     claims.IsGuest,
		AccessToken: claims.AccessToken,
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", Claims{}, apperrors.Wrap(apperrors.CodeUnknown, "sign session", err)
	}
	return signed, claims, nil
}

// Verify decodes a credential. It fails with ErrMissing, ErrInvalidSignature,
// or ErrExpired (matched with errors.Is); it never panics on hostile input.
func (c *Codec) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrMissing
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if strings.TrimSpace(parsed.Subject) == "" || strings.TrimSpace(parsed.AccessToken) == "" {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeSessionInvalidSignature,
			"session is missing required claims",
			map[string]string{"Field": "sub/access_token"},
		)
	}

	return Claims{
		UserID:      parsed.Subject,
		Email:       parsed.Email,
		IsAdmin:     parsed.IsAdmin,
		IsGuest:     parsed.IsGuest,
		AccessToken: parsed.AccessToken,
		ExpiresAt:   parsed.ExpiresAt.Time.UTC(),
	}, nil
}

// mapJWTError translates jwt library errors to session errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return apperrors.Wrap(apperrors.CodeSessionExpired, "session is expired", err)
	}
	return apperrors.Wrap(apperrors.CodeSessionInvalidSignature, "session signature is invalid", err)
}
