package app

import (
	"errors"
	"log"
	"net/http"

	"github.com/tomasen/realip"

	"github.com/textadventure/web/internal/platform/id"
	"github.com/textadventure/web/internal/platform/requestctx"
	"github.com/textadventure/web/internal/services/web/session"
)

// requestIDHeader echoes the per-request id to clients.
const requestIDHeader = "X-Request-Id"

// withSession verifies the session cookie once per request and stores the
// outcome in the request context. Requests without a valid session continue
// unauthenticated; each route decides what that means.
func withSession(codec *session.Codec, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		clientAddr := realip.FromRequest(r)
		ctx = requestctx.WithClientAddr(ctx, clientAddr)

		if requestID, err := id.NewID(); err == nil {
			ctx = requestctx.WithRequestID(ctx, requestID)
			w.Header().Set(requestIDHeader, requestID)
		}

		claims, err := session.FromRequest(r, codec)
		switch {
		case err == nil:
			ctx = session.WithClaims(ctx, claims)
			ctx = requestctx.WithUserID(ctx, claims.UserID)
		case errors.Is(err, session.ErrInvalidSignature):
			log.Printf("session rejected client=%q path=%q: %v", clientAddr, r.URL.Path, err)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
