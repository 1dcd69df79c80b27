// Package requestctx carries request-scoped identity and origin values that
// several handlers log or forward.
package requestctx

import "context"

type (
	userIDContextKey     struct{}
	clientAddrContextKey struct{}
	requestIDContextKey  struct{}
)

// WithUserID stores the session user identifier in context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext returns the session user identifier stored in context.
func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, userIDContextKey{})
}

// WithClientAddr stores the resolved browser address (after proxy headers).
func WithClientAddr(ctx context.Context, addr string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clientAddrContextKey{}, addr)
}

// ClientAddrFromContext returns the resolved browser address.
func ClientAddrFromContext(ctx context.Context) string {
	return stringValue(ctx, clientAddrContextKey{})
}

// WithRequestID stores the per-request identifier used to tag log lines.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext returns the per-request identifier.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDContextKey{})
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
