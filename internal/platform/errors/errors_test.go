package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := Wrap(CodeSessionExpired, "session expired", stderrors.New("exp in the past"))
	if !stderrors.Is(err, New(CodeSessionExpired, "other message")) {
		t.Fatal("expected errors.Is to match on code")
	}
	if stderrors.Is(err, New(CodeSessionInvalidSignature, "session expired")) {
		t.Fatal("expected different codes not to match")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeUpstreamUnavailable, "dial upstream", stderrors.New("connection refused"))
	if got := err.Error(); got != "dial upstream: connection refused" {
		t.Fatalf("Error() = %q", got)
	}
	if got := New(CodeUnknown, "plain").Error(); got != "plain" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestCodeOfWalksWrappedChain(t *testing.T) {
	inner := New(CodeProtocolError, "bad frame")
	wrapped := fmt.Errorf("relay: %w", inner)
	if got := CodeOf(wrapped); got != CodeProtocolError {
		t.Fatalf("CodeOf = %q, want %q", got, CodeProtocolError)
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("CodeOf = %q, want %q", got, CodeUnknown)
	}
}

func TestCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeInvalidArgument, http.StatusBadRequest},
		{CodeSessionMissing, http.StatusUnauthorized},
		{CodeSessionExpired, http.StatusUnauthorized},
		{CodeUpstreamRejected, http.StatusBadGateway},
		{CodeUpstreamUnavailable, http.StatusInternalServerError},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}
