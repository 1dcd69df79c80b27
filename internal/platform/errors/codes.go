// Package errors provides structured error handling for the web BFF.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeInvalidArgument marks a malformed request body or parameter.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Authentication errors
	CodeAuthenticationFailed    Code = "AUTHENTICATION_FAILED"
	CodeSessionMissing          Code = "SESSION_MISSING"
	CodeSessionInvalidSignature Code = "SESSION_INVALID_SIGNATURE"
	CodeSessionExpired          Code = "SESSION_EXPIRED"

	// Upstream errors
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamRejected    Code = "UPSTREAM_REJECTED"

	// Game channel errors
	CodeProtocolError Code = "PROTOCOL_ERROR"
)

// HTTPStatus maps a code to the status returned to browsers when the error is
// produced by the BFF itself rather than relayed from the upstream.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument, CodeProtocolError:
		return http.StatusBadRequest
	case CodeAuthenticationFailed, CodeSessionMissing, CodeSessionInvalidSignature, CodeSessionExpired:
		return http.StatusUnauthorized
	case CodeUpstreamRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
