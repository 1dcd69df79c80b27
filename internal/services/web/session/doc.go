// Package session signs and verifies the browser session credential.
//
// The credential is a stateless HS256 token carried in the "session" cookie.
// It embeds the upstream access token, so the BFF never stores sessions
// server-side; a credential that fails verification is treated as no session
// at all and must never be used to reach the upstream.
package session
