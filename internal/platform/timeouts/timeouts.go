// Package timeouts defines shared timeout constants used across the web and
// play processes.
package timeouts

import "time"

// UpstreamDial caps the WebSocket handshake with the upstream game server.
const UpstreamDial = 10 * time.Second

// UpstreamRequest caps a single REST call to the upstream API made on behalf
// of a login, register, or guest request.
const UpstreamRequest = 10 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
