// Package relay pairs a browser game socket with an upstream game-server
// socket and forwards frames between them.
//
// Each /play connection owns exactly one pairing. The pairing verifies the
// session credential, dials the upstream with the session's bearer token,
// then pumps frames verbatim in both directions until either end goes away,
// at which point the other end is closed too. Pairings share no state with
// each other; the only process-wide piece is the access logger, which never
// blocks a pump.
package relay
