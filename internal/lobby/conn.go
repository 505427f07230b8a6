// Package lobby implements the in-memory room registry and message routing
// engine for the chat relay: which connection is in which lobby, and which
// connections receive each chat, typing, presence, and directory event.
//
// The package never touches the network. Transports hand it values that
// satisfy Conn and it calls back into them to deliver serialized events.
package lobby

import "errors"

// Close codes used when the engine asks a transport to drop a connection.
// They mirror the WebSocket status codes the transport layer speaks.
const (
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
	CloseGoingAway       = 1001
)

var (
	// ErrInvalidHandshake is returned when a connection is missing its
	// username or lobby name. The connection must not be admitted.
	ErrInvalidHandshake = errors.New("lobby: username and lobby are required")

	// ErrMalformedEvent marks inbound payloads that cannot be parsed.
	ErrMalformedEvent = errors.New("lobby: malformed event")

	// ErrSendFailure is returned by Conn.Send when the target cannot accept
	// the frame (closed transport or full buffer).
	ErrSendFailure = errors.New("lobby: send failed")

	// ErrNotRegistered is returned for operations on a connection that is
	// not currently a member of any lobby.
	ErrNotRegistered = errors.New("lobby: connection not registered")

	// ErrAlreadyJoined is returned when a connection that is already in a
	// lobby tries to join again.
	ErrAlreadyJoined = errors.New("lobby: connection already joined")
)

// Conn is the engine's non-owning view of one client connection. The
// transport owns the underlying socket and its close sequence.
//
// Send must never block: a transport that cannot queue the frame returns an
// error wrapping ErrSendFailure. Close may be called more than once.
type Conn interface {
	ID() string
	Send(payload []byte) error
	Close(code int, reason string) error
}
