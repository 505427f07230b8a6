// Package server defines the handshake, connection state, and utility
// helpers shared by client and hub logic.
package server

import (
	"net/http"
	"strings"
)

// Handshake carries the connection parameters supplied in the upgrade URL.
type Handshake struct {
	Username string
	Lobby    string
	// Discovery connections browse the directory without joining a lobby.
	Discovery bool
}

// ParseHandshake reads username and lobby from the query string. "room" is
// accepted as an alias for "lobby". Validation is left to the engine.
func ParseHandshake(r *http.Request) Handshake {
	q := r.URL.Query()
	lobbyName := q.Get("lobby")
	if lobbyName == "" {
		lobbyName = q.Get("room")
	}
	return Handshake{
		Username: q.Get("username"),
		Lobby:    lobbyName,
	}
}

// ConnState is the liveness of a client connection.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
