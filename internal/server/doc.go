// Package server implements the HTTP and WebSocket transport for the lobby
// chat relay.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, and HTTP handlers. Room membership and
// event fan-out live in the lobby package; this package only moves frames
// between sockets and the engine.
package server
