// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the read-only directory endpoints.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/lobbychat/internal/lobby"
)

// WebSocketHandler upgrades a chat connection and hands it to the hub, which
// admits it to the lobby named in the handshake. Connections without a
// username or lobby are closed with a policy violation once upgraded.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	s.serveWebSocket(w, r, ParseHandshake(r))
}

// DiscoveryHandler upgrades a connection that only browses the directory. It
// may send get_rooms and receives every directory update, but never joins.
func (s *Server) DiscoveryHandler(w http.ResponseWriter, r *http.Request) {
	s.serveWebSocket(w, r, Handshake{Discovery: true})
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request, hs Handshake) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "err", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, hs, s.cfg, s.log)
	if err := s.hub.Register(client); err != nil {
		s.log.Warn("hub unavailable; refusing connection", "addr", r.RemoteAddr, "err", err)
		_ = client.Close(lobby.CloseInternalError, "server unavailable")
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Lobby chat server is running!")
}

// RoomsHandler returns the current directory as a rooms_list document.
func (s *Server) RoomsHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.engine.Directory())
}

type serverInfo struct {
	ActiveLobbies int    `json:"activeLobbies"`
	TotalClients  int    `json:"totalClients"`
	Timestamp     string `json:"timestamp"`
}

// ServerInfoHandler reports occupancy counters.
func (s *Server) ServerInfoHandler(w http.ResponseWriter, _ *http.Request) {
	stats := s.engine.Stats()
	s.writeJSON(w, serverInfo{
		ActiveLobbies: stats.Lobbies,
		TotalClients:  stats.Clients,
		Timestamp:     time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.log.Error("encoding response", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		s.log.Debug("writing response", "err", err)
	}
}

func newUpgrader(origins *originPolicy) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.checkOrigin,
	}
}
