// Package server wires HTTP handlers into a ServeMux for the lobby chat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/rs/cors"
)

// SetupRoutes configures the application routes and wraps them in CORS
// handling for the configured origins.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/ws/rooms", s.DiscoveryHandler)
	mux.HandleFunc("/rooms", s.RoomsHandler)
	mux.HandleFunc("/server-info", s.ServerInfoHandler)
	mux.Handle("/metrics", s.metrics.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	})
	return c.Handler(mux)
}
