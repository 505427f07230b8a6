package server

import (
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/lobbychat/internal/lobby"
	"github.com/Tyrowin/lobbychat/internal/metrics"
)

// Server bundles the lobby engine with its WebSocket transport and HTTP
// surface.
type Server struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	engine   *lobby.Engine
	hub      *Hub
	upgrader websocket.Upgrader
}

// New builds a server from cfg. A nil cfg uses defaults; nil logger and
// metrics are replaced with no-op versions.
func New(cfg *Config, logger *slog.Logger, m *metrics.Metrics) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if m == nil {
		m = metrics.New()
	}

	sanitized := sanitizeConfig(*cfg)
	engine := lobby.NewEngine(logger, m)

	return &Server{
		cfg:      sanitized,
		log:      logger,
		metrics:  m,
		engine:   engine,
		hub:      NewHub(engine, logger, sanitized.StatsInterval),
		upgrader: newUpgrader(newOriginPolicy(sanitized.AllowedOrigins, logger)),
	}
}

// StartHub starts the hub loop in a separate goroutine. Call it before
// serving HTTP.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.log.Info("hub started")
}

// Hub returns the server's hub for shutdown coordination.
func (s *Server) Hub() *Hub { return s.hub }

// Engine returns the lobby engine.
func (s *Server) Engine() *lobby.Engine { return s.engine }

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config { return s.cfg }
