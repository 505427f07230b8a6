package lobby

import (
	"errors"
	"log/slog"
	"time"

	"github.com/Tyrowin/lobbychat/internal/metrics"
)

// Stats summarizes current occupancy.
type Stats struct {
	Lobbies  int
	Clients  int
	Watchers int
}

// Engine wires the registry, router, presence, and directory together and
// exposes the callbacks a transport drives.
type Engine struct {
	registry  *Registry
	router    *Router
	presence  *Presence
	directory *Directory
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// NewEngine returns an engine with an empty registry. Both arguments may
// be nil.
func NewEngine(logger *slog.Logger, m *metrics.Metrics) *Engine {
	return newEngine(logger, m, time.Now)
}

func newEngine(logger *slog.Logger, m *metrics.Metrics, now func() time.Time) *Engine {
	logger = orDiscard(logger)
	registry := newRegistryWithClock(now)
	directory := NewDirectory(registry, logger, m)
	directory.now = now
	router := NewRouter(registry, directory, logger, m)
	router.now = now

	return &Engine{
		registry:  registry,
		router:    router,
		presence:  NewPresence(router),
		directory: directory,
		log:       logger,
		metrics:   m,
	}
}

// Registry exposes the read side of the registry.
func (e *Engine) Registry() *Registry { return e.registry }

// OnConnectionEstablished admits c to roomName as username, then announces
// the arrival to the lobby and republishes the directory. A handshake
// error means c was not admitted and the caller must close it.
func (e *Engine) OnConnectionEstablished(c Conn, username, roomName string) (RoomHandle, error) {
	h, err := e.registry.Join(c, username, roomName)
	switch {
	case errors.Is(err, ErrInvalidHandshake):
		e.metrics.HandshakeRejected()
		e.log.Warn("rejecting handshake", "user", username, "lobby", roomName)
		return RoomHandle{}, err
	case errors.Is(err, ErrAlreadyJoined):
		e.log.Debug("ignoring duplicate join", "conn", c.ID(), "lobby", h.Name)
		return h, err
	case err != nil:
		return RoomHandle{}, err
	}

	if h.Created {
		e.log.Info("lobby created", "lobby", h.Name)
	}
	e.log.Info("user joined", "conn", c.ID(), "user", h.Username, "lobby", h.Name)
	e.recordOccupancy()

	e.presence.Joined(c, h)
	e.directory.Publish()
	return h, nil
}

// OnDiscoveryConnection registers c as a directory watcher.
func (e *Engine) OnDiscoveryConnection(c Conn) {
	e.directory.Watch(c)
	e.log.Debug("directory watcher connected", "conn", c.ID())
}

// OnEventReceived routes one raw frame from c.
func (e *Engine) OnEventReceived(c Conn, raw []byte) error {
	return e.router.Route(c, raw)
}

// OnConnectionClosed detaches c. Calling it again for the same connection
// does nothing.
func (e *Engine) OnConnectionClosed(c Conn) {
	if e.directory.Unwatch(c) {
		e.log.Debug("directory watcher disconnected", "conn", c.ID())
	}

	d, ok := e.registry.Leave(c)
	if !ok {
		return
	}

	e.log.Info("user left", "conn", c.ID(), "user", d.Username, "lobby", d.Room, "remaining", d.Remaining)
	if d.Destroyed {
		e.log.Info("lobby removed", "lobby", d.Room)
	}
	e.recordOccupancy()

	e.presence.Left(d)
	e.directory.Publish()
}

// Directory returns the current listing for non-joining discovery.
func (e *Engine) Directory() Event {
	return e.directory.Snapshot()
}

// Stats reports current occupancy.
func (e *Engine) Stats() Stats {
	lobbies, clients := e.registry.Counts()
	return Stats{Lobbies: lobbies, Clients: clients, Watchers: e.directory.Watchers()}
}

func (e *Engine) recordOccupancy() {
	lobbies, clients := e.registry.Counts()
	e.metrics.SetOccupancy(lobbies, clients)
}
