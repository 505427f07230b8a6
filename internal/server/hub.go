// Package server coordinates client registration, inbound event dispatch,
// and connection cleanup for the lobby engine via the Hub type.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/lobbychat/internal/lobby"
)

// ErrHubClosed is returned when registering with a hub that has shut down.
var ErrHubClosed = errors.New("server: hub is shut down")

type inboundEvent struct {
	client  *Client
	payload []byte
}

// Hub serializes every connection lifecycle change and inbound event
// through a single loop that drives the lobby engine, and owns the pump
// goroutines of every admitted client.
type Hub struct {
	engine        *lobby.Engine
	log           *slog.Logger
	statsInterval time.Duration

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub feeding engine. The returned Hub is ready to Run.
func NewHub(engine *lobby.Engine, logger *slog.Logger, statsInterval time.Duration) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if statsInterval <= 0 {
		statsInterval = defaultConfig().StatsInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		engine:        engine,
		log:           logger,
		statsInterval: statsInterval,
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		inbound:       make(chan inboundEvent),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
}

// Register hands a freshly upgraded client to the hub loop.
func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case h.inbound <- inboundEvent{client: client, payload: payload}:
	case <-h.ctx.Done():
	}
}

// ClientCount returns the number of clients whose pumps are running.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's main event loop. This method should be called in a
// separate goroutine; it returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	ticker := time.NewTicker(h.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration; skipping")
				continue
			}
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case ev := <-h.inbound:
			_ = h.engine.OnEventReceived(ev.client, ev.payload)

		case <-ticker.C:
			h.logStats()
		}
	}
}

// handleRegister admits the client to the engine and starts its pumps. A
// rejected handshake is closed with a policy violation and never pumped.
func (h *Hub) handleRegister(client *Client) {
	if client.handshake.Discovery {
		h.engine.OnDiscoveryConnection(client)
	} else if _, err := h.engine.OnConnectionEstablished(client, client.Username(), client.Lobby()); err != nil {
		h.log.Info("rejecting connection", "conn", client.id, "addr", client.addr, "err", err)
		client.closeSend()
		go func() {
			_ = client.Close(lobby.ClosePolicyViolation, "username and lobby are required")
		}()
		return
	}

	client.markOpen()
	h.mutex.Lock()
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	h.log.Debug("client registered", "conn", client.id, "addr", client.addr, "total", clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if !ok {
		return
	}

	h.engine.OnConnectionClosed(client)
	client.closeSend()
	h.log.Debug("client unregistered", "conn", client.id, "addr", client.addr, "total", clientCount)
}

func (h *Hub) logStats() {
	stats := h.engine.Stats()
	if stats.Clients == 0 && stats.Watchers == 0 {
		return
	}
	h.log.Info("stats", "lobbies", stats.Lobbies, "clients", stats.Clients, "watchers", stats.Watchers)
}

// shutdownClients closes every live connection with a going-away status
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if err := client.Close(lobby.CloseGoingAway, "server shutting down"); err != nil {
			h.log.Debug("closing client connection", "conn", client.id, "err", err)
		}
		client.closeSend()
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when ctx is done.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()

	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-ctx.Done():
		h.log.Warn("hub shutdown deadline reached; some goroutines may still be running")
		return ctx.Err()
	}
}
