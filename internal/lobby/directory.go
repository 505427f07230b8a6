package lobby

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/lobbychat/internal/metrics"
)

// Directory publishes point-in-time room listings. Besides every joined
// connection it serves watchers: discovery connections that browse rooms
// without joining one.
type Directory struct {
	registry *Registry
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu       sync.Mutex
	watchers map[string]Conn
}

// NewDirectory returns a publisher reading from registry.
func NewDirectory(registry *Registry, logger *slog.Logger, m *metrics.Metrics) *Directory {
	return &Directory{
		registry: registry,
		log:      orDiscard(logger),
		metrics:  m,
		now:      time.Now,
		watchers: make(map[string]Conn),
	}
}

// Watch subscribes a discovery connection to directory pushes.
func (d *Directory) Watch(c Conn) {
	d.mu.Lock()
	d.watchers[c.ID()] = c
	n := len(d.watchers)
	d.mu.Unlock()
	d.metrics.SetWatchers(n)
}

// Unwatch removes a discovery connection and reports whether it was one.
func (d *Directory) Unwatch(c Conn) bool {
	d.mu.Lock()
	_, ok := d.watchers[c.ID()]
	delete(d.watchers, c.ID())
	n := len(d.watchers)
	d.mu.Unlock()

	if ok {
		d.metrics.SetWatchers(n)
	}
	return ok
}

// Watchers returns the number of discovery connections.
func (d *Directory) Watchers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.watchers)
}

// Snapshot builds a rooms_list event. The listing is a copy; later
// registry changes do not show through it.
func (d *Directory) Snapshot() Event {
	return Event{
		Kind:      KindRoomsList,
		Rooms:     d.registry.Snapshot(),
		Timestamp: d.now(),
	}
}

// SendTo replies to a single connection with the current listing.
func (d *Directory) SendTo(c Conn) error {
	payload, err := json.Marshal(d.Snapshot())
	if err != nil {
		return fmt.Errorf("encoding directory: %w", err)
	}
	if err := c.Send(payload); err != nil {
		d.metrics.SendFailed()
		return err
	}
	return nil
}

// Publish pushes the current listing to every joined connection in every
// lobby and to every watcher. It returns how many accepted it.
func (d *Directory) Publish() int {
	payload, err := json.Marshal(d.Snapshot())
	if err != nil {
		d.log.Error("encoding directory", "err", err)
		return 0
	}

	targets := d.registry.Connections()
	seen := make(map[string]struct{}, len(targets))
	for _, c := range targets {
		seen[c.ID()] = struct{}{}
	}

	d.mu.Lock()
	for id, c := range d.watchers {
		if _, dup := seen[id]; !dup {
			targets = append(targets, c)
		}
	}
	d.mu.Unlock()

	delivered := deliver(d.log, d.metrics, targets, nil, payload)
	d.metrics.EventRouted(string(KindRoomsList))
	d.log.Debug("directory published", "targets", len(targets), "delivered", delivered)
	return delivered
}
