package lobby

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry maps lobby names to rooms and connections to their lobby. It is
// the single source of truth for who is where; Join and Leave are the only
// mutations and every read returns a copy.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	members map[string]string // conn ID -> lobby name
	now     func() time.Time
}

// NewRegistry returns an empty registry stamping rooms with time.Now.
func NewRegistry() *Registry {
	return newRegistryWithClock(time.Now)
}

func newRegistryWithClock(now func() time.Time) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		members: make(map[string]string),
		now:     now,
	}
}

// Join admits c to the named lobby, creating the lobby if it does not exist.
// A connection already in a lobby is left where it is and its current
// handle is returned along with ErrAlreadyJoined.
func (r *Registry) Join(c Conn, username, roomName string) (RoomHandle, error) {
	if c == nil || strings.TrimSpace(username) == "" || strings.TrimSpace(roomName) == "" {
		return RoomHandle{}, ErrInvalidHandshake
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.members[c.ID()]; ok {
		room := r.rooms[current]
		return RoomHandle{
			Name:      current,
			Username:  room.members[c.ID()].username,
			CreatedAt: room.createdAt,
		}, fmt.Errorf("%w: %s is in %q", ErrAlreadyJoined, c.ID(), current)
	}

	room, ok := r.rooms[roomName]
	created := !ok
	if created {
		room = newRoom(roomName, r.now())
		r.rooms[roomName] = room
	}
	room.add(c, username)
	r.members[c.ID()] = roomName

	return RoomHandle{
		Name:      roomName,
		Username:  username,
		CreatedAt: room.createdAt,
		Created:   created,
	}, nil
}

// Leave removes c from its lobby, deleting the lobby when it empties.
// Leaving twice is harmless: the second call reports false.
func (r *Registry) Leave(c Conn) (Departure, bool) {
	if c == nil {
		return Departure{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.members[c.ID()]
	if !ok {
		return Departure{}, false
	}
	delete(r.members, c.ID())

	room := r.rooms[name]
	m, empty := room.remove(c.ID())
	if empty {
		delete(r.rooms, name)
	}

	return Departure{
		Room:      name,
		Username:  m.username,
		Remaining: len(room.members),
		Destroyed: empty,
	}, true
}

// RoomOf returns the lobby c belongs to.
func (r *Registry) RoomOf(c Conn) (RoomHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.members[c.ID()]
	if !ok {
		return RoomHandle{}, false
	}
	room := r.rooms[name]
	return RoomHandle{
		Name:      name,
		Username:  room.members[c.ID()].username,
		CreatedAt: room.createdAt,
	}, true
}

// MembersOf returns a snapshot of the connections in the named lobby, or nil
// if the lobby does not exist.
func (r *Registry) MembersOf(roomName string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomName]
	if !ok {
		return nil
	}
	return room.conns()
}

// Connections returns every connection currently in any lobby.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conn, 0, len(r.members))
	for _, room := range r.rooms {
		out = append(out, room.conns()...)
	}
	return out
}

// Snapshot lists all active lobbies ordered by creation time, then name.
func (r *Registry) Snapshot() []RoomInfo {
	r.mu.RLock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room.info())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Counts returns the number of active lobbies and joined connections.
func (r *Registry) Counts() (lobbies, clients int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.members)
}
