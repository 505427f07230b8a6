package lobby

import (
	"sort"
	"time"
)

// RoomState is the lifecycle state of a Room record.
type RoomState int

const (
	// RoomActive rooms have at least one member.
	RoomActive RoomState = iota
	// RoomDestroyed rooms have been removed from the registry. A later join
	// with the same name creates a new record.
	RoomDestroyed
)

func (s RoomState) String() string {
	switch s {
	case RoomActive:
		return "active"
	case RoomDestroyed:
		return "destroyed"
	default:
		return "invalid"
	}
}

type member struct {
	conn     Conn
	username string
}

// Room is the unit of broadcast isolation. Its fields are guarded by the
// owning Registry's lock; nothing outside the registry mutates a Room.
type Room struct {
	name      string
	createdAt time.Time
	state     RoomState
	members   map[string]member
}

func newRoom(name string, createdAt time.Time) *Room {
	return &Room{
		name:      name,
		createdAt: createdAt,
		state:     RoomActive,
		members:   make(map[string]member),
	}
}

func (r *Room) add(c Conn, username string) {
	r.members[c.ID()] = member{conn: c, username: username}
}

// remove drops the member and reports whether the room just emptied, in
// which case it transitions to RoomDestroyed.
func (r *Room) remove(id string) (member, bool) {
	m := r.members[id]
	delete(r.members, id)
	if len(r.members) == 0 {
		r.state = RoomDestroyed
		return m, true
	}
	return m, false
}

func (r *Room) conns() []Conn {
	out := make([]Conn, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.conn)
	}
	return out
}

func (r *Room) info() RoomInfo {
	users := make([]string, 0, len(r.members))
	for _, m := range r.members {
		users = append(users, m.username)
	}
	sort.Strings(users)

	return RoomInfo{
		Name:      r.name,
		Users:     users,
		UserCount: len(users),
		CreatedAt: r.createdAt,
	}
}

// RoomHandle identifies the lobby a connection was admitted to.
type RoomHandle struct {
	Name      string
	Username  string
	CreatedAt time.Time
	// Created is true when the join brought the room into existence.
	Created bool
}

// Departure describes the outcome of a leave.
type Departure struct {
	Room      string
	Username  string
	Remaining int
	// Destroyed is true when the leave removed the last member.
	Destroyed bool
}
