package lobby

// Presence derives join and leave notices from registry transitions.
type Presence struct {
	router *Router
}

// NewPresence returns a Presence that broadcasts through router.
func NewPresence(router *Router) *Presence {
	return &Presence{router: router}
}

// Joined tells the other members of h's lobby that c arrived. It must run
// after the registry already lists c, so a concurrent directory read sees
// the member the notice names.
func (p *Presence) Joined(c Conn, h RoomHandle) int {
	return p.router.broadcast(h.Name, c, Event{
		Kind:      KindUserJoin,
		User:      h.Username,
		Lobby:     h.Name,
		Timestamp: p.router.now(),
	})
}

// Left tells the remaining members that someone departed. An emptied lobby
// has no one to tell.
func (p *Presence) Left(d Departure) int {
	if d.Destroyed {
		return 0
	}
	return p.router.broadcast(d.Room, nil, Event{
		Kind:      KindUserLeave,
		User:      d.Username,
		Lobby:     d.Room,
		Timestamp: p.router.now(),
	})
}
