package lobby

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the discriminator carried by every event on the wire.
type Kind string

// Event kinds exchanged with clients.
const (
	KindMessage    Kind = "message"
	KindUserJoin   Kind = "user_join"
	KindUserLeave  Kind = "user_leave"
	KindTyping     Kind = "typing"
	KindStopTyping Kind = "stop_typing"
	KindGetRooms   Kind = "get_rooms"
	KindRoomsList  Kind = "rooms_list"

	// KindUnknown is assigned to inbound events whose discriminator is not
	// one clients are allowed to send.
	KindUnknown Kind = "unknown"
)

// timestampLayout matches JavaScript's Date.prototype.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Inbound is a parsed client event. Raw holds the discriminator exactly as
// received, which differs from Kind only for KindUnknown.
type Inbound struct {
	Kind Kind
	Raw  string
	Text string
}

type inboundWire struct {
	Type string `json:"type"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// ParseInbound decodes a raw client frame. Frames that are not JSON objects
// or carry no discriminator fail with ErrMalformedEvent; frames with a
// discriminator clients may not send come back as KindUnknown.
func ParseInbound(raw []byte) (Inbound, error) {
	var w inboundWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	tag := w.Type
	if tag == "" {
		tag = w.Kind
	}
	if tag == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	in := Inbound{Kind: KindUnknown, Raw: tag, Text: w.Text}
	switch k := Kind(tag); k {
	case KindMessage, KindTyping, KindStopTyping, KindGetRooms:
		in.Kind = k
	}
	return in, nil
}

// Event is an outbound event. Which fields are serialized depends on Kind.
type Event struct {
	Kind      Kind
	User      string
	Lobby     string
	Text      string
	Rooms     []RoomInfo
	Timestamp time.Time
}

type chatWire struct {
	Type      Kind   `json:"type"`
	User      string `json:"user"`
	Lobby     string `json:"lobby"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type presenceWire struct {
	Type      Kind   `json:"type"`
	User      string `json:"user"`
	Lobby     string `json:"lobby"`
	Timestamp string `json:"timestamp"`
}

type directoryWire struct {
	Type      Kind       `json:"type"`
	Rooms     []RoomInfo `json:"rooms"`
	Timestamp string     `json:"timestamp"`
}

// MarshalJSON encodes the event in the shape clients expect for its kind.
func (e Event) MarshalJSON() ([]byte, error) {
	ts := formatTimestamp(e.Timestamp)

	switch e.Kind {
	case KindMessage:
		return json.Marshal(chatWire{Type: e.Kind, User: e.User, Lobby: e.Lobby, Text: e.Text, Timestamp: ts})
	case KindUserJoin, KindUserLeave, KindTyping, KindStopTyping:
		return json.Marshal(presenceWire{Type: e.Kind, User: e.User, Lobby: e.Lobby, Timestamp: ts})
	case KindRoomsList:
		rooms := e.Rooms
		if rooms == nil {
			rooms = []RoomInfo{}
		}
		return json.Marshal(directoryWire{Type: e.Kind, Rooms: rooms, Timestamp: ts})
	default:
		return nil, fmt.Errorf("lobby: cannot encode event of kind %q", e.Kind)
	}
}

// RoomInfo is one row of the room directory.
type RoomInfo struct {
	Name      string
	Users     []string
	UserCount int
	CreatedAt time.Time
}

type roomInfoWire struct {
	Name      string   `json:"name"`
	Users     []string `json:"users"`
	UserCount int      `json:"userCount"`
	CreatedAt string   `json:"createdAt"`
}

// MarshalJSON encodes the row with an ISO-8601 creation time.
func (r RoomInfo) MarshalJSON() ([]byte, error) {
	users := r.Users
	if users == nil {
		users = []string{}
	}
	return json.Marshal(roomInfoWire{
		Name:      r.Name,
		Users:     users,
		UserCount: r.UserCount,
		CreatedAt: formatTimestamp(r.CreatedAt),
	})
}
