package lobby

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tyrowin/lobbychat/internal/metrics"
)

// Router turns inbound client events into outbound fan-out.
type Router struct {
	registry  *Registry
	directory *Directory
	log       *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewRouter returns a router that resolves targets through registry and
// answers directory requests through directory.
func NewRouter(registry *Registry, directory *Directory, logger *slog.Logger, m *metrics.Metrics) *Router {
	return &Router{
		registry:  registry,
		directory: directory,
		log:       orDiscard(logger),
		metrics:   m,
		now:       time.Now,
	}
}

// Route parses raw and dispatches it. Malformed and unknown events are
// logged and dropped; the returned error only describes what happened.
func (rt *Router) Route(sender Conn, raw []byte) error {
	in, err := ParseInbound(raw)
	if err != nil {
		rt.metrics.MalformedEvent()
		rt.log.Warn("dropping malformed event", "conn", sender.ID(), "err", err)
		return err
	}

	switch in.Kind {
	case KindGetRooms:
		err = rt.RouteControl(sender, in.Kind)
	case KindMessage:
		_, err = rt.RouteChat(sender, in.Text)
	case KindTyping:
		_, err = rt.RouteTyping(sender, true)
	case KindStopTyping:
		_, err = rt.RouteTyping(sender, false)
	default:
		rt.metrics.MalformedEvent()
		rt.log.Warn("dropping event with unknown type", "conn", sender.ID(), "type", in.Raw)
		return fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, in.Raw)
	}

	if err != nil {
		rt.log.Debug("event not routed", "conn", sender.ID(), "type", in.Kind, "err", err)
	}
	return err
}

// RouteChat sends text to every other member of the sender's lobby and
// returns how many members accepted it.
func (rt *Router) RouteChat(sender Conn, text string) (int, error) {
	h, ok := rt.registry.RoomOf(sender)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotRegistered, sender.ID())
	}
	return rt.broadcast(h.Name, sender, Event{
		Kind:      KindMessage,
		User:      h.Username,
		Lobby:     h.Name,
		Text:      text,
		Timestamp: rt.now(),
	}), nil
}

// RouteTyping relays a typing or stop_typing indicator. Nothing is retained.
func (rt *Router) RouteTyping(sender Conn, isTyping bool) (int, error) {
	h, ok := rt.registry.RoomOf(sender)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotRegistered, sender.ID())
	}

	kind := KindStopTyping
	if isTyping {
		kind = KindTyping
	}
	return rt.broadcast(h.Name, sender, Event{
		Kind:      kind,
		User:      h.Username,
		Lobby:     h.Name,
		Timestamp: rt.now(),
	}), nil
}

// RouteControl answers control requests directly to the sender. It does
// not require the sender to be in a lobby.
func (rt *Router) RouteControl(sender Conn, kind Kind) error {
	if kind != KindGetRooms {
		return fmt.Errorf("%w: %q is not a control request", ErrMalformedEvent, kind)
	}
	return rt.directory.SendTo(sender)
}

// broadcast delivers ev to the lobby's members as of now, skipping except.
func (rt *Router) broadcast(roomName string, except Conn, ev Event) int {
	payload, err := json.Marshal(ev)
	if err != nil {
		rt.log.Error("encoding event", "type", ev.Kind, "err", err)
		return 0
	}

	targets := rt.registry.MembersOf(roomName)
	delivered := deliver(rt.log, rt.metrics, targets, except, payload)
	rt.metrics.EventRouted(string(ev.Kind))
	rt.log.Debug("broadcast", "type", ev.Kind, "lobby", roomName, "delivered", delivered)
	return delivered
}

// deliver sends payload to each target except one. A failing target is
// skipped; the rest still receive the frame.
func deliver(log *slog.Logger, m *metrics.Metrics, targets []Conn, except Conn, payload []byte) int {
	var skip string
	if except != nil {
		skip = except.ID()
	}

	delivered := 0
	for _, c := range targets {
		if c.ID() == skip {
			continue
		}
		if err := c.Send(payload); err != nil {
			m.SendFailed()
			log.Debug("skipping target", "conn", c.ID(), "err", err)
			continue
		}
		delivered++
	}
	return delivered
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
