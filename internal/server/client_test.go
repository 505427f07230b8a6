package server

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Tyrowin/lobbychat/internal/lobby"
)

func newDetachedClient(t *testing.T, buffer int) *Client {
	t.Helper()
	cfg := *NewConfig()
	cfg.SendBufferSize = buffer
	return NewClient(nil, nil, "test", Handshake{Username: "alice", Lobby: "team"}, cfg, nil)
}

func TestClientIdentity(t *testing.T) {
	c := newDetachedClient(t, 1)

	if c.ID() == "" {
		t.Error("expected a connection id")
	}
	if other := newDetachedClient(t, 1); other.ID() == c.ID() {
		t.Error("expected unique connection ids")
	}
	if c.Username() != "alice" || c.Lobby() != "team" {
		t.Errorf("got %q in %q", c.Username(), c.Lobby())
	}
	if c.State() != StateConnecting {
		t.Errorf("State: got %v want %v", c.State(), StateConnecting)
	}
	c.markOpen()
	if c.State() != StateOpen {
		t.Errorf("State: got %v want %v", c.State(), StateOpen)
	}
}

func TestClientSendQueuesWithoutBlocking(t *testing.T) {
	c := newDetachedClient(t, 2)

	if err := c.Send([]byte("one")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Send([]byte("two")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := <-c.GetSendChan()
	if string(got) != "one" {
		t.Errorf("got %q want %q", got, "one")
	}
}

func TestClientSendFullBufferEvicts(t *testing.T) {
	c := newDetachedClient(t, 1)

	if err := c.Send([]byte("fits")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	err := c.Send([]byte("overflow"))
	if !errors.Is(err, lobby.ErrSendFailure) {
		t.Fatalf("expected ErrSendFailure, got %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for c.State() != StateClosed {
		if time.Now().After(deadline) {
			t.Fatal("slow consumer was not evicted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestClientSendAfterClose(t *testing.T) {
	c := newDetachedClient(t, 4)

	if !c.closeSend() {
		t.Fatal("first closeSend should report true")
	}
	if c.closeSend() {
		t.Error("second closeSend should report false")
	}

	if err := c.Send([]byte("late")); !errors.Is(err, lobby.ErrSendFailure) {
		t.Errorf("expected ErrSendFailure, got %v", err)
	}
	if err := c.Close(lobby.CloseGoingAway, "bye"); err != nil {
		t.Errorf("Close on a detached client: %v", err)
	}
}

func TestParseHandshake(t *testing.T) {
	tests := []struct {
		query string
		want  Handshake
	}{
		{query: "username=ann&lobby=team", want: Handshake{Username: "ann", Lobby: "team"}},
		{query: "username=ann&room=team", want: Handshake{Username: "ann", Lobby: "team"}},
		{query: "username=ann&lobby=a&room=b", want: Handshake{Username: "ann", Lobby: "a"}},
		{query: "lobby=team", want: Handshake{Lobby: "team"}},
		{query: "", want: Handshake{}},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/ws?"+tt.query, nil)
		if got := ParseHandshake(req); got != tt.want {
			t.Errorf("ParseHandshake(%q): got %+v want %+v", tt.query, got, tt.want)
		}
	}
}

func TestConnStateString(t *testing.T) {
	for state, want := range map[ConnState]string{
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosed:     "closed",
		ConnState(42):   "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d: got %q want %q", int(state), got, want)
		}
	}
}
