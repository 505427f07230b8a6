package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/lobbychat/internal/server"
	"github.com/Tyrowin/lobbychat/internal/testhelpers"
)

const eventTimeout = 2 * time.Second

// newTestServer starts a hub and an httptest server around it. The hub is
// shut down before the listener closes.
func newTestServer(t *testing.T, customize func(cfg *server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()

	cfg := server.NewConfig()
	if customize != nil {
		customize(cfg)
	}

	srv := server.New(cfg, nil, nil)
	srv.StartHub()

	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(ts.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Hub().Shutdown(ctx); err != nil {
			t.Errorf("Hub shutdown failed: %v", err)
		}
	})
	return srv, ts
}

// joinAndSettle joins a lobby and waits for the directory update that
// confirms the hub admitted the connection.
func joinAndSettle(t *testing.T, serverURL, username, lobbyName string) *websocket.Conn {
	t.Helper()
	conn := testhelpers.JoinLobby(t, serverURL, username, lobbyName)
	testhelpers.WaitForEvent(t, conn, "rooms_list", eventTimeout)
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(eventTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func expectCloseCode(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(eventTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, code) {
			t.Fatalf("Expected close code %d, got %v", code, err)
		}
		return
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// TestTeamLobbyConversation walks two members through chatting and leaving
// until the lobby disappears from the directory.
func TestTeamLobbyConversation(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	x := joinAndSettle(t, ts.URL, "X", "team")
	y := joinAndSettle(t, ts.URL, "Y", "team")

	joined := testhelpers.WaitForEvent(t, x, "user_join", eventTimeout)
	if joined.String("user") != "Y" || joined.String("lobby") != "team" {
		t.Errorf("Unexpected join notice: %v", joined)
	}

	testhelpers.SendEvent(t, x, "message", "hi")

	msg := testhelpers.WaitForEvent(t, y, "message", eventTimeout)
	if msg.String("user") != "X" {
		t.Errorf("Expected message from X, got %q", msg.String("user"))
	}
	if msg.String("text") != "hi" {
		t.Errorf("Expected text %q, got %q", "hi", msg.String("text"))
	}
	if msg.String("lobby") != "team" {
		t.Errorf("Expected lobby %q, got %q", "team", msg.String("lobby"))
	}
	if _, err := time.Parse(time.RFC3339, msg.String("timestamp")); err != nil {
		t.Errorf("Expected ISO timestamp, got %q: %v", msg.String("timestamp"), err)
	}

	testhelpers.ExpectNoEvent(t, x, "message", 200*time.Millisecond)

	if err := testhelpers.CloseWebSocket(y); err != nil {
		t.Fatalf("Failed to close Y: %v", err)
	}
	left := testhelpers.WaitForEvent(t, x, "user_leave", eventTimeout)
	if left.String("user") != "Y" {
		t.Errorf("Expected leave notice for Y, got %v", left)
	}

	if err := testhelpers.CloseWebSocket(x); err != nil {
		t.Fatalf("Failed to close X: %v", err)
	}
	waitFor(t, "team to be removed", func() bool {
		return srv.Engine().Stats().Lobbies == 0
	})

	watcher := testhelpers.ConnectDiscovery(t, ts.URL)
	testhelpers.SendEvent(t, watcher, "get_rooms", "")
	listing := testhelpers.WaitForEvent(t, watcher, "rooms_list", eventTimeout)
	if contains(listing.RoomNames(), "team") {
		t.Errorf("Expected team to be gone, got %v", listing.RoomNames())
	}
}

// TestSoloLobbyRemovedOnDisconnect verifies a lone member's departure
// removes the lobby and watchers see it vanish.
func TestSoloLobbyRemovedOnDisconnect(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	watcher := testhelpers.ConnectDiscovery(t, ts.URL)
	testhelpers.SendEvent(t, watcher, "get_rooms", "")
	initial := testhelpers.WaitForEvent(t, watcher, "rooms_list", eventTimeout)
	if len(initial.RoomNames()) != 0 {
		t.Fatalf("Expected empty directory, got %v", initial.RoomNames())
	}

	z := joinAndSettle(t, ts.URL, "Z", "solo")
	update := testhelpers.WaitForEvent(t, watcher, "rooms_list", eventTimeout)
	if !contains(update.RoomNames(), "solo") {
		t.Fatalf("Expected solo in directory, got %v", update.RoomNames())
	}

	if err := testhelpers.CloseWebSocket(z); err != nil {
		t.Fatalf("Failed to close Z: %v", err)
	}
	final := testhelpers.WaitForEvent(t, watcher, "rooms_list", eventTimeout)
	if contains(final.RoomNames(), "solo") {
		t.Errorf("Expected solo to be removed, got %v", final.RoomNames())
	}
	if stats := srv.Engine().Stats(); stats.Lobbies != 0 || stats.Clients != 0 {
		t.Errorf("Expected empty registry, got %+v", stats)
	}
}

// TestHandshakeRejection covers connections that omit or blank their identity.
func TestHandshakeRejection(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	tests := []struct {
		name  string
		query string
	}{
		{name: "missing lobby", query: "username=alice"},
		{name: "missing username", query: "lobby=team"},
		{name: "blank username", query: "username=%20%20&lobby=team"},
		{name: "nothing", query: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wsURL := testhelpers.WebSocketURL(t, ts.URL, "/ws") + "?" + tt.query
			conn, _, err := testhelpers.Dial(wsURL)
			if err != nil {
				t.Fatalf("Failed to connect: %v", err)
			}
			defer conn.Close()

			expectCloseCode(t, conn, websocket.ClosePolicyViolation)
		})
	}

	if stats := srv.Engine().Stats(); stats.Clients != 0 {
		t.Errorf("Rejected connections must not be admitted, got %+v", stats)
	}
}

func TestRoomAliasInHandshake(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	conn, _, err := testhelpers.Dial(testhelpers.WebSocketURL(t, ts.URL, "/ws") + "?username=ann&room=kitchen")
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	listing := testhelpers.WaitForEvent(t, conn, "rooms_list", eventTimeout)
	if !contains(listing.RoomNames(), "kitchen") {
		t.Errorf("Expected kitchen in directory, got %v", listing.RoomNames())
	}
	if got := srv.Engine().Stats().Clients; got != 1 {
		t.Errorf("Expected 1 client, got %d", got)
	}
}

func TestLobbyIsolation(t *testing.T) {
	_, ts := newTestServer(t, nil)

	a := joinAndSettle(t, ts.URL, "a", "red")
	b := joinAndSettle(t, ts.URL, "b", "blue")
	a2 := joinAndSettle(t, ts.URL, "a2", "red")
	testhelpers.WaitForEvent(t, a, "user_join", eventTimeout)

	testhelpers.SendEvent(t, a, "message", "red only")

	if got := testhelpers.WaitForEvent(t, a2, "message", eventTimeout); got.String("text") != "red only" {
		t.Errorf("Unexpected message in red: %v", got)
	}
	testhelpers.ExpectNoEvent(t, b, "message", 200*time.Millisecond)
}

func TestTypingIndicators(t *testing.T) {
	_, ts := newTestServer(t, nil)

	x := joinAndSettle(t, ts.URL, "X", "team")
	y := joinAndSettle(t, ts.URL, "Y", "team")

	testhelpers.SendEvent(t, x, "typing", "")
	typing := testhelpers.WaitForEvent(t, y, "typing", eventTimeout)
	if typing.String("user") != "X" {
		t.Errorf("Expected typing from X, got %v", typing)
	}

	testhelpers.SendEvent(t, x, "stop_typing", "")
	stop := testhelpers.WaitForEvent(t, y, "stop_typing", eventTimeout)
	if stop.String("user") != "X" {
		t.Errorf("Expected stop_typing from X, got %v", stop)
	}

	testhelpers.ExpectNoEvent(t, x, "typing", 200*time.Millisecond)
}

// TestMalformedInputKeepsConnection sends garbage and then a valid message
// on the same socket.
func TestMalformedInputKeepsConnection(t *testing.T) {
	_, ts := newTestServer(t, nil)

	x := joinAndSettle(t, ts.URL, "X", "team")
	y := joinAndSettle(t, ts.URL, "Y", "team")

	if err := x.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("Failed to send raw frame: %v", err)
	}
	testhelpers.SendEvent(t, x, "dance", "")
	testhelpers.SendEvent(t, x, "message", "still here")

	msg := testhelpers.WaitForEvent(t, y, "message", eventTimeout)
	if msg.String("text") != "still here" {
		t.Errorf("Expected follow-up message, got %v", msg)
	}
}

func TestDisallowedOriginRejected(t *testing.T) {
	_, ts := newTestServer(t, nil)

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "http://evil.example")

	conn, resp, err := dialer.Dial(testhelpers.WebSocketURL(t, ts.URL, "/ws")+"?username=a&lobby=b", headers)
	if err == nil {
		conn.Close()
		t.Fatal("Expected handshake to fail for disallowed origin")
	}
	if resp == nil {
		t.Fatalf("Expected an HTTP response, got error %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, resp.StatusCode)
	}
}

func TestWildcardOriginAllowsAnyOrigin(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"*"}
	})

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "http://anywhere.example")

	conn, resp, err := dialer.Dial(testhelpers.WebSocketURL(t, ts.URL, "/ws")+"?username=a&lobby=b", headers)
	if err != nil {
		t.Fatalf("Expected wildcard origin to connect: %v", err)
	}
	resp.Body.Close()
	conn.Close()
}

func TestOversizedMessageClosesConnection(t *testing.T) {
	_, ts := newTestServer(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = 64
	})

	x := joinAndSettle(t, ts.URL, "X", "team")
	testhelpers.SendEvent(t, x, "message", strings.Repeat("a", 256))

	if err := x.SetReadDeadline(time.Now().Add(eventTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	for {
		_, _, err := x.ReadMessage()
		if err == nil {
			continue
		}
		if testhelpers.IsTimeout(err) {
			t.Fatal("Expected connection to be closed after oversized frame")
		}
		return
	}
}

func TestShutdownClosesClientsWithGoingAway(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	x := joinAndSettle(t, ts.URL, "X", "team")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Hub().Shutdown(ctx); err != nil {
		t.Fatalf("Hub shutdown failed: %v", err)
	}

	expectCloseCode(t, x, websocket.CloseGoingAway)
}

func TestConnectAfterShutdownIsRefused(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Hub().Shutdown(ctx); err != nil {
		t.Fatalf("Hub shutdown failed: %v", err)
	}

	conn, _, err := testhelpers.Dial(testhelpers.WebSocketURL(t, ts.URL, "/ws") + "?username=late&lobby=team")
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	expectCloseCode(t, conn, websocket.CloseInternalServerErr)
}
