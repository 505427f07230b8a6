// Package testhelpers provides common utilities for exercising the lobby chat
// server over real HTTP and WebSocket connections in tests.
package testhelpers

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// TestOrigin is the Origin header sent by every helper connection.
const TestOrigin = "http://localhost:8080"

// Event is a decoded server frame.
type Event map[string]interface{}

// Type returns the event's discriminator.
func (e Event) Type() string {
	s, _ := e["type"].(string)
	return s
}

// String returns a string field or "".
func (e Event) String(key string) string {
	s, _ := e[key].(string)
	return s
}

// RoomNames returns the lobby names of a rooms_list event in order.
func (e Event) RoomNames() []string {
	rooms, _ := e["rooms"].([]interface{})
	names := make([]string, 0, len(rooms))
	for _, r := range rooms {
		if m, ok := r.(map[string]interface{}); ok {
			name, _ := m["name"].(string)
			names = append(names, name)
		}
	}
	return names
}

// WebSocketURL converts an httptest server URL into a ws:// URL for path.
func WebSocketURL(t *testing.T, serverURL, path string) string {
	t.Helper()
	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("Failed to parse server URL: %v", err)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = path
	return u.String()
}

// Dial opens a WebSocket connection with the test origin and returns the
// handshake response status alongside any error.
func Dial(rawURL string) (*websocket.Conn, int, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(rawURL, headers)
	status := 0
	if resp != nil {
		status = resp.StatusCode
		_ = resp.Body.Close()
	}
	return conn, status, err
}

// JoinLobby connects to the chat endpoint as username in lobby.
func JoinLobby(t *testing.T, serverURL, username, lobby string) *websocket.Conn {
	t.Helper()

	q := url.Values{}
	q.Set("username", username)
	q.Set("lobby", lobby)
	conn, _, err := Dial(WebSocketURL(t, serverURL, "/ws") + "?" + q.Encode())
	if err != nil {
		t.Fatalf("Failed to join %q as %q: %v", lobby, username, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ConnectDiscovery opens a directory-only connection.
func ConnectDiscovery(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()

	conn, _, err := Dial(WebSocketURL(t, serverURL, "/ws/rooms"))
	if err != nil {
		t.Fatalf("Failed to open discovery connection: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes {"type": kind, "text": text}.
func SendEvent(t *testing.T, conn *websocket.Conn, kind, text string) {
	t.Helper()
	msg := map[string]string{"type": kind}
	if text != "" {
		msg["text"] = text
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("Failed to send %s event: %v", kind, err)
	}
}

// ReadEvent reads the next frame within timeout.
func ReadEvent(conn *websocket.Conn, timeout time.Duration) (Event, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	var ev Event
	err := conn.ReadJSON(&ev)
	return ev, err
}

// WaitForEvent reads frames until one of the given type arrives, skipping
// anything else, and fails the test on timeout.
func WaitForEvent(t *testing.T, conn *websocket.Conn, kind string, timeout time.Duration) Event {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ev, err := ReadEvent(conn, time.Until(deadline))
		if err != nil {
			t.Fatalf("Waiting for %s event: %v", kind, err)
		}
		if ev.Type() == kind {
			return ev
		}
	}
	t.Fatalf("Timed out waiting for %s event", kind)
	return nil
}

// ExpectNoEvent fails if a frame of the given type arrives within timeout.
// An empty kind matches any frame.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, kind string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ev, err := ReadEvent(conn, time.Until(deadline))
		if err != nil {
			if IsTimeout(err) {
				return
			}
			t.Fatalf("Unexpected read error: %v", err)
		}
		if kind == "" || ev.Type() == kind {
			t.Fatalf("Unexpected %s event: %v", ev.Type(), ev)
		}
	}
}

// IsTimeout reports whether err is a read deadline expiry.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}
