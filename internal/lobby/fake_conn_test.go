package lobby

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id string

	mu        sync.Mutex
	frames    [][]byte
	closed    bool
	closeCode int
	failSends bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.failSends {
		return fmt.Errorf("%w: %s unavailable", ErrSendFailure, f.id)
	}
	f.frames = append(f.frames, append([]byte(nil), payload...))
	return nil
}

func (f *fakeConn) Close(code int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCode = code
	return nil
}

func (f *fakeConn) breakSends() {
	f.mu.Lock()
	f.failSends = true
	f.mu.Unlock()
}

// events decodes everything received so far and clears the buffer.
func (f *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	frames := f.frames
	f.frames = nil
	f.mu.Unlock()

	out := make([]map[string]any, 0, len(frames))
	for _, frame := range frames {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(frame, &ev), "frame %s", frame)
		out = append(out, ev)
	}
	return out
}

// ofType filters decoded events by their type field.
func ofType(events []map[string]any, kind Kind) []map[string]any {
	var out []map[string]any
	for _, ev := range events {
		if ev["type"] == string(kind) {
			out = append(out, ev)
		}
	}
	return out
}

func roomNames(t *testing.T, ev map[string]any) []string {
	t.Helper()
	rooms, ok := ev["rooms"].([]any)
	require.True(t, ok, "rooms must be an array: %v", ev)

	names := make([]string, 0, len(rooms))
	for _, r := range rooms {
		names = append(names, r.(map[string]any)["name"].(string))
	}
	return names
}

// steppingClock hands out strictly increasing instants.
type steppingClock struct {
	mu   sync.Mutex
	next time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{next: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(time.Second)
	return t
}
