package events

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newTestServer upgrades every request and subscribes it under the user
// named by the "user" query parameter.
func newTestServer(t *testing.T, b *Broadcaster) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.Subscribe(conn, r.URL.Query().Get("user"))
		defer func() {
			b.Unsubscribe(conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForConnections(t *testing.T, b *Broadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.ConnectionCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connections, have %d", n, b.ConnectionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) (Event, error) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return Event{}, err
	}
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("invalid event JSON: %v", err)
	}
	return e, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBroadcast_ReachesEveryClient(t *testing.T) {
	b := NewBroadcaster(quietLogger())
	server := newTestServer(t, b)

	alice := dial(t, server, "alice")
	anon := dial(t, server, "")
	waitForConnections(t, b, 2)

	b.Broadcast(VisitsChanged(7))

	for name, conn := range map[string]*websocket.Conn{"alice": alice, "anonymous": anon} {
		e, err := readEvent(t, conn)
		if err != nil {
			t.Fatalf("%s: read failed: %v", name, err)
		}
		if e.Type != TypeVisitsChanged || e.PlaqueID != 7 {
			t.Errorf("%s: unexpected event %+v", name, e)
		}
	}
}

func TestSendToUser_OnlyTargetsThatUser(t *testing.T) {
	b := NewBroadcaster(quietLogger())
	server := newTestServer(t, b)

	alice := dial(t, server, "alice")
	bob := dial(t, server, "bob")
	waitForConnections(t, b, 2)

	b.SendToUser("alice", SessionChanged(SessionSignedOut))

	e, err := readEvent(t, alice)
	if err != nil {
		t.Fatalf("alice read failed: %v", err)
	}
	if e.Type != TypeSessionChanged || e.Session != SessionSignedOut {
		t.Errorf("unexpected event %+v", e)
	}

	if _, err := readEvent(t, bob); err == nil {
		t.Error("bob should not receive alice's session event")
	}
}

func TestSendToUser_EmptyUserIsIgnored(t *testing.T) {
	b := NewBroadcaster(quietLogger())
	server := newTestServer(t, b)

	anon := dial(t, server, "")
	waitForConnections(t, b, 1)

	b.SendToUser("", SessionChanged(SessionSignedIn))
	if _, err := readEvent(t, anon); err == nil {
		t.Error("anonymous client should not receive session events")
	}
}

func TestUnsubscribe_OnDisconnect(t *testing.T) {
	b := NewBroadcaster(quietLogger())
	server := newTestServer(t, b)

	conn := dial(t, server, "alice")
	waitForConnections(t, b, 1)

	conn.Close()
	waitForConnections(t, b, 0)
}
