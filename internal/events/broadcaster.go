// Package events pushes visit and session changes to WebSocket clients.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Type identifies an event.
type Type string

// Event types.
const (
	TypeVisitsChanged  Type = "visits_changed"
	TypeSessionChanged Type = "session_changed"
)

// Session change kinds carried by TypeSessionChanged.
const (
	SessionSignedIn  = "signed_in"
	SessionSignedOut = "signed_out"
)

const writeTimeout = 5 * time.Second

// Event is the JSON message sent to clients.
type Event struct {
	Type      Type      `json:"type"`
	PlaqueID  int       `json:"plaque_id,omitempty"`
	Session   string    `json:"session,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// VisitsChanged returns the event sent after a visit was recorded or removed.
func VisitsChanged(plaqueID int) Event {
	return Event{Type: TypeVisitsChanged, PlaqueID: plaqueID, Timestamp: time.Now().UTC()}
}

// SessionChanged returns the event sent to a user's own connections when
// they sign in or out.
func SessionChanged(kind string) Event {
	return Event{Type: TypeSessionChanged, Session: kind, Timestamp: time.Now().UTC()}
}

// Broadcaster manages WebSocket connections and fans events out to them.
// Writes are serialized because a websocket.Conn allows one writer at a time.
type Broadcaster struct {
	mu          sync.Mutex
	connections map[*websocket.Conn]string // conn -> user ID, empty when anonymous
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		connections: make(map[*websocket.Conn]string),
		logger:      logger,
	}
}

// Subscribe registers a connection. userID may be empty.
func (b *Broadcaster) Subscribe(conn *websocket.Conn, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connections[conn] = userID
}

// Unsubscribe removes a connection.
func (b *Broadcaster) Unsubscribe(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.connections, conn)
}

// Broadcast sends an event to every connection.
func (b *Broadcaster) Broadcast(event Event) {
	b.send(event, func(string) bool { return true })
}

// SendToUser sends an event to the connections opened by userID.
func (b *Broadcaster) SendToUser(userID string, event Event) {
	if userID == "" {
		return
	}
	b.send(event, func(id string) bool { return id == userID })
}

func (b *Broadcaster) send(event Event, match func(userID string) bool) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to marshal event", "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for conn, userID := range b.connections {
		if !match(userID) {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// Connection is cleaned up when its read loop ends.
			b.logger.Warn("failed to send message to websocket client",
				"error", err,
				"event_type", event.Type,
			)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (b *Broadcaster) ConnectionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.connections)
}
