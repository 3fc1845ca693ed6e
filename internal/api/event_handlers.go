package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/onnwee/plaques/internal/events"
	"github.com/onnwee/plaques/internal/middleware"
)

// EventHandlers upgrades clients to the live event stream.
type EventHandlers struct {
	broadcaster *events.Broadcaster
	sessions    middleware.SessionResolver
	upgrader    websocket.Upgrader
}

// NewEventHandlers creates event handlers. With no allowed origins the
// upgrader accepts same-host requests only. sessions resolves the "token"
// query parameter for browsers that cannot set headers on a WebSocket; it
// may be nil.
func NewEventHandlers(broadcaster *events.Broadcaster, sessions middleware.SessionResolver, allowedOrigins []string) *EventHandlers {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]bool, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = true
		}
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}

	return &EventHandlers{
		broadcaster: broadcaster,
		sessions:    sessions,
		upgrader:    upgrader,
	}
}

// Stream handles GET /events/ws. Signed-in clients additionally receive
// their own session_changed events.
func (h *EventHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := ""
	if session := middleware.GetSession(ctx); session.Authenticated() {
		userID = session.User.ID
	} else if token := r.URL.Query().Get("token"); token != "" && h.sessions != nil {
		if session := h.sessions.GetSession(ctx, token); session.Authenticated() {
			userID = session.User.ID
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.WarnContext(ctx, "failed to upgrade websocket connection", "error", err)
		return
	}

	h.broadcaster.Subscribe(conn, userID)
	requestID := middleware.GetRequestID(ctx)
	slog.InfoContext(ctx, "websocket client subscribed",
		"request_id", requestID,
		"user_id", userID,
	)

	defer func() {
		h.broadcaster.Unsubscribe(conn)
		conn.Close()
		slog.InfoContext(ctx, "websocket client unsubscribed", "request_id", requestID)
	}()

	// Clients do not send messages; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.WarnContext(ctx, "websocket connection closed unexpectedly", "error", err)
			}
			return
		}
	}
}
