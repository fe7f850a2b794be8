package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"trip-planner/internal/middleware"
	"trip-planner/internal/observability"
	ws "trip-planner/internal/websocket"
)

// WebSocketHandler upgrades signed-in clients onto the event stream
type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketHandler accepts upgrades from the given origins. An empty list
// or a "*" entry accepts any origin.
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 || allowed["*"] {
					return true
				}
				return allowed[origin]
			},
		},
	}
}

// HandleConnection registers the connection under the signed-in account
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok || user == nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Authentification requise"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.FromContext(r.Context()).Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	// the client outlives the upgrade request
	client := ws.NewClient(context.WithoutCancel(r.Context()), h.hub, conn, user.ID)
	h.hub.Register(client)
	client.Greet()

	go client.WritePump()
	go client.ReadPump()
}
