// Package websocket pushes state events to the view clients of the account
// they concern.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"trip-planner/internal/domain"
	"trip-planner/internal/observability"
)

// ServerMessage is the frame sent to view clients
type ServerMessage struct {
	Type    string        `json:"type"`
	UserID  int64         `json:"user_id"`
	Payload *domain.Event `json:"payload,omitempty"`
}

// BroadcastMessage is a frame addressed to every client of one account
type BroadcastMessage struct {
	UserID  int64
	Type    string
	Message []byte
}

// Hub maintains active clients and broadcasts messages
type Hub struct {
	// Registered clients by account
	clients map[int64]map[*Client]bool

	broadcast  chan *BroadcastMessage
	register   chan *Client
	unregister chan *Client

	// Shutdown signal
	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		broadcast:  make(chan *BroadcastMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			if h.clients[client.userID] == nil {
				h.clients[client.userID] = make(map[*Client]bool)
			}
			h.clients[client.userID][client] = true
			observability.WebSocketConnectionsActive.Inc()
			slog.Info("client registered", slog.Int64("user_id", client.userID))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			clients, ok := h.clients[message.UserID]
			if !ok {
				continue
			}
			for client := range clients {
				select {
				case client.send <- message.Message:
					observability.WebSocketMessagesSent.WithLabelValues(message.Type).Inc()
				default:
					// send buffer full: drop the slow client
					h.closeClientSend(client)
					delete(clients, client)
					observability.WebSocketConnectionsActive.Dec()
				}
			}
			if len(clients) == 0 {
				delete(h.clients, message.UserID)
			}
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	h.closeClientSend(client)
	observability.WebSocketConnectionsActive.Dec()
	slog.Info("client unregistered", slog.Int64("user_id", client.userID))

	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}
}

func (h *Hub) closeClientSend(client *Client) {
	client.sendOnce.Do(func() { close(client.send) })
}

// shutdown performs graceful cleanup of all connections
func (h *Hub) shutdown() {
	close(h.done)

	for userID, clients := range h.clients {
		for client := range clients {
			h.closeClientSend(client)
			slog.Info("closed client connection", slog.Int64("user_id", userID))
		}
	}

	slog.Info("hub shutdown complete")
}

// Broadcast queues message for every client of userID. It returns without
// sending once the hub has stopped.
func (h *Hub) Broadcast(userID int64, msgType string, message []byte) {
	select {
	case h.broadcast <- &BroadcastMessage{UserID: userID, Type: msgType, Message: message}:
	case <-h.done:
	}
}

// OnEvent is the event bus handler relaying state events to the clients of
// the account the event concerns. Events without an account are dropped.
func (h *Hub) OnEvent(ctx context.Context, ev domain.Event) {
	userID := ev.UserID()
	if userID == 0 {
		return
	}

	data, err := json.Marshal(ServerMessage{Type: string(ev.Kind), UserID: userID, Payload: &ev})
	if err != nil {
		observability.FromContext(ctx).Error("failed to marshal state event",
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()))
		return
	}
	h.Broadcast(userID, string(ev.Kind), data)
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		h.closeClientSend(client)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
