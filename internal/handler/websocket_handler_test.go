package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-planner/internal/domain"
	ws "trip-planner/internal/websocket"
)

func readFrame(t *testing.T, conn *websocket.Conn) ws.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg ws.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocket_RequiresSession(t *testing.T) {
	h := newHarness(t)
	server := httptest.NewServer(h.router)
	t.Cleanup(server.Close)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/v1/ws/events", nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_StreamsStateEvents(t *testing.T) {
	h := newHarness(t)
	account := h.signIn(t, "alice")
	server := httptest.NewServer(h.router)
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/v1/ws/events", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	hello := readFrame(t, conn)
	assert.Equal(t, ws.MessageConnected, hello.Type)
	assert.Equal(t, account.ID, hello.UserID)

	h.choosePersona(t, account, domain.BudgetLow)

	msg := readFrame(t, conn)
	assert.Equal(t, string(domain.EventPersonaChanged), msg.Type)
	require.NotNil(t, msg.Payload)
	require.NotNil(t, msg.Payload.Profile)
	assert.Equal(t, "France", msg.Payload.Country.Code)

	msg = readFrame(t, conn)
	assert.Equal(t, string(domain.EventCompilationChanged), msg.Type)
	require.NotNil(t, msg.Payload.Compilation)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	handler := NewWebSocketHandler(ws.NewHub(), []string{"http://localhost:3000"})

	req := httptest.NewRequest(http.MethodGet, "/ws/events", nil)
	req.Header.Set("Origin", "http://evil.example")

	assert.False(t, handler.upgrader.CheckOrigin(req))

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, handler.upgrader.CheckOrigin(req))
}
