package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"trip-planner/internal/apiclient"
	"trip-planner/internal/compilation"
	"trip-planner/internal/domain"
	"trip-planner/internal/events"
	"trip-planner/internal/gateway"
	"trip-planner/internal/mapview"
	"trip-planner/internal/middleware"
	"trip-planner/internal/persona"
	"trip-planner/internal/session"
	"trip-planner/internal/storage"
	"trip-planner/internal/testutil"
	"trip-planner/internal/token"
	ws "trip-planner/internal/websocket"
)

var france = domain.Country{Code: "France", DisplayName: "France"}

// harness wires the real state components over the fake backend, the way
// the trip client does
type harness struct {
	backend      *testutil.FakeBackend
	tokens       *token.Store
	session      *session.State
	personas     *persona.State
	compilations *compilation.State
	hub          *ws.Hub
	router       http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	fb := testutil.NewFakeBackend(t)
	kv := storage.NewMemoryStore()
	tokens := token.NewStore(kv)
	client := apiclient.New(fb.BaseURL(), tokens)
	bus := events.NewBus()

	sess := session.New(gateway.NewAuthGateway(client), tokens, kv, bus)
	client.OnUnauthorized(sess.HandleUnauthorized)
	personas := persona.New(gateway.NewProfilesGateway(client), kv, bus)
	compilations := compilation.New(gateway.NewCompilationsGateway(client), bus, "")
	attractions := gateway.NewAttractionsGateway(client)

	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	// the hub relays each event before the components react to it
	bus.Subscribe(hub.OnEvent)
	bus.Subscribe(personas.OnSessionEvent)
	bus.Subscribe(compilations.OnPersonaEvent)

	api := &API{
		Session:        NewSessionHandler(sess),
		Personas:       NewPersonaHandler(personas),
		Compilations:   NewCompilationHandler(compilations, attractions),
		Attractions:    NewAttractionHandler(attractions, personas, compilations),
		Map:            NewMapHandler(compilations, mapview.Options{}),
		WebSocket:      NewWebSocketHandler(hub, nil),
		RequireSession: middleware.RequireSession(sess),
	}

	r := chi.NewRouter()
	r.Route("/api/v1", api.Routes)

	return &harness{
		backend:      fb,
		tokens:       tokens,
		session:      sess,
		personas:     personas,
		compilations: compilations,
		hub:          hub,
		router:       r,
	}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, testutil.NewJSONRequest(t, method, path, body))
	return w
}

// signIn creates an account and logs it in through the views API
func (h *harness) signIn(t *testing.T, username string) domain.User {
	t.Helper()
	account := h.backend.AddAccount(username, "password123")

	w := h.do(t, http.MethodPost, "/api/v1/session/login", LoginRequest{Username: username, Password: "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return account
}

// choosePersona creates a persona for account and selects it with France
func (h *harness) choosePersona(t *testing.T, account domain.User, budget domain.BudgetRange) domain.Profile {
	t.Helper()
	p := h.backend.AddProfile(account.ID, domain.Profile{
		Name:        "Solo",
		Age:         30,
		ProfileType: domain.ProfileTourist,
		BudgetRange: budget,
	})

	w := h.do(t, http.MethodPost, "/api/v1/personas/select", SelectPersonaRequest{ProfileID: p.ID, Country: france})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return p
}
