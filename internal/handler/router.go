package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// API groups the views handlers mounted under /api/v1
type API struct {
	Session      *SessionHandler
	Personas     *PersonaHandler
	Compilations *CompilationHandler
	Attractions  *AttractionHandler
	Map          *MapHandler
	WebSocket    *WebSocketHandler

	// RequireSession guards the persona, compilation, map and event routes
	RequireSession func(http.Handler) http.Handler
	// AuthLimit and APILimit are optional per-client rate limits
	AuthLimit func(http.Handler) http.Handler
	APILimit  func(http.Handler) http.Handler
}

// Routes mounts the views API on r
func (a *API) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		useIf(r, a.AuthLimit)
		r.Post("/session/register", a.Session.Register)
		r.Post("/session/login", a.Session.Login)
	})

	r.Group(func(r chi.Router) {
		useIf(r, a.APILimit)

		r.Get("/session", a.Session.Get)
		r.Post("/session/logout", a.Session.Logout)

		r.Get("/attractions/search", a.Attractions.Search)
		r.Get("/attractions/popular", a.Attractions.Popular)
		r.Get("/attractions/nearby", a.Attractions.Nearby)
		r.Get("/attractions/categories", a.Attractions.Categories)
		r.Get("/attractions/countries", a.Attractions.Countries)
		r.Get("/attractions/suggestions", a.Attractions.Suggestions)
		r.Get("/attractions/{id}", a.Attractions.Get)

		r.Group(func(r chi.Router) {
			useIf(r, a.RequireSession)

			r.Patch("/session/profile", a.Session.UpdateProfile)
			r.Post("/session/password", a.Session.ChangePassword)

			r.Get("/personas", a.Personas.List)
			r.Post("/personas", a.Personas.Create)
			r.Post("/personas/select", a.Personas.Select)
			r.Delete("/personas/active", a.Personas.Clear)
			r.Patch("/personas/{id}", a.Personas.Update)
			r.Delete("/personas/{id}", a.Personas.Delete)

			r.Get("/compilation", a.Compilations.Get)
			r.Delete("/compilation", a.Compilations.Clear)
			r.Post("/compilation/items", a.Compilations.AddItem)
			r.Delete("/compilation/items", a.Compilations.RemoveItem)
			r.Post("/compilation/items/{id}/visited", a.Compilations.MarkVisited)
			r.Get("/compilations", a.Compilations.List)
			r.Post("/compilations", a.Compilations.Create)
			r.Post("/compilations/{id}/select", a.Compilations.Select)
			r.Patch("/compilations/{id}", a.Compilations.Update)
			r.Delete("/compilations/{id}", a.Compilations.Delete)

			r.Get("/map", a.Map.Get)
			r.Get("/ws/events", a.WebSocket.HandleConnection)
		})
	})
}

func useIf(r chi.Router, mw func(http.Handler) http.Handler) {
	if mw != nil {
		r.Use(mw)
	}
}
