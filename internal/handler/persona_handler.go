package handler

import (
	"context"
	"net/http"

	"trip-planner/internal/domain"
	"trip-planner/internal/persona"
)

// PersonaService is the persona state driven by the views API
type PersonaService interface {
	View() persona.View
	ReloadProfiles(ctx context.Context) ([]domain.Profile, error)
	Select(ctx context.Context, profileID int64, country domain.Country) (*domain.Profile, error)
	Create(ctx context.Context, in domain.ProfileInput) (*domain.Profile, error)
	Update(ctx context.Context, id int64, in domain.ProfileInput) (*domain.Profile, error)
	Delete(ctx context.Context, id int64) error
	Clear(ctx context.Context) error
}

type PersonaHandler struct {
	personas PersonaService
}

func NewPersonaHandler(p PersonaService) *PersonaHandler {
	return &PersonaHandler{personas: p}
}

type SelectPersonaRequest struct {
	ProfileID int64          `json:"profile_id"`
	Country   domain.Country `json:"country"`
}

// List reloads the account's personas before answering
func (h *PersonaHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := h.personas.ReloadProfiles(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.personas.View())
}

func (h *PersonaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.ProfileInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.personas.Create(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.personas.View())
}

func (h *PersonaHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req domain.ProfileInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.personas.Update(r.Context(), id, req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.personas.View())
}

func (h *PersonaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.personas.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.personas.View())
}

func (h *PersonaHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectPersonaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.personas.Select(r.Context(), req.ProfileID, req.Country); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.personas.View())
}

// Clear drops the active persona without deleting it
func (h *PersonaHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.personas.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.personas.View())
}
