package handler

import (
	"context"
	"net/http"

	"trip-planner/internal/domain"
	"trip-planner/internal/session"
)

// SessionService is the session state driven by the views API
type SessionService interface {
	View() session.View
	Register(ctx context.Context, in domain.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*domain.User, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, update domain.UserUpdate) (*domain.User, error)
	ChangePassword(ctx context.Context, change domain.PasswordChange) error
}

type SessionHandler struct {
	session SessionService
}

func NewSessionHandler(s SessionService) *SessionHandler {
	return &SessionHandler{session: s}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.View())
}

func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.session.Register(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.session.View())
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.session.Login(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.View())
}

// Logout always ends the local session, even when the backend call failed
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.View())
}

func (h *SessionHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req domain.UserUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.session.UpdateProfile(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.View())
}

func (h *SessionHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.PasswordChange
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.session.ChangePassword(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Mot de passe modifié"})
}
