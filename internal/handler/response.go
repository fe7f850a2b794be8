package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"trip-planner/internal/apiclient"
	"trip-planner/internal/domain"
)

// ErrorResponse is the body of every failed views request
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err with the status matching its kind. Backend
// client errors keep their status; transport failures become 502.
func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: apiclient.Message(err)}

	var verr *domain.ValidationError
	var apiErr *apiclient.APIError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	} else if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
		resp.Fields = apiErr.Fields
	}

	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoActivePersona),
		errors.Is(err, domain.ErrNoActiveCompilation),
		errors.Is(err, domain.ErrStaleResponse):
		return http.StatusConflict
	}

	if status := apiclient.StatusCode(err); status >= 400 && status < 500 {
		return status
	}
	return http.StatusBadGateway
}

// maxBodySize caps the JSON bodies accepted by the views API
const maxBodySize = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.NewValidationErrorWith("body", "Corps de requête trop volumineux")
		}
		return domain.NewValidationErrorWith("body", "Corps de requête invalide")
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationErrorWith(name, "Identifiant invalide")
	}
	return id, nil
}
