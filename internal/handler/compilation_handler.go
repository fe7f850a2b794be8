package handler

import (
	"context"
	"net/http"
	"strings"

	"trip-planner/internal/compilation"
	"trip-planner/internal/domain"
)

// CompilationService is the compilation state driven by the views API
type CompilationService interface {
	View() compilation.View
	ReloadList(ctx context.Context) ([]domain.Compilation, error)
	AddAttraction(ctx context.Context, a domain.Attraction, opts compilation.AddOptions) error
	RemoveAttraction(ctx context.Context, attractionID string) error
	MarkVisited(ctx context.Context, itemID int64) error
	Create(ctx context.Context, name, description string) (*domain.Compilation, error)
	Select(ctx context.Context, id int64) (*domain.Compilation, error)
	Update(ctx context.Context, id int64, update domain.CompilationUpdate) (*domain.Compilation, error)
	Delete(ctx context.Context, id int64) error
	Clear(ctx context.Context) error
}

// AttractionLookup resolves the catalog entry of an attraction being added
type AttractionLookup interface {
	Get(ctx context.Context, id string) (*domain.Attraction, error)
}

type CompilationHandler struct {
	compilations CompilationService
	attractions  AttractionLookup
}

func NewCompilationHandler(c CompilationService, attractions AttractionLookup) *CompilationHandler {
	return &CompilationHandler{compilations: c, attractions: attractions}
}

type CreateCompilationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type AddItemRequest struct {
	AttractionID  string   `json:"attraction_id"`
	Priority      int      `json:"priority"`
	Note          string   `json:"personal_note"`
	EstimatedCost *float64 `json:"estimated_cost"`
}

type RemoveItemRequest struct {
	AttractionID string `json:"attraction_id"`
}

func (h *CompilationHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.compilations.View())
}

func (h *CompilationHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.compilations.ReloadList(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"compilations": list})
}

func (h *CompilationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCompilationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.compilations.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *CompilationHandler) Select(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.compilations.Select(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.compilations.View())
}

func (h *CompilationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req domain.CompilationUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.compilations.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *CompilationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.compilations.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.compilations.View())
}

// Clear deletes the active compilation
func (h *CompilationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.compilations.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.compilations.View())
}

// AddItem looks the attraction up in the catalog so the item carries its
// name and location, then adds it to the active compilation.
func (h *CompilationHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := strings.TrimSpace(req.AttractionID)
	if id == "" {
		writeError(w, domain.NewValidationErrorWith("attraction_id", "Une attraction est requise"))
		return
	}

	attraction, err := h.attractions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := compilation.AddOptions{
		Priority:      req.Priority,
		Note:          req.Note,
		EstimatedCost: req.EstimatedCost,
	}
	if err := h.compilations.AddAttraction(r.Context(), *attraction, opts); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.compilations.View())
}

// RemoveItem takes the attraction id from the query string or the body
func (h *CompilationHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("attraction_id")
	if id == "" && r.ContentLength != 0 {
		var req RemoveItemRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		id = req.AttractionID
	}
	id = strings.TrimSpace(id)
	if id == "" {
		writeError(w, domain.NewValidationErrorWith("attraction_id", "Une attraction est requise"))
		return
	}

	if err := h.compilations.RemoveAttraction(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.compilations.View())
}

func (h *CompilationHandler) MarkVisited(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.compilations.MarkVisited(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.compilations.View())
}
