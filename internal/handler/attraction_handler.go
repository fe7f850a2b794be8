package handler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"trip-planner/internal/domain"
	"trip-planner/internal/persona"
)

// DefaultPopularLimit caps the popular listing when no limit is given
const DefaultPopularLimit = 12

// AttractionCatalog is the read-only attraction catalog
type AttractionCatalog interface {
	Search(ctx context.Context, params domain.SearchParams) (*domain.AttractionPage, error)
	Popular(ctx context.Context, country string, profile domain.ProfileType, limit int) ([]domain.Attraction, error)
	Nearby(ctx context.Context, lat, lng, radiusKm float64, params domain.SearchParams) (*domain.AttractionPage, error)
	Get(ctx context.Context, id string) (*domain.Attraction, error)
	Suggestions(ctx context.Context, query string) ([]domain.Suggestion, error)
	Categories(ctx context.Context) ([]domain.Category, error)
	Countries(ctx context.Context) ([]domain.CountryOption, error)
}

// PersonaReader exposes the active persona used as listing defaults
type PersonaReader interface {
	View() persona.View
}

// Membership reports which attractions the active compilation holds
type Membership interface {
	IsInCompilation(attractionID string) bool
}

type AttractionHandler struct {
	catalog    AttractionCatalog
	personas   PersonaReader
	membership Membership
}

func NewAttractionHandler(catalog AttractionCatalog, personas PersonaReader, membership Membership) *AttractionHandler {
	return &AttractionHandler{catalog: catalog, personas: personas, membership: membership}
}

// AttractionListResponse is a listing annotated with compilation membership
type AttractionListResponse struct {
	Count         int                 `json:"count"`
	Next          string              `json:"next,omitempty"`
	Previous      string              `json:"previous,omitempty"`
	Results       []domain.Attraction `json:"results"`
	InCompilation []string            `json:"in_compilation"`
}

type AttractionResponse struct {
	domain.Attraction
	InCompilation bool `json:"in_compilation"`
}

func (h *AttractionHandler) Search(w http.ResponseWriter, r *http.Request) {
	params, err := parseSearchParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.catalog.Search(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.listing(page))
}

func (h *AttractionHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	params, err := parseSearchParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if params.Latitude == nil || params.Longitude == nil {
		writeError(w, domain.NewValidationErrorWith("lat", "Une position est requise"))
		return
	}
	radius := params.Radius
	if radius == 0 {
		radius = 5
	}

	page, err := h.catalog.Nearby(r.Context(), *params.Latitude, *params.Longitude, radius, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.listing(page))
}

// Popular defaults the country and persona type to the active selection
func (h *AttractionHandler) Popular(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	country := q.Get("country")
	profile := domain.ProfileType(q.Get("profile"))

	if h.personas != nil {
		view := h.personas.View()
		if country == "" && view.Country != nil {
			country = view.Country.Code
		}
		if profile == "" && view.Profile != nil {
			profile = view.Profile.ProfileType
		}
	}

	verr := domain.NewValidationError()
	limit := parseInt(q, "limit", verr)
	if limit == 0 {
		limit = DefaultPopularLimit
	}
	if err := verr.OrNil(); err != nil {
		writeError(w, err)
		return
	}

	list, err := h.catalog.Popular(r.Context(), country, profile, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.listing(&domain.AttractionPage{Count: len(list), Results: list}))
}

func (h *AttractionHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AttractionResponse{Attraction: *a, InCompilation: h.contains(a)})
}

func (h *AttractionHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.Suggestions(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": list})
}

func (h *AttractionHandler) Categories(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.Categories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": list})
}

func (h *AttractionHandler) Countries(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.Countries(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"countries": list})
}

func (h *AttractionHandler) listing(page *domain.AttractionPage) AttractionListResponse {
	resp := AttractionListResponse{
		Count:         page.Count,
		Next:          page.Next,
		Previous:      page.Previous,
		Results:       page.Results,
		InCompilation: []string{},
	}
	if resp.Results == nil {
		resp.Results = []domain.Attraction{}
	}
	for i := range resp.Results {
		if h.contains(&resp.Results[i]) {
			resp.InCompilation = append(resp.InCompilation, resp.Results[i].ID)
		}
	}
	return resp
}

func (h *AttractionHandler) contains(a *domain.Attraction) bool {
	if h.membership == nil {
		return false
	}
	if h.membership.IsInCompilation(a.ID) {
		return true
	}
	return a.TripadvisorID != "" && h.membership.IsInCompilation(a.TripadvisorID)
}

// parseSearchParams reads the catalog filters from the query string,
// collecting every malformed number as a field error.
func parseSearchParams(r *http.Request) (domain.SearchParams, error) {
	q := r.URL.Query()
	verr := domain.NewValidationError()

	params := domain.SearchParams{
		Query:      strings.TrimSpace(q.Get("q")),
		Category:   q.Get("category"),
		Country:    q.Get("country"),
		City:       q.Get("city"),
		PriceLevel: q.Get("price_level"),
		Profile:    domain.ProfileType(q.Get("profile")),
		Ordering:   q.Get("ordering"),
		MinRating:  parseFloat(q, "min_rating", verr),
		MaxRating:  parseFloat(q, "max_rating", verr),
		MinReviews: parseInt(q, "min_reviews", verr),
		MinPhotos:  parseInt(q, "min_photos", verr),
		Page:       parseInt(q, "page", verr),
		PageSize:   parseInt(q, "page_size", verr),
		Radius:     parseFloat(q, "radius", verr),
	}
	if q.Has("lat") || q.Has("lng") {
		lat := parseFloat(q, "lat", verr)
		lng := parseFloat(q, "lng", verr)
		params.Latitude = &lat
		params.Longitude = &lng
	}

	if err := verr.OrNil(); err != nil {
		return params, err
	}
	return params, params.Validate()
}

func parseFloat(q url.Values, key string, verr *domain.ValidationError) float64 {
	raw := q.Get(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		verr.Add(key, "Nombre invalide")
		return 0
	}
	return v
}

func parseInt(q url.Values, key string, verr *domain.ValidationError) int {
	raw := q.Get(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		verr.Add(key, "Entier invalide")
		return 0
	}
	return v
}
