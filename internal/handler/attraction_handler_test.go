package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-planner/internal/domain"
	"trip-planner/internal/testutil"
)

func TestAttractions_Search(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/attractions/search?q=paris&country=France", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeJSON[AttractionListResponse](t, w)
	assert.Equal(t, 3, resp.Count)
	assert.Empty(t, resp.InCompilation)
}

func TestAttractions_SearchRejectsBadFilters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		field string
	}{
		{"not a number", "min_rating=abc", "min_rating"},
		{"rating out of range", "min_rating=7", "min_rating"},
		{"unknown ordering", "ordering=random", "ordering"},
		{"unknown profile", "profile=astronaut", "profile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			w := h.do(t, http.MethodGet, "/api/v1/attractions/search?"+tt.query, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, testutil.DecodeJSON[ErrorResponse](t, w).Fields, tt.field)
			assert.Zero(t, h.backend.Calls("GET /attractions/search/"))
		})
	}
}

func TestAttractions_SearchMarksCompiled(t *testing.T) {
	h := newHarness(t)
	account := h.signIn(t, "alice")
	h.choosePersona(t, account, domain.BudgetLow)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/v1/compilation/items", AddItemRequest{AttractionID: "188757"}).Code)

	w := h.do(t, http.MethodGet, "/api/v1/attractions/search?q=paris", nil)

	resp := testutil.DecodeJSON[AttractionListResponse](t, w)
	assert.Equal(t, []string{"188757"}, resp.InCompilation)
}

func TestAttractions_PopularDefaultsToActiveCountry(t *testing.T) {
	h := newHarness(t)
	account := h.signIn(t, "alice")
	p := h.backend.AddProfile(account.ID, domain.Profile{Name: "Italie", Age: 40, ProfileType: domain.ProfileTourist, BudgetRange: domain.BudgetHigh})
	w := h.do(t, http.MethodPost, "/api/v1/personas/select", SelectPersonaRequest{
		ProfileID: p.ID,
		Country:   domain.Country{Code: "Italy", DisplayName: "Italie"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodGet, "/api/v1/attractions/popular", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeJSON[AttractionListResponse](t, w)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Colisée", resp.Results[0].Name)
	// listings carry coordinates as a location pair
	require.NotNil(t, resp.Results[0].Latitude)
}

func TestAttractions_PopularAnonymous(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/attractions/popular?limit=3", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, testutil.DecodeJSON[AttractionListResponse](t, w).Results)
	assert.Equal(t, 1, h.backend.Calls("GET /attractions/popular/"))
}

func TestAttractions_Nearby(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/attractions/nearby", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, testutil.DecodeJSON[ErrorResponse](t, w).Fields, "lat")

	w = h.do(t, http.MethodGet, "/api/v1/attractions/nearby?lat=48.85&lng=2.35", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAttractions_Get(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/attractions/188151", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := testutil.DecodeJSON[AttractionResponse](t, w)
	assert.Equal(t, "Tour Eiffel", resp.Name)
	assert.False(t, resp.InCompilation)

	w = h.do(t, http.MethodGet, "/api/v1/attractions/000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttractions_Lookups(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		path string
		key  string
		want int
	}{
		{"/api/v1/attractions/categories", "categories", 3},
		{"/api/v1/attractions/countries", "countries", 2},
		{"/api/v1/attractions/suggestions?q=rome", "suggestions", 1},
		{"/api/v1/attractions/suggestions?q=l", "suggestions", 0},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			body := testutil.DecodeJSON[map[string][]any](t, w)
			assert.Len(t, body[tt.key], tt.want)
		})
	}
}
