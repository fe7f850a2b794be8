package handler

import (
	"net/http"

	"trip-planner/internal/compilation"
	"trip-planner/internal/domain"
	"trip-planner/internal/mapview"
)

// ItineraryReader exposes the active items in compilation order
type ItineraryReader interface {
	ActiveAttractions() []compilation.CompiledAttraction
}

type MapHandler struct {
	itinerary ItineraryReader
	opts      mapview.Options
}

func NewMapHandler(itinerary ItineraryReader, opts mapview.Options) *MapHandler {
	return &MapHandler{itinerary: itinerary, opts: opts}
}

// Get projects the active compilation onto the map
func (h *MapHandler) Get(w http.ResponseWriter, r *http.Request) {
	items := h.itinerary.ActiveAttractions()
	attractions := make([]domain.Attraction, 0, len(items))
	for _, it := range items {
		attractions = append(attractions, it.Attraction)
	}
	writeJSON(w, http.StatusOK, mapview.Project(attractions, h.opts))
}
