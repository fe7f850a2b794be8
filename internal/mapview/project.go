// Package mapview projects a list of attractions onto a map view model:
// numbered markers, an initial center and zoom, the viewport bounds and the
// itinerary path drawn through the points in list order.
package mapview

import (
	"math"

	"trip-planner/internal/domain"
)

// EmptyMessage is shown when no attraction has usable coordinates
const EmptyMessage = "Aucune attraction avec des coordonnées GPS disponibles pour afficher la carte."

const (
	DefaultPadding    = 50
	DefaultSingleZoom = 13
	DefaultMultiZoom  = 10
)

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is the box the viewport is fitted to, padded by Padding pixels on each side
type Bounds struct {
	SouthWest LatLng `json:"south_west"`
	NorthEast LatLng `json:"north_east"`
	Padding   int    `json:"padding"`
}

type Marker struct {
	Number       int     `json:"number"`
	Position     LatLng  `json:"position"`
	AttractionID string  `json:"attraction_id"`
	Name         string  `json:"name"`
	City         string  `json:"city,omitempty"`
	Category     string  `json:"category,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
	PriceLevel   string  `json:"price_level,omitempty"`
	MainImage    string  `json:"main_image,omitempty"`
}

type View struct {
	Empty   bool     `json:"empty"`
	Message string   `json:"message,omitempty"`
	Center  *LatLng  `json:"center,omitempty"`
	Zoom    int      `json:"zoom,omitempty"`
	Markers []Marker `json:"markers"`
	// FitBounds and Route are only set with more than one point
	FitBounds *Bounds  `json:"fit_bounds,omitempty"`
	Route     []LatLng `json:"route,omitempty"`
	// Skipped counts attractions left out for lack of coordinates
	Skipped int `json:"skipped"`
}

// Options tunes the projection. Zero values fall back to the defaults.
type Options struct {
	Padding      int
	SingleZoom   int
	MultiZoom    int
	EmptyMessage string
}

func (o Options) withDefaults() Options {
	if o.Padding <= 0 {
		o.Padding = DefaultPadding
	}
	if o.SingleZoom <= 0 {
		o.SingleZoom = DefaultSingleZoom
	}
	if o.MultiZoom <= 0 {
		o.MultiZoom = DefaultMultiZoom
	}
	if o.EmptyMessage == "" {
		o.EmptyMessage = EmptyMessage
	}
	return o
}

// Project builds the map view of attractions. The center is the arithmetic
// mean of the valid points, not a geodesic centroid.
func Project(attractions []domain.Attraction, opts Options) View {
	opts = opts.withDefaults()

	markers := make([]Marker, 0, len(attractions))
	for _, a := range attractions {
		pos, ok := position(a)
		if !ok {
			continue
		}
		markers = append(markers, Marker{
			Number:       len(markers) + 1,
			Position:     pos,
			AttractionID: a.ID,
			Name:         a.Name,
			City:         a.City,
			Category:     a.Category,
			Rating:       a.Rating,
			PriceLevel:   a.PriceLevel,
			MainImage:    a.MainImage,
		})
	}

	view := View{
		Markers: markers,
		Skipped: len(attractions) - len(markers),
	}
	if len(markers) == 0 {
		view.Empty = true
		view.Message = opts.EmptyMessage
		return view
	}

	var sumLat, sumLng float64
	for _, m := range markers {
		sumLat += m.Position.Lat
		sumLng += m.Position.Lng
	}
	n := float64(len(markers))
	view.Center = &LatLng{Lat: sumLat / n, Lng: sumLng / n}

	if len(markers) == 1 {
		view.Zoom = opts.SingleZoom
		return view
	}

	view.Zoom = opts.MultiZoom
	view.Route = make([]LatLng, len(markers))
	bounds := Bounds{SouthWest: markers[0].Position, NorthEast: markers[0].Position, Padding: opts.Padding}
	for i, m := range markers {
		view.Route[i] = m.Position
		bounds.SouthWest.Lat = math.Min(bounds.SouthWest.Lat, m.Position.Lat)
		bounds.SouthWest.Lng = math.Min(bounds.SouthWest.Lng, m.Position.Lng)
		bounds.NorthEast.Lat = math.Max(bounds.NorthEast.Lat, m.Position.Lat)
		bounds.NorthEast.Lng = math.Max(bounds.NorthEast.Lng, m.Position.Lng)
	}
	view.FitBounds = &bounds
	return view
}

// position returns the attraction's coordinates when both are present,
// finite and within the valid latitude/longitude ranges.
func position(a domain.Attraction) (LatLng, bool) {
	if a.Latitude == nil || a.Longitude == nil {
		return LatLng{}, false
	}
	lat, lng := *a.Latitude, *a.Longitude
	if !finite(lat) || !finite(lng) {
		return LatLng{}, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return LatLng{}, false
	}
	return LatLng{Lat: lat, Lng: lng}, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
