package domain

import (
	"encoding/json"
	"strconv"
)

// Attraction is a read-only catalog entry owned by the backend
type Attraction struct {
	ID            string   `json:"id"`
	TripadvisorID string   `json:"tripadvisor_id,omitempty"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Address       string   `json:"address,omitempty"`
	City          string   `json:"city,omitempty"`
	Country       string   `json:"country,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Rating        float64  `json:"rating,omitempty"`
	NumReviews    int      `json:"num_reviews,omitempty"`
	NumPhotos     int      `json:"num_photos,omitempty"`
	Category      string   `json:"category,omitempty"`
	PriceLevel    string   `json:"price_level,omitempty"`
	MainImage     string   `json:"main_image,omitempty"`
	PhotoURLs     []string `json:"photos,omitempty"`
	WebURL        string   `json:"web_url,omitempty"`
}

// Matches reports whether id identifies this attraction by either identity
func (a *Attraction) Matches(id string) bool {
	if a == nil || id == "" {
		return false
	}
	return a.ID == id || (a.TripadvisorID != "" && a.TripadvisorID == id)
}

// UnmarshalJSON accepts numeric or string ids and coordinates, since the
// provider mixes both representations. Listings carry the position as a
// [lat, lng] location pair instead of separate fields.
func (a *Attraction) UnmarshalJSON(data []byte) error {
	type alias Attraction
	aux := struct {
		*alias
		ID            flexString  `json:"id"`
		TripadvisorID flexString  `json:"tripadvisor_id"`
		Latitude      flexFloat   `json:"latitude"`
		Longitude     flexFloat   `json:"longitude"`
		Location      []flexFloat `json:"location"`
	}{alias: (*alias)(a)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.ID = string(aux.ID)
	a.TripadvisorID = string(aux.TripadvisorID)
	a.Latitude = aux.Latitude.ptr
	a.Longitude = aux.Longitude.ptr
	if a.Latitude == nil && a.Longitude == nil && len(aux.Location) == 2 {
		a.Latitude = aux.Location[0].ptr
		a.Longitude = aux.Location[1].ptr
	}
	if a.ID == "" {
		a.ID = a.TripadvisorID
	}
	return nil
}

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type flexFloat struct {
	ptr *float64
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		f.ptr = &v
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// unparseable coordinates are treated as absent
		return nil
	}
	f.ptr = &parsed
	return nil
}

func (f flexFloat) value() float64 {
	if f.ptr == nil {
		return 0
	}
	return *f.ptr
}

// SearchParams are the filters accepted by the attraction search endpoint.
// Zero values are left out of the query.
type SearchParams struct {
	Query      string
	Category   string
	Country    string
	City       string
	MinRating  float64
	MaxRating  float64
	MinReviews int
	MinPhotos  int
	PriceLevel string
	Profile    ProfileType
	Ordering   string
	Page       int
	PageSize   int

	// Geographic search, radius in kilometres
	Latitude  *float64
	Longitude *float64
	Radius    float64
}

// Orderings accepted by the search endpoint
var Orderings = []string{"rating", "-rating", "num_likes", "-num_likes", "name", "-name"}

// Validate checks the filter bounds the backend would otherwise silently drop
func (p SearchParams) Validate() error {
	verr := NewValidationError()
	if p.MinRating < 0 || p.MinRating > 5 {
		verr.Add("min_rating", "La note minimale doit être entre 0 et 5")
	}
	if p.MaxRating < 0 || p.MaxRating > 5 {
		verr.Add("max_rating", "La note maximale doit être entre 0 et 5")
	}
	if p.MinReviews < 0 {
		verr.Add("min_reviews", "Le nombre d'avis ne peut pas être négatif")
	}
	if p.MinPhotos < 0 {
		verr.Add("min_photos", "Le nombre de photos ne peut pas être négatif")
	}
	if p.Radius < 0 {
		verr.Add("radius", "Le rayon ne peut pas être négatif")
	}
	if p.Profile != "" && !p.Profile.Valid() {
		verr.Add("profile", "Type de profil inconnu")
	}
	if p.Ordering != "" {
		known := false
		for _, o := range Orderings {
			if o == p.Ordering {
				known = true
				break
			}
		}
		if !known {
			verr.Add("ordering", "Tri inconnu")
		}
	}
	if p.Page < 0 || p.PageSize < 0 {
		verr.Add("page", "Pagination invalide")
	}
	return verr.OrNil()
}

// AttractionPage is a paginated attraction listing
type AttractionPage struct {
	Count    int          `json:"count"`
	Page     int          `json:"page,omitempty"`
	PageSize int          `json:"page_size,omitempty"`
	Next     string       `json:"next,omitempty"`
	Previous string       `json:"previous,omitempty"`
	Results  []Attraction `json:"results"`
}

// Suggestion is one search-as-you-type entry
type Suggestion struct {
	Type string `json:"type"` // city or attraction
	Name string `json:"name"`
}

// CountryOption is one entry of the destination country listing
type CountryOption struct {
	Value  string   `json:"value"`
	Label  string   `json:"label"`
	Count  int      `json:"count,omitempty"`
	Cities []string `json:"cities,omitempty"`
}

// Country converts the listing entry into a destination
func (o CountryOption) Country() Country {
	label := o.Label
	if label == "" {
		label = o.Value
	}
	return Country{Code: o.Value, DisplayName: label}
}

// Category is one entry of the category listing
type Category struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
	Count       int    `json:"count,omitempty"`
}
