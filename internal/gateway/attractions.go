package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"trip-planner/internal/apiclient"
	"trip-planner/internal/domain"
)

// AttractionsGateway maps the read-only catalog endpoints
type AttractionsGateway struct {
	api Doer
}

// NewAttractionsGateway creates an AttractionsGateway
func NewAttractionsGateway(api Doer) *AttractionsGateway {
	return &AttractionsGateway{api: api}
}

// Search runs a filtered, paginated catalog search
func (g *AttractionsGateway) Search(ctx context.Context, params domain.SearchParams) (*domain.AttractionPage, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	err := g.api.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/attractions/search/",
		Query:  searchQuery(params),
	}, &raw)
	if err != nil {
		return nil, err
	}

	var page domain.AttractionPage
	if err := json.Unmarshal(raw, &page); err != nil || page.Results == nil {
		// some deployments answer with a bare list
		list, lerr := decodeList[domain.Attraction](raw)
		if lerr != nil {
			return nil, lerr
		}
		page = domain.AttractionPage{Count: len(list), Results: list}
	}
	return &page, nil
}

// Popular lists the most popular attractions, optionally for a country and persona type
func (g *AttractionsGateway) Popular(ctx context.Context, country string, profile domain.ProfileType, limit int) ([]domain.Attraction, error) {
	q := url.Values{}
	if country != "" {
		q.Set("country", country)
	}
	if profile != "" {
		q.Set("profile", string(profile))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var raw json.RawMessage
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/attractions/popular/", Query: q}, &raw); err != nil {
		return nil, err
	}
	return decodeList[domain.Attraction](raw)
}

// Nearby searches around a position, radius in kilometres
func (g *AttractionsGateway) Nearby(ctx context.Context, lat, lng, radiusKm float64, params domain.SearchParams) (*domain.AttractionPage, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, fmt.Errorf("%w: coordinates out of range", domain.ErrInvalidInput)
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", domain.ErrInvalidInput)
	}
	params.Latitude = &lat
	params.Longitude = &lng
	params.Radius = radiusKm
	return g.Search(ctx, params)
}

// Get returns one attraction by its id
func (g *AttractionsGateway) Get(ctx context.Context, id string) (*domain.Attraction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: an attraction id is required", domain.ErrInvalidInput)
	}

	var a domain.Attraction
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/attractions/" + url.PathEscape(id) + "/"}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Suggestions returns search-as-you-type entries. Queries under two characters yield nothing.
func (g *AttractionsGateway) Suggestions(ctx context.Context, query string) ([]domain.Suggestion, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 2 {
		return []domain.Suggestion{}, nil
	}

	var raw json.RawMessage
	err := g.api.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/attractions/suggestions/",
		Query:  url.Values{"q": {query}},
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Suggestion](raw)
}

// Categories lists the catalog categories
func (g *AttractionsGateway) Categories(ctx context.Context) ([]domain.Category, error) {
	var raw json.RawMessage
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/attractions/categories/"}, &raw); err != nil {
		return nil, err
	}
	return decodeList[domain.Category](raw)
}

// Countries lists the destination countries
func (g *AttractionsGateway) Countries(ctx context.Context) ([]domain.CountryOption, error) {
	var raw json.RawMessage
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/attractions/countries/"}, &raw); err != nil {
		return nil, err
	}
	return decodeList[domain.CountryOption](raw)
}

func searchQuery(p domain.SearchParams) url.Values {
	q := url.Values{}
	setString := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			q.Set(key, value)
		}
	}
	setFloat := func(key string, value float64) {
		if value != 0 {
			q.Set(key, strconv.FormatFloat(value, 'f', -1, 64))
		}
	}
	setInt := func(key string, value int) {
		if value != 0 {
			q.Set(key, strconv.Itoa(value))
		}
	}

	setString("query", p.Query)
	setString("category", p.Category)
	setString("country", p.Country)
	setString("city", p.City)
	setFloat("min_rating", p.MinRating)
	setFloat("max_rating", p.MaxRating)
	setInt("min_reviews", p.MinReviews)
	setInt("min_photos", p.MinPhotos)
	setString("price_level", p.PriceLevel)
	setString("profile", string(p.Profile))
	setString("ordering", p.Ordering)
	setInt("page", p.Page)
	setInt("page_size", p.PageSize)

	if p.Latitude != nil && p.Longitude != nil {
		q.Set("latitude", strconv.FormatFloat(*p.Latitude, 'f', -1, 64))
		q.Set("longitude", strconv.FormatFloat(*p.Longitude, 'f', -1, 64))
		setFloat("radius", p.Radius)
	}
	return q
}
