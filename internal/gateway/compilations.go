package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"trip-planner/internal/apiclient"
	"trip-planner/internal/domain"
)

const (
	compilationsPath     = "/attractions/compilations/"
	compilationItemsPath = "/attractions/compilation-items/"
)

// CompilationsGateway maps the wishlist endpoints
type CompilationsGateway struct {
	api Doer
}

// NewCompilationsGateway creates a CompilationsGateway
func NewCompilationsGateway(api Doer) *CompilationsGateway {
	return &CompilationsGateway{api: api}
}

// List returns compilations, restricted to one persona when profileID is set
func (g *CompilationsGateway) List(ctx context.Context, profileID int64) ([]domain.Compilation, error) {
	var q url.Values
	if profileID > 0 {
		q = url.Values{"user_profile": {strconv.FormatInt(profileID, 10)}}
	}

	var raw json.RawMessage
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: compilationsPath, Query: q}, &raw); err != nil {
		return nil, err
	}
	return decodeList[domain.Compilation](raw)
}

// Get returns a compilation with its items
func (g *CompilationsGateway) Get(ctx context.Context, id int64) (*domain.Compilation, error) {
	if err := requireID(id, "compilation"); err != nil {
		return nil, err
	}

	var c domain.Compilation
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: idPath(compilationsPath, id, "")}, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (g *CompilationsGateway) Create(ctx context.Context, in domain.CompilationInput) (*domain.Compilation, error) {
	if err := requireID(in.ProfileID, "profile"); err != nil {
		return nil, err
	}

	var c domain.Compilation
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: compilationsPath, Body: in}, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (g *CompilationsGateway) Update(ctx context.Context, id int64, update domain.CompilationUpdate) (*domain.Compilation, error) {
	if err := requireID(id, "compilation"); err != nil {
		return nil, err
	}

	var c domain.Compilation
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodPatch, Path: idPath(compilationsPath, id, ""), Body: update}, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (g *CompilationsGateway) Delete(ctx context.Context, id int64) error {
	if err := requireID(id, "compilation"); err != nil {
		return err
	}
	return g.api.Do(ctx, apiclient.Request{Method: http.MethodDelete, Path: idPath(compilationsPath, id, "")}, nil)
}

// AddItem adds an attraction to a compilation
func (g *CompilationsGateway) AddItem(ctx context.Context, compilationID int64, item domain.ItemInput) error {
	if err := requireID(compilationID, "compilation"); err != nil {
		return err
	}
	if item.AttractionID == "" {
		return fmt.Errorf("%w: an attraction id is required", domain.ErrInvalidInput)
	}
	return g.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   idPath(compilationsPath, compilationID, "add_attraction/"),
		Body:   item,
	}, nil)
}

// RemoveItem removes an attraction from a compilation
func (g *CompilationsGateway) RemoveItem(ctx context.Context, compilationID int64, attractionID string) error {
	if err := requireID(compilationID, "compilation"); err != nil {
		return err
	}
	if attractionID == "" {
		return fmt.Errorf("%w: an attraction id is required", domain.ErrInvalidInput)
	}
	return g.api.Do(ctx, apiclient.Request{
		Method: http.MethodDelete,
		Path:   idPath(compilationsPath, compilationID, "remove_attraction/"),
		Body:   map[string]string{"attraction_id": attractionID},
	}, nil)
}

// MarkVisited flags one compilation item as visited
func (g *CompilationsGateway) MarkVisited(ctx context.Context, itemID int64) error {
	if err := requireID(itemID, "item"); err != nil {
		return err
	}
	return g.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   idPath(compilationItemsPath, itemID, "mark_visited/"),
	}, nil)
}

func (g *CompilationsGateway) Stats(ctx context.Context) (*domain.CompilationStats, error) {
	var stats domain.CompilationStats
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: compilationsPath + "stats/"}, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
