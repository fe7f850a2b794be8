package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"trip-planner/internal/apiclient"
	"trip-planner/internal/domain"
)

const profilesPath = "/attractions/profiles/"

// ProfilesGateway maps the persona endpoints
type ProfilesGateway struct {
	api Doer
}

// NewProfilesGateway creates a ProfilesGateway
func NewProfilesGateway(api Doer) *ProfilesGateway {
	return &ProfilesGateway{api: api}
}

// List returns the personas of the signed-in account
func (g *ProfilesGateway) List(ctx context.Context) ([]domain.Profile, error) {
	var raw json.RawMessage
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: profilesPath}, &raw); err != nil {
		return nil, err
	}
	return decodeList[domain.Profile](raw)
}

func (g *ProfilesGateway) Get(ctx context.Context, id int64) (*domain.Profile, error) {
	if err := requireID(id, "profile"); err != nil {
		return nil, err
	}

	var p domain.Profile
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: idPath(profilesPath, id, "")}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (g *ProfilesGateway) Create(ctx context.Context, in domain.ProfileInput) (*domain.Profile, error) {
	var p domain.Profile
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: profilesPath, Body: in}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (g *ProfilesGateway) Update(ctx context.Context, id int64, in domain.ProfileInput) (*domain.Profile, error) {
	if err := requireID(id, "profile"); err != nil {
		return nil, err
	}

	var p domain.Profile
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodPatch, Path: idPath(profilesPath, id, ""), Body: in}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (g *ProfilesGateway) Delete(ctx context.Context, id int64) error {
	if err := requireID(id, "profile"); err != nil {
		return err
	}
	return g.api.Do(ctx, apiclient.Request{Method: http.MethodDelete, Path: idPath(profilesPath, id, "")}, nil)
}

// Compilations lists the compilations owned by a persona
func (g *ProfilesGateway) Compilations(ctx context.Context, id int64) ([]domain.Compilation, error) {
	if err := requireID(id, "profile"); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: idPath(profilesPath, id, "compilations/")}, &raw); err != nil {
		return nil, err
	}
	return decodeList[domain.Compilation](raw)
}

func (g *ProfilesGateway) Stats(ctx context.Context) (*domain.ProfileStats, error) {
	var stats domain.ProfileStats
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: profilesPath + "stats/"}, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
