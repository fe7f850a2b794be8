// Package gateway holds the typed request builders over the backend API.
// Gateways are stateless: they check request shape, issue one call and
// return the parsed payload or the backend's error.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"trip-planner/internal/apiclient"
	"trip-planner/internal/domain"
)

// Doer sends one backend request
type Doer interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
}

func requireID(id int64, what string) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s id is required", domain.ErrInvalidInput, what)
	}
	return nil
}

func idPath(prefix string, id int64, suffix string) string {
	return prefix + strconv.FormatInt(id, 10) + "/" + suffix
}

// decodeList accepts either a bare JSON array or a paginated {"results": [...]} envelope
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []T{}, nil
	}

	var list []T
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("invalid list response: %w", err)
	}
	if page.Results == nil {
		return []T{}, nil
	}
	return page.Results, nil
}
