package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"trip-planner/internal/domain"
)

const (
	profileKeyPrefix     = "currentProfileId_"
	countryKeyPrefix     = "selectedCountry_"
	compilationKeyPrefix = "compilation_"
)

// UserScope reads and writes the per-user keys of client storage. Every key
// carries the user id so one account can never read another account's selection.
type UserScope struct {
	store  domain.KeyValueStore
	userID int64
}

// NewUserScope returns the storage scope of userID
func NewUserScope(store domain.KeyValueStore, userID int64) *UserScope {
	return &UserScope{store: store, userID: userID}
}

func (s *UserScope) profileKey() string {
	return profileKeyPrefix + strconv.FormatInt(s.userID, 10)
}

func (s *UserScope) countryKey() string {
	return countryKeyPrefix + strconv.FormatInt(s.userID, 10)
}

func (s *UserScope) compilationKey() string {
	return compilationKeyPrefix + strconv.FormatInt(s.userID, 10)
}

// Selection returns the stored persona id and country. ok is false unless both are present and readable.
func (s *UserScope) Selection(ctx context.Context) (profileID int64, country domain.Country, ok bool, err error) {
	rawID, hasID, err := s.store.Get(ctx, s.profileKey())
	if err != nil {
		return 0, country, false, err
	}
	rawCountry, hasCountry, err := s.store.Get(ctx, s.countryKey())
	if err != nil {
		return 0, country, false, err
	}
	if !hasID || !hasCountry {
		return 0, country, false, nil
	}

	profileID, err = strconv.ParseInt(rawID, 10, 64)
	if err != nil || profileID <= 0 {
		return 0, country, false, nil
	}
	if err := json.Unmarshal([]byte(rawCountry), &country); err != nil || country.Code == "" {
		return 0, domain.Country{}, false, nil
	}
	return profileID, country, true, nil
}

// SaveSelection replaces the stored persona id and country in one write
func (s *UserScope) SaveSelection(ctx context.Context, profileID int64, country domain.Country) error {
	encoded, err := json.Marshal(country)
	if err != nil {
		return fmt.Errorf("failed to encode country: %w", err)
	}
	return s.store.SetMany(ctx, map[string]string{
		s.profileKey(): strconv.FormatInt(profileID, 10),
		s.countryKey(): string(encoded),
	})
}

// ClearSelection removes the stored persona id and country
func (s *UserScope) ClearSelection(ctx context.Context) error {
	return s.store.DeleteMany(ctx, s.profileKey(), s.countryKey())
}

// ClearLegacyCompilation removes the pre-server compilation cache
func (s *UserScope) ClearLegacyCompilation(ctx context.Context) error {
	return s.store.DeleteMany(ctx, s.compilationKey())
}

// Clear removes every key of the scope
func (s *UserScope) Clear(ctx context.Context) error {
	return s.store.DeleteMany(ctx, s.profileKey(), s.countryKey(), s.compilationKey())
}
