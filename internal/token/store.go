// Package token keeps the access/refresh token pair in client storage and
// judges access token expiry locally, without contacting the backend.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"trip-planner/internal/domain"
)

const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"

	// ExpiryMargin is the lookahead under which a token counts as already expired
	ExpiryMargin = 30 * time.Second
)

// Store is the only component that reads or writes the token keys
type Store struct {
	kv     domain.KeyValueStore
	now    func() time.Time
	parser *jwt.Parser
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces the wall clock used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a token store over kv
func NewStore(kv domain.KeyValueStore, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		now:    time.Now,
		parser: jwt.NewParser(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExpiresAt decodes the exp claim of token without verifying its signature
func (s *Store) ExpiresAt(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	var claims jwt.RegisteredClaims
	if _, _, err := s.parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// IsExpired reports whether token is undecodable, carries no exp claim, or
// expires within ExpiryMargin of now.
func (s *Store) IsExpired(token string) bool {
	exp, ok := s.ExpiresAt(token)
	if !ok {
		return true
	}
	now := time.Unix(s.now().Unix(), 0)
	return exp.Sub(now) < ExpiryMargin
}

// AccessToken returns the stored access token as is, expired or not
func (s *Store) AccessToken(ctx context.Context) (string, bool, error) {
	return s.read(ctx, AccessTokenKey)
}

// RefreshToken returns the stored refresh token
func (s *Store) RefreshToken(ctx context.Context) (string, bool, error) {
	return s.read(ctx, RefreshTokenKey)
}

// ValidAccessToken returns the stored access token only when it is not expired.
// An expired token purges both stored tokens before returning absent.
func (s *Store) ValidAccessToken(ctx context.Context) (string, bool, error) {
	access, ok, err := s.read(ctx, AccessTokenKey)
	if err != nil || !ok {
		return "", false, err
	}

	if s.IsExpired(access) {
		if err := s.Clear(ctx); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return access, true, nil
}

// SetTokens stores both tokens in one write
func (s *Store) SetTokens(ctx context.Context, access, refresh string) error {
	if access == "" || refresh == "" {
		return fmt.Errorf("%w: both tokens are required", domain.ErrInvalidInput)
	}
	if err := s.kv.SetMany(ctx, map[string]string{
		AccessTokenKey:  access,
		RefreshTokenKey: refresh,
	}); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	return nil
}

// SetAccessToken replaces the access token after a refresh, keeping the refresh token
func (s *Store) SetAccessToken(ctx context.Context, access string) error {
	if access == "" {
		return fmt.Errorf("%w: access token is required", domain.ErrInvalidInput)
	}
	if err := s.kv.SetMany(ctx, map[string]string{AccessTokenKey: access}); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	return nil
}

// Clear removes both tokens in one delete
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.DeleteMany(ctx, AccessTokenKey, RefreshTokenKey); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

func (s *Store) read(ctx context.Context, key string) (string, bool, error) {
	value, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, ok && value != "", nil
}
