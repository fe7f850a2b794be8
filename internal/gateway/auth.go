package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"trip-planner/internal/apiclient"
	"trip-planner/internal/domain"
)

// AuthGateway maps the /auth endpoints
type AuthGateway struct {
	api Doer
}

// NewAuthGateway creates an AuthGateway
func NewAuthGateway(api Doer) *AuthGateway {
	return &AuthGateway{api: api}
}

// Register creates an account and returns it with its first token pair
func (g *AuthGateway) Register(ctx context.Context, in domain.RegisterInput) (*domain.AuthResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.PasswordConfirm == "" {
		in.PasswordConfirm = in.Password
	}

	var result domain.AuthResult
	err := g.api.Do(ctx, apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/auth/register/",
		Body:      in,
		Anonymous: true,
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.User == nil || result.Tokens.AccessToken == "" {
		return nil, fmt.Errorf("registration response is missing the user or tokens")
	}
	return &result, nil
}

// Login exchanges credentials for the account and a token pair
func (g *AuthGateway) Login(ctx context.Context, username, password string) (*domain.AuthResult, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}

	var result domain.AuthResult
	err := g.api.Do(ctx, apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/auth/login/",
		Body:      map[string]string{"username": username, "password": password},
		Anonymous: true,
	}, &result)
	if err != nil {
		if apiclient.StatusCode(err) == http.StatusBadRequest || apiclient.StatusCode(err) == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidCredentials, err)
		}
		return nil, err
	}
	if result.User == nil || result.Tokens.AccessToken == "" {
		return nil, fmt.Errorf("login response is missing the user or tokens")
	}
	return &result, nil
}

// Logout blacklists the refresh token on the backend
func (g *AuthGateway) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return domain.ErrNoRefreshToken
	}
	return g.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/logout/",
		Body:   map[string]string{"refresh": refreshToken},
	}, nil)
}

// Refresh exchanges a refresh token for a new access token
func (g *AuthGateway) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, domain.ErrNoRefreshToken
	}

	var pair domain.TokenPair
	err := g.api.Do(ctx, apiclient.Request{
		Method:    http.MethodPost,
		Path:      apiclient.RefreshPath,
		Body:      map[string]string{"refresh": refreshToken},
		Anonymous: true,
	}, &pair)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// CurrentUser returns the account the stored token belongs to
func (g *AuthGateway) CurrentUser(ctx context.Context) (*domain.User, error) {
	var raw json.RawMessage
	if err := g.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/auth/me/"}, &raw); err != nil {
		return nil, err
	}
	return decodeUser(raw)
}

// UpdateProfile patches the account fields
func (g *AuthGateway) UpdateProfile(ctx context.Context, update domain.UserUpdate) (*domain.User, error) {
	if update.Email != nil && !strings.Contains(*update.Email, "@") {
		return nil, domain.NewValidationErrorWith("email", "Adresse email invalide")
	}

	var raw json.RawMessage
	err := g.api.Do(ctx, apiclient.Request{
		Method: http.MethodPatch,
		Path:   "/auth/profile/",
		Body:   update,
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeUser(raw)
}

// ChangePassword replaces the account password
func (g *AuthGateway) ChangePassword(ctx context.Context, change domain.PasswordChange) error {
	if err := change.Validate(); err != nil {
		return err
	}
	return g.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/change-password/",
		Body:   change,
	}, nil)
}

// decodeUser accepts both {"user": {...}} and a bare user object
func decodeUser(raw json.RawMessage) (*domain.User, error) {
	var envelope struct {
		User *domain.User `json:"user"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.User != nil && envelope.User.ID != 0 {
		return envelope.User, nil
	}

	var user domain.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("invalid user response: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("user response carried no id")
	}
	return &user, nil
}
