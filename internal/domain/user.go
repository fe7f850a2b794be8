package domain

import (
	"errors"
	"strings"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoRefreshToken     = errors.New("no refresh token available")
	ErrTokenExpired       = errors.New("access token expired")
	ErrNotFound           = errors.New("not found")
	ErrStaleResponse      = errors.New("response superseded by a newer request")
)

// User is the account currently signed in against the backend
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// TokenPair holds the bearer credential and its renewal credential
type TokenPair struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}

// AuthResult is returned by register and login
type AuthResult struct {
	User    *User     `json:"user"`
	Tokens  TokenPair `json:"tokens"`
	Message string    `json:"message,omitempty"`
}

// RegisterInput carries the fields accepted by the registration endpoint
type RegisterInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
}

// Validate performs the shape checks done before any network call
func (in RegisterInput) Validate() error {
	verr := NewValidationError()
	if strings.TrimSpace(in.Username) == "" {
		verr.Add("username", "Le nom d'utilisateur est requis")
	}
	if !strings.Contains(in.Email, "@") {
		verr.Add("email", "Adresse email invalide")
	}
	if len(in.Password) < 8 {
		verr.Add("password", "Le mot de passe doit contenir au moins 8 caractères")
	}
	if in.PasswordConfirm != "" && in.PasswordConfirm != in.Password {
		verr.Add("password_confirm", "Les mots de passe ne correspondent pas")
	}
	return verr.OrNil()
}

// UserUpdate is a partial update of the account fields
type UserUpdate struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// PasswordChange is the payload of the change-password endpoint
type PasswordChange struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (c PasswordChange) Validate() error {
	verr := NewValidationError()
	if c.OldPassword == "" {
		verr.Add("old_password", "L'ancien mot de passe est requis")
	}
	if len(c.NewPassword) < 8 {
		verr.Add("new_password", "Le mot de passe doit contenir au moins 8 caractères")
	} else if c.NewPassword == c.OldPassword {
		verr.Add("new_password", "Le nouveau mot de passe doit être différent de l'ancien")
	}
	return verr.OrNil()
}
