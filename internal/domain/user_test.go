package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"trip-planner/internal/domain"
	"trip-planner/internal/testutil"
)

func TestRegisterInput_Validate(t *testing.T) {
	tests := []struct {
		name  string
		in    domain.RegisterInput
		field string
	}{
		{"missing username", domain.RegisterInput{Email: "a@b.fr", Password: "12345678"}, "username"},
		{"bad email", domain.RegisterInput{Username: "a", Email: "nope", Password: "12345678"}, "email"},
		{"short password", domain.RegisterInput{Username: "a", Email: "a@b.fr", Password: "123"}, "password"},
		{"mismatch", domain.RegisterInput{Username: "a", Email: "a@b.fr", Password: "12345678", PasswordConfirm: "87654321"}, "password_confirm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verr *domain.ValidationError
			if assert.ErrorAs(t, tt.in.Validate(), &verr) {
				assert.Contains(t, verr.Fields, tt.field)
			}
		})
	}
}

func TestPasswordChange_Validate(t *testing.T) {
	same := domain.PasswordChange{OldPassword: "motdepasse", NewPassword: "motdepasse"}
	assert.ErrorIs(t, same.Validate(), domain.ErrInvalidInput)

	ok := domain.PasswordChange{OldPassword: "motdepasse", NewPassword: "nouveau-mdp"}
	assert.NoError(t, ok.Validate())
}

func TestEvent_UserID(t *testing.T) {
	user := testutil.NewTestUser(testutil.WithUserID(7), testutil.WithUsername("alice"))

	assert.Equal(t, int64(7), domain.Event{Kind: domain.EventAuthenticated, User: user, OccurredAt: time.Now()}.UserID())
	assert.Zero(t, domain.Event{Kind: domain.EventSignedOut}.UserID())
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestValidationError(t *testing.T) {
	verr := domain.NewValidationError()
	assert.NoError(t, verr.OrNil())

	verr.Add("b", "second")
	verr.Add("a", "first")
	verr.Add("a", "ignored")

	err := verr.OrNil()
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	assert.Equal(t, "Données invalides: first, second", err.Error())
}
