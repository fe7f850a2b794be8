package middleware

import (
	"context"
	"net/http"

	"trip-planner/internal/domain"
	"trip-planner/internal/observability"
)

type contextKey string

const userKey contextKey = "user"

// SessionChecker is the part of the session state the guard consults
type SessionChecker interface {
	IsAuthenticated(ctx context.Context) bool
	User() *domain.User
}

// RequireSession rejects requests while no account is signed in with a
// usable access token. The signed-in user is put on the request context.
func RequireSession(session SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := session.User()
			if user == nil || !session.IsAuthenticated(r.Context()) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"Authentification requise"}`))
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = observability.WithUserID(ctx, user.ID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom returns the user stored by RequireSession
func UserFrom(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userKey).(*domain.User)
	return user, ok
}

// WithUser stores user on ctx as RequireSession does
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}
