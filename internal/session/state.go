// Package session holds the signed-in account and drives the
// anonymous -> authenticating -> authenticated lifecycle.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"trip-planner/internal/apiclient"
	"trip-planner/internal/domain"
	"trip-planner/internal/observability"
	"trip-planner/internal/storage"
)

type Phase string

const (
	PhaseAnonymous      Phase = "anonymous"
	PhaseAuthenticating Phase = "authenticating"
	PhaseAuthenticated  Phase = "authenticated"
)

// AuthAPI is the subset of the auth gateway the session drives
type AuthAPI interface {
	Register(ctx context.Context, in domain.RegisterInput) (*domain.AuthResult, error)
	Login(ctx context.Context, username, password string) (*domain.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	CurrentUser(ctx context.Context) (*domain.User, error)
	UpdateProfile(ctx context.Context, update domain.UserUpdate) (*domain.User, error)
	ChangePassword(ctx context.Context, change domain.PasswordChange) error
}

// Tokens is the token storage the session writes on sign-in and clears on sign-out
type Tokens interface {
	ValidAccessToken(ctx context.Context) (string, bool, error)
	RefreshToken(ctx context.Context) (string, bool, error)
	SetTokens(ctx context.Context, access, refresh string) error
	Clear(ctx context.Context) error
}

type Publisher interface {
	Publish(ctx context.Context, ev domain.Event)
}

// View is a point-in-time copy of the session
type View struct {
	Phase     Phase        `json:"phase"`
	User      *domain.User `json:"user,omitempty"`
	IsLoading bool         `json:"is_loading"`
	LastError string       `json:"last_error,omitempty"`
}

// State owns the session. The mutex is never held across a network call.
type State struct {
	auth   AuthAPI
	tokens Tokens
	kv     domain.KeyValueStore
	events Publisher

	mu        sync.Mutex
	phase     Phase
	user      *domain.User
	loading   int
	lastError string
}

func New(auth AuthAPI, tokens Tokens, kv domain.KeyValueStore, events Publisher) *State {
	return &State{
		auth:   auth,
		tokens: tokens,
		kv:     kv,
		events: events,
		phase:  PhaseAnonymous,
	}
}

func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Phase:     s.phase,
		User:      copyUser(s.user),
		IsLoading: s.loading > 0,
		LastError: s.lastError,
	}
}

// User returns the signed-in account, nil when anonymous
func (s *State) User() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyUser(s.user)
}

func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// IsAuthenticated requires both a held user and a non-expired access token.
// A held user whose token expired is signed out, since reading an expired
// token purges the stored pair.
func (s *State) IsAuthenticated(ctx context.Context) bool {
	if s.User() == nil {
		return false
	}
	_, ok, err := s.tokens.ValidAccessToken(ctx)
	if err != nil {
		observability.FromContext(ctx).Warn("token storage unavailable", slog.String("error", err.Error()))
		return false
	}
	if !ok {
		s.signOut(ctx, "expired")
		return false
	}
	return true
}

// ClearError dismisses the last error
func (s *State) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

// Bootstrap restores the session from stored tokens. Failures are not
// surfaced: tokens are cleared and the session settles anonymous.
func (s *State) Bootstrap(ctx context.Context) {
	log := observability.FromContext(ctx)

	if _, ok, err := s.tokens.ValidAccessToken(ctx); err != nil || !ok {
		if err != nil {
			log.Warn("token storage unavailable during bootstrap", slog.String("error", err.Error()))
		}
		s.discardTokens(ctx)
		s.settleAnonymous()
		return
	}

	done := s.begin(PhaseAuthenticating)
	defer done()

	user, err := s.auth.CurrentUser(ctx)
	if err != nil {
		log.Info("stored session could not be restored", slog.String("error", err.Error()))
		s.discardTokens(ctx)
		s.settleAnonymous()
		return
	}

	s.authenticated(ctx, user)
}

func (s *State) Register(ctx context.Context, in domain.RegisterInput) (*domain.User, error) {
	done := s.begin(PhaseAuthenticating)
	defer done()

	result, err := s.auth.Register(ctx, in)
	if err != nil {
		return nil, s.signInFailed(ctx, "registration failed", err)
	}
	return s.signIn(ctx, result)
}

func (s *State) Login(ctx context.Context, username, password string) (*domain.User, error) {
	done := s.begin(PhaseAuthenticating)
	defer done()

	result, err := s.auth.Login(ctx, username, password)
	if err != nil {
		return nil, s.signInFailed(ctx, "login failed", err)
	}
	return s.signIn(ctx, result)
}

// Logout asks the backend to revoke the refresh token, then clears local
// state whatever the backend answered.
func (s *State) Logout(ctx context.Context) error {
	done := s.begin("")
	defer done()

	log := observability.FromContext(ctx)
	previous := s.User()

	if refresh, ok, err := s.tokens.RefreshToken(ctx); err == nil && ok {
		if err := s.auth.Logout(ctx, refresh); err != nil {
			log.Warn("backend logout failed, clearing locally", slog.String("error", err.Error()))
		}
	}

	clearErr := s.tokens.Clear(ctx)
	if previous != nil {
		if err := storage.NewUserScope(s.kv, previous.ID).ClearLegacyCompilation(ctx); err != nil {
			log.Warn("failed to clear legacy compilation cache", slog.String("error", err.Error()))
		}
	}

	s.signOut(ctx, "logout")
	if clearErr != nil {
		return s.fail(clearErr)
	}
	return nil
}

// RefreshUser re-reads the signed-in account from the backend
func (s *State) RefreshUser(ctx context.Context) (*domain.User, error) {
	if s.User() == nil {
		return nil, domain.ErrNotAuthenticated
	}

	done := s.begin("")
	defer done()

	user, err := s.auth.CurrentUser(ctx)
	if err != nil {
		return nil, s.fail(err)
	}
	s.replaceUser(user)
	return copyUser(user), nil
}

func (s *State) UpdateProfile(ctx context.Context, update domain.UserUpdate) (*domain.User, error) {
	if s.User() == nil {
		return nil, domain.ErrNotAuthenticated
	}

	done := s.begin("")
	defer done()

	user, err := s.auth.UpdateProfile(ctx, update)
	if err != nil {
		return nil, s.fail(err)
	}
	s.replaceUser(user)
	return copyUser(user), nil
}

func (s *State) ChangePassword(ctx context.Context, change domain.PasswordChange) error {
	if s.User() == nil {
		return domain.ErrNotAuthenticated
	}

	done := s.begin("")
	defer done()

	if err := s.auth.ChangePassword(ctx, change); err != nil {
		return s.fail(err)
	}
	return nil
}

// HandleUnauthorized is the HTTP client hook run once the tokens were
// cleared because the access token could not be renewed.
func (s *State) HandleUnauthorized(ctx context.Context) {
	observability.FromContext(ctx).Warn("session expired, signing out")
	s.signOut(ctx, "unauthorized")
}

// begin marks an action in flight. The returned func clears the loading
// flag and must be deferred.
func (s *State) begin(phase Phase) func() {
	s.mu.Lock()
	s.loading++
	s.lastError = ""
	if phase != "" {
		s.phase = phase
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}
}

func (s *State) signIn(ctx context.Context, result *domain.AuthResult) (*domain.User, error) {
	if err := s.tokens.SetTokens(ctx, result.Tokens.AccessToken, result.Tokens.RefreshToken); err != nil {
		return nil, s.signInFailed(ctx, "failed to store tokens", err)
	}
	s.authenticated(ctx, result.User)
	return copyUser(result.User), nil
}

func (s *State) signInFailed(ctx context.Context, msg string, err error) error {
	observability.FromContext(ctx).Info(msg, slog.String("error", err.Error()))

	s.mu.Lock()
	if s.user == nil {
		s.phase = PhaseAnonymous
	} else {
		s.phase = PhaseAuthenticated
	}
	s.mu.Unlock()
	return s.fail(err)
}

func (s *State) authenticated(ctx context.Context, user *domain.User) {
	s.mu.Lock()
	s.user = copyUser(user)
	s.phase = PhaseAuthenticated
	s.mu.Unlock()

	ctx = observability.WithUserID(ctx, user.ID)
	observability.FromContext(ctx).Info("session authenticated", slog.String("username", user.Username))
	s.events.Publish(ctx, domain.Event{Kind: domain.EventAuthenticated, User: copyUser(user)})
}

// signOut drops the held user and announces it once, however many paths
// race to sign out.
func (s *State) signOut(ctx context.Context, reason string) {
	s.mu.Lock()
	previous := s.user
	s.user = nil
	s.phase = PhaseAnonymous
	s.mu.Unlock()

	if previous == nil {
		return
	}

	ctx = observability.WithUserID(ctx, previous.ID)
	observability.FromContext(ctx).Info("session signed out", slog.String("reason", reason))
	s.events.Publish(ctx, domain.Event{Kind: domain.EventSignedOut, User: previous})
}

func (s *State) settleAnonymous() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.phase = PhaseAnonymous
}

func (s *State) discardTokens(ctx context.Context) {
	if err := s.tokens.Clear(ctx); err != nil {
		observability.FromContext(ctx).Warn("failed to clear tokens", slog.String("error", err.Error()))
	}
}

func (s *State) replaceUser(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != nil && user != nil && s.user.ID == user.ID {
		s.user = copyUser(user)
	}
}

func (s *State) fail(err error) error {
	msg := apiclient.Message(err)
	if errors.Is(err, context.Canceled) {
		msg = ""
	}

	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
	return err
}

func copyUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
