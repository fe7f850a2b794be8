package session

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-planner/internal/apiclient"
	"trip-planner/internal/domain"
	"trip-planner/internal/gateway"
	"trip-planner/internal/storage"
	"trip-planner/internal/testutil"
	"trip-planner/internal/token"
)

type harness struct {
	backend *testutil.FakeBackend
	kv      *storage.MemoryStore
	tokens  *token.Store
	events  *testutil.EventRecorder
	state   *State
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	fb := testutil.NewFakeBackend(t)
	kv := storage.NewMemoryStore()
	tokens := token.NewStore(kv)
	client := apiclient.New(fb.BaseURL(), tokens)
	events := testutil.NewEventRecorder()

	st := New(gateway.NewAuthGateway(client), tokens, kv, events)
	client.OnUnauthorized(st.HandleUnauthorized)

	return &harness{backend: fb, kv: kv, tokens: tokens, events: events, state: st}
}

func (h *harness) login(t *testing.T) domain.User {
	t.Helper()
	account := h.backend.AddAccount("alice", "password123")
	_, err := h.state.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)
	return account
}

func TestBootstrap_WithoutTokens(t *testing.T) {
	h := newHarness(t)

	h.state.Bootstrap(context.Background())

	assert.Equal(t, PhaseAnonymous, h.state.Phase())
	assert.Equal(t, 0, h.backend.Calls("GET /auth/me/"))
	assert.Empty(t, h.events.Events())
}

func TestBootstrap_RestoresStoredSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	account := h.backend.AddAccount("alice", "password123")
	pair := h.backend.IssueTokens(account.ID)
	require.NoError(t, h.tokens.SetTokens(ctx, pair.AccessToken, pair.RefreshToken))

	h.state.Bootstrap(ctx)

	view := h.state.View()
	assert.Equal(t, PhaseAuthenticated, view.Phase)
	require.NotNil(t, view.User)
	assert.Equal(t, account.ID, view.User.ID)
	assert.False(t, view.IsLoading)
	assert.True(t, h.state.IsAuthenticated(ctx))
	assert.Equal(t, []domain.EventKind{domain.EventAuthenticated}, h.events.Kinds())
}

func TestBootstrap_ExpiredTokenNeverLeavesTheClient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.tokens.SetTokens(ctx, testutil.ExpiredToken("1"), "refresh"))

	h.state.Bootstrap(ctx)

	assert.Equal(t, PhaseAnonymous, h.state.Phase())
	assert.Equal(t, 0, h.backend.Calls("GET /auth/me/"))
	assert.Equal(t, 0, h.kv.Len())
}

func TestBootstrap_RejectedTokenSettlesSilently(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.tokens.SetTokens(ctx, testutil.FreshToken("ghost"), "unknown-refresh"))

	h.state.Bootstrap(ctx)

	view := h.state.View()
	assert.Equal(t, PhaseAnonymous, view.Phase)
	assert.Empty(t, view.LastError)
	assert.False(t, view.IsLoading)
	assert.Equal(t, 0, h.kv.Len())
	assert.Empty(t, h.events.Events())
	assert.Equal(t, 1, h.backend.Calls("POST /auth/token/refresh/"))
}

func TestLogin(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newHarness(t)
		account := h.login(t)

		assert.Equal(t, PhaseAuthenticated, h.state.Phase())
		assert.True(t, h.state.IsAuthenticated(context.Background()))

		ev, ok := h.events.Last(domain.EventAuthenticated)
		require.True(t, ok)
		assert.Equal(t, account.ID, ev.UserID())
	})

	t.Run("wrong_password", func(t *testing.T) {
		h := newHarness(t)
		h.backend.AddAccount("alice", "password123")

		user, err := h.state.Login(context.Background(), "alice", "nope-nope")
		assert.Nil(t, user)
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

		view := h.state.View()
		assert.Equal(t, PhaseAnonymous, view.Phase)
		assert.Equal(t, "Identifiants invalides", view.LastError)
		assert.False(t, view.IsLoading)
		assert.Equal(t, 0, h.kv.Len())
		assert.Empty(t, h.events.Events())
	})
}

func TestLogin_LoadingFlagWhileInFlight(t *testing.T) {
	h := newHarness(t)
	h.backend.AddAccount("alice", "password123")
	release := h.backend.Hold("POST /auth/login/")

	done := make(chan error, 1)
	go func() {
		_, err := h.state.Login(context.Background(), "alice", "password123")
		done <- err
	}()

	assert.Eventually(t, func() bool {
		v := h.state.View()
		return v.IsLoading && v.Phase == PhaseAuthenticating
	}, 2*time.Second, 5*time.Millisecond)

	release()
	require.NoError(t, <-done)
	assert.False(t, h.state.View().IsLoading)
	assert.Equal(t, PhaseAuthenticated, h.state.Phase())
}

func TestRegister(t *testing.T) {
	h := newHarness(t)

	user, err := h.state.Register(context.Background(), domain.RegisterInput{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)
	assert.Equal(t, PhaseAuthenticated, h.state.Phase())

	_, err = h.state.Register(context.Background(), domain.RegisterInput{Username: "x", Email: "bad", Password: "1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, PhaseAuthenticated, h.state.Phase(), "a failed registration keeps the current session")
	assert.NotEmpty(t, h.state.View().LastError)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account := h.login(t)

	scope := storage.NewUserScope(h.kv, account.ID)
	require.NoError(t, scope.SaveSelection(ctx, 12, domain.Country{Code: "France", DisplayName: "France"}))
	legacyKey := "compilation_" + strconv.FormatInt(account.ID, 10)
	require.NoError(t, h.kv.SetMany(ctx, map[string]string{legacyKey: "[]"}))

	require.NoError(t, h.state.Logout(ctx))

	assert.Equal(t, 1, h.backend.Calls("POST /auth/logout/"))
	assert.Equal(t, PhaseAnonymous, h.state.Phase())
	assert.Nil(t, h.state.User())

	_, ok, err := h.tokens.RefreshToken(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = h.kv.Get(ctx, legacyKey)
	require.NoError(t, err)
	assert.False(t, ok, "legacy compilation cache is cleared on logout")

	_, _, ok, err = scope.Selection(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "persona selection survives logout for the next sign-in")

	assert.Equal(t, []domain.EventKind{domain.EventAuthenticated, domain.EventSignedOut}, h.events.Kinds())
	ev, _ := h.events.Last(domain.EventSignedOut)
	assert.Equal(t, account.ID, ev.UserID())
}

func TestLogout_BackendFailureStillClearsLocally(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)

	h.backend.FailNext("POST /auth/logout/", http.StatusInternalServerError, `{"error":"boom"}`)

	require.NoError(t, h.state.Logout(ctx))
	assert.Equal(t, PhaseAnonymous, h.state.Phase())
	assert.Equal(t, 0, h.kv.Len())
}

func TestSession_TransparentRefresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)

	h.backend.ExpireAccessTokens()

	user, err := h.state.RefreshUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, 1, h.backend.Calls("POST /auth/token/refresh/"))
	assert.Equal(t, PhaseAuthenticated, h.state.Phase())
}

func TestSession_IrrecoverableRefreshSignsOutOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)

	h.backend.ExpireAccessTokens()
	h.backend.RevokeRefreshTokens()

	_, err := h.state.RefreshUser(ctx)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	assert.Equal(t, PhaseAnonymous, h.state.Phase())
	assert.Equal(t, 0, h.kv.Len())
	assert.Equal(t, []domain.EventKind{domain.EventAuthenticated, domain.EventSignedOut}, h.events.Kinds())
	assert.Equal(t, 1, h.backend.Calls("GET /auth/me/"), "no re-issue after a failed refresh")

	// a later logout has nothing left to announce
	require.NoError(t, h.state.Logout(ctx))
	assert.Len(t, h.events.Events(), 2)
}

func TestIsAuthenticated_RequiresUnexpiredToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)

	refresh, _, err := h.tokens.RefreshToken(ctx)
	require.NoError(t, err)
	require.NoError(t, h.tokens.SetTokens(ctx, testutil.ExpiredToken("1"), refresh))

	assert.NotNil(t, h.state.User())
	assert.False(t, h.state.IsAuthenticated(ctx))

	view := h.state.View()
	assert.Equal(t, PhaseAnonymous, view.Phase)
	assert.Nil(t, view.User)
	assert.Equal(t, 0, h.kv.Len())
	assert.Equal(t, []domain.EventKind{domain.EventAuthenticated, domain.EventSignedOut}, h.events.Kinds())

	// further checks have nothing left to announce
	assert.False(t, h.state.IsAuthenticated(ctx))
	assert.Len(t, h.events.Events(), 2)
}

func TestAccountActionsRequireSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.state.RefreshUser(ctx)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	_, err = h.state.UpdateProfile(ctx, domain.UserUpdate{})
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.ErrorIs(t, h.state.ChangePassword(ctx, domain.PasswordChange{}), domain.ErrNotAuthenticated)
}

func TestUpdateProfileAndChangePassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.login(t)

	last := "Martin"
	user, err := h.state.UpdateProfile(ctx, domain.UserUpdate{LastName: &last})
	require.NoError(t, err)
	assert.Equal(t, "Martin", user.LastName)
	assert.Equal(t, "Martin", h.state.User().LastName)

	err = h.state.ChangePassword(ctx, domain.PasswordChange{OldPassword: "password123", NewPassword: "short"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, h.state.View().LastError, "8 caractères")

	h.state.ClearError()
	assert.Empty(t, h.state.View().LastError)

	require.NoError(t, h.state.ChangePassword(ctx, domain.PasswordChange{OldPassword: "password123", NewPassword: "another-pass"}))
}
