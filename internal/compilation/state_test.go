package compilation

import (
	"context"
	"errors"
	"strconv"
	"sync"
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
	events  *testutil.EventRecorder
	state   *State
	account domain.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	fb := testutil.NewFakeBackend(t)
	tokens := token.NewStore(storage.NewMemoryStore())
	client := apiclient.New(fb.BaseURL(), tokens)
	events := testutil.NewEventRecorder()

	account := fb.AddAccount("alice", "password123")
	pair := fb.IssueTokens(account.ID)
	require.NoError(t, tokens.SetTokens(context.Background(), pair.AccessToken, pair.RefreshToken))

	return &harness{
		backend: fb,
		events:  events,
		state:   New(gateway.NewCompilationsGateway(client), events, ""),
		account: account,
	}
}

func (h *harness) persona(name string, budget domain.BudgetRange) domain.Profile {
	return h.backend.AddProfile(h.account.ID, domain.Profile{
		Name:        name,
		Age:         30,
		ProfileType: domain.ProfileTourist,
		BudgetRange: budget,
	})
}

// activate announces persona as selected, as the persona state would
func (h *harness) activate(p domain.Profile) {
	h.state.OnPersonaEvent(context.Background(), domain.Event{
		Kind:    domain.EventPersonaChanged,
		User:    &h.account,
		Profile: &p,
	})
}


func compilationRoute(method string, id int64, suffix string) string {
	return method + " /attractions/compilations/" + strconv.FormatInt(id, 10) + "/" + suffix
}

func TestPersonaChanged_CreatesDefaultCompilation(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)

	h.activate(p)

	stored := h.backend.Compilations(p.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.DefaultCompilationName, stored[0].Name)
	assert.Equal(t, DefaultDescription, stored[0].Description)

	current := h.state.Current()
	require.NotNil(t, current)
	assert.Equal(t, stored[0].ID, current.ID)

	ev, ok := h.events.Last(domain.EventCompilationChanged)
	require.True(t, ok)
	assert.Equal(t, h.account.ID, ev.UserID())
	assert.Equal(t, current.ID, ev.Compilation.ID)

	assert.Len(t, h.state.View().Compilations, 1)
}

func TestPersonaChanged_ReusesExistingDefault(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	existing := h.backend.AddCompilation(p.ID, domain.DefaultCompilationName)
	h.backend.AddCompilation(p.ID, "Week-end Lyon")

	h.activate(p)

	require.NotNil(t, h.state.Current())
	assert.Equal(t, existing.ID, h.state.Current().ID)
	assert.Zero(t, h.backend.Calls("POST /attractions/compilations/"))
	assert.Len(t, h.state.View().Compilations, 2)
}

func TestEnsureDefault_Idempotent(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	h.activate(p)

	first := h.state.Current()
	again, err := h.state.EnsureDefault(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, h.backend.Compilations(p.ID), 1)
}

func TestEnsureDefault_ConcurrentCallsCreateOne(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	h.state.persona = &p

	const callers = 5
	ids := make([]int64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := h.state.EnsureDefault(context.Background(), p)
			if err == nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, h.backend.Compilations(p.ID), 1)
	for _, id := range ids {
		assert.Equal(t, h.backend.Compilations(p.ID)[0].ID, id)
	}
	assert.Equal(t, 1, h.backend.Calls("POST /attractions/compilations/"))
}

func TestEnsureDefault_RequiresPersona(t *testing.T) {
	h := newHarness(t)

	_, err := h.state.EnsureDefault(context.Background(), domain.Profile{})
	assert.ErrorIs(t, err, domain.ErrNoActivePersona)
}

func TestAddAttraction(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	h.activate(p)
	h.events.Reset()

	err := h.state.AddAttraction(context.Background(), h.backend.Attraction("188151"), AddOptions{Note: "au coucher du soleil"})
	require.NoError(t, err)

	assert.True(t, h.state.IsInCompilation("188151"))
	assert.Equal(t, 1, h.state.Count())
	assert.InDelta(t, 40.0, h.state.TotalBudget(), 0.001)

	compiled := h.state.ActiveAttractions()
	require.Len(t, compiled, 1)
	assert.Equal(t, "Tour Eiffel", compiled[0].Name)
	assert.Equal(t, 1, compiled[0].Priority)
	assert.Equal(t, "au coucher du soleil", compiled[0].PersonalNote)

	assert.Equal(t, []domain.EventKind{domain.EventCompilationChanged}, h.events.Kinds())
}

func TestAddAttraction_AlreadyPresentIsNoop(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	h.activate(p)
	ctx := context.Background()
	eiffel := h.backend.Attraction("188151")

	require.NoError(t, h.state.AddAttraction(ctx, eiffel, AddOptions{}))
	require.NoError(t, h.state.AddAttraction(ctx, eiffel, AddOptions{Priority: 3}))

	route := compilationRoute("POST", h.state.Current().ID, "add_attraction/")
	assert.Equal(t, 1, h.backend.Calls(route))
	assert.Equal(t, 1, h.state.Count())
}

func TestAddAttraction_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts AddOptions
	}{
		{"priority_too_high", AddOptions{Priority: 6}},
		{"priority_negative", AddOptions{Priority: -1}},
		{"negative_cost", AddOptions{EstimatedCost: testutil.Float(-5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			p := h.persona("Solo", domain.BudgetLow)
			h.activate(p)

			err := h.state.AddAttraction(context.Background(), h.backend.Attraction("188151"), tt.opts)

			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.NotEmpty(t, h.state.View().LastError)
			assert.Zero(t, h.backend.Calls(compilationRoute("POST", h.state.Current().ID, "add_attraction/")))
		})
	}
}

func TestAddAttraction_WithoutPersona(t *testing.T) {
	h := newHarness(t)

	err := h.state.AddAttraction(context.Background(), h.backend.Attraction("188151"), AddOptions{})
	assert.ErrorIs(t, err, domain.ErrNoActivePersona)
}

func TestRemoveAttraction_SoftRemovedItemsDoNotCount(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	h.activate(p)
	ctx := context.Background()

	require.NoError(t, h.state.AddAttraction(ctx, h.backend.Attraction("188151"), AddOptions{}))
	require.NoError(t, h.state.AddAttraction(ctx, h.backend.Attraction("188757"), AddOptions{EstimatedCost: testutil.Float(17)}))

	require.NoError(t, h.state.RemoveAttraction(ctx, "188151"))

	assert.False(t, h.state.IsInCompilation("188151"))
	assert.True(t, h.state.IsInCompilation("188757"))
	assert.Equal(t, 1, h.state.Count())
	assert.Len(t, h.state.Current().Items, 2, "removed item stays listed as inactive")
	assert.InDelta(t, 17.0, h.state.TotalBudget(), 0.001)
	assert.Len(t, h.state.ActiveAttractions(), 1)
}

func TestRemoveAttraction_ThenAddAgainReactivates(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	h.activate(p)
	ctx := context.Background()
	eiffel := h.backend.Attraction("188151")

	require.NoError(t, h.state.AddAttraction(ctx, eiffel, AddOptions{}))
	require.NoError(t, h.state.RemoveAttraction(ctx, "188151"))
	require.NoError(t, h.state.AddAttraction(ctx, eiffel, AddOptions{}))

	assert.True(t, h.state.IsInCompilation("188151"))
	assert.Len(t, h.state.Current().Items, 1)
}

func TestRemoveAttraction_NoActiveCompilation(t *testing.T) {
	h := newHarness(t)

	err := h.state.RemoveAttraction(context.Background(), "188151")
	assert.ErrorIs(t, err, domain.ErrNoActiveCompilation)

	err = h.state.MarkVisited(context.Background(), 12)
	assert.ErrorIs(t, err, domain.ErrNoActiveCompilation)
}

func TestMarkVisited(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	h.activate(p)
	ctx := context.Background()

	require.NoError(t, h.state.AddAttraction(ctx, h.backend.Attraction("188757"), AddOptions{}))
	itemID := h.state.ActiveAttractions()[0].ItemID

	require.NoError(t, h.state.MarkVisited(ctx, itemID))

	assert.True(t, h.state.ActiveAttractions()[0].IsVisited)
}

func TestBudgetStatus(t *testing.T) {
	tests := []struct {
		cost float64
		want domain.BudgetStatus
	}{
		{70, domain.UnderBudget},
		{85, domain.OnBudget},
		{100, domain.OnBudget},
		{120, domain.OverBudget},
	}

	for _, tt := range tests {
		t.Run(strconv.FormatFloat(tt.cost, 'f', 0, 64), func(t *testing.T) {
			h := newHarness(t)
			p := h.persona("Solo", domain.BudgetLow)
			h.activate(p)

			require.NoError(t, h.state.AddAttraction(context.Background(), h.backend.Attraction("188151"), AddOptions{EstimatedCost: testutil.Float(tt.cost)}))

			status, ok := h.state.BudgetStatus()
			require.True(t, ok)
			assert.Equal(t, tt.want, status)

			view := h.state.View()
			require.NotNil(t, view.BudgetStatus)
			assert.Equal(t, tt.want.Label(), view.BudgetLabel)
		})
	}
}

func TestBudgetStatus_UnknownWithoutCeiling(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Grand train", domain.BudgetLuxury)
	h.activate(p)

	require.NoError(t, h.state.AddAttraction(context.Background(), h.backend.Attraction("188151"), AddOptions{}))

	_, ok := h.state.BudgetStatus()
	assert.False(t, ok)
	assert.Nil(t, h.state.View().BudgetStatus)
}

func TestBudgetStatus_NoCompilation(t *testing.T) {
	h := newHarness(t)

	_, ok := h.state.BudgetStatus()
	assert.False(t, ok)
	assert.Zero(t, h.state.Count())
	assert.Zero(t, h.state.TotalBudget())
	assert.Empty(t, h.state.ActiveAttractions())
}

func TestCreateAndSelect(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	h.activate(p)
	ctx := context.Background()
	defaultID := h.state.Current().ID

	created, err := h.state.Create(ctx, "Week-end Lyon", "bouchons")
	require.NoError(t, err)

	assert.Equal(t, defaultID, h.state.Current().ID, "creating does not select")
	assert.Len(t, h.state.View().Compilations, 2)

	selected, err := h.state.Select(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, selected.ID)
	assert.Equal(t, created.ID, h.state.Current().ID)
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	h.activate(p)

	_, err := h.state.Create(context.Background(), "x", "")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Len(t, h.backend.Compilations(p.ID), 1)
}

func TestUpdate_ActiveCompilation(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	h.activate(p)
	ctx := context.Background()
	id := h.state.Current().ID

	name := "Paris en famille"
	_, err := h.state.Update(ctx, id, domain.CompilationUpdate{Name: &name})
	require.NoError(t, err)

	assert.Equal(t, name, h.state.Current().Name)
	assert.Equal(t, name, h.state.View().Compilations[0].Name)

	short := "P"
	_, err = h.state.Update(ctx, id, domain.CompilationUpdate{Name: &short})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDelete_ActiveRecreatesDefault(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	h.activate(p)
	ctx := context.Background()
	previous := h.state.Current().ID

	require.NoError(t, h.state.Delete(ctx, previous))

	current := h.state.Current()
	require.NotNil(t, current)
	assert.NotEqual(t, previous, current.ID)
	assert.Equal(t, domain.DefaultCompilationName, current.Name)
	assert.Len(t, h.backend.Compilations(p.ID), 1)
}

func TestDelete_OtherKeepsCurrent(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	h.activate(p)
	ctx := context.Background()
	current := h.state.Current().ID

	other, err := h.state.Create(ctx, "Week-end Lyon", "")
	require.NoError(t, err)
	require.NoError(t, h.state.Delete(ctx, other.ID))

	assert.Equal(t, current, h.state.Current().ID)
	assert.Len(t, h.state.View().Compilations, 1)
}

func TestClear(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	h.activate(p)
	ctx := context.Background()

	require.NoError(t, h.state.AddAttraction(ctx, h.backend.Attraction("188151"), AddOptions{}))
	require.NoError(t, h.state.Clear(ctx))

	assert.Zero(t, h.state.Count())
	assert.False(t, h.state.IsInCompilation("188151"))
	assert.Equal(t, domain.DefaultCompilationName, h.state.Current().Name)
}

func TestPersonaCleared_Resets(t *testing.T) {
	h := newHarness(t)
	p := h.persona("Solo", domain.BudgetLow)
	h.activate(p)
	h.events.Reset()

	h.state.OnPersonaEvent(context.Background(), domain.Event{Kind: domain.EventPersonaCleared, User: &h.account})

	view := h.state.View()
	assert.Nil(t, view.Compilation)
	assert.Empty(t, view.Compilations)
	assert.Equal(t, []domain.EventKind{domain.EventCompilationChanged}, h.events.Kinds())

	_, err := h.state.ReloadList(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoActivePersona)
}

func TestPersonaSwitch_DiscardsSupersededResponse(t *testing.T) {
	h := newHarness(t)
	first := h.persona("Solo", domain.BudgetLow)
	second := h.persona("Famille", domain.BudgetMedium)
	h.activate(first)
	ctx := context.Background()
	id := h.state.Current().ID

	route := compilationRoute("GET", id, "")
	before := h.backend.Calls(route)
	release := h.backend.Hold(route)

	result := make(chan error, 1)
	go func() {
		_, err := h.state.Select(ctx, id)
		result <- err
	}()

	require.Eventually(t, func() bool { return h.backend.Calls(route) > before }, 2*time.Second, 5*time.Millisecond)

	h.activate(second)
	release()

	err := <-result
	assert.True(t, errors.Is(err, domain.ErrStaleResponse))

	current := h.state.Current()
	require.NotNil(t, current)
	assert.Equal(t, second.ID, current.ProfileID)
}
