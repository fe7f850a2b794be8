// Package persona holds the traveler persona and destination country selected
// by the signed-in account, restoring them from per-user storage on sign-in.
package persona

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"trip-planner/internal/apiclient"
	"trip-planner/internal/domain"
	"trip-planner/internal/observability"
	"trip-planner/internal/storage"
)

// ProfilesAPI is the subset of the profiles gateway the persona state drives
type ProfilesAPI interface {
	List(ctx context.Context) ([]domain.Profile, error)
	Get(ctx context.Context, id int64) (*domain.Profile, error)
	Create(ctx context.Context, in domain.ProfileInput) (*domain.Profile, error)
	Update(ctx context.Context, id int64, in domain.ProfileInput) (*domain.Profile, error)
	Delete(ctx context.Context, id int64) error
	Compilations(ctx context.Context, id int64) ([]domain.Compilation, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev domain.Event)
}

// View is a point-in-time copy of the persona state
type View struct {
	Profile     *domain.Profile  `json:"profile,omitempty"`
	Country     *domain.Country  `json:"country,omitempty"`
	Profiles    []domain.Profile `json:"available_profiles"`
	ProfileSet  bool             `json:"is_profile_set"`
	TypeLabel   string           `json:"profile_type_label,omitempty"`
	BudgetLabel string           `json:"budget_range_label,omitempty"`
	IsLoading   bool             `json:"is_loading"`
	LastError   string           `json:"last_error,omitempty"`
}

type State struct {
	profiles ProfilesAPI
	kv       domain.KeyValueStore
	events   Publisher

	mu        sync.Mutex
	user      *domain.User
	list      []domain.Profile
	active    *domain.Profile
	country   *domain.Country
	listSeq   uint64
	selSeq    uint64
	loading   int
	lastError string
}

func New(profiles ProfilesAPI, kv domain.KeyValueStore, events Publisher) *State {
	return &State{
		profiles: profiles,
		kv:       kv,
		events:   events,
		list:     []domain.Profile{},
	}
}

func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Profile:    copyProfile(s.active),
		Profiles:   append([]domain.Profile{}, s.list...),
		ProfileSet: s.active != nil && s.country != nil,
		IsLoading:  s.loading > 0,
		LastError:  s.lastError,
	}
	if s.country != nil {
		c := *s.country
		v.Country = &c
	}
	if s.active != nil {
		v.TypeLabel = s.active.ProfileType.Label()
		v.BudgetLabel = s.active.BudgetRange.Label()
	}
	return v
}

// Active returns the selected persona, nil when none
func (s *State) Active() *domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyProfile(s.active)
}

// IsProfileSet reports whether both a persona and a country are selected
func (s *State) IsProfileSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.country != nil
}

// OnSessionEvent reacts to session transitions published on the bus
func (s *State) OnSessionEvent(ctx context.Context, ev domain.Event) {
	switch ev.Kind {
	case domain.EventAuthenticated:
		if ev.User == nil {
			return
		}
		s.signedIn(ctx, *ev.User)
	case domain.EventSignedOut:
		s.signedOut(ctx, ev.User)
	}
}

func (s *State) signedIn(ctx context.Context, user domain.User) {
	ctx = observability.WithUserID(ctx, user.ID)

	s.mu.Lock()
	switched := s.user == nil || s.user.ID != user.ID
	hadActive := s.active != nil
	if switched {
		// nothing from the previous account may outlive the switch
		s.resetLocked()
	}
	s.user = &user
	s.mu.Unlock()

	if switched && hadActive {
		s.events.Publish(ctx, domain.Event{Kind: domain.EventPersonaCleared, User: &user})
	}

	if _, err := s.ReloadProfiles(ctx); err != nil {
		return
	}
	s.restore(ctx, user)
}

func (s *State) signedOut(ctx context.Context, previous *domain.User) {
	s.mu.Lock()
	s.resetLocked()
	s.user = nil
	s.mu.Unlock()

	s.events.Publish(ctx, domain.Event{Kind: domain.EventPersonaCleared, User: previous})
}

// restore re-selects the persona and country saved for user. Both keys must
// be present; a persona the backend no longer knows clears the stale keys.
func (s *State) restore(ctx context.Context, user domain.User) {
	log := observability.FromContext(ctx)
	scope := storage.NewUserScope(s.kv, user.ID)

	profileID, country, ok, err := scope.Selection(ctx)
	if err != nil {
		log.Warn("failed to read stored persona", slog.String("error", err.Error()))
		return
	}
	if !ok {
		if err := scope.ClearSelection(ctx); err != nil {
			log.Warn("failed to clear partial persona selection", slog.String("error", err.Error()))
		}
		return
	}

	seq, ok := s.startFor(user.ID)
	if !ok {
		return
	}
	done := s.begin()
	defer done()

	profile, err := s.profiles.Get(ctx, profileID)
	if err != nil {
		log.Info("stored persona could not be restored",
			slog.String("profile_id", strconv.FormatInt(profileID, 10)),
			slog.String("error", err.Error()),
		)
		if clearErr := scope.ClearSelection(ctx); clearErr != nil {
			log.Warn("failed to clear stale persona selection", slog.String("error", clearErr.Error()))
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.fail(err)
		}
		return
	}

	if !s.apply(ctx, seq, user.ID, profile, &country, nil) {
		return
	}
	log.Info("persona restored", slog.String("profile_id", strconv.FormatInt(profile.ID, 10)))
}

// ReloadProfiles refreshes the list of personas owned by the account
func (s *State) ReloadProfiles(ctx context.Context) ([]domain.Profile, error) {
	user, err := s.requireUser()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.listSeq++
	seq := s.listSeq
	s.mu.Unlock()

	done := s.begin()
	defer done()

	list, err := s.profiles.List(ctx)
	if err != nil {
		return nil, s.fail(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listSeq != seq || s.user == nil || s.user.ID != user.ID {
		observability.StaleResponsesTotal.WithLabelValues("persona").Inc()
		return nil, domain.ErrStaleResponse
	}
	s.list = list
	return append([]domain.Profile{}, list...), nil
}

// Select makes profileID the active persona with the given destination country
func (s *State) Select(ctx context.Context, profileID int64, country domain.Country) (*domain.Profile, error) {
	user, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	if profileID <= 0 {
		return nil, s.fail(domain.NewValidationErrorWith("profile_id", "Un profil est requis"))
	}
	if strings.TrimSpace(country.Code) == "" {
		return nil, s.fail(domain.NewValidationErrorWith("country", "Un pays de destination est requis"))
	}
	if country.DisplayName == "" {
		country.DisplayName = country.Code
	}

	seq, _ := s.startFor(user.ID)
	done := s.begin()
	defer done()

	profile, err := s.profiles.Get(ctx, profileID)
	if err != nil {
		return nil, s.fail(err)
	}

	persist := func(ctx context.Context) error {
		return storage.NewUserScope(s.kv, user.ID).SaveSelection(ctx, profile.ID, country)
	}
	if !s.apply(ctx, seq, user.ID, profile, &country, persist) {
		return nil, domain.ErrStaleResponse
	}
	return copyProfile(profile), nil
}

// Create validates the persona locally, creates it and makes it active
func (s *State) Create(ctx context.Context, in domain.ProfileInput) (*domain.Profile, error) {
	user, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, s.fail(err)
	}

	seq, _ := s.startFor(user.ID)
	done := s.begin()
	defer done()

	profile, err := s.profiles.Create(ctx, in)
	if err != nil {
		return nil, s.fail(err)
	}

	persist := func(ctx context.Context) error {
		s.mu.Lock()
		country := s.country
		s.mu.Unlock()
		if country == nil {
			// stored once a country is chosen
			return nil
		}
		return storage.NewUserScope(s.kv, user.ID).SaveSelection(ctx, profile.ID, *country)
	}
	if !s.apply(ctx, seq, user.ID, profile, nil, persist) {
		return nil, domain.ErrStaleResponse
	}
	if _, err := s.ReloadProfiles(ctx); err != nil {
		observability.FromContext(ctx).Debug("persona list not refreshed after create", slog.String("error", err.Error()))
	}
	return copyProfile(profile), nil
}

func (s *State) Update(ctx context.Context, id int64, in domain.ProfileInput) (*domain.Profile, error) {
	if _, err := s.requireUser(); err != nil {
		return nil, err
	}

	done := s.begin()
	defer done()

	profile, err := s.profiles.Update(ctx, id, in)
	if err != nil {
		return nil, s.fail(err)
	}

	s.mu.Lock()
	wasActive := s.active != nil && s.active.ID == profile.ID
	if wasActive {
		s.active = copyProfile(profile)
	}
	for i := range s.list {
		if s.list[i].ID == profile.ID {
			s.list[i] = *profile
		}
	}
	user, country := s.user, s.country
	s.mu.Unlock()

	if wasActive {
		// the budget ceiling may have changed
		s.events.Publish(ctx, domain.Event{Kind: domain.EventPersonaChanged, User: user, Profile: copyProfile(profile), Country: country})
	}
	return copyProfile(profile), nil
}

// Delete removes a persona. Deleting the active one clears the selection.
func (s *State) Delete(ctx context.Context, id int64) error {
	if _, err := s.requireUser(); err != nil {
		return err
	}

	done := s.begin()
	defer done()

	if err := s.profiles.Delete(ctx, id); err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	wasActive := s.active != nil && s.active.ID == id
	list := s.list[:0:0]
	for _, p := range s.list {
		if p.ID != id {
			list = append(list, p)
		}
	}
	s.list = list
	s.mu.Unlock()

	if wasActive {
		return s.Clear(ctx)
	}
	return nil
}

// Clear drops the active persona and country, in memory and in storage
func (s *State) Clear(ctx context.Context) error {
	s.mu.Lock()
	user := s.user
	s.selSeq++
	s.active = nil
	s.country = nil
	s.mu.Unlock()

	if user != nil {
		if err := storage.NewUserScope(s.kv, user.ID).Clear(ctx); err != nil {
			return s.fail(err)
		}
	}

	observability.FromContext(ctx).Info("persona cleared")
	s.events.Publish(ctx, domain.Event{Kind: domain.EventPersonaCleared, User: user})
	return nil
}

// Compilations lists the compilations of the active persona. Failures yield an empty list.
func (s *State) Compilations(ctx context.Context) []domain.Compilation {
	active := s.Active()
	if active == nil {
		return []domain.Compilation{}
	}

	list, err := s.profiles.Compilations(ctx, active.ID)
	if err != nil {
		observability.FromContext(ctx).Warn("failed to load persona compilations", slog.String("error", err.Error()))
		return []domain.Compilation{}
	}
	return list
}

func (s *State) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

// startFor claims a new request token for userID
func (s *State) startFor(userID int64) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || s.user.ID != userID {
		return 0, false
	}
	s.selSeq++
	return s.selSeq, true
}

// apply installs a selection unless a newer request or an account switch
// superseded it, persists it when persist is set, then announces it.
// A nil country keeps the current one.
func (s *State) apply(ctx context.Context, seq uint64, userID int64, profile *domain.Profile, country *domain.Country, persist func(context.Context) error) bool {
	s.mu.Lock()
	if s.selSeq != seq || s.user == nil || s.user.ID != userID {
		s.mu.Unlock()
		observability.StaleResponsesTotal.WithLabelValues("persona").Inc()
		observability.FromContext(ctx).Debug("discarding superseded persona response")
		return false
	}
	s.active = copyProfile(profile)
	if country != nil {
		c := *country
		s.country = &c
	}
	user := *s.user
	current := s.country
	s.mu.Unlock()

	ctx = observability.WithProfileID(ctx, profile.ID)
	if persist != nil {
		if err := persist(ctx); err != nil {
			observability.FromContext(ctx).Warn("failed to store persona selection", slog.String("error", err.Error()))
			s.fail(err)
		}
	}
	observability.FromContext(ctx).Info("persona selected", slog.String("profile_type", string(profile.ProfileType)))
	s.events.Publish(ctx, domain.Event{Kind: domain.EventPersonaChanged, User: &user, Profile: copyProfile(profile), Country: current})
	return true
}

func (s *State) requireUser() (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return domain.User{}, domain.ErrNotAuthenticated
	}
	return *s.user, nil
}

func (s *State) begin() func() {
	s.mu.Lock()
	s.loading++
	s.lastError = ""
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}
}

func (s *State) fail(err error) error {
	s.mu.Lock()
	s.lastError = apiclient.Message(err)
	s.mu.Unlock()
	return err
}

func (s *State) resetLocked() {
	s.listSeq++
	s.selSeq++
	s.list = []domain.Profile{}
	s.active = nil
	s.country = nil
	s.lastError = ""
}

func copyProfile(p *domain.Profile) *domain.Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
