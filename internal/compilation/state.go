// Package compilation holds the active wishlist of the selected persona. Every
// mutation is followed by a re-fetch: the backend copy is the only truth.
package compilation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"trip-planner/internal/apiclient"
	"trip-planner/internal/domain"
	"trip-planner/internal/observability"
)

// DefaultDescription is given to the lazily created default compilation
const DefaultDescription = "Ma liste d'attractions favorites"

// CompilationsAPI is the subset of the compilations gateway the state drives
type CompilationsAPI interface {
	List(ctx context.Context, profileID int64) ([]domain.Compilation, error)
	Get(ctx context.Context, id int64) (*domain.Compilation, error)
	Create(ctx context.Context, in domain.CompilationInput) (*domain.Compilation, error)
	Update(ctx context.Context, id int64, update domain.CompilationUpdate) (*domain.Compilation, error)
	Delete(ctx context.Context, id int64) error
	AddItem(ctx context.Context, compilationID int64, item domain.ItemInput) error
	RemoveItem(ctx context.Context, compilationID int64, attractionID string) error
	MarkVisited(ctx context.Context, itemID int64) error
}

type Publisher interface {
	Publish(ctx context.Context, ev domain.Event)
}

// AddOptions are the user annotations of a newly added attraction
type AddOptions struct {
	Priority      int      `json:"priority,omitempty"`
	Note          string   `json:"note,omitempty"`
	EstimatedCost *float64 `json:"estimated_cost,omitempty"`
}

// CompiledAttraction is an active item flattened for display
type CompiledAttraction struct {
	domain.Attraction
	ItemID        int64      `json:"item_id"`
	AddedAt       *time.Time `json:"added_at,omitempty"`
	PersonalNote  string     `json:"personal_note"`
	Priority      int        `json:"priority"`
	EffectiveCost float64    `json:"effective_cost"`
	IsVisited     bool       `json:"is_visited"`
}

// View is a point-in-time copy of the compilation state with its derived fields
type View struct {
	Compilation  *domain.Compilation  `json:"compilation,omitempty"`
	Compilations []domain.Compilation `json:"compilations"`
	Attractions  []CompiledAttraction `json:"attractions"`
	Count        int                  `json:"count"`
	TotalBudget  float64              `json:"total_budget"`
	BudgetStatus *domain.BudgetStatus `json:"budget_status,omitempty"`
	BudgetLabel  string               `json:"budget_status_label,omitempty"`
	IsLoading    bool                 `json:"is_loading"`
	LastError    string               `json:"last_error,omitempty"`
}

type State struct {
	api         CompilationsAPI
	events      Publisher
	defaultName string

	// serialises find-or-create of the default compilation
	ensureMu sync.Mutex

	mu        sync.Mutex
	user      *domain.User
	persona   *domain.Profile
	current   *domain.Compilation
	list      []domain.Compilation
	seq       uint64
	listSeq   uint64
	loading   int
	lastError string
}

// New creates the compilation state. An empty defaultName uses domain.DefaultCompilationName.
func New(api CompilationsAPI, events Publisher, defaultName string) *State {
	if defaultName == "" {
		defaultName = domain.DefaultCompilationName
	}
	return &State{
		api:         api,
		events:      events,
		defaultName: defaultName,
		list:        []domain.Compilation{},
	}
}

// OnPersonaEvent reacts to persona transitions published on the bus
func (s *State) OnPersonaEvent(ctx context.Context, ev domain.Event) {
	switch ev.Kind {
	case domain.EventPersonaChanged:
		if ev.Profile == nil {
			return
		}
		s.personaChanged(ctx, ev.User, *ev.Profile)
	case domain.EventPersonaCleared:
		s.reset(ctx, ev.User)
	}
}

func (s *State) personaChanged(ctx context.Context, user *domain.User, persona domain.Profile) {
	ctx = observability.WithProfileID(ctx, persona.ID)

	s.mu.Lock()
	s.user = user
	same := s.persona != nil && s.persona.ID == persona.ID
	if !same {
		s.seq++
		s.listSeq++
		s.current = nil
		s.list = []domain.Compilation{}
	}
	s.persona = &persona
	hasCurrent := s.current != nil
	s.mu.Unlock()

	if same && hasCurrent {
		// budget or labels changed, the list is still valid
		return
	}

	if _, err := s.EnsureDefault(ctx, persona); err != nil {
		observability.FromContext(ctx).Warn("default compilation unavailable", slog.String("error", err.Error()))
	}
	if _, err := s.ReloadList(ctx); err != nil && !errors.Is(err, domain.ErrStaleResponse) {
		observability.FromContext(ctx).Warn("failed to load compilations", slog.String("error", err.Error()))
	}
}

func (s *State) reset(ctx context.Context, user *domain.User) {
	s.mu.Lock()
	had := s.current != nil || s.persona != nil
	s.seq++
	s.listSeq++
	s.user = nil
	s.persona = nil
	s.current = nil
	s.list = []domain.Compilation{}
	s.lastError = ""
	s.mu.Unlock()

	if had {
		s.events.Publish(ctx, domain.Event{Kind: domain.EventCompilationChanged, User: user})
	}
}

// EnsureDefault finds the persona's compilation carrying the reserved name,
// creating it only when absent, and makes it the active one. Concurrent calls
// never create more than one.
func (s *State) EnsureDefault(ctx context.Context, persona domain.Profile) (*domain.Compilation, error) {
	if persona.ID <= 0 {
		return nil, domain.ErrNoActivePersona
	}

	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()

	seq := s.claim()
	done := s.begin()
	defer done()

	log := observability.FromContext(ctx)

	existing, err := s.api.List(ctx, persona.ID)
	if err != nil {
		return nil, s.fail(fmt.Errorf("failed to list compilations: %w", err))
	}

	var compilation *domain.Compilation
	for _, c := range existing {
		if c.Name == s.defaultName {
			compilation, err = s.api.Get(ctx, c.ID)
			if err != nil {
				return nil, s.fail(err)
			}
			break
		}
	}

	if compilation == nil {
		compilation, err = s.api.Create(ctx, domain.CompilationInput{
			Name:        s.defaultName,
			Description: DefaultDescription,
			ProfileID:   persona.ID,
		})
		if err != nil {
			return nil, s.fail(fmt.Errorf("failed to create default compilation: %w", err))
		}
		log.Info("default compilation created", slog.String("compilation_id", strconv.FormatInt(compilation.ID, 10)))
	}

	if !s.install(ctx, seq, persona.ID, compilation) {
		return nil, domain.ErrStaleResponse
	}
	return copyCompilation(compilation), nil
}

// AddAttraction adds a to the active compilation and reloads it. An attraction
// already present among the active items is left untouched.
func (s *State) AddAttraction(ctx context.Context, a domain.Attraction, opts AddOptions) error {
	persona, err := s.requirePersona()
	if err != nil {
		return err
	}

	id := a.ID
	if id == "" {
		id = a.TripadvisorID
	}
	priority := opts.Priority
	if priority == 0 {
		priority = 1
	}
	item := domain.ItemInput{
		AttractionID:  id,
		Name:          a.Name,
		Description:   a.Description,
		City:          a.City,
		Country:       a.Country,
		Priority:      priority,
		PersonalNote:  opts.Note,
		EstimatedCost: opts.EstimatedCost,
	}
	if err := item.Validate(); err != nil {
		return s.fail(err)
	}

	current := s.Current()
	if current == nil {
		if current, err = s.EnsureDefault(ctx, persona); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrNoActiveCompilation, err)
		}
	}
	if containsActive(current, id) || containsActive(current, a.TripadvisorID) {
		return nil
	}

	done := s.begin()
	defer done()

	if err := s.api.AddItem(ctx, current.ID, item); err != nil {
		return s.fail(err)
	}
	observability.FromContext(ctx).Info("attraction added to compilation",
		slog.String("compilation_id", strconv.FormatInt(current.ID, 10)),
		slog.String("attraction_id", id),
	)
	return s.reload(ctx, current.ID)
}

func (s *State) RemoveAttraction(ctx context.Context, attractionID string) error {
	current := s.Current()
	if current == nil {
		return domain.ErrNoActiveCompilation
	}

	done := s.begin()
	defer done()

	if err := s.api.RemoveItem(ctx, current.ID, attractionID); err != nil {
		return s.fail(err)
	}
	return s.reload(ctx, current.ID)
}

func (s *State) MarkVisited(ctx context.Context, itemID int64) error {
	current := s.Current()
	if current == nil {
		return domain.ErrNoActiveCompilation
	}

	done := s.begin()
	defer done()

	if err := s.api.MarkVisited(ctx, itemID); err != nil {
		return s.fail(err)
	}
	return s.reload(ctx, current.ID)
}

// Create adds a compilation to the active persona without selecting it
func (s *State) Create(ctx context.Context, name, description string) (*domain.Compilation, error) {
	persona, err := s.requirePersona()
	if err != nil {
		return nil, err
	}
	in := domain.CompilationInput{Name: name, Description: description, ProfileID: persona.ID}
	if err := in.Validate(); err != nil {
		return nil, s.fail(err)
	}

	done := s.begin()
	defer done()

	created, err := s.api.Create(ctx, in)
	if err != nil {
		return nil, s.fail(err)
	}
	s.reloadListQuietly(ctx)
	return created, nil
}

// Select makes compilation id the active one
func (s *State) Select(ctx context.Context, id int64) (*domain.Compilation, error) {
	persona, err := s.requirePersona()
	if err != nil {
		return nil, err
	}

	seq := s.claim()
	done := s.begin()
	defer done()

	compilation, err := s.api.Get(ctx, id)
	if err != nil {
		return nil, s.fail(err)
	}
	if compilation.ProfileID != 0 && compilation.ProfileID != persona.ID {
		return nil, s.fail(fmt.Errorf("%w: compilation belongs to another persona", domain.ErrNotFound))
	}
	if !s.install(ctx, seq, persona.ID, compilation) {
		return nil, domain.ErrStaleResponse
	}
	return copyCompilation(compilation), nil
}

func (s *State) Update(ctx context.Context, id int64, update domain.CompilationUpdate) (*domain.Compilation, error) {
	if _, err := s.requirePersona(); err != nil {
		return nil, err
	}
	if err := update.Validate(); err != nil {
		return nil, s.fail(err)
	}

	done := s.begin()
	defer done()

	updated, err := s.api.Update(ctx, id, update)
	if err != nil {
		return nil, s.fail(err)
	}
	if current := s.Current(); current != nil && current.ID == id {
		if err := s.reload(ctx, id); err != nil && !errors.Is(err, domain.ErrStaleResponse) {
			return nil, err
		}
	}
	s.reloadListQuietly(ctx)
	return updated, nil
}

// Delete removes a compilation. Removing the active one falls back to the
// default compilation, recreated when needed.
func (s *State) Delete(ctx context.Context, id int64) error {
	persona, err := s.requirePersona()
	if err != nil {
		return err
	}

	done := s.begin()
	defer done()

	if err := s.api.Delete(ctx, id); err != nil {
		return s.fail(err)
	}

	s.mu.Lock()
	wasActive := s.current != nil && s.current.ID == id
	if wasActive {
		s.seq++
		s.current = nil
	}
	s.mu.Unlock()

	if wasActive {
		if _, err := s.EnsureDefault(ctx, persona); err != nil {
			return err
		}
	}
	s.reloadListQuietly(ctx)
	return nil
}

// Clear empties the active list by deleting it, leaving a fresh default one
func (s *State) Clear(ctx context.Context) error {
	current := s.Current()
	if current == nil {
		return nil
	}
	return s.Delete(ctx, current.ID)
}

// ReloadList refreshes the compilations of the active persona
func (s *State) ReloadList(ctx context.Context) ([]domain.Compilation, error) {
	persona, err := s.requirePersona()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.listSeq++
	seq := s.listSeq
	s.mu.Unlock()

	list, err := s.api.List(ctx, persona.ID)
	if err != nil {
		return nil, s.fail(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listSeq != seq || s.persona == nil || s.persona.ID != persona.ID {
		observability.StaleResponsesTotal.WithLabelValues("compilation_list").Inc()
		return nil, domain.ErrStaleResponse
	}
	s.list = list
	return append([]domain.Compilation{}, list...), nil
}

// Current returns the active compilation, nil when none
func (s *State) Current() *domain.Compilation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCompilation(s.current)
}

// IsInCompilation reports whether the attraction is among the active items.
// Soft-removed items do not count.
func (s *State) IsInCompilation(attractionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return containsActive(s.current, attractionID)
}

// Count returns the number of active items
func (s *State) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.current.ActiveItems())
}

// TotalBudget returns the backend's estimate, or the sum of active item costs when it sent none
func (s *State) TotalBudget() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalBudget(s.current)
}

func (s *State) ActiveAttractions() []CompiledAttraction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return activeAttractions(s.current)
}

// BudgetStatus classifies the estimate against the persona's budget
// ceiling. ok is false when either value is missing.
func (s *State) BudgetStatus() (domain.BudgetStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return budgetStatus(s.current, s.persona)
}

func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Compilation:  copyCompilation(s.current),
		Compilations: append([]domain.Compilation{}, s.list...),
		Attractions:  activeAttractions(s.current),
		Count:        len(s.current.ActiveItems()),
		TotalBudget:  totalBudget(s.current),
		IsLoading:    s.loading > 0,
		LastError:    s.lastError,
	}
	if status, ok := budgetStatus(s.current, s.persona); ok {
		v.BudgetStatus = &status
		v.BudgetLabel = status.Label()
	}
	return v
}

func (s *State) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

// reload re-fetches compilation id and installs it unless superseded
func (s *State) reload(ctx context.Context, id int64) error {
	persona, err := s.requirePersona()
	if err != nil {
		return err
	}

	seq := s.claim()
	compilation, err := s.api.Get(ctx, id)
	if err != nil {
		return s.fail(err)
	}
	if !s.install(ctx, seq, persona.ID, compilation) {
		return domain.ErrStaleResponse
	}
	return nil
}

func (s *State) reloadListQuietly(ctx context.Context) {
	if _, err := s.ReloadList(ctx); err != nil && !errors.Is(err, domain.ErrStaleResponse) {
		observability.FromContext(ctx).Warn("failed to reload compilations", slog.String("error", err.Error()))
	}
}

func (s *State) claim() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// install makes compilation the active one if no newer request or persona
// switch superseded the request identified by seq.
func (s *State) install(ctx context.Context, seq uint64, personaID int64, compilation *domain.Compilation) bool {
	s.mu.Lock()
	if s.seq != seq || s.persona == nil || s.persona.ID != personaID {
		s.mu.Unlock()
		observability.StaleResponsesTotal.WithLabelValues("compilation").Inc()
		observability.FromContext(ctx).Debug("discarding superseded compilation response")
		return false
	}
	s.current = copyCompilation(compilation)
	persona := *s.persona
	user := s.user
	s.mu.Unlock()

	s.events.Publish(ctx, domain.Event{
		Kind:        domain.EventCompilationChanged,
		User:        user,
		Profile:     &persona,
		Compilation: copyCompilation(compilation),
	})
	return true
}

func (s *State) requirePersona() (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persona == nil {
		return domain.Profile{}, domain.ErrNoActivePersona
	}
	return *s.persona, nil
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

func containsActive(c *domain.Compilation, attractionID string) bool {
	if c == nil || attractionID == "" {
		return false
	}
	for _, it := range c.Items {
		if it.IsActive && it.Refers(attractionID) {
			return true
		}
	}
	return false
}

func totalBudget(c *domain.Compilation) float64 {
	if c == nil {
		return 0
	}
	if c.EstimatedBudget != nil {
		return *c.EstimatedBudget
	}
	var total float64
	for _, it := range c.ActiveItems() {
		total += it.EffectiveCost
	}
	return total
}

func budgetStatus(c *domain.Compilation, persona *domain.Profile) (domain.BudgetStatus, bool) {
	if c == nil || c.EstimatedBudget == nil {
		return "", false
	}
	ceiling, ok := persona.BudgetCeiling()
	if !ok {
		return "", false
	}
	return domain.ClassifyBudget(*c.EstimatedBudget, ceiling), true
}

func activeAttractions(c *domain.Compilation) []CompiledAttraction {
	items := c.ActiveItems()
	out := make([]CompiledAttraction, 0, len(items))
	for _, it := range items {
		entry := CompiledAttraction{
			ItemID:        it.ID,
			AddedAt:       it.AddedAt,
			PersonalNote:  it.PersonalNote,
			Priority:      it.Priority,
			EffectiveCost: it.EffectiveCost,
			IsVisited:     it.IsVisited,
		}
		if it.Attraction != nil {
			entry.Attraction = *it.Attraction
		} else {
			entry.Attraction.ID = it.AttractionID
		}
		out = append(out, entry)
	}
	return out
}

func copyCompilation(c *domain.Compilation) *domain.Compilation {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = append([]domain.Item(nil), c.Items...)
	return &out
}
