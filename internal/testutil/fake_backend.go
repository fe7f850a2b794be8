package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"trip-planner/internal/domain"
)

// FakeBackend is an in-memory trip-planner backend served over httptest.
// Its API is mounted under /api, so BaseURL() is what clients should use.
type FakeBackend struct {
	Server *httptest.Server

	mu            sync.Mutex
	nextID        int64
	accounts      map[string]*fakeAccount // by username
	accessTokens  map[string]int64
	refreshTokens map[string]int64
	profiles      map[int64]*fakeProfile
	compilations  map[int64]*domain.Compilation
	attractions   map[string]domain.Attraction
	calls         map[string]int
	failures      map[string][]fakeFailure
	holds         map[string]chan struct{}
	requestIDs    []string
	AccessTTL     time.Duration
}

type fakeAccount struct {
	user     domain.User
	password string
}

type fakeProfile struct {
	owner   int64
	profile domain.Profile
}

type fakeFailure struct {
	status int
	body   string
}

// NewFakeBackend starts a fake backend seeded with a small attraction catalog
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	fb := &FakeBackend{
		accounts:      make(map[string]*fakeAccount),
		accessTokens:  make(map[string]int64),
		refreshTokens: make(map[string]int64),
		profiles:      make(map[int64]*fakeProfile),
		compilations:  make(map[int64]*domain.Compilation),
		attractions:   make(map[string]domain.Attraction),
		calls:         make(map[string]int),
		failures:      make(map[string][]fakeFailure),
		holds:         make(map[string]chan struct{}),
		AccessTTL:     time.Hour,
	}

	for _, a := range seedAttractions() {
		fb.attractions[a.ID] = a
	}

	fb.Server = httptest.NewServer(fb.routes())
	t.Cleanup(fb.Server.Close)
	return fb
}

// BaseURL is the API root clients should be configured with
func (fb *FakeBackend) BaseURL() string {
	return fb.Server.URL + "/api"
}

// AddAccount registers an account directly and returns it
func (fb *FakeBackend) AddAccount(username, password string) domain.User {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.addAccountLocked(username, password)
}

func (fb *FakeBackend) addAccountLocked(username, password string) domain.User {
	fb.nextID++
	acc := &fakeAccount{
		user:     domain.User{ID: fb.nextID, Username: username, Email: username + "@example.com"},
		password: password,
	}
	fb.accounts[username] = acc
	return acc.user
}

// AddProfile stores a persona owned by userID and returns it with its id
func (fb *FakeBackend) AddProfile(userID int64, p domain.Profile) domain.Profile {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.nextID++
	p.ID = fb.nextID
	fb.applyBudget(&p)
	fb.profiles[p.ID] = &fakeProfile{owner: userID, profile: p}
	return p
}

// AddCompilation stores a compilation directly
func (fb *FakeBackend) AddCompilation(profileID int64, name string) domain.Compilation {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return *fb.createCompilationLocked(profileID, name, "")
}

// IssueTokens mints a token pair for userID, as a login would
func (fb *FakeBackend) IssueTokens(userID int64) domain.TokenPair {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.issueTokensLocked(userID)
}

// ExpireAccessTokens revokes every access token so the next call gets a 401
func (fb *FakeBackend) ExpireAccessTokens() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.accessTokens = make(map[string]int64)
}

// RevokeRefreshTokens makes every refresh attempt fail
func (fb *FakeBackend) RevokeRefreshTokens() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.refreshTokens = make(map[string]int64)
}

// FailNext makes the next request matching "METHOD /path/" answer status with body
func (fb *FakeBackend) FailNext(route string, status int, body string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.failures[route] = append(fb.failures[route], fakeFailure{status: status, body: body})
}

// Hold blocks the next request matching route until the returned release is called
func (fb *FakeBackend) Hold(route string) (release func()) {
	ch := make(chan struct{})
	fb.mu.Lock()
	fb.holds[route] = ch
	fb.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns how many requests matched route ("METHOD /path/", path without /api)
func (fb *FakeBackend) Calls(route string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.calls[route]
}

// RequestIDs returns the X-Request-ID headers seen so far
func (fb *FakeBackend) RequestIDs() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.requestIDs...)
}

// Compilations returns the stored compilations of a persona
func (fb *FakeBackend) Compilations(profileID int64) []domain.Compilation {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.compilationsOfLocked(profileID)
}

// Attraction returns a seeded catalog entry
func (fb *FakeBackend) Attraction(id string) domain.Attraction {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.attractions[id]
}

func (fb *FakeBackend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(fb.intercept)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register/", fb.register)
		r.Post("/auth/login/", fb.login)
		r.Post("/auth/token/refresh/", fb.refresh)

		r.Group(func(r chi.Router) {
			r.Use(fb.authenticate)

			r.Post("/auth/logout/", fb.logout)
			r.Get("/auth/me/", fb.me)
			r.Patch("/auth/profile/", fb.updateUser)
			r.Post("/auth/change-password/", fb.changePassword)

			r.Get("/attractions/profiles/", fb.listProfiles)
			r.Post("/attractions/profiles/", fb.createProfile)
			r.Get("/attractions/profiles/stats/", fb.profileStats)
			r.Get("/attractions/profiles/{id}/", fb.getProfile)
			r.Patch("/attractions/profiles/{id}/", fb.updateProfile)
			r.Delete("/attractions/profiles/{id}/", fb.deleteProfile)
			r.Get("/attractions/profiles/{id}/compilations/", fb.profileCompilations)

			r.Get("/attractions/compilations/", fb.listCompilations)
			r.Post("/attractions/compilations/", fb.createCompilation)
			r.Get("/attractions/compilations/stats/", fb.compilationStats)
			r.Get("/attractions/compilations/{id}/", fb.getCompilation)
			r.Patch("/attractions/compilations/{id}/", fb.updateCompilation)
			r.Delete("/attractions/compilations/{id}/", fb.deleteCompilation)
			r.Post("/attractions/compilations/{id}/add_attraction/", fb.addAttraction)
			r.Delete("/attractions/compilations/{id}/remove_attraction/", fb.removeAttraction)
			r.Post("/attractions/compilation-items/{id}/mark_visited/", fb.markVisited)
		})

		r.Get("/attractions/search/", fb.search)
		r.Get("/attractions/popular/", fb.popular)
		r.Get("/attractions/suggestions/", fb.suggestions)
		r.Get("/attractions/categories/", fb.categories)
		r.Get("/attractions/countries/", fb.countries)
		r.Get("/attractions/{id}/", fb.getAttraction)
	})

	return r
}

// intercept counts calls and applies injected failures and holds
func (fb *FakeBackend) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api")

		fb.mu.Lock()
		fb.calls[route]++
		if id := r.Header.Get("X-Request-ID"); id != "" {
			fb.requestIDs = append(fb.requestIDs, id)
		}
		hold := fb.holds[route]
		delete(fb.holds, route)
		var failure *fakeFailure
		if queue := fb.failures[route]; len(queue) > 0 {
			failure = &queue[0]
			fb.failures[route] = queue[1:]
		}
		fb.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}

		if failure != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(failure.status)
			w.Write([]byte(failure.body))
			return
		}

		next.ServeHTTP(w, r)
	})
}

type ctxUserKey struct{}

func (fb *FakeBackend) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		fb.mu.Lock()
		userID, ok := fb.accessTokens[token]
		fb.mu.Unlock()

		if token == "" || !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		r.Header.Set("X-Fake-User", strconv.FormatInt(userID, 10))
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Fake-User"), 10, 64)
	return id
}

func (fb *FakeBackend) issueTokensLocked(userID int64) domain.TokenPair {
	access := MintToken(strconv.FormatInt(userID, 10)+":"+uuid.NewString(), time.Now().Add(fb.AccessTTL))
	refresh := uuid.NewString()
	fb.accessTokens[access] = userID
	fb.refreshTokens[refresh] = userID
	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}
}

func (fb *FakeBackend) register(w http.ResponseWriter, r *http.Request) {
	var in domain.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON invalide"})
		return
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if _, exists := fb.accounts[in.Username]; exists {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"username": {"Un utilisateur avec ce nom existe déjà."}})
		return
	}
	if in.PasswordConfirm != in.Password {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"password": {"Les mots de passe ne correspondent pas."}})
		return
	}

	user := fb.addAccountLocked(in.Username, in.Password)
	acc := fb.accounts[in.Username]
	acc.user.Email = in.Email
	acc.user.FirstName = in.FirstName
	acc.user.LastName = in.LastName
	user = acc.user

	writeJSON(w, http.StatusCreated, domain.AuthResult{
		User:    &user,
		Tokens:  fb.issueTokensLocked(user.ID),
		Message: "Compte créé avec succès",
	})
}

func (fb *FakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	json.NewDecoder(r.Body).Decode(&in)

	fb.mu.Lock()
	defer fb.mu.Unlock()

	acc, ok := fb.accounts[in.Username]
	if !ok || acc.password != in.Password {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Identifiants invalides"}})
		return
	}

	user := acc.user
	writeJSON(w, http.StatusOK, domain.AuthResult{
		User:    &user,
		Tokens:  fb.issueTokensLocked(user.ID),
		Message: "Connexion réussie",
	})
}

func (fb *FakeBackend) refresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	json.NewDecoder(r.Body).Decode(&in)

	fb.mu.Lock()
	defer fb.mu.Unlock()

	userID, ok := fb.refreshTokens[in.Refresh]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}

	access := MintToken(strconv.FormatInt(userID, 10)+":"+uuid.NewString(), time.Now().Add(fb.AccessTTL))
	fb.accessTokens[access] = userID
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (fb *FakeBackend) logout(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	json.NewDecoder(r.Body).Decode(&in)

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if _, ok := fb.refreshTokens[in.Refresh]; !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Erreur lors de la déconnexion"})
		return
	}
	delete(fb.refreshTokens, in.Refresh)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Déconnexion réussie"})
}

func (fb *FakeBackend) accountLocked(userID int64) *fakeAccount {
	for _, acc := range fb.accounts {
		if acc.user.ID == userID {
			return acc
		}
	}
	return nil
}

func (fb *FakeBackend) me(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	acc := fb.accountLocked(currentUser(r))
	if acc == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Utilisateur introuvable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": acc.user, "is_authenticated": true})
}

func (fb *FakeBackend) updateUser(w http.ResponseWriter, r *http.Request) {
	var in domain.UserUpdate
	json.NewDecoder(r.Body).Decode(&in)

	fb.mu.Lock()
	defer fb.mu.Unlock()

	acc := fb.accountLocked(currentUser(r))
	if in.Email != nil {
		acc.user.Email = *in.Email
	}
	if in.FirstName != nil {
		acc.user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		acc.user.LastName = *in.LastName
	}
	writeJSON(w, http.StatusOK, acc.user)
}

func (fb *FakeBackend) changePassword(w http.ResponseWriter, r *http.Request) {
	var in domain.PasswordChange
	json.NewDecoder(r.Body).Decode(&in)

	fb.mu.Lock()
	defer fb.mu.Unlock()

	acc := fb.accountLocked(currentUser(r))
	if acc.password != in.OldPassword {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"old_password": {"Mot de passe actuel incorrect."}})
		return
	}
	acc.password = in.NewPassword
	writeJSON(w, http.StatusOK, map[string]string{"message": "Mot de passe modifié"})
}

func (fb *FakeBackend) applyBudget(p *domain.Profile) {
	if ceiling, ok := p.BudgetRange.Ceiling(); ok {
		p.BudgetMax = &ceiling
	} else {
		p.BudgetMax = nil
	}
}

func (fb *FakeBackend) ownedProfileLocked(r *http.Request) (*fakeProfile, bool) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	fp, ok := fb.profiles[id]
	if !ok || fp.owner != currentUser(r) {
		return nil, false
	}
	return fp, true
}

func (fb *FakeBackend) listProfiles(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	userID := currentUser(r)
	results := []domain.Profile{}
	for _, fp := range fb.profiles {
		if fp.owner == userID {
			results = append(results, fp.profile)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "results": results})
}

func (fb *FakeBackend) createProfile(w http.ResponseWriter, r *http.Request) {
	var in domain.ProfileInput
	json.NewDecoder(r.Body).Decode(&in)

	if err := in.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	fb.nextID++
	p := domain.Profile{ID: fb.nextID, Name: in.Name, Age: in.Age, ProfileType: in.ProfileType, BudgetRange: in.BudgetRange}
	fb.applyBudget(&p)
	fb.profiles[p.ID] = &fakeProfile{owner: currentUser(r), profile: p}
	writeJSON(w, http.StatusCreated, p)
}

func (fb *FakeBackend) profileStats(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	stats := domain.ProfileStats{ByProfileType: map[string]int{}, ByBudgetRange: map[string]int{}}
	var ages int
	for _, fp := range fb.profiles {
		if fp.owner != currentUser(r) {
			continue
		}
		stats.TotalProfiles++
		stats.ByProfileType[string(fp.profile.ProfileType)]++
		stats.ByBudgetRange[string(fp.profile.BudgetRange)]++
		ages += fp.profile.Age
	}
	if stats.TotalProfiles > 0 {
		stats.AverageAge = float64(ages) / float64(stats.TotalProfiles)
	}
	writeJSON(w, http.StatusOK, stats)
}

func (fb *FakeBackend) getProfile(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	fp, ok := fb.ownedProfileLocked(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Pas trouvé."})
		return
	}
	writeJSON(w, http.StatusOK, fp.profile)
}

func (fb *FakeBackend) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in domain.ProfileInput
	json.NewDecoder(r.Body).Decode(&in)

	fb.mu.Lock()
	defer fb.mu.Unlock()

	fp, ok := fb.ownedProfileLocked(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Pas trouvé."})
		return
	}
	if in.Name != "" {
		fp.profile.Name = in.Name
	}
	if in.Age != 0 {
		fp.profile.Age = in.Age
	}
	if in.ProfileType != "" {
		fp.profile.ProfileType = in.ProfileType
	}
	if in.BudgetRange != "" {
		fp.profile.BudgetRange = in.BudgetRange
		fb.applyBudget(&fp.profile)
	}
	writeJSON(w, http.StatusOK, fp.profile)
}

func (fb *FakeBackend) deleteProfile(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	fp, ok := fb.ownedProfileLocked(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Pas trouvé."})
		return
	}
	for id, c := range fb.compilations {
		if c.ProfileID == fp.profile.ID {
			delete(fb.compilations, id)
		}
	}
	delete(fb.profiles, fp.profile.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (fb *FakeBackend) profileCompilations(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	fp, ok := fb.ownedProfileLocked(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Pas trouvé."})
		return
	}
	writeJSON(w, http.StatusOK, fb.compilationsOfLocked(fp.profile.ID))
}

func (fb *FakeBackend) compilationsOfLocked(profileID int64) []domain.Compilation {
	results := []domain.Compilation{}
	for _, c := range fb.compilations {
		if profileID == 0 || c.ProfileID == profileID {
			results = append(results, fb.snapshotLocked(c))
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results
}

func (fb *FakeBackend) snapshotLocked(c *domain.Compilation) domain.Compilation {
	out := *c
	out.Items = append([]domain.Item(nil), c.Items...)
	if fp, ok := fb.profiles[c.ProfileID]; ok {
		p := fp.profile
		out.Profile = &p
	}

	var total float64
	active := 0
	for _, it := range out.Items {
		if it.IsActive {
			total += it.EffectiveCost
			active++
		}
	}
	out.TotalItems = active
	out.EstimatedBudget = &total
	return out
}

func (fb *FakeBackend) createCompilationLocked(profileID int64, name, description string) *domain.Compilation {
	fb.nextID++
	now := time.Now().UTC()
	c := &domain.Compilation{
		ID:          fb.nextID,
		Name:        name,
		Description: description,
		ProfileID:   profileID,
		Items:       []domain.Item{},
		CreatedAt:   &now,
		UpdatedAt:   &now,
	}
	fb.compilations[c.ID] = c
	return c
}

func (fb *FakeBackend) ownedCompilationLocked(r *http.Request) (*domain.Compilation, bool) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	c, ok := fb.compilations[id]
	if !ok {
		return nil, false
	}
	fp, ok := fb.profiles[c.ProfileID]
	if !ok || fp.owner != currentUser(r) {
		return nil, false
	}
	return c, true
}

func (fb *FakeBackend) listCompilations(w http.ResponseWriter, r *http.Request) {
	profileID, _ := strconv.ParseInt(r.URL.Query().Get("user_profile"), 10, 64)

	fb.mu.Lock()
	defer fb.mu.Unlock()

	userID := currentUser(r)
	results := []domain.Compilation{}
	for _, c := range fb.compilationsOfLocked(profileID) {
		if fp, ok := fb.profiles[c.ProfileID]; ok && fp.owner == userID {
			results = append(results, c)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "results": results})
}

func (fb *FakeBackend) createCompilation(w http.ResponseWriter, r *http.Request) {
	var in domain.CompilationInput
	json.NewDecoder(r.Body).Decode(&in)

	fb.mu.Lock()
	defer fb.mu.Unlock()

	fp, ok := fb.profiles[in.ProfileID]
	if !ok || fp.owner != currentUser(r) {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"user_profile_id": {"Profil invalide."}})
		return
	}
	c := fb.createCompilationLocked(in.ProfileID, in.Name, in.Description)
	writeJSON(w, http.StatusCreated, fb.snapshotLocked(c))
}

func (fb *FakeBackend) compilationStats(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	var stats domain.CompilationStats
	var budgets float64
	for _, c := range fb.compilations {
		fp, ok := fb.profiles[c.ProfileID]
		if !ok || fp.owner != currentUser(r) {
			continue
		}
		snap := fb.snapshotLocked(c)
		stats.TotalCompilations++
		stats.TotalItems += snap.TotalItems
		budgets += *snap.EstimatedBudget
		for _, it := range snap.Items {
			if it.IsActive && it.IsVisited {
				stats.VisitedItems++
			}
		}
	}
	if stats.TotalCompilations > 0 {
		stats.AverageBudget = budgets / float64(stats.TotalCompilations)
	}
	writeJSON(w, http.StatusOK, stats)
}

func (fb *FakeBackend) getCompilation(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	c, ok := fb.ownedCompilationLocked(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Pas trouvé."})
		return
	}
	writeJSON(w, http.StatusOK, fb.snapshotLocked(c))
}

func (fb *FakeBackend) updateCompilation(w http.ResponseWriter, r *http.Request) {
	var in domain.CompilationUpdate
	json.NewDecoder(r.Body).Decode(&in)

	fb.mu.Lock()
	defer fb.mu.Unlock()

	c, ok := fb.ownedCompilationLocked(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Pas trouvé."})
		return
	}
	if in.Name != nil {
		c.Name = *in.Name
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	writeJSON(w, http.StatusOK, fb.snapshotLocked(c))
}

func (fb *FakeBackend) deleteCompilation(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	c, ok := fb.ownedCompilationLocked(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Pas trouvé."})
		return
	}
	delete(fb.compilations, c.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (fb *FakeBackend) addAttraction(w http.ResponseWriter, r *http.Request) {
	var in domain.ItemInput
	json.NewDecoder(r.Body).Decode(&in)

	fb.mu.Lock()
	defer fb.mu.Unlock()

	c, ok := fb.ownedCompilationLocked(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Pas trouvé."})
		return
	}

	for i := range c.Items {
		if c.Items[i].Refers(in.AttractionID) {
			if c.Items[i].IsActive {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Cette attraction est déjà dans la compilation"})
				return
			}
			c.Items[i].IsActive = true
			writeJSON(w, http.StatusOK, c.Items[i])
			return
		}
	}

	a, known := fb.attractions[in.AttractionID]
	if !known {
		a = domain.Attraction{ID: in.AttractionID, Name: in.Name, City: in.City, Country: in.Country}
	}

	cost := defaultCost(a.PriceLevel)
	if in.EstimatedCost != nil {
		cost = *in.EstimatedCost
	}

	fb.nextID++
	added := time.Now().UTC()
	item := domain.Item{
		ID:            fb.nextID,
		AttractionID:  a.ID,
		Attraction:    &a,
		AddedAt:       &added,
		PersonalNote:  in.PersonalNote,
		Priority:      in.Priority,
		EstimatedCost: in.EstimatedCost,
		EffectiveCost: cost,
		IsActive:      true,
	}
	c.Items = append(c.Items, item)
	writeJSON(w, http.StatusCreated, item)
}

func (fb *FakeBackend) removeAttraction(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AttractionID string `json:"attraction_id"`
	}
	json.NewDecoder(r.Body).Decode(&in)

	fb.mu.Lock()
	defer fb.mu.Unlock()

	c, ok := fb.ownedCompilationLocked(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Pas trouvé."})
		return
	}
	for i := range c.Items {
		if c.Items[i].Refers(in.AttractionID) && c.Items[i].IsActive {
			// soft removal: the item stays listed but inactive
			c.Items[i].IsActive = false
			writeJSON(w, http.StatusOK, map[string]string{"message": "Attraction retirée"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Attraction absente de la compilation"})
}

func (fb *FakeBackend) markVisited(w http.ResponseWriter, r *http.Request) {
	itemID, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)

	fb.mu.Lock()
	defer fb.mu.Unlock()

	for _, c := range fb.compilations {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items[i].IsVisited = true
				writeJSON(w, http.StatusOK, c.Items[i])
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Pas trouvé."})
}

func (fb *FakeBackend) catalogLocked() []domain.Attraction {
	list := make([]domain.Attraction, 0, len(fb.attractions))
	for _, a := range fb.attractions {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (fb *FakeBackend) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.ToLower(q.Get("query"))
	country := q.Get("country")
	category := q.Get("category")
	minRating, _ := strconv.ParseFloat(q.Get("min_rating"), 64)

	fb.mu.Lock()
	defer fb.mu.Unlock()

	results := []domain.Attraction{}
	for _, a := range fb.catalogLocked() {
		if query != "" && !strings.Contains(strings.ToLower(a.Name+" "+a.City), query) {
			continue
		}
		if country != "" && !strings.EqualFold(a.Country, country) {
			continue
		}
		if category != "" && a.Category != category {
			continue
		}
		if a.Rating < minRating {
			continue
		}
		results = append(results, a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "page": 1, "page_size": 20, "results": results})
}

func (fb *FakeBackend) popular(w http.ResponseWriter, r *http.Request) {
	country := r.URL.Query().Get("country")

	fb.mu.Lock()
	defer fb.mu.Unlock()

	// listings use the [lat, lng] location pair
	results := []map[string]any{}
	for _, a := range fb.catalogLocked() {
		if country != "" && !strings.EqualFold(a.Country, country) {
			continue
		}
		entry := map[string]any{
			"id":             a.ID,
			"tripadvisor_id": a.TripadvisorID,
			"name":           a.Name,
			"city":           a.City,
			"country":        a.Country,
			"category":       a.Category,
			"rating":         a.Rating,
			"num_reviews":    a.NumReviews,
			"price_level":    a.PriceLevel,
		}
		if a.Latitude != nil && a.Longitude != nil {
			entry["location"] = []float64{*a.Latitude, *a.Longitude}
		} else {
			entry["location"] = nil
		}
		results = append(results, entry)
	}
	writeJSON(w, http.StatusOK, results)
}

func (fb *FakeBackend) suggestions(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(r.URL.Query().Get("q"))

	fb.mu.Lock()
	defer fb.mu.Unlock()

	results := []domain.Suggestion{}
	seen := map[string]bool{}
	for _, a := range fb.catalogLocked() {
		if strings.Contains(strings.ToLower(a.City), query) && !seen["city:"+a.City] {
			seen["city:"+a.City] = true
			results = append(results, domain.Suggestion{Type: "city", Name: a.City})
		}
		if strings.Contains(strings.ToLower(a.Name), query) {
			results = append(results, domain.Suggestion{Type: "attraction", Name: a.Name})
		}
	}
	writeJSON(w, http.StatusOK, results)
}

func (fb *FakeBackend) categories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []domain.Category{
		{Value: "restaurant", Label: "Restaurants", Count: 150},
		{Value: "hotel", Label: "Hôtels", Count: 85},
		{Value: "attraction", Label: "Attractions touristiques", Count: 265},
	})
}

func (fb *FakeBackend) countries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []domain.CountryOption{
		{Value: "France", Label: "France", Count: 3, Cities: []string{"Paris", "Lyon"}},
		{Value: "Italy", Label: "Italie", Count: 1, Cities: []string{"Rome"}},
	})
}

func (fb *FakeBackend) getAttraction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	fb.mu.Lock()
	defer fb.mu.Unlock()

	for _, a := range fb.attractions {
		if a.Matches(id) {
			writeJSON(w, http.StatusOK, a)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Attraction not found"})
}

func defaultCost(priceLevel string) float64 {
	switch priceLevel {
	case "$":
		return 15
	case "$$":
		return 40
	case "$$$":
		return 80
	case "$$$$":
		return 150
	}
	return 25
}

func seedAttractions() []domain.Attraction {
	return []domain.Attraction{
		{ID: "188151", TripadvisorID: "188151", Name: "Tour Eiffel", City: "Paris", Country: "France",
			Latitude: Float(48.8584), Longitude: Float(2.2945), Rating: 4.6, NumReviews: 140000,
			Category: "attraction", PriceLevel: "$$"},
		{ID: "188757", TripadvisorID: "188757", Name: "Musée du Louvre", City: "Paris", Country: "France",
			Latitude: Float(48.8606), Longitude: Float(2.3376), Rating: 4.7, NumReviews: 98000,
			Category: "attraction", PriceLevel: "$$"},
		{ID: "230212", TripadvisorID: "230212", Name: "Bouchon Les Lyonnais", City: "Lyon", Country: "France",
			Latitude: Float(45.7640), Longitude: Float(4.8357), Rating: 4.4, NumReviews: 2100,
			Category: "restaurant", PriceLevel: "$$$"},
		{ID: "192285", TripadvisorID: "192285", Name: "Colisée", City: "Rome", Country: "Italy",
			Latitude: Float(41.8902), Longitude: Float(12.4922), Rating: 4.7, NumReviews: 160000,
			Category: "attraction", PriceLevel: "$$"},
		{ID: "900001", TripadvisorID: "900001", Name: "Balade sans carte", City: "Paris", Country: "France",
			Rating: 3.9, NumReviews: 12, Category: "attraction"},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Println("fake backend: encode failed:", err)
	}
}
