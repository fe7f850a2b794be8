package testutil

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"trip-planner/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

func nextID() int64 {
	return idCounter.Add(1)
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID       int64
	Username string
	Email    string
}

// NewTestUser creates a test user with sensible defaults
// Pass options to override specific fields
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	o := &UserOptions{ID: nextID()}
	o.Username = fmt.Sprintf("traveler%d", o.ID)

	for _, opt := range opts {
		opt(o)
	}

	if o.Email == "" {
		o.Email = o.Username + "@example.com"
	}

	return &domain.User{
		ID:       o.ID,
		Username: o.Username,
		Email:    o.Email,
	}
}

// WithUserID sets the user ID
func WithUserID(id int64) func(*UserOptions) {
	return func(o *UserOptions) {
		o.ID = id
	}
}

// WithUsername sets the username
func WithUsername(username string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Username = username
	}
}

// ProfileOptions allows customizing persona fixture creation
type ProfileOptions struct {
	ID          int64
	Name        string
	Age         int
	ProfileType domain.ProfileType
	BudgetRange domain.BudgetRange
	BudgetMax   *float64
}

// NewTestProfile creates a tourist persona with a medium budget
func NewTestProfile(opts ...func(*ProfileOptions)) *domain.Profile {
	o := &ProfileOptions{
		ID:          nextID(),
		Age:         30,
		ProfileType: domain.ProfileTourist,
		BudgetRange: domain.BudgetMedium,
	}
	o.Name = fmt.Sprintf("Persona %d", o.ID)

	for _, opt := range opts {
		opt(o)
	}

	return &domain.Profile{
		ID:          o.ID,
		Name:        o.Name,
		Age:         o.Age,
		ProfileType: o.ProfileType,
		BudgetRange: o.BudgetRange,
		BudgetMax:   o.BudgetMax,
	}
}

// WithProfileID sets the persona ID
func WithProfileID(id int64) func(*ProfileOptions) {
	return func(o *ProfileOptions) {
		o.ID = id
	}
}

// WithProfileName sets the persona name
func WithProfileName(name string) func(*ProfileOptions) {
	return func(o *ProfileOptions) {
		o.Name = name
	}
}

// WithBudgetRange sets the persona budget range
func WithBudgetRange(r domain.BudgetRange) func(*ProfileOptions) {
	return func(o *ProfileOptions) {
		o.BudgetRange = r
	}
}

// WithBudgetMax sets the backend-computed budget ceiling
func WithBudgetMax(v float64) func(*ProfileOptions) {
	return func(o *ProfileOptions) {
		o.BudgetMax = &v
	}
}

// AttractionOptions allows customizing attraction fixture creation
type AttractionOptions struct {
	ID        string
	Name      string
	City      string
	Country   string
	Latitude  *float64
	Longitude *float64
}

// NewTestAttraction creates an attraction located in Paris
func NewTestAttraction(opts ...func(*AttractionOptions)) *domain.Attraction {
	id := nextID()
	o := &AttractionOptions{
		ID:        strconv.FormatInt(id, 10),
		Name:      fmt.Sprintf("Attraction %d", id),
		City:      "Paris",
		Country:   "France",
		Latitude:  Float(48.8566),
		Longitude: Float(2.3522),
	}

	for _, opt := range opts {
		opt(o)
	}

	return &domain.Attraction{
		ID:            o.ID,
		TripadvisorID: "ta-" + o.ID,
		Name:          o.Name,
		City:          o.City,
		Country:       o.Country,
		Latitude:      o.Latitude,
		Longitude:     o.Longitude,
		Rating:        4.5,
		NumReviews:    120,
		Category:      "attraction",
	}
}

// WithAttractionID sets the attraction ID
func WithAttractionID(id string) func(*AttractionOptions) {
	return func(o *AttractionOptions) {
		o.ID = id
	}
}

// WithCoordinates sets the attraction position
func WithCoordinates(lat, lng float64) func(*AttractionOptions) {
	return func(o *AttractionOptions) {
		o.Latitude = &lat
		o.Longitude = &lng
	}
}

// WithoutCoordinates removes the attraction position
func WithoutCoordinates() func(*AttractionOptions) {
	return func(o *AttractionOptions) {
		o.Latitude = nil
		o.Longitude = nil
	}
}

// NewTestItem creates an active compilation item referring to a
func NewTestItem(a *domain.Attraction, cost float64) domain.Item {
	added := time.Now().UTC()
	return domain.Item{
		ID:            nextID(),
		AttractionID:  a.ID,
		Attraction:    a,
		AddedAt:       &added,
		Priority:      1,
		EffectiveCost: cost,
		IsActive:      true,
	}
}

// NewTestCompilation creates a default compilation owned by profileID holding items
func NewTestCompilation(profileID int64, items ...domain.Item) *domain.Compilation {
	var total float64
	for _, it := range items {
		if it.IsActive {
			total += it.EffectiveCost
		}
	}
	return &domain.Compilation{
		ID:              nextID(),
		Name:            domain.DefaultCompilationName,
		ProfileID:       profileID,
		Items:           items,
		TotalItems:      len(items),
		EstimatedBudget: &total,
	}
}
