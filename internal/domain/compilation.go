package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrNoActiveCompilation = errors.New("no active compilation")

// DefaultCompilationName is the reserved name of the per-persona default wishlist
const DefaultCompilationName = "Ma compilation"

// Compilation is a persisted wishlist belonging to one persona
type Compilation struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	ProfileID       int64      `json:"user_profile_id,omitempty"`
	Profile         *Profile   `json:"user_profile,omitempty"`
	Items           []Item     `json:"items,omitempty"`
	TotalItems      int        `json:"total_items"`
	EstimatedBudget *float64   `json:"estimated_budget,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// UnmarshalJSON accepts decimal amounts serialized as strings
func (c *Compilation) UnmarshalJSON(data []byte) error {
	type alias Compilation
	aux := struct {
		*alias
		EstimatedBudget flexFloat `json:"estimated_budget"`
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.EstimatedBudget = aux.EstimatedBudget.ptr
	return nil
}

// ActiveItems returns the items not soft-removed, in list order
func (c *Compilation) ActiveItems() []Item {
	if c == nil {
		return nil
	}
	items := make([]Item, 0, len(c.Items))
	for _, it := range c.Items {
		if it.IsActive {
			items = append(items, it)
		}
	}
	return items
}

// Item is one attraction's membership record within a compilation
type Item struct {
	ID            int64       `json:"id"`
	AttractionID  string      `json:"attraction_id,omitempty"`
	Attraction    *Attraction `json:"attraction,omitempty"`
	AddedAt       *time.Time  `json:"added_at,omitempty"`
	PersonalNote  string      `json:"personal_note"`
	Priority      int         `json:"priority"`
	EstimatedCost *float64    `json:"estimated_cost,omitempty"`
	EffectiveCost float64     `json:"effective_cost"`
	IsVisited     bool        `json:"is_visited"`
	IsActive      bool        `json:"is_active"`
}

// UnmarshalJSON tolerates a numeric attraction_id
func (it *Item) UnmarshalJSON(data []byte) error {
	type alias Item
	aux := struct {
		*alias
		AttractionID  flexString `json:"attraction_id"`
		EstimatedCost flexFloat  `json:"estimated_cost"`
		EffectiveCost flexFloat  `json:"effective_cost"`
	}{alias: (*alias)(it)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	it.AttractionID = string(aux.AttractionID)
	it.EstimatedCost = aux.EstimatedCost.ptr
	it.EffectiveCost = aux.EffectiveCost.value()
	return nil
}

// Refers reports whether the item points at the given attraction id
func (it Item) Refers(attractionID string) bool {
	if attractionID == "" {
		return false
	}
	if it.AttractionID == attractionID {
		return true
	}
	return it.Attraction.Matches(attractionID)
}

// CompilationInput is the create/update payload of a compilation
type CompilationInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ProfileID   int64  `json:"user_profile_id"`
}

func (in CompilationInput) Validate() error {
	verr := NewValidationError()
	if len([]rune(strings.TrimSpace(in.Name))) < 2 {
		verr.Add("name", "Le nom doit contenir au moins 2 caractères")
	}
	if in.ProfileID == 0 {
		verr.Add("user_profile_id", "Un profil utilisateur est requis")
	}
	return verr.OrNil()
}

// CompilationUpdate is a partial update of a compilation
type CompilationUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (u CompilationUpdate) Validate() error {
	if u.Name != nil && len([]rune(strings.TrimSpace(*u.Name))) < 2 {
		return NewValidationErrorWith("name", "Le nom doit contenir au moins 2 caractères")
	}
	return nil
}

// ItemInput is the payload sent when adding an attraction to a compilation
type ItemInput struct {
	AttractionID  string   `json:"attraction_id"`
	Name          string   `json:"name,omitempty"`
	Description   string   `json:"description,omitempty"`
	City          string   `json:"city,omitempty"`
	Country       string   `json:"country,omitempty"`
	Priority      int      `json:"priority"`
	PersonalNote  string   `json:"personal_note"`
	EstimatedCost *float64 `json:"estimated_cost,omitempty"`
}

func (in ItemInput) Validate() error {
	verr := NewValidationError()
	if in.AttractionID == "" {
		verr.Add("attraction_id", "Une attraction est requise")
	}
	if in.Priority < 1 || in.Priority > 5 {
		verr.Add("priority", "La priorité doit être entre 1 et 5")
	}
	if in.EstimatedCost != nil && *in.EstimatedCost < 0 {
		verr.Add("estimated_cost", "Le coût estimé ne peut pas être négatif")
	}
	return verr.OrNil()
}

// CompilationStats is the aggregate returned by the compilations stats endpoint
type CompilationStats struct {
	TotalCompilations int     `json:"total_compilations"`
	TotalItems        int     `json:"total_items"`
	AverageBudget     float64 `json:"average_budget,omitempty"`
	VisitedItems      int     `json:"visited_items,omitempty"`
}

type BudgetStatus string

const (
	UnderBudget BudgetStatus = "under_budget"
	OnBudget    BudgetStatus = "on_budget"
	OverBudget  BudgetStatus = "over_budget"
)

// Label returns the display label of a budget status
func (s BudgetStatus) Label() string {
	switch s {
	case UnderBudget:
		return "Sous le budget"
	case OnBudget:
		return "Dans le budget"
	case OverBudget:
		return "Dépasse le budget"
	}
	return "Inconnu"
}

// ClassifyBudget compares an estimate with a persona ceiling. Under budget
// means at most 70% of the ceiling.
func ClassifyBudget(estimate, ceiling float64) BudgetStatus {
	switch {
	case estimate*10 <= ceiling*7:
		return UnderBudget
	case estimate > ceiling:
		return OverBudget
	default:
		return OnBudget
	}
}
