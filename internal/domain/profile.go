package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrNoActivePersona = errors.New("no persona profile selected")

type ProfileType string

const (
	ProfileLocal        ProfileType = "local"
	ProfileTourist      ProfileType = "tourist"
	ProfileProfessional ProfileType = "professional"
)

func (t ProfileType) Valid() bool {
	switch t {
	case ProfileLocal, ProfileTourist, ProfileProfessional:
		return true
	}
	return false
}

// Label returns the display label shown next to a persona
func (t ProfileType) Label() string {
	switch t {
	case ProfileLocal:
		return "Explorateur Local"
	case ProfileTourist:
		return "Voyageur Touriste"
	case ProfileProfessional:
		return "Professionnel en Déplacement"
	}
	return string(t)
}

type BudgetRange string

const (
	BudgetLow    BudgetRange = "low"
	BudgetMedium BudgetRange = "medium"
	BudgetHigh   BudgetRange = "high"
	BudgetLuxury BudgetRange = "luxury"
)

func (r BudgetRange) Valid() bool {
	switch r {
	case BudgetLow, BudgetMedium, BudgetHigh, BudgetLuxury:
		return true
	}
	return false
}

func (r BudgetRange) Label() string {
	switch r {
	case BudgetLow:
		return "0-100€"
	case BudgetMedium:
		return "100-500€"
	case BudgetHigh:
		return "500-1000€"
	case BudgetLuxury:
		return "1000€+"
	}
	return string(r)
}

// Ceiling returns the upper bound of the range. Luxury is open-ended.
func (r BudgetRange) Ceiling() (float64, bool) {
	switch r {
	case BudgetLow:
		return 100, true
	case BudgetMedium:
		return 500, true
	case BudgetHigh:
		return 1000, true
	}
	return 0, false
}

// Profile is a traveler persona owned by the signed-in account
type Profile struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Age         int         `json:"age"`
	ProfileType ProfileType `json:"profile_type"`
	BudgetRange BudgetRange `json:"budget_range"`
	BudgetMin   *float64    `json:"budget_min,omitempty"`
	BudgetMax   *float64    `json:"budget_max,omitempty"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
	UpdatedAt   *time.Time  `json:"updated_at,omitempty"`
}

// UnmarshalJSON accepts decimal budgets serialized as strings
func (p *Profile) UnmarshalJSON(data []byte) error {
	type alias Profile
	aux := struct {
		*alias
		BudgetMin flexFloat `json:"budget_min"`
		BudgetMax flexFloat `json:"budget_max"`
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.BudgetMin = aux.BudgetMin.ptr
	p.BudgetMax = aux.BudgetMax.ptr
	return nil
}

// BudgetCeiling prefers the backend-computed maximum over the range table
func (p *Profile) BudgetCeiling() (float64, bool) {
	if p == nil {
		return 0, false
	}
	if p.BudgetMax != nil {
		return *p.BudgetMax, true
	}
	return p.BudgetRange.Ceiling()
}

// ProfileInput is the create/update payload for a persona
type ProfileInput struct {
	Name        string      `json:"name"`
	Age         int         `json:"age"`
	ProfileType ProfileType `json:"profile_type"`
	BudgetRange BudgetRange `json:"budget_range"`
}

// Validate mirrors the backend's required-field rules so obviously bad
// input never costs a round trip.
func (in ProfileInput) Validate() error {
	verr := NewValidationError()
	if len([]rune(strings.TrimSpace(in.Name))) < 2 {
		verr.Add("name", "Le nom doit contenir au moins 2 caractères")
	}
	if in.Age < 1 || in.Age > 120 {
		verr.Add("age", "L'âge doit être entre 1 et 120 ans")
	}
	if in.ProfileType == "" {
		verr.Add("profile_type", "Le type de profil est requis")
	} else if !in.ProfileType.Valid() {
		verr.Add("profile_type", "Type de profil inconnu")
	}
	if in.BudgetRange == "" {
		verr.Add("budget_range", "La tranche de budget est requise")
	} else if !in.BudgetRange.Valid() {
		verr.Add("budget_range", "Tranche de budget inconnue")
	}
	return verr.OrNil()
}

// Country is the destination chosen alongside a persona
type Country struct {
	Code        string `json:"code"`
	DisplayName string `json:"name"`
}

// ProfileStats is the aggregate returned by the profiles stats endpoint
type ProfileStats struct {
	TotalProfiles int            `json:"total_profiles"`
	ByProfileType map[string]int `json:"by_profile_type,omitempty"`
	ByBudgetRange map[string]int `json:"by_budget_range,omitempty"`
	AverageAge    float64        `json:"average_age,omitempty"`
}
