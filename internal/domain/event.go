package domain

import "time"

type EventKind string

const (
	EventAuthenticated      EventKind = "session.authenticated"
	EventSignedOut          EventKind = "session.signed_out"
	EventPersonaChanged     EventKind = "persona.changed"
	EventPersonaCleared     EventKind = "persona.cleared"
	EventCompilationChanged EventKind = "compilation.changed"
)

// Event is a state transition announced by one state component to the others
type Event struct {
	Kind        EventKind    `json:"type"`
	User        *User        `json:"user,omitempty"`
	Profile     *Profile     `json:"profile,omitempty"`
	Country     *Country     `json:"country,omitempty"`
	Compilation *Compilation `json:"compilation,omitempty"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// UserID returns the id of the account the event concerns, 0 if none
func (e Event) UserID() int64 {
	if e.User == nil {
		return 0
	}
	return e.User.ID
}
