package source

import (
	"context"
	"time"

	"github.com/papercomputeco/rolodex/pkg/caller"
)

// Memory is the long-term fact store keyed by caller.
type Memory interface {
	// FetchFacts returns the caller's known facts, or ErrNotFound.
	FetchFacts(ctx context.Context, key caller.Key) ([]string, error)

	// StoreSession writes a finished call's transcript as a session of the
	// caller. Storing the same session id again must not fail.
	StoreSession(ctx context.Context, key caller.Key, session Session) error
}

// Session is one call's transcript as kept by the memory store.
type Session struct {
	ID         string
	Transcript string
	EndedAt    time.Time
	Metadata   map[string]string
}

// Directory is the CRM-style contact directory and its calendar.
type Directory interface {
	// Lookup finds the caller's contact record, or returns ErrNotFound.
	Lookup(ctx context.Context, key caller.Key) (Contact, error)

	// FindOrCreate upserts the caller's contact and returns its id.
	FindOrCreate(ctx context.Context, key caller.Key, attrs ContactAttrs) (string, error)

	// ListUpcoming returns the appointments booked for a contact.
	ListUpcoming(ctx context.Context, referenceID string) ([]Appointment, error)

	// ListFreeSlots returns open start times in scope within [from, to).
	ListFreeSlots(ctx context.Context, scope string, from, to time.Time) ([]time.Time, error)
}

// Contact is a directory record.
type Contact struct {
	ID    string   `json:"id"`
	Phone string   `json:"phone"`
	Name  string   `json:"name,omitempty"`
	Email string   `json:"email,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// ContactAttrs is what reconciliation writes onto a contact.
type ContactAttrs struct {
	Name   string            `json:"name,omitempty"`
	Source string            `json:"source,omitempty"`
	Tags   []string          `json:"tags,omitempty"`
	Fields map[string]string `json:"customField,omitempty"`
}

// Appointment is a booked calendar event.
type Appointment struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Start  time.Time `json:"startTime"`
	Status string    `json:"appointmentStatus"`
}
