// Package storage persists what reconciliation learns about calls: an
// append-only interaction log, one contact row per caller and per-day
// counters.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/rolodex/pkg/caller"
)

// Driver defines the durable store used by reconciliation. Every write is
// idempotent or an atomic increment, so a retried step never double counts
// beyond what the step itself intends.
type Driver interface {
	// AppendInteraction records an interaction. Returns true if it was newly
	// inserted, false if an interaction with the same id already exists.
	AppendInteraction(ctx context.Context, in Interaction) (bool, error)

	// GetInteraction retrieves an interaction by id.
	GetInteraction(ctx context.Context, id string) (Interaction, error)

	// UpsertContact creates the caller's contact row or bumps its call count
	// by one, and returns the row as stored. Repeating an update with the
	// same non-empty InteractionID does not bump the count again.
	UpsertContact(ctx context.Context, u ContactUpdate) (Contact, error)

	// IncrementCounters atomically adds delta to day's counters.
	IncrementCounters(ctx context.Context, day string, delta Counters) error

	// DailyMetrics returns day's counters. A day with no activity is all
	// zeroes, not an error.
	DailyMetrics(ctx context.Context, day string) (DailyMetrics, error)

	// Close closes the store and releases any resources.
	Close() error
}

// Outcome is how a call ended.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeBooked      Outcome = "booked"
	OutcomeTransferred Outcome = "transferred"
	OutcomeMissed      Outcome = "missed"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeCompleted, OutcomeBooked, OutcomeTransferred, OutcomeMissed:
		return true
	default:
		return false
	}
}

// Interaction is one finished call.
type Interaction struct {
	ID          string            `json:"id"`
	Key         caller.Key        `json:"key"`
	ReferenceID string            `json:"reference_id,omitempty"`
	Scope       string            `json:"scope,omitempty"`
	Outcome     Outcome           `json:"outcome"`
	StartedAt   time.Time         `json:"started_at"`
	EndedAt     time.Time         `json:"ended_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	// Transcript is handed to the memory store and never persisted here.
	Transcript string `json:"-"`
}

// ContactUpdate is what one call contributes to a contact row.
type ContactUpdate struct {
	Key         caller.Key
	ReferenceID string
	CalledAt    time.Time

	// InteractionID identifies the call; a retried update carrying the same
	// id is applied once.
	InteractionID string
}

// Contact is the stored per-caller row.
type Contact struct {
	Key         caller.Key `json:"key"`
	ReferenceID string     `json:"reference_id,omitempty"`
	TotalCalls  int64      `json:"total_calls"`
	FirstSeenAt time.Time  `json:"first_seen_at"`
	LastCallAt  time.Time  `json:"last_call_at"`

	// LastInteractionID is the id of the last update applied.
	LastInteractionID string `json:"last_interaction_id,omitempty"`

	// Created is set when the row was created by the update that returned
	// it, including a retry of that same update.
	Created bool `json:"-"`
}

// New reports whether this row was created by the update that returned it.
func (c Contact) New() bool {
	return c.Created
}

// Counters are the per-day aggregates.
type Counters struct {
	CallsTotal         int64 `json:"calls_total"`
	NewCallers         int64 `json:"new_callers"`
	AppointmentsBooked int64 `json:"appointments_booked"`
	Transfers          int64 `json:"transfers"`
}

// Add returns the element-wise sum of c and d.
func (c Counters) Add(d Counters) Counters {
	return Counters{
		CallsTotal:         c.CallsTotal + d.CallsTotal,
		NewCallers:         c.NewCallers + d.NewCallers,
		AppointmentsBooked: c.AppointmentsBooked + d.AppointmentsBooked,
		Transfers:          c.Transfers + d.Transfers,
	}
}

// DailyMetrics is one day's counters with the derived conversion rate.
type DailyMetrics struct {
	Day string `json:"day"`
	Counters
	ConversionRate float64 `json:"conversion_rate"`
}

// NewDailyMetrics derives the conversion rate (bookings per call).
func NewDailyMetrics(day string, c Counters) DailyMetrics {
	m := DailyMetrics{Day: day, Counters: c}
	if c.CallsTotal > 0 {
		m.ConversionRate = float64(c.AppointmentsBooked) / float64(c.CallsTotal)
	}
	return m
}

// DayLayout formats day keys.
const DayLayout = "2006-01-02"

// DayKey returns t's calendar day in loc. A nil loc means UTC.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}
