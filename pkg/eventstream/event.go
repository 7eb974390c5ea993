package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/rolodex/pkg/storage"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeInteractionReconciled is emitted after a finished call has been
	// recorded by reconciliation.
	EventTypeInteractionReconciled = "rolodex.interaction.reconciled"
)

// InteractionReconciledEvent is a transport-neutral event payload for a
// recorded interaction.
type InteractionReconciledEvent struct {
	SchemaVersion int                 `json:"schema_version"`
	EventType     string              `json:"event_type"`
	EventID       string              `json:"event_id"`
	EmittedAt     time.Time           `json:"emitted_at"`
	Interaction   storage.Interaction `json:"interaction"`
	Contact       *ContactMeta        `json:"contact,omitempty"`
}

// ContactMeta summarizes the caller's contact row, when directory sync
// succeeded before the event was built.
type ContactMeta struct {
	ReferenceID string `json:"reference_id,omitempty"`
	TotalCalls  int64  `json:"total_calls"`
	NewCaller   bool   `json:"new_caller"`
}

// NewInteractionReconciledEvent builds an event for in. contact may be nil.
func NewInteractionReconciledEvent(in storage.Interaction, contact *storage.Contact, at time.Time) *InteractionReconciledEvent {
	event := &InteractionReconciledEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeInteractionReconciled,
		EventID:       uuid.NewString(),
		EmittedAt:     at.UTC(),
		Interaction:   in,
	}

	if contact != nil {
		event.Contact = &ContactMeta{
			ReferenceID: contact.ReferenceID,
			TotalCalls:  contact.TotalCalls,
			NewCaller:   contact.New(),
		}
	}

	return event
}
