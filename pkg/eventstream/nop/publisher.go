package nop

import (
	"context"

	"github.com/papercomputeco/rolodex/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishInteraction validates input and otherwise does nothing.
func (p *Publisher) PublishInteraction(_ context.Context, event *eventstream.InteractionReconciledEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
