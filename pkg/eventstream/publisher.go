package eventstream

import "context"

// Publisher publishes interaction events to an event stream backend.
type Publisher interface {
	PublishInteraction(ctx context.Context, event *InteractionReconciledEvent) error
	Close() error
}
