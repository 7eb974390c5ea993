// Package kafka publishes interaction events to a Kafka topic with
// segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/rolodex/pkg/eventstream"
)

const (
	defaultBatchTimeout = 10 * time.Millisecond
	defaultWriteTimeout = 5 * time.Second
)

// Config is the configuration for a Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string

	// BatchTimeout bounds how long the writer waits to fill a batch.
	BatchTimeout time.Duration

	// WriteTimeout bounds each write to the brokers.
	WriteTimeout time.Duration
}

// MessageWriter is the subset of *kafkago.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes one message per event, keyed by caller so that events
// for the same caller land on the same partition in order.
type Publisher struct {
	writer MessageWriter
}

var _ eventstream.Publisher = (*Publisher)(nil)

// NewPublisher creates a publisher writing to c.Topic on c.Brokers.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if c.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}

	batch := c.BatchTimeout
	if batch <= 0 {
		batch = defaultBatchTimeout
	}
	write := c.WriteTimeout
	if write <= 0 {
		write = defaultWriteTimeout
	}

	return NewPublisherWithWriter(&kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           batch,
		WriteTimeout:           write,
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}), nil
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

// PublishInteraction encodes event as JSON and writes it.
func (p *Publisher) PublishInteraction(ctx context.Context, event *eventstream.InteractionReconciledEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.Interaction.Key),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing event %s: %w", event.EventID, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
