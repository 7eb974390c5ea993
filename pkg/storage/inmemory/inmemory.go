// Package inmemory provides an in-process storage.Driver for local
// development and tests.
package inmemory

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu is a read write sync mutex for locking every map below
	mu sync.RWMutex

	// interactions is keyed by interaction id
	interactions map[string]storage.Interaction

	// contacts is keyed by the normalized caller key
	contacts map[caller.Key]storage.Contact

	// firstIDs holds the interaction id that created each contact row
	firstIDs map[caller.Key]string

	// counters is keyed by day
	counters map[string]storage.Counters
}

var _ storage.Driver = (*Driver)(nil)

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		interactions: make(map[string]storage.Interaction),
		contacts:     make(map[caller.Key]storage.Contact),
		firstIDs:     make(map[caller.Key]string),
		counters:     make(map[string]storage.Counters),
	}
}

// AppendInteraction stores in unless its id is already present.
func (s *Driver) AppendInteraction(_ context.Context, in storage.Interaction) (bool, error) {
	if in.ID == "" {
		return false, errors.New("cannot store interaction without id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Idempotent insert keyed by interaction id
	if _, ok := s.interactions[in.ID]; ok {
		return false, nil
	}

	in.Metadata = maps.Clone(in.Metadata)
	s.interactions[in.ID] = in
	return true, nil
}

// GetInteraction retrieves an interaction by id.
func (s *Driver) GetInteraction(_ context.Context, id string) (storage.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.interactions[id]
	if !ok {
		return storage.Interaction{}, storage.NotFoundError{ID: id}
	}

	in.Metadata = maps.Clone(in.Metadata)
	return in, nil
}

// UpsertContact creates or bumps the caller's contact row. An update
// repeating the row's last interaction id is not counted again.
func (s *Driver) UpsertContact(_ context.Context, u storage.ContactUpdate) (storage.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[u.Key]
	if !ok {
		c = storage.Contact{Key: u.Key, FirstSeenAt: u.CalledAt}
		s.firstIDs[u.Key] = u.InteractionID
	}

	if !ok || u.InteractionID == "" || u.InteractionID != c.LastInteractionID {
		c.TotalCalls++
	}
	c.LastCallAt = u.CalledAt
	c.LastInteractionID = u.InteractionID
	if u.ReferenceID != "" {
		c.ReferenceID = u.ReferenceID
	}
	s.contacts[u.Key] = c

	if u.InteractionID == "" {
		c.Created = c.TotalCalls == 1
	} else {
		c.Created = s.firstIDs[u.Key] == u.InteractionID
	}
	return c, nil
}

// IncrementCounters adds delta to day's counters.
func (s *Driver) IncrementCounters(_ context.Context, day string, delta storage.Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[day] = s.counters[day].Add(delta)
	return nil
}

// DailyMetrics returns day's counters and conversion rate.
func (s *Driver) DailyMetrics(_ context.Context, day string) (storage.DailyMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return storage.NewDailyMetrics(day, s.counters[day]), nil
}

// Close is a no-op for the in-memory store.
func (s *Driver) Close() error {
	return nil
}
