// Package testutils provides scripted doubles of the upstream sources and
// durable store for tests across packages.
package testutils

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/source"
)

// MockMemory is a source.Memory that records calls and returns configurable
// results. Unknown keys are source.ErrNotFound.
type MockMemory struct {
	mu       sync.Mutex
	facts    map[caller.Key][]string
	sessions map[caller.Key][]source.Session

	// Err, when set, is returned by every call.
	Err error

	// Delay stalls each call, honoring context cancellation.
	Delay time.Duration

	Calls atomic.Int32

	// SessionFailures fails that many StoreSession calls before the next
	// one succeeds.
	SessionFailures atomic.Int32
	SessionCalls    atomic.Int32
}

// NewMockMemory creates an empty mock memory source.
func NewMockMemory() *MockMemory {
	return &MockMemory{
		facts:    make(map[caller.Key][]string),
		sessions: make(map[caller.Key][]source.Session),
	}
}

// SetFacts scripts the facts returned for key.
func (m *MockMemory) SetFacts(key caller.Key, facts ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts[key] = facts
}

func (m *MockMemory) FetchFacts(ctx context.Context, key caller.Key) ([]string, error) {
	m.Calls.Add(1)
	if err := stall(ctx, m.Delay); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	facts, ok := m.facts[key]
	if !ok {
		return nil, source.ErrNotFound
	}
	return append([]string(nil), facts...), nil
}

func (m *MockMemory) StoreSession(ctx context.Context, key caller.Key, session source.Session) error {
	m.SessionCalls.Add(1)
	if err := stall(ctx, m.Delay); err != nil {
		return err
	}
	if m.SessionFailures.Load() > 0 {
		m.SessionFailures.Add(-1)
		return errors.New("memory store unavailable")
	}
	if m.Err != nil {
		return m.Err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, stored := range m.sessions[key] {
		if stored.ID == session.ID {
			return nil
		}
	}
	m.sessions[key] = append(m.sessions[key], session)
	return nil
}

// Sessions returns the sessions stored for key.
func (m *MockMemory) Sessions(key caller.Key) []source.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]source.Session(nil), m.sessions[key]...)
}

func stall(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
