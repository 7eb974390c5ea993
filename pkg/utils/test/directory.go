package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/source"
)

// ErrMockDirectory is the failure injected by MockDirectory.
var ErrMockDirectory = errors.New("mock directory failure")

// MockDirectory is a source.Directory with scripted contacts, appointments
// and free slots. Every method counts its calls.
type MockDirectory struct {
	mu           sync.Mutex
	contacts     map[caller.Key]source.Contact
	appointments map[string][]source.Appointment
	slots        map[string][]time.Time
	upserts      []source.ContactAttrs
	nextID       int

	// FailLookup makes Lookup and FindOrCreate fail.
	FailLookup bool

	// FailSlots makes ListFreeSlots fail.
	FailSlots bool

	// FindOrCreateFailures fails the next n FindOrCreate calls.
	FindOrCreateFailures atomic.Int32

	// Delay stalls Lookup and ListFreeSlots, honoring cancellation.
	Delay time.Duration

	LookupCalls       atomic.Int32
	FindOrCreateCalls atomic.Int32
	ListUpcomingCalls atomic.Int32
	FreeSlotsCalls    atomic.Int32
}

// NewMockDirectory creates an empty mock directory.
func NewMockDirectory() *MockDirectory {
	return &MockDirectory{
		contacts:     make(map[caller.Key]source.Contact),
		appointments: make(map[string][]source.Appointment),
		slots:        make(map[string][]time.Time),
	}
}

// AddContact scripts a contact for key.
func (m *MockDirectory) AddContact(key caller.Key, c source.Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[key] = c
}

// SetAppointments scripts the appointments of a contact.
func (m *MockDirectory) SetAppointments(referenceID string, appts ...source.Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments[referenceID] = appts
}

// SetSlots scripts the free slots of a calendar.
func (m *MockDirectory) SetSlots(scope string, slots ...time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[scope] = slots
}

// Upserts returns every attrs value passed to a successful FindOrCreate.
func (m *MockDirectory) Upserts() []source.ContactAttrs {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]source.ContactAttrs(nil), m.upserts...)
}

func (m *MockDirectory) Lookup(ctx context.Context, key caller.Key) (source.Contact, error) {
	m.LookupCalls.Add(1)
	if err := stall(ctx, m.Delay); err != nil {
		return source.Contact{}, err
	}
	if m.FailLookup {
		return source.Contact{}, ErrMockDirectory
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contacts[key]
	if !ok {
		return source.Contact{}, source.ErrNotFound
	}
	return c, nil
}

func (m *MockDirectory) FindOrCreate(_ context.Context, key caller.Key, attrs source.ContactAttrs) (string, error) {
	m.FindOrCreateCalls.Add(1)
	if m.FailLookup {
		return "", ErrMockDirectory
	}
	for {
		n := m.FindOrCreateFailures.Load()
		if n <= 0 {
			break
		}
		if m.FindOrCreateFailures.CompareAndSwap(n, n-1) {
			return "", ErrMockDirectory
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.upserts = append(m.upserts, attrs)
	if c, ok := m.contacts[key]; ok {
		return c.ID, nil
	}

	m.nextID++
	c := source.Contact{ID: fmt.Sprintf("contact-%d", m.nextID), Phone: string(key), Tags: attrs.Tags}
	m.contacts[key] = c
	return c.ID, nil
}

func (m *MockDirectory) ListUpcoming(_ context.Context, referenceID string) ([]source.Appointment, error) {
	m.ListUpcomingCalls.Add(1)
	if m.FailLookup {
		return nil, ErrMockDirectory
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]source.Appointment(nil), m.appointments[referenceID]...), nil
}

func (m *MockDirectory) ListFreeSlots(ctx context.Context, scope string, from, to time.Time) ([]time.Time, error) {
	m.FreeSlotsCalls.Add(1)
	if err := stall(ctx, m.Delay); err != nil {
		return nil, err
	}
	if m.FailSlots {
		return nil, ErrMockDirectory
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []time.Time
	for _, t := range m.slots[scope] {
		if !t.Before(from) && t.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}
