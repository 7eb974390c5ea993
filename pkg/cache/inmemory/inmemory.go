// Package inmemory provides an in-process cache.Tier for local development
// and tests. Expired entries are dropped by the Tiered coordinator when it
// reads them and by Sweep, which Run calls on an interval.
package inmemory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/rolodex/pkg/cache"
)

// Tier implements cache.Tier with a mutex-guarded map.
type Tier struct {
	// mu is a read write sync mutex for locking the mapping of entries
	mu sync.RWMutex

	// entries maps "<namespace>\x00<key>" to the stored entry
	entries map[string]cache.Entry

	// down simulates an unreachable tier when set
	down bool
}

// NewTier creates an empty in-memory tier.
func NewTier() *Tier {
	return &Tier{
		entries: make(map[string]cache.Entry),
	}
}

func (t *Tier) Name() string {
	return "inmemory"
}

// SetDown toggles simulated unavailability. While down, every operation
// fails with cache.ErrUnavailable.
func (t *Tier) SetDown(down bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.down = down
}

// Len returns the number of physically stored entries, expired or not.
func (t *Tier) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Tier) Get(_ context.Context, ns cache.Namespace, key string) (cache.Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.down {
		return cache.Entry{}, fmt.Errorf("inmemory tier: %w", cache.ErrUnavailable)
	}

	entry, ok := t.entries[compositeKey(ns, key)]
	if !ok {
		return cache.Entry{}, cache.ErrMiss
	}

	// Return a copy to avoid callers mutating internal state.
	entry.Value = append([]byte(nil), entry.Value...)
	return entry, nil
}

func (t *Tier) Set(_ context.Context, ns cache.Namespace, key string, entry cache.Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.down {
		return fmt.Errorf("inmemory tier: %w", cache.ErrUnavailable)
	}

	entry.Value = append([]byte(nil), entry.Value...)
	t.entries[compositeKey(ns, key)] = entry
	return nil
}

func (t *Tier) Delete(_ context.Context, ns cache.Namespace, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.down {
		return fmt.Errorf("inmemory tier: %w", cache.ErrUnavailable)
	}

	delete(t.entries, compositeKey(ns, key))
	return nil
}

func (t *Tier) DeletePrefix(_ context.Context, ns cache.Namespace, prefix string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.down {
		return 0, fmt.Errorf("inmemory tier: %w", cache.ErrUnavailable)
	}

	match := compositeKey(ns, prefix)
	removed := 0
	for k := range t.entries {
		if strings.HasPrefix(k, match) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Sweep removes every entry that is expired at now and returns how many
// were removed.
func (t *Tier) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, entry := range t.entries {
		if entry.Expired(now) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries every interval until ctx is done.
func (t *Tier) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.Sweep(now)
		}
	}
}

func compositeKey(ns cache.Namespace, key string) string {
	return string(ns) + "\x00" + key
}
