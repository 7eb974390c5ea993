// Package cache provides the two-tier cache that sits in front of every
// caller lookup.
//
// A [Tiered] coordinator composes a fast volatile [Tier] (Redis in production)
// with a slower durable [Tier] (a SQL table). Expiry is decided once, here,
// from each [Entry]'s absolute expiry instant, so tiers stay dumb stores.
//
// Namespaces carry their own TTL and write mode:
//
//	[cache.ttl]
//	full_context = "5m"   # write-through, invalidation sensitive
//	fact_memory  = "5m"   # write-behind
//	availability = "3m"   # write-behind, bookings churn faster
package cache

import (
	"context"
	"time"
)

// Namespace partitions cache keys by the kind of data they hold.
type Namespace string

const (
	NamespaceFullContext  Namespace = "full_context"
	NamespaceFactMemory   Namespace = "fact_memory"
	NamespaceDirectory    Namespace = "directory"
	NamespaceAvailability Namespace = "availability"
)

// Entry is a cached payload with its freshness window.
type Entry struct {
	Value     []byte    `json:"value"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is logically absent at now.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Remaining returns the time left before the entry expires at now.
func (e Entry) Remaining(now time.Time) time.Duration {
	return e.ExpiresAt.Sub(now)
}

// Tier is one physical backing store. Implementations return [ErrMiss] for
// absent keys and any other error when the store itself is unreachable.
// Tiers may hand back expired entries; the coordinator filters them.
type Tier interface {
	// Name identifies the tier in logs and metrics (e.g. "redis", "sql").
	Name() string

	// Get fetches the entry stored under (ns, key).
	Get(ctx context.Context, ns Namespace, key string) (Entry, error)

	// Set stores entry under (ns, key) until entry.ExpiresAt.
	Set(ctx context.Context, ns Namespace, key string, entry Entry) error

	// Delete removes (ns, key). Deleting an absent key is not an error.
	Delete(ctx context.Context, ns Namespace, key string) error

	// DeletePrefix removes every key in ns starting with prefix and returns
	// how many were removed.
	DeletePrefix(ctx context.Context, ns Namespace, prefix string) (int, error)
}

// WriteMode decides how Set treats the durable tier.
type WriteMode int

const (
	// WriteBehind writes the fast tier synchronously and the durable tier
	// best-effort in the background.
	WriteBehind WriteMode = iota

	// WriteThrough writes both tiers before Set returns.
	WriteThrough
)

// Policy is the per-namespace cache configuration.
type Policy struct {
	TTL  time.Duration
	Mode WriteMode
}

// DefaultPolicies returns the stock namespace policies.
func DefaultPolicies() map[Namespace]Policy {
	return map[Namespace]Policy{
		NamespaceFullContext:  {TTL: 5 * time.Minute, Mode: WriteThrough},
		NamespaceFactMemory:   {TTL: 5 * time.Minute, Mode: WriteBehind},
		NamespaceDirectory:    {TTL: 5 * time.Minute, Mode: WriteBehind},
		NamespaceAvailability: {TTL: 3 * time.Minute, Mode: WriteBehind},
	}
}
