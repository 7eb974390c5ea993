package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/papercomputeco/rolodex/pkg/logger"
	"github.com/papercomputeco/rolodex/pkg/telemetry"
)

const defaultBackgroundWriteTimeout = 2 * time.Second

// Config is the configuration for a Tiered cache.
type Config struct {
	// Fast is the volatile tier consulted first. Optional.
	Fast Tier

	// Durable is the fallback tier. Optional.
	Durable Tier

	// Policies maps namespaces to TTL and write mode. Namespaces missing
	// from the map fall back to DefaultPolicies, then to a write-behind
	// policy with a one minute TTL.
	Policies map[Namespace]Policy

	// BackgroundWriteTimeout bounds each write-behind durable write.
	BackgroundWriteTimeout time.Duration

	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Tiered coordinates a fast and a durable tier. Tier failures never escape:
// a dead fast tier degrades every operation to the durable tier, and with
// both dead Set is a no-op and Get always misses.
type Tiered struct {
	fast     Tier
	durable  Tier
	policies map[Namespace]Policy
	bgTO     time.Duration
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time

	pending sync.WaitGroup
}

// New creates a Tiered cache.
func New(c Config) *Tiered {
	policies := DefaultPolicies()
	for ns, p := range c.Policies {
		policies[ns] = p
	}

	t := &Tiered{
		fast:     c.Fast,
		durable:  c.Durable,
		policies: policies,
		bgTO:     c.BackgroundWriteTimeout,
		logger:   c.Logger,
		metrics:  c.Metrics,
		now:      c.Now,
	}
	if t.bgTO <= 0 {
		t.bgTO = defaultBackgroundWriteTimeout
	}
	if t.logger == nil {
		t.logger = logger.Nop()
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// Policy returns the effective policy for ns.
func (t *Tiered) Policy(ns Namespace) Policy {
	if p, ok := t.policies[ns]; ok {
		return p
	}
	return Policy{TTL: time.Minute, Mode: WriteBehind}
}

// Get returns the live entry for (ns, key). A durable-tier hit is copied
// back into the fast tier with its remaining lifetime, never a fresh TTL.
func (t *Tiered) Get(ctx context.Context, ns Namespace, key string) (Entry, bool) {
	now := t.now()

	if entry, ok := t.lookup(ctx, t.fast, ns, key, now); ok {
		t.metrics.CacheLookup(ctx, string(ns), t.fast.Name(), true)
		return entry, true
	}

	entry, ok := t.lookup(ctx, t.durable, ns, key, now)
	if !ok {
		t.metrics.CacheLookup(ctx, string(ns), "none", false)
		return Entry{}, false
	}
	t.metrics.CacheLookup(ctx, string(ns), t.durable.Name(), true)

	if t.fast != nil {
		if err := t.fast.Set(ctx, ns, key, entry); err != nil {
			t.unavailable(ctx, t.fast, "promote", ns, key, err)
		}
	}

	return entry, true
}

// lookup reads one tier and filters logically expired entries. An expired
// entry is deleted from the tier so tiers without native expiry stay
// bounded.
func (t *Tiered) lookup(ctx context.Context, tier Tier, ns Namespace, key string, now time.Time) (Entry, bool) {
	if tier == nil {
		return Entry{}, false
	}

	entry, err := tier.Get(ctx, ns, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			t.unavailable(ctx, tier, "get", ns, key, err)
		}
		return Entry{}, false
	}

	if entry.Expired(now) {
		if err := tier.Delete(ctx, ns, key); err != nil {
			t.unavailable(ctx, tier, "delete_expired", ns, key, err)
		}
		return Entry{}, false
	}

	return entry, true
}

// Set stores value under (ns, key) with the namespace's TTL.
func (t *Tiered) Set(ctx context.Context, ns Namespace, key string, value []byte) {
	t.SetWithTTL(ctx, ns, key, value, t.Policy(ns).TTL)
}

// SetWithTTL stores value under (ns, key) with an explicit TTL, honoring the
// namespace's write mode.
func (t *Tiered) SetWithTTL(ctx context.Context, ns Namespace, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	now := t.now()
	entry := Entry{
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	if t.fast != nil {
		if err := t.fast.Set(ctx, ns, key, entry); err != nil {
			t.unavailable(ctx, t.fast, "set", ns, key, err)
		}
	}

	if t.durable == nil {
		return
	}

	if t.Policy(ns).Mode == WriteThrough || t.fast == nil {
		if err := t.durable.Set(ctx, ns, key, entry); err != nil {
			t.unavailable(ctx, t.durable, "set", ns, key, err)
		}
		return
	}

	// Write-behind: the request path does not wait on the durable tier.
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()

		bgCtx, cancel := context.WithTimeout(context.Background(), t.bgTO)
		defer cancel()

		if err := t.durable.Set(bgCtx, ns, key, entry); err != nil {
			t.unavailable(bgCtx, t.durable, "set", ns, key, err)
		}
	}()
}

// Invalidate removes (ns, key) from both tiers.
func (t *Tiered) Invalidate(ctx context.Context, ns Namespace, key string) {
	for _, tier := range []Tier{t.fast, t.durable} {
		if tier == nil {
			continue
		}
		if err := tier.Delete(ctx, ns, key); err != nil {
			t.unavailable(ctx, tier, "delete", ns, key, err)
		}
	}
}

// InvalidatePrefix removes every key in ns beginning with prefix from both
// tiers and returns the number of entries removed.
func (t *Tiered) InvalidatePrefix(ctx context.Context, ns Namespace, prefix string) int {
	removed := 0
	for _, tier := range []Tier{t.fast, t.durable} {
		if tier == nil {
			continue
		}
		n, err := tier.DeletePrefix(ctx, ns, prefix)
		if err != nil {
			t.unavailable(ctx, tier, "delete_prefix", ns, prefix, err)
			continue
		}
		removed += n
	}
	return removed
}

// Wait blocks until in-flight write-behind writes finish.
func (t *Tiered) Wait() {
	t.pending.Wait()
}

func (t *Tiered) unavailable(ctx context.Context, tier Tier, op string, ns Namespace, key string, err error) {
	err = fmt.Errorf("%w: %s %s: %w", ErrUnavailable, tier.Name(), op, err)
	t.logger.Warn("cache tier degraded",
		"tier", tier.Name(),
		"op", op,
		"namespace", string(ns),
		"key", key,
		"error", err,
	)
	t.metrics.CacheError(ctx, tier.Name(), op)
}
