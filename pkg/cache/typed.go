package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Load reads and decodes a JSON value from the cache. A payload that no
// longer decodes into T is treated as a miss.
func Load[T any](ctx context.Context, c *Tiered, ns Namespace, key string) (T, Entry, bool) {
	var v T

	entry, ok := c.Get(ctx, ns, key)
	if !ok {
		return v, Entry{}, false
	}

	if err := json.Unmarshal(entry.Value, &v); err != nil {
		c.logger.Warn("dropping undecodable cache entry",
			"namespace", string(ns),
			"key", key,
			"error", err,
		)
		c.Invalidate(ctx, ns, key)
		var zero T
		return zero, Entry{}, false
	}

	return v, entry, true
}

// Store encodes v as JSON and writes it with the namespace's TTL.
func Store[T any](ctx context.Context, c *Tiered, ns Namespace, key string, v T) error {
	return StoreWithTTL(ctx, c, ns, key, v, c.Policy(ns).TTL)
}

// StoreWithTTL encodes v as JSON and writes it with an explicit TTL.
func StoreWithTTL[T any](ctx context.Context, c *Tiered, ns Namespace, key string, v T, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.SetWithTTL(ctx, ns, key, payload, ttl)
	return nil
}
