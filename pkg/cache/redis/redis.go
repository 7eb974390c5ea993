// Package redis provides the volatile cache.Tier backed by Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/papercomputeco/rolodex/pkg/cache"
)

const (
	defaultPrefix      = "rolodex"
	defaultDialTimeout = 250 * time.Millisecond
	defaultIOTimeout   = 50 * time.Millisecond
	scanBatch          = 100
)

// Config holds the Redis connection settings. The I/O timeouts are kept
// small because every resolution pays at most one cache round trip.
type Config struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces every key (defaults to "rolodex").
	KeyPrefix string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Tier implements cache.Tier on a go-redis client. Values are stored as a
// JSON envelope carrying the entry's timestamps, and Redis' own expiry is
// set to the entry's absolute expiry so rows disappear without a sweep.
type Tier struct {
	client goredis.UniversalClient
	prefix string
}

// NewTier creates a Redis tier from c. The connection is lazy; an
// unreachable server surfaces as per-operation errors.
func NewTier(c Config) *Tier {
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultIOTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultIOTimeout
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		MaxRetries:   -1,
	})

	return NewTierWithClient(client, c.KeyPrefix)
}

// NewTierWithClient wraps an existing client.
func NewTierWithClient(client goredis.UniversalClient, prefix string) *Tier {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Tier{client: client, prefix: prefix}
}

func (t *Tier) Name() string {
	return "redis"
}

// Ping checks connectivity.
func (t *Tier) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *Tier) Get(ctx context.Context, ns cache.Namespace, key string) (cache.Entry, error) {
	raw, err := t.client.Get(ctx, t.key(ns, key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return cache.Entry{}, cache.ErrMiss
		}
		return cache.Entry{}, fmt.Errorf("redis get: %w", err)
	}

	var entry cache.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return cache.Entry{}, fmt.Errorf("decoding redis envelope: %w", err)
	}
	return entry, nil
}

func (t *Tier) Set(ctx context.Context, ns cache.Namespace, key string, entry cache.Entry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return t.Delete(ctx, ns, key)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding redis envelope: %w", err)
	}

	if err := t.client.Set(ctx, t.key(ns, key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (t *Tier) Delete(ctx context.Context, ns cache.Namespace, key string) error {
	if err := t.client.Del(ctx, t.key(ns, key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeletePrefix collects every matching key over a complete SCAN and only
// then deletes them in batches. Deleting while the cursor is open can make
// the scan skip keys.
func (t *Tier) DeletePrefix(ctx context.Context, ns cache.Namespace, prefix string) (int, error) {
	pattern := escapeGlob(t.key(ns, prefix)) + "*"

	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := t.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan: %w", err)
		}
		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			break
		}
	}

	removed := 0
	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		n, err := t.client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return removed, fmt.Errorf("redis del: %w", err)
		}
		removed += int(n)
	}
	return removed, nil
}

// Close releases the client's connections.
func (t *Tier) Close() error {
	return t.client.Close()
}

// escapeGlob quotes Redis glob metacharacters so prefixes match literally.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func (t *Tier) key(ns cache.Namespace, key string) string {
	return t.prefix + ":" + string(ns) + ":" + key
}
