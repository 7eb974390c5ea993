package source

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/papercomputeco/rolodex/pkg/cache"
	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/health"
	"github.com/papercomputeco/rolodex/pkg/logger"
	"github.com/papercomputeco/rolodex/pkg/telemetry"
)

const defaultTimeout = 300 * time.Millisecond

// FetchFunc performs the actual upstream call. It returns ErrNotFound when
// the source has no record for key.
type FetchFunc[T any] func(ctx context.Context, key caller.Key, p Params) (T, error)

// Config configures an Adapter.
type Config[T any] struct {
	// Name identifies the source in health records, logs and metrics.
	Name string

	// Namespace is the cache namespace answers are stored under.
	Namespace cache.Namespace

	// Timeout bounds each fetch. Defaults to 300ms.
	Timeout time.Duration

	Fetch FetchFunc[T]

	// CacheKey derives the cache key for a call. Defaults to the caller key.
	CacheKey func(key caller.Key, p Params) string

	// Cache is optional; without it every fetch goes upstream.
	Cache *cache.Tiered

	// Health is optional; without it the circuit never opens.
	Health *health.Policy

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Adapter bounds one FetchFunc with a deadline, a read-through cache and a
// circuit breaker. Fetch never returns an error; failures are folded into
// Result.Status. The adapter is the only component that reports to the
// health policy.
type Adapter[T any] struct {
	name      string
	namespace cache.Namespace
	timeout   time.Duration
	fetch     FetchFunc[T]
	cacheKey  func(caller.Key, Params) string
	cache     *cache.Tiered
	health    *health.Policy
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// cachedAnswer is the cache envelope; it keeps "not found" distinguishable
// from an empty value.
type cachedAnswer[T any] struct {
	Value T    `json:"value"`
	Found bool `json:"found"`
}

type outcome[T any] struct {
	value T
	err   error
}

// NewAdapter creates an Adapter.
func NewAdapter[T any](c Config[T]) *Adapter[T] {
	a := &Adapter[T]{
		name:      c.Name,
		namespace: c.Namespace,
		timeout:   c.Timeout,
		fetch:     c.Fetch,
		cacheKey:  c.CacheKey,
		cache:     c.Cache,
		health:    c.Health,
		logger:    c.Logger,
		metrics:   c.Metrics,
	}
	if a.timeout <= 0 {
		a.timeout = defaultTimeout
	}
	if a.cacheKey == nil {
		a.cacheKey = func(key caller.Key, _ Params) string { return string(key) }
	}
	if a.logger == nil {
		a.logger = logger.Nop()
	}
	a.logger = a.logger.With("source", a.name)
	return a
}

// Name returns the source name.
func (a *Adapter[T]) Name() string {
	return a.name
}

// Timeout returns the adapter's fetch deadline.
func (a *Adapter[T]) Timeout() time.Duration {
	return a.timeout
}

// Fetch resolves key against the source within the adapter's timeout.
func (a *Adapter[T]) Fetch(ctx context.Context, key caller.Key, p Params) Result[T] {
	start := time.Now()
	r := a.fetchResult(ctx, key, p)
	r.Latency = time.Since(start)

	a.metrics.SourceResult(ctx, a.name, r.Status.String(), r.Cached, r.Latency)
	return r
}

func (a *Adapter[T]) fetchResult(ctx context.Context, key caller.Key, p Params) Result[T] {
	cacheKey := a.cacheKey(key, p)

	if a.cache != nil {
		if hit, _, ok := cache.Load[cachedAnswer[T]](ctx, a.cache, a.namespace, cacheKey); ok {
			return Result[T]{Value: hit.Value, Found: hit.Found, Status: Ok, Cached: true}
		}
	}

	if a.health != nil && !a.health.Allow(a.name) {
		return Result[T]{Status: Unavailable, Err: a.wrap(ErrUnavailable)}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	// Buffered so an abandoned fetch can still deliver and exit.
	done := make(chan outcome[T], 1)
	go func() {
		v, err := a.fetch(fetchCtx, key, p)
		done <- outcome[T]{value: v, err: err}
	}()

	var o outcome[T]
	select {
	case o = <-done:
	case <-fetchCtx.Done():
		return a.abandoned(ctx)
	}

	switch {
	case o.err == nil:
		a.remember(ctx, cacheKey, o.value, true)
		a.reportSuccess()
		return Result[T]{Value: o.value, Found: true, Status: Ok}

	case errors.Is(o.err, ErrNotFound):
		var zero T
		a.remember(ctx, cacheKey, zero, false)
		a.reportSuccess()
		return Result[T]{Status: Ok}

	case fetchCtx.Err() != nil:
		// The fetcher noticed the deadline before we did.
		return a.abandoned(ctx)

	default:
		a.logger.Warn("source fetch failed", "error", o.err)
		a.reportFailure()
		return Result[T]{Status: Error, Err: a.wrap(o.err)}
	}
}

// abandoned classifies a fetch cut short by a context. The adapter's own
// deadline counts against the source; the caller going away does not.
func (a *Adapter[T]) abandoned(parent context.Context) Result[T] {
	if err := parent.Err(); err != nil {
		return Result[T]{Status: Error, Err: a.wrap(err)}
	}

	a.logger.Warn("source fetch timed out", "timeout", a.timeout)
	a.reportFailure()
	return Result[T]{Status: TimedOut, Err: a.wrap(ErrTimeout)}
}

func (a *Adapter[T]) remember(ctx context.Context, cacheKey string, v T, found bool) {
	if a.cache == nil {
		return
	}
	if err := cache.Store(ctx, a.cache, a.namespace, cacheKey, cachedAnswer[T]{Value: v, Found: found}); err != nil {
		a.logger.Warn("failed to encode source answer", "error", err)
	}
}

func (a *Adapter[T]) reportSuccess() {
	if a.health != nil {
		a.health.ReportSuccess(a.name)
	}
}

func (a *Adapter[T]) reportFailure() {
	if a.health != nil {
		a.health.ReportFailure(a.name)
	}
}

func (a *Adapter[T]) wrap(err error) error {
	return &FetchError{Source: a.name, Err: err}
}
