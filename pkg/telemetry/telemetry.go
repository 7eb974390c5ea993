// Package telemetry exports rolodex metrics through OpenTelemetry.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/papercomputeco/rolodex"

// Metrics holds the instruments recorded on the resolution and
// reconciliation paths.
type Metrics struct {
	cacheLookups   metric.Int64Counter
	cacheErrors    metric.Int64Counter
	sourceResults  metric.Int64Counter
	sourceLatency  metric.Float64Histogram
	resolveLatency metric.Float64Histogram
	reconcileSteps metric.Int64Counter
	reconcileDrops metric.Int64Counter
}

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1, 2.5}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.cacheLookups, err = meter.Int64Counter("rolodex.cache.lookups",
		metric.WithDescription("Cache lookups by namespace, serving tier and outcome"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, fmt.Errorf("creating cache lookup counter: %w", err)
	}

	if m.cacheErrors, err = meter.Int64Counter("rolodex.cache.errors",
		metric.WithDescription("Cache tier operations that failed"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, fmt.Errorf("creating cache error counter: %w", err)
	}

	if m.sourceResults, err = meter.Int64Counter("rolodex.source.results",
		metric.WithDescription("Source fetches by source and status"),
		metric.WithUnit("{fetch}"),
	); err != nil {
		return nil, fmt.Errorf("creating source result counter: %w", err)
	}

	if m.sourceLatency, err = meter.Float64Histogram("rolodex.source.duration",
		metric.WithDescription("Source fetch latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, fmt.Errorf("creating source latency histogram: %w", err)
	}

	if m.resolveLatency, err = meter.Float64Histogram("rolodex.resolve.duration",
		metric.WithDescription("End to end caller context resolution latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, fmt.Errorf("creating resolve latency histogram: %w", err)
	}

	if m.reconcileSteps, err = meter.Int64Counter("rolodex.reconcile.steps",
		metric.WithDescription("Reconciliation steps by step and result"),
		metric.WithUnit("{step}"),
	); err != nil {
		return nil, fmt.Errorf("creating reconcile step counter: %w", err)
	}

	if m.reconcileDrops, err = meter.Int64Counter("rolodex.reconcile.dropped",
		metric.WithDescription("Reconciliation jobs dropped because the queue was full"),
		metric.WithUnit("{job}"),
	); err != nil {
		return nil, fmt.Errorf("creating reconcile drop counter: %w", err)
	}

	return m, nil
}

// CacheLookup counts one lookup. tier is the tier that served a hit, or
// "none" on a miss.
func (m *Metrics) CacheLookup(ctx context.Context, namespace, tier string, hit bool) {
	if m == nil {
		return
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.String("tier", tier),
		attribute.Bool("hit", hit),
	))
}

// CacheError counts a failed tier operation.
func (m *Metrics) CacheError(ctx context.Context, tier, op string) {
	if m == nil {
		return
	}
	m.cacheErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("op", op),
	))
}

// SourceResult records the outcome and latency of one adapter fetch.
func (m *Metrics) SourceResult(ctx context.Context, source, status string, cached bool, latency time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
		attribute.Bool("cached", cached),
	)
	m.sourceResults.Add(ctx, 1, attrs)
	m.sourceLatency.Record(ctx, latency.Seconds(), attrs)
}

// ResolveDuration records one Assemble call. cached reports a full context
// hit; known is the caller's known-ness.
func (m *Metrics) ResolveDuration(ctx context.Context, d time.Duration, cached bool, known string) {
	if m == nil {
		return
	}
	m.resolveLatency.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.Bool("cached", cached),
		attribute.String("known", known),
	))
}

// ReconcileStep counts one finished reconciliation step.
func (m *Metrics) ReconcileStep(ctx context.Context, step string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.reconcileSteps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("result", result),
	))
}

// ReconcileDropped counts a job rejected by a full queue.
func (m *Metrics) ReconcileDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.reconcileDrops.Add(ctx, 1)
}
