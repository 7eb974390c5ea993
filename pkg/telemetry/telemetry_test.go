package telemetry_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/papercomputeco/rolodex/pkg/telemetry"
)

func collect(ctx context.Context, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	var rm metricdata.ResourceMetrics
	Expect(reader.Collect(ctx, &rm)).To(Succeed())

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumValue(m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	sum, ok := m.Data.(metricdata.Sum[int64])
	Expect(ok).To(BeTrue(), "expected an int64 sum for %s", m.Name)

	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

var _ = Describe("Metrics", func() {
	var (
		ctx     context.Context
		reader  *sdkmetric.ManualReader
		metrics *telemetry.Metrics
	)

	BeforeEach(func() {
		ctx = context.Background()
		reader = sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

		var err error
		metrics, err = telemetry.New(provider.Meter("test"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("counts cache lookups by tier and outcome", func() {
		metrics.CacheLookup(ctx, "full_context", "redis", true)
		metrics.CacheLookup(ctx, "full_context", "redis", true)
		metrics.CacheLookup(ctx, "full_context", "none", false)

		m := collect(ctx, reader)["rolodex.cache.lookups"]
		Expect(sumValue(m,
			attribute.String("namespace", "full_context"),
			attribute.String("tier", "redis"),
			attribute.Bool("hit", true),
		)).To(BeEquivalentTo(2))
		Expect(sumValue(m,
			attribute.String("namespace", "full_context"),
			attribute.String("tier", "none"),
			attribute.Bool("hit", false),
		)).To(BeEquivalentTo(1))
	})

	It("counts cache tier errors", func() {
		metrics.CacheError(ctx, "sql", "set")

		m := collect(ctx, reader)["rolodex.cache.errors"]
		Expect(sumValue(m, attribute.String("tier", "sql"), attribute.String("op", "set"))).To(BeEquivalentTo(1))
	})

	It("records source results with latency", func() {
		metrics.SourceResult(ctx, "directory", "timed_out", false, 250*time.Millisecond)

		got := collect(ctx, reader)
		Expect(sumValue(got["rolodex.source.results"],
			attribute.String("source", "directory"),
			attribute.String("status", "timed_out"),
			attribute.Bool("cached", false),
		)).To(BeEquivalentTo(1))

		hist, ok := got["rolodex.source.duration"].Data.(metricdata.Histogram[float64])
		Expect(ok).To(BeTrue())
		Expect(hist.DataPoints).To(HaveLen(1))
		Expect(hist.DataPoints[0].Count).To(BeEquivalentTo(1))
	})

	It("counts reconciliation steps and drops", func() {
		metrics.ReconcileStep(ctx, "directory_sync", true)
		metrics.ReconcileStep(ctx, "directory_sync", false)
		metrics.ReconcileDropped(ctx)

		got := collect(ctx, reader)
		Expect(sumValue(got["rolodex.reconcile.steps"],
			attribute.String("step", "directory_sync"),
			attribute.String("result", "failed"),
		)).To(BeEquivalentTo(1))
		Expect(sumValue(got["rolodex.reconcile.dropped"])).To(BeEquivalentTo(1))
	})

	It("is safe to use through a nil pointer", func() {
		var nilMetrics *telemetry.Metrics
		Expect(func() {
			nilMetrics.CacheLookup(ctx, "full_context", "none", false)
			nilMetrics.CacheError(ctx, "redis", "get")
			nilMetrics.SourceResult(ctx, "memory", "ok", true, time.Millisecond)
			nilMetrics.ResolveDuration(ctx, time.Millisecond, false, "unknown")
			nilMetrics.ReconcileStep(ctx, "log_interaction", true)
			nilMetrics.ReconcileDropped(ctx)
		}).NotTo(Panic())
	})
})

var _ = Describe("Provider", func() {
	It("builds no-op metrics when export is disabled", func() {
		p, err := telemetry.NewProvider(context.Background(), telemetry.Config{})
		Expect(err).NotTo(HaveOccurred())

		m, err := p.Metrics()
		Expect(err).NotTo(HaveOccurred())
		Expect(m).NotTo(BeNil())
		Expect(p.Shutdown(context.Background())).To(Succeed())
	})
})
