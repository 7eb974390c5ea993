package service_test

import (
	"context"
	"path/filepath"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rolodex/pkg/cache"
	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/config"
	"github.com/papercomputeco/rolodex/pkg/logger"
	"github.com/papercomputeco/rolodex/pkg/service"
	"github.com/papercomputeco/rolodex/pkg/storage"
)

var _ = Describe("ConfigFromViper", func() {
	It("parses the defaults", func() {
		v, err := config.InitViper(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		c := service.ConfigFromViper(v)
		Expect(c.Timezone).To(Equal("America/New_York"))
		Expect(c.FullContextTTL).To(Equal(5 * time.Minute))
		Expect(c.AvailabilityTTL).To(Equal(3 * time.Minute))
		Expect(c.DegradedTTL).To(Equal(30 * time.Second))
		Expect(c.MemoryTimeout).To(Equal(300 * time.Millisecond))
		Expect(c.AvailabilityWindow).To(Equal(168 * time.Hour))
		Expect(c.DurableDriver).To(Equal(config.DurableSQLite))
		Expect(c.Workers).To(Equal(uint(3)))
		Expect(c.ContactTags).To(Equal([]string{"inbound", "voice-ai"}))
		Expect(c.EventStreamProvider).To(Equal(config.EventStreamNop))
		Expect(c.TelemetryEnabled).To(BeFalse())
	})
})

var _ = Describe("Service", func() {
	var (
		ctx context.Context
		cfg service.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = service.Config{
			Timezone:      "UTC",
			DurableDriver: config.DurableMemory,
		}
	})

	It("builds an in-memory service with sources configured away", func() {
		svc, err := service.New(ctx, cfg, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer svc.Close(ctx)

		Expect(svc.Directory).To(BeNil())
		Expect(svc.Location).To(Equal(time.UTC))

		out := svc.Assembler.Assemble(ctx, caller.Key("5551234567"))
		Expect(out.Key).To(Equal(caller.Key("5551234567")))
		Expect(out.Known).To(Equal(caller.Unknown))

		n, err := svc.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	It("shares the SQLite handle with the durable cache tier", func() {
		cfg.DurableDriver = config.DurableSQLite
		cfg.DurableDSN = filepath.Join(GinkgoT().TempDir(), "rolodex.sqlite")

		svc, err := service.New(ctx, cfg, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer svc.Close(ctx)

		svc.Cache.SetWithTTL(ctx, cache.NamespaceDirectory, "5551234567", []byte(`{}`), time.Nanosecond)
		svc.Cache.Wait()
		time.Sleep(time.Millisecond)

		// One row in SQLite plus the copy in the in-process fast tier.
		n, err := svc.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))

		Expect(svc.Store.IncrementCounters(ctx, "2024-01-15", storage.Counters{CallsTotal: 1})).To(Succeed())
	})

	It("sweeps expired entries out of the in-process tiers", func() {
		svc, err := service.New(ctx, cfg, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer svc.Close(ctx)

		for _, key := range []string{"5551234567", "5559876543"} {
			svc.Cache.SetWithTTL(ctx, cache.NamespaceFullContext, key, []byte(`{}`), time.Nanosecond)
		}
		svc.Cache.Wait()
		time.Sleep(time.Millisecond)

		n, err := svc.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(4))

		n, err = svc.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	It("uses redis as the fast tier when an address is set", func() {
		mr := miniredis.RunT(GinkgoT())
		cfg.RedisAddr = mr.Addr()

		svc, err := service.New(ctx, cfg, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer svc.Close(ctx)

		svc.Cache.Set(ctx, cache.NamespaceFactMemory, "5551234567", []byte(`["likes mornings"]`))
		Expect(mr.Keys()).NotTo(BeEmpty())

		entry, ok := svc.Cache.Get(ctx, cache.NamespaceFactMemory, "5551234567")
		Expect(ok).To(BeTrue())
		Expect(string(entry.Value)).To(Equal(`["likes mornings"]`))
	})

	It("reconciles scheduled interactions into the store", func() {
		svc, err := service.New(ctx, cfg, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer svc.Close(ctx)

		sched, err := svc.NewScheduler()
		Expect(err).NotTo(HaveOccurred())

		Expect(sched.Schedule("5551234567", nil, storage.Interaction{
			ID:      "call-1",
			Outcome: storage.OutcomeCompleted,
		})).To(BeTrue())
		sched.Close()

		in, err := svc.Store.GetInteraction(ctx, "call-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(in.Key).To(Equal(caller.Key("5551234567")))
	})

	DescribeTable("rejects invalid configuration",
		func(mutate func(c *service.Config), msg string) {
			mutate(&cfg)
			_, err := service.New(ctx, cfg, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("timezone", func(c *service.Config) { c.Timezone = "Mars/Olympus" }, "timezone"),
		Entry("durable driver", func(c *service.Config) { c.DurableDriver = "mysql" }, "unknown durable driver"),
		Entry("postgres dsn", func(c *service.Config) { c.DurableDriver = config.DurablePostgres }, "requires a dsn"),
		Entry("eventstream provider", func(c *service.Config) { c.EventStreamProvider = "nats" }, "unknown eventstream provider"),
		Entry("kafka brokers", func(c *service.Config) { c.EventStreamProvider = config.EventStreamKafka }, "kafka"),
	)
})
