package resolver_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rolodex/pkg/cache"
	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/resolver"
	"github.com/papercomputeco/rolodex/pkg/source"
)

var _ = Describe("Fanout", func() {
	var (
		ctx context.Context
		key caller.Key
	)

	BeforeEach(func() {
		ctx = context.Background()
		key = caller.Key("5551234567")
	})

	It("runs the adapters concurrently", func() {
		h := newHarness(harnessOptions{timeout: time.Second})
		h.memory.Delay = 80 * time.Millisecond
		h.directory.Delay = 80 * time.Millisecond

		start := time.Now()
		res := h.fanout.Resolve(ctx, key)
		elapsed := time.Since(start)

		Expect(res.Memory.Status).To(Equal(source.Ok))
		Expect(res.Directory.Status).To(Equal(source.Ok))
		Expect(res.Availability.Status).To(Equal(source.Ok))
		// Sequential would be at least 240ms.
		Expect(elapsed).To(BeNumerically("<", 200*time.Millisecond))
	})

	It("caches availability under a scope prefixed key", func() {
		h := newHarness(harnessOptions{})
		h.threeSlots()

		h.fanout.Resolve(ctx, key)

		from := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		cacheKey := resolver.AvailabilityCacheKey(key, source.Params{Scope: "cal-1", From: from, To: from.Add(resolver.DefaultWindow)})
		Expect(cacheKey).To(Equal("cal-1:2024-01-15:2024-01-22:5551234567"))

		_, ok := h.cache.Get(ctx, cache.NamespaceAvailability, cacheKey)
		Expect(ok).To(BeTrue())
		Expect(h.cache.InvalidatePrefix(ctx, cache.NamespaceAvailability, resolver.ScopePrefix("cal-1"))).To(BeNumerically(">", 0))
	})

	It("answers Ok with nothing for sources that are not configured", func() {
		f := resolver.NewFanout(resolver.FanoutConfig{})

		res := f.Resolve(ctx, key)
		Expect(res.Memory.Status).To(Equal(source.Ok))
		Expect(res.Memory.Found).To(BeFalse())
		Expect(res.Directory.Status).To(Equal(source.Ok))
		Expect(res.Availability.Status).To(Equal(source.Ok))
		Expect(f.Scope()).To(BeEmpty())
	})

	It("drops past appointments from the directory record", func() {
		h := newHarness(harnessOptions{})
		now := h.clock.Now()
		h.directory.AddContact(key, source.Contact{ID: "c-1", Name: "Ada"})
		h.directory.SetAppointments("c-1",
			source.Appointment{ID: "past", Start: now.Add(-time.Minute)},
			source.Appointment{ID: "future", Start: now.Add(time.Minute)},
		)

		res := h.fanout.Resolve(ctx, key)
		Expect(res.Directory.Found).To(BeTrue())
		Expect(res.Directory.Value.ReferenceID).To(Equal("c-1"))
		Expect(res.Directory.Value.Name).To(Equal("Ada"))
		Expect(res.Directory.Value.Appointments).To(HaveLen(1))
		Expect(res.Directory.Value.Appointments[0].ID).To(Equal("future"))
	})
})
