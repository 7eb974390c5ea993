package inmemory_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rolodex/pkg/storage"
	"github.com/papercomputeco/rolodex/pkg/storage/inmemory"
)

var _ = Describe("Driver", func() {
	var (
		driver *inmemory.Driver
		ctx    context.Context
		now    time.Time
	)

	BeforeEach(func() {
		driver = inmemory.NewDriver()
		ctx = context.Background()
		now = time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	})

	Describe("AppendInteraction", func() {
		It("ignores a repeated id", func() {
			in := storage.Interaction{ID: "call-1", Key: "5551234567", Outcome: storage.OutcomeCompleted}

			inserted, err := driver.AppendInteraction(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			in.Outcome = storage.OutcomeBooked
			inserted, err = driver.AppendInteraction(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())

			got, err := driver.GetInteraction(ctx, "call-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Outcome).To(Equal(storage.OutcomeCompleted))
		})

		It("does not share metadata with the caller", func() {
			meta := map[string]string{"agent": "front-desk"}
			_, err := driver.AppendInteraction(ctx, storage.Interaction{ID: "call-1", Metadata: meta})
			Expect(err).NotTo(HaveOccurred())

			meta["agent"] = "changed"

			got, err := driver.GetInteraction(ctx, "call-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Metadata).To(HaveKeyWithValue("agent", "front-desk"))
		})

		It("rejects an empty id", func() {
			_, err := driver.AppendInteraction(ctx, storage.Interaction{})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("GetInteraction", func() {
		It("returns NotFoundError for unknown ids", func() {
			_, err := driver.GetInteraction(ctx, "nope")
			Expect(err).To(MatchError(storage.NotFoundError{ID: "nope"}))
		})
	})

	Describe("UpsertContact", func() {
		It("counts every call exactly once under concurrency", func() {
			var wg sync.WaitGroup
			for range 50 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := driver.UpsertContact(ctx, storage.ContactUpdate{Key: "5551234567", CalledAt: now})
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			c, err := driver.UpsertContact(ctx, storage.ContactUpdate{Key: "5551234567", CalledAt: now.Add(time.Hour)})
			Expect(err).NotTo(HaveOccurred())
			Expect(c.TotalCalls).To(Equal(int64(51)))
			Expect(c.FirstSeenAt).To(Equal(now))
			Expect(c.LastCallAt).To(Equal(now.Add(time.Hour)))
		})

		It("marks only the first call as new", func() {
			c, err := driver.UpsertContact(ctx, storage.ContactUpdate{Key: "5551234567", ReferenceID: "contact-1", CalledAt: now})
			Expect(err).NotTo(HaveOccurred())
			Expect(c.New()).To(BeTrue())

			c, err = driver.UpsertContact(ctx, storage.ContactUpdate{Key: "5551234567", CalledAt: now})
			Expect(err).NotTo(HaveOccurred())
			Expect(c.New()).To(BeFalse())
			Expect(c.ReferenceID).To(Equal("contact-1"))
		})

		It("applies a retried update for the same call once", func() {
			u := storage.ContactUpdate{Key: "5551234567", CalledAt: now, InteractionID: "call-1"}

			c, err := driver.UpsertContact(ctx, u)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.New()).To(BeTrue())

			c, err = driver.UpsertContact(ctx, u)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.TotalCalls).To(Equal(int64(1)))
			Expect(c.New()).To(BeTrue())

			c, err = driver.UpsertContact(ctx, storage.ContactUpdate{Key: "5551234567", CalledAt: now, InteractionID: "call-2"})
			Expect(err).NotTo(HaveOccurred())
			Expect(c.TotalCalls).To(Equal(int64(2)))
			Expect(c.New()).To(BeFalse())
		})
	})

	Describe("DailyMetrics", func() {
		It("derives conversion from accumulated counters", func() {
			Expect(driver.IncrementCounters(ctx, "2024-01-15", storage.Counters{CallsTotal: 1, AppointmentsBooked: 1, NewCallers: 1})).To(Succeed())
			Expect(driver.IncrementCounters(ctx, "2024-01-15", storage.Counters{CallsTotal: 1})).To(Succeed())

			m, err := driver.DailyMetrics(ctx, "2024-01-15")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.CallsTotal).To(Equal(int64(2)))
			Expect(m.ConversionRate).To(BeNumerically("~", 0.5))
		})

		It("returns zeroes for an empty day", func() {
			m, err := driver.DailyMetrics(ctx, "2024-01-01")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Counters).To(Equal(storage.Counters{}))
			Expect(m.ConversionRate).To(BeZero())
		})
	})
})
