package storage_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rolodex/pkg/storage"
)

var _ = Describe("Outcome", func() {
	DescribeTable("Valid",
		func(o storage.Outcome, want bool) {
			Expect(o.Valid()).To(Equal(want))
		},
		Entry("completed", storage.OutcomeCompleted, true),
		Entry("booked", storage.OutcomeBooked, true),
		Entry("transferred", storage.OutcomeTransferred, true),
		Entry("missed", storage.OutcomeMissed, true),
		Entry("empty", storage.Outcome(""), false),
		Entry("unknown", storage.Outcome("voicemail"), false),
	)
})

var _ = Describe("DayKey", func() {
	It("uses the given location's calendar day", func() {
		t := time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC)
		ny := time.FixedZone("EST", -5*60*60)

		Expect(storage.DayKey(t, nil)).To(Equal("2024-01-16"))
		Expect(storage.DayKey(t, ny)).To(Equal("2024-01-15"))
	})
})

var _ = Describe("NewDailyMetrics", func() {
	It("never divides by zero", func() {
		Expect(storage.NewDailyMetrics("2024-01-15", storage.Counters{}).ConversionRate).To(BeZero())
	})
})

var _ = Describe("NotFoundError", func() {
	It("names the missing id", func() {
		Expect(storage.NotFoundError{ID: "call-1"}.Error()).To(Equal("interaction not found: call-1"))
		Expect(storage.NotFoundError{}.Error()).To(Equal("interaction not found"))
	})
})
