package caller_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rolodex/pkg/caller"
)

var _ = Describe("Normalize", func() {
	DescribeTable("canonical forms",
		func(raw string, want caller.Key) {
			Expect(caller.Normalize(raw)).To(Equal(want))
		},
		Entry("digits only", "5551234567", caller.Key("5551234567")),
		Entry("e164", "+15551234567", caller.Key("15551234567")),
		Entry("punctuated", "(555) 123-4567", caller.Key("5551234567")),
		Entry("spaced", " 555 123 4567 ", caller.Key("5551234567")),
		Entry("no digits", " Anonymous Caller ", caller.Key("anonymouscaller")),
		Entry("empty", "", caller.Key("")),
	)

	It("is idempotent", func() {
		for _, raw := range []string{"+1 (555) 123-4567", "Restricted", "", "++--", "sip:Bob@Example"} {
			once := caller.Normalize(raw)
			Expect(caller.Normalize(once.String())).To(Equal(once))
		}
	})
})

var _ = Describe("Parse", func() {
	It("returns the normalized key", func() {
		key, err := caller.Parse("+1-555-123-4567")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal(caller.Key("15551234567")))
	})

	It("rejects identifiers that normalize to nothing", func() {
		_, err := caller.Parse(" +-() ")
		Expect(err).To(MatchError(caller.ErrUnidentifiable))
	})
})
