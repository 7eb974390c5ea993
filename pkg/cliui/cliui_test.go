package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rolodex/pkg/cliui"
)

var _ = Describe("cliui", func() {
	DescribeTable("FormatDuration",
		func(d time.Duration, want string) {
			Expect(cliui.FormatDuration(d)).To(Equal(want))
		},
		Entry("milliseconds", 12*time.Millisecond, "12ms"),
		Entry("seconds", 3200*time.Millisecond, "3.2s"),
	)

	It("marks success and failure differently", func() {
		Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
		Expect(cliui.Mark(errors.New("boom"))).To(Equal(cliui.FailMark))
	})

	It("returns the step error and prints the message", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "sweeping", func() error { return errors.New("boom") })
		Expect(err).To(MatchError("boom"))
		Expect(buf.String()).To(ContainSubstring("sweeping"))
	})

	It("writes key value lines", func() {
		var buf bytes.Buffer
		cliui.KeyValue(&buf, 10, "reference", "contact-1")
		cliui.KeyValue(&buf, 10, "scope", "")
		Expect(buf.String()).To(ContainSubstring("contact-1"))
		Expect(buf.String()).To(ContainSubstring("scope"))
	})
})
