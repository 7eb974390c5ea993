package runner_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/rolodex/cmd/rolodex/runner"
	"github.com/papercomputeco/rolodex/pkg/config"
)

func newCmd(configDir string, debug bool) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Bool("debug", false, "")
	cmd.Flags().String("config-dir", "", "")
	Expect(cmd.Flags().Set("config-dir", configDir)).To(Succeed())
	if debug {
		Expect(cmd.Flags().Set("debug", "true")).To(Succeed())
	}
	return cmd
}

var _ = Describe("runner", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	Describe("ConfigDir", func() {
		It("returns the flag value", func() {
			Expect(runner.ConfigDir(newCmd(dir, false))).To(Equal(dir))
		})

		It("returns empty without the flag", func() {
			Expect(runner.ConfigDir(&cobra.Command{Use: "bare"})).To(BeEmpty())
		})
	})

	Describe("ServiceConfig", func() {
		It("resolves a relative sqlite path against the config dir", func() {
			cmd := newCmd(dir, false)
			v, err := runner.Viper(cmd, nil)
			Expect(err).NotTo(HaveOccurred())
			v.Set("durable.dsn", "rolodex.sqlite")

			c, err := runner.ServiceConfig(cmd, v)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.DurableDSN).To(Equal(filepath.Join(dir, "rolodex.sqlite")))
		})

		It("leaves in-memory and absolute paths alone", func() {
			cmd := newCmd(dir, false)
			v, err := runner.Viper(cmd, nil)
			Expect(err).NotTo(HaveOccurred())

			v.Set("durable.dsn", ":memory:")
			c, err := runner.ServiceConfig(cmd, v)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.DurableDSN).To(Equal(":memory:"))

			abs := filepath.Join(dir, "elsewhere", "db.sqlite")
			v.Set("durable.dsn", abs)
			c, err = runner.ServiceConfig(cmd, v)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.DurableDSN).To(Equal(abs))
		})

		It("does not touch postgres DSNs", func() {
			cmd := newCmd(dir, false)
			v, err := runner.Viper(cmd, nil)
			Expect(err).NotTo(HaveOccurred())
			v.Set("durable.driver", config.DurablePostgres)
			v.Set("durable.dsn", "postgres://localhost/rolodex")

			c, err := runner.ServiceConfig(cmd, v)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.DurableDSN).To(Equal("postgres://localhost/rolodex"))
		})
	})

	Describe("Logger", func() {
		It("writes JSON with masked caller keys when w is not a terminal", func() {
			buf := &bytes.Buffer{}
			log, closeLog, err := runner.Logger(newCmd(dir, false), buf, "")
			Expect(err).NotTo(HaveOccurred())
			defer closeLog()

			log.Info("resolved", "key", "5551234567")
			Expect(buf.String()).To(ContainSubstring(`"key":"******4567"`))
		})

		It("keeps caller keys in debug mode", func() {
			buf := &bytes.Buffer{}
			log, closeLog, err := runner.Logger(newCmd(dir, true), buf, "")
			Expect(err).NotTo(HaveOccurred())
			defer closeLog()

			log.Debug("resolved", "key", "5551234567")
			Expect(buf.String()).To(ContainSubstring("5551234567"))
		})

		It("also writes to the log file", func() {
			path := filepath.Join(dir, "rolodex.log")
			log, closeLog, err := runner.Logger(newCmd(dir, false), &bytes.Buffer{}, path)
			Expect(err).NotTo(HaveOccurred())

			log.Info("to file")
			Expect(closeLog()).To(Succeed())

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"msg":"to file"`))
		})
	})
})
