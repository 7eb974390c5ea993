// Package sweepcmder provides the sweep command that deletes expired rows
// from the durable cache tier.
package sweepcmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/rolodex/cmd/rolodex/runner"
	"github.com/papercomputeco/rolodex/pkg/cliui"
	"github.com/papercomputeco/rolodex/pkg/config"
	"github.com/papercomputeco/rolodex/pkg/service"
)

type sweepCommander struct {
	driver string
	dsn    string
}

var sweepFlags = []string{
	config.FlagDurableDriver,
	config.FlagDurableDSN,
}

const sweepLongDesc string = `Delete expired entries from the durable cache tier.

Reads never return expired entries, so sweeping only reclaims space. It is
safe to run while the service is up.

Examples:
  rolodex sweep
  rolodex sweep --durable-dsn /var/lib/rolodex/rolodex.sqlite`

const sweepShortDesc string = "Delete expired durable cache entries"

func NewSweepCmd() *cobra.Command {
	cmder := &sweepCommander{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: sweepShortDesc,
		Long:  sweepLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagDurableDriver, &cmder.driver)
	config.AddStringFlag(cmd, config.Flags, config.FlagDurableDSN, &cmder.dsn)

	return cmd
}

func (c *sweepCommander) run(cmd *cobra.Command) error {
	v, err := runner.Viper(cmd, sweepFlags)
	if err != nil {
		return err
	}

	log, closeLog, err := runner.Logger(cmd, os.Stderr, "")
	if err != nil {
		return err
	}
	defer closeLog()

	sc, err := runner.ServiceConfig(cmd, v)
	if err != nil {
		return err
	}

	// Sweeping needs neither sources nor the fast tier.
	sc.RedisAddr = ""
	sc.EventStreamProvider = config.EventStreamNop
	sc.TelemetryEnabled = false

	ctx := context.Background()
	svc, err := service.New(ctx, sc, log)
	if err != nil {
		return err
	}
	defer svc.Close(ctx)

	w := cmd.OutOrStdout()
	fmt.Fprintln(w)

	var removed int
	err = cliui.Step(w, "Sweeping expired cache entries", func() error {
		var sweepErr error
		removed, sweepErr = svc.Sweep(ctx)
		return sweepErr
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s %s\n\n",
		cliui.KeyStyle.Render("Removed:"),
		cliui.ValueStyle.Render(fmt.Sprintf("%d", removed)),
	)
	return nil
}
