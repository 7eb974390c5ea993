// Package resolvecmder provides the resolve command that assembles one
// caller's context and prints it.
package resolvecmder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/rolodex/cmd/rolodex/runner"
	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/config"
	"github.com/papercomputeco/rolodex/pkg/service"
)

type resolveCommander struct {
	timezone     string
	redisAddr    string
	driver       string
	dsn          string
	memoryURL    string
	directoryURL string
	scope        string
	timeout      time.Duration
}

var resolveFlags = []string{
	config.FlagTimezone,
	config.FlagRedisAddr,
	config.FlagDurableDriver,
	config.FlagDurableDSN,
	config.FlagMemoryURL,
	config.FlagDirectoryURL,
	config.FlagScope,
}

const resolveLongDesc string = `Resolve the context for a caller and print it as JSON.

Goes through the same caches and sources as the running service, so a
result may come from cache. Logs are written to stderr.

Examples:
  rolodex resolve 555-123-4567
  rolodex resolve "+1 (555) 123-4567" --scope cal-1`

const resolveShortDesc string = "Resolve one caller's context"

func NewResolveCmd() *cobra.Command {
	cmder := &resolveCommander{}

	cmd := &cobra.Command{
		Use:   "resolve <number>",
		Short: resolveShortDesc,
		Long:  resolveLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagTimezone, &cmder.timezone)
	config.AddStringFlag(cmd, config.Flags, config.FlagRedisAddr, &cmder.redisAddr)
	config.AddStringFlag(cmd, config.Flags, config.FlagDurableDriver, &cmder.driver)
	config.AddStringFlag(cmd, config.Flags, config.FlagDurableDSN, &cmder.dsn)
	config.AddStringFlag(cmd, config.Flags, config.FlagMemoryURL, &cmder.memoryURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagDirectoryURL, &cmder.directoryURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagScope, &cmder.scope)
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 5*time.Second, "Overall resolution deadline")

	return cmd
}

func (c *resolveCommander) run(cmd *cobra.Command, raw string) error {
	key, err := caller.Parse(raw)
	if err != nil {
		return fmt.Errorf("%q: %w", raw, err)
	}

	v, err := runner.Viper(cmd, resolveFlags)
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

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	svc, err := service.New(ctx, sc, log)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	out := svc.Assembler.Assemble(ctx, key)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
