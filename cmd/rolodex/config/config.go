// Package configcmder provides the config command for managing persistent
// rolodex configuration stored in the .rolodex/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent rolodex configuration.

Configuration is stored as config.toml in the .rolodex/ directory and provides
default values for command flags. CLI flags and ROLODEX_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  server.*, cache.*, redis.*, durable.*,
  sources.memory.*, sources.directory.*, sources.availability.*,
  health.*, reconcile.*, eventstream.*, telemetry.*

Use subcommands to get, set, or list configuration values:
  rolodex config set <key> <value>    Set a configuration value
  rolodex config get <key>            Get a configuration value
  rolodex config list                 List all configuration values

Examples:
  rolodex config set sources.availability.scope cal-1
  rolodex config set durable.driver postgres
  rolodex config get cache.full_context_ttl
  rolodex config list`

const configShortDesc string = "Manage persistent rolodex configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
