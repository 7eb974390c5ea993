package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/rolodex/pkg/cliui"
	"github.com/papercomputeco/rolodex/pkg/config"
)

const listLongDesc string = `List all configuration values.

Displays every configuration key with its effective value from the
config.toml file stored in the .rolodex/ directory, or its default. API keys
and passwords are masked.

Examples:
  rolodex config list`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd, configDir)
		},
	}

	return cmd
}

func runList(cmd *cobra.Command, configDir string) error {
	cfger, err := openConfiger(cmd, configDir)
	if err != nil {
		return err
	}

	keys := config.ValidConfigKeys()

	// Find the longest key name for alignment.
	maxLen := 0
	for _, k := range keys {
		maxLen = max(maxLen, len(k))
	}

	w := cmd.OutOrStdout()
	for _, key := range keys {
		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}
		if isSecret(key) {
			value = mask(value)
		}
		cliui.KeyValue(w, maxLen, key, value)
	}

	return nil
}
