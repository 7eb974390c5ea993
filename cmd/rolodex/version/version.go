// Package versioncmder provides the version command.
package versioncmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/rolodex/pkg/cliui"
	"github.com/papercomputeco/rolodex/pkg/utils"
)

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rolodex version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			cliui.KeyValue(w, 9, "version", utils.Version)
			cliui.KeyValue(w, 9, "sha", utils.Sha)
			cliui.KeyValue(w, 9, "buildtime", utils.Buildtime)
		},
	}
}
