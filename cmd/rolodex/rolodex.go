// Package rolodexcmder
package rolodexcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/rolodex/cmd/rolodex/config"
	initcmder "github.com/papercomputeco/rolodex/cmd/rolodex/init"
	resolvecmder "github.com/papercomputeco/rolodex/cmd/rolodex/resolve"
	servecmder "github.com/papercomputeco/rolodex/cmd/rolodex/serve"
	sweepcmder "github.com/papercomputeco/rolodex/cmd/rolodex/sweep"
	versioncmder "github.com/papercomputeco/rolodex/cmd/rolodex/version"
)

const rolodexLongDesc string = `Rolodex assembles caller context for voice agents.

On an inbound call it resolves the caller's phone number into one context
built from fact memory, the contact directory and calendar availability,
served from a two-tier cache. After the call it reconciles the interaction
back into the stores in the background.

Run services using:
  rolodex serve              Run the API server
  rolodex resolve <number>   Assemble one caller's context
  rolodex sweep              Remove expired durable cache entries`

const rolodexShortDesc string = "Rolodex - Caller Context"

func NewRolodexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "rolodex",
		Short:        rolodexShortDesc,
		Long:         rolodexLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .rolodex/ config directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(resolvecmder.NewResolveCmd())
	cmd.AddCommand(sweepcmder.NewSweepCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
