// Package runner holds the setup shared by the long-running rolodex
// commands: viper resolution, logger construction and the service config.
package runner

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/papercomputeco/rolodex/pkg/config"
	"github.com/papercomputeco/rolodex/pkg/dotdir"
	"github.com/papercomputeco/rolodex/pkg/logger"
	"github.com/papercomputeco/rolodex/pkg/service"
)

// ConfigDir returns the --config-dir override, or "" when unset.
func ConfigDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config-dir")
	return dir
}

// Viper resolves configuration for cmd and binds the given registry flags.
func Viper(cmd *cobra.Command, flagKeys []string) (*viper.Viper, error) {
	v, err := config.InitViper(ConfigDir(cmd))
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)
	return v, nil
}

// Logger builds the command logger writing to w: colorized when w is a
// terminal, JSON otherwise. A non-empty logFile also receives JSON records.
// Caller keys are masked unless --debug is set.
// The returned close function releases the log file.
func Logger(cmd *cobra.Command, w io.Writer, logFile string) (*slog.Logger, func() error, error) {
	debug, _ := cmd.Flags().GetBool("debug")

	log := logger.New(
		logger.WithDebug(debug),
		logger.WithWriter(w),
		logger.WithPretty(isTerminal(w)),
		logger.WithJSON(!isTerminal(w)),
		redact(debug),
	)

	if logFile == "" {
		return log, func() error { return nil }, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	fileLog := logger.New(
		logger.WithDebug(debug),
		logger.WithWriter(f),
		logger.WithJSON(true),
		redact(debug),
	)

	return logger.Multi(log, fileLog), f.Close, nil
}

// redact masks caller keys unless debug logging was asked for.
func redact(debug bool) logger.Option {
	if debug {
		return logger.WithRedact()
	}
	return logger.WithRedact("key")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ServiceConfig reads the service config from v. A relative SQLite path is
// resolved against the .rolodex/ directory.
func ServiceConfig(cmd *cobra.Command, v *viper.Viper) (service.Config, error) {
	c := service.ConfigFromViper(v)

	if c.DurableDriver == config.DurableSQLite {
		dsn, err := dotdir.NewManager().Resolve(ConfigDir(cmd), c.DurableDSN)
		if err != nil {
			return c, fmt.Errorf("resolving sqlite path: %w", err)
		}
		c.DurableDSN = dsn
	}

	return c, nil
}
