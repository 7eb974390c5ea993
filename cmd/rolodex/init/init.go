// Package initcmder provides the init command for initializing a local
// .rolodex directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/rolodex/pkg/cliui"
	"github.com/papercomputeco/rolodex/pkg/config"
)

const (
	dirName       = ".rolodex"
	fetchTimeout  = 10 * time.Second
	maxRemoteSize = 1 << 20
)

const initLongDesc string = `Initialize a new .rolodex/ directory in the current working directory.

Creates a local .rolodex/ directory that takes precedence over the default
~/.rolodex/ directory, and writes a config.toml into it.

The --preset flag picks the starting configuration: "local" (SQLite, no
Redis) or "production" (Redis, PostgreSQL, Kafka, metrics export). It also
accepts an http(s) URL to a config.toml to fetch. Without --preset an
existing config.toml is left untouched.

Examples:
  rolodex init
  rolodex init --preset production
  rolodex init --preset https://example.com/rolodex/config.toml`

const initShortDesc string = "Initialize a local .rolodex/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Config preset name (local, production) or URL to a config.toml")

	return cmd
}

func runInit(cmd *cobra.Command, preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .rolodex directory: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	path := cfger.GetTarget()

	if preset == "" {
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(w, "Already initialized: %s\n", dir)
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	cfg, err := resolvePreset(cmd.Context(), preset)
	if err != nil {
		return err
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s Initialized %s\n", cliui.SuccessMark, cliui.DimStyle.Render(path))
	return nil
}

func resolvePreset(ctx context.Context, preset string) (*config.Config, error) {
	switch {
	case preset == "":
		return config.NewDefaultConfig(), nil
	case strings.HasPrefix(preset, "http://"), strings.HasPrefix(preset, "https://"):
		return fetchRemote(ctx, preset)
	default:
		return config.PresetConfig(preset)
	}
}

func fetchRemote(ctx context.Context, url string) (*config.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize))
	if err != nil {
		return nil, fmt.Errorf("reading remote config: %w", err)
	}

	return config.ParseConfigTOML(data)
}
