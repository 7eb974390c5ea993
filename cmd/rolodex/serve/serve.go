// Package servecmder provides the serve command that runs the rolodex API
// server, its caches and the reconciliation pool.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/rolodex/api"
	"github.com/papercomputeco/rolodex/cmd/rolodex/runner"
	"github.com/papercomputeco/rolodex/pkg/config"
	"github.com/papercomputeco/rolodex/pkg/service"
)

const shutdownTimeout = 10 * time.Second

type serveCommander struct {
	listen       string
	timezone     string
	redisAddr    string
	driver       string
	dsn          string
	memoryURL    string
	directoryURL string
	scope        string
	provider     string
	workers      uint
	logFile      string

	logger *slog.Logger
}

var serveFlags = []string{
	config.FlagListen,
	config.FlagTimezone,
	config.FlagRedisAddr,
	config.FlagDurableDriver,
	config.FlagDurableDSN,
	config.FlagMemoryURL,
	config.FlagDirectoryURL,
	config.FlagScope,
	config.FlagWorkers,
	config.FlagEventStreamProv,
}

const serveLongDesc string = `Run the rolodex service.

Starts the HTTP API, the two cache tiers, the source clients and the
background reconciliation pool. Configuration comes from config.toml in the
.rolodex/ directory, ROLODEX_* environment variables and the flags below, in
increasing order of precedence.

Examples:
  rolodex serve
  rolodex serve --listen :9090 --redis-addr localhost:6379
  rolodex serve --durable-driver postgres --durable-dsn postgres://localhost/rolodex`

const serveShortDesc string = "Run the rolodex service"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimezone, &cmder.timezone)
	config.AddStringFlag(cmd, config.Flags, config.FlagRedisAddr, &cmder.redisAddr)
	config.AddStringFlag(cmd, config.Flags, config.FlagDurableDriver, &cmder.driver)
	config.AddStringFlag(cmd, config.Flags, config.FlagDurableDSN, &cmder.dsn)
	config.AddStringFlag(cmd, config.Flags, config.FlagMemoryURL, &cmder.memoryURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagDirectoryURL, &cmder.directoryURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagScope, &cmder.scope)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventStreamProv, &cmder.provider)
	config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, &cmder.workers)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	v, err := runner.Viper(cmd, serveFlags)
	if err != nil {
		return err
	}

	log, closeLog, err := runner.Logger(cmd, os.Stdout, c.logFile)
	if err != nil {
		return err
	}
	defer closeLog()
	c.logger = log

	sc, err := runner.ServiceConfig(cmd, v)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, err := service.New(ctx, sc, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			c.logger.Warn("error closing service", "error", err)
		}
	}()

	sched, err := svc.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating reconciliation scheduler: %w", err)
	}
	defer sched.Close()

	server, err := api.NewServer(
		api.Config{
			ListenAddr: v.GetString("server.listen"),
			Location:   svc.Location,
		},
		svc.Assembler,
		sched,
		svc.Store,
		svc.Health,
		c.logger,
	)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	}

	if err := server.Shutdown(); err != nil {
		c.logger.Warn("error shutting down API server", "error", err)
	}
	return nil
}
