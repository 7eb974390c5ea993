package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/health"
	"github.com/papercomputeco/rolodex/pkg/logger"
	"github.com/papercomputeco/rolodex/pkg/storage"
)

// Resolver assembles caller contexts. *resolver.Assembler satisfies it.
type Resolver interface {
	Assemble(ctx context.Context, key caller.Key) *caller.Context
}

// Scheduler accepts resolved and finished calls for background
// reconciliation. *reconcile.Scheduler satisfies it.
type Scheduler interface {
	Schedule(key caller.Key, cctx *caller.Context, in storage.Interaction) bool
}

// HealthReporter exposes per-source circuit state. *health.Policy satisfies it.
type HealthReporter interface {
	Snapshot() map[string]health.Record
}

// Server is the API server for the rolodex service
type Server struct {
	config    Config
	resolver  Resolver
	scheduler Scheduler
	store     storage.Driver
	health    HealthReporter
	logger    *slog.Logger
	app       *fiber.App
}

// NewServer creates a new API server. The store and health reporter are
// injected so they can be shared with the reconciliation scheduler and the
// fan-out resolver.
func NewServer(
	config Config,
	resolver Resolver,
	scheduler Scheduler,
	store storage.Driver,
	hr HealthReporter,
	log *slog.Logger,
) (*Server, error) {
	if resolver == nil {
		return nil, errors.New("api server requires a resolver")
	}
	if scheduler == nil {
		return nil, errors.New("api server requires a scheduler")
	}
	if store == nil {
		return nil, errors.New("api server requires a store")
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:    config,
		resolver:  resolver,
		scheduler: scheduler,
		store:     store,
		health:    hr,
		logger:    log,
		app:       app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/health", s.handleHealth)
	app.Post("/v1/callers/resolve", s.handleResolve)
	app.Get("/v1/callers/:number/context", s.handleGetContext)
	app.Post("/v1/interactions", s.handleInteraction)
	app.Get("/v1/metrics/:day", s.handleDailyMetrics)

	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
