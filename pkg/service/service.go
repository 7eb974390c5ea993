// Package service wires the caches, the durable store, the sources, the
// resolver and the reconciliation pool into one runnable unit shared by the
// rolodex commands.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/rolodex/pkg/cache"
	"github.com/papercomputeco/rolodex/pkg/cache/inmemory"
	"github.com/papercomputeco/rolodex/pkg/cache/redis"
	"github.com/papercomputeco/rolodex/pkg/cache/sqlcache"
	"github.com/papercomputeco/rolodex/pkg/config"
	"github.com/papercomputeco/rolodex/pkg/eventstream"
	"github.com/papercomputeco/rolodex/pkg/eventstream/kafka"
	"github.com/papercomputeco/rolodex/pkg/eventstream/nop"
	"github.com/papercomputeco/rolodex/pkg/health"
	"github.com/papercomputeco/rolodex/pkg/logger"
	"github.com/papercomputeco/rolodex/pkg/resolver"
	"github.com/papercomputeco/rolodex/pkg/source"
	"github.com/papercomputeco/rolodex/pkg/source/directory"
	"github.com/papercomputeco/rolodex/pkg/source/memory"
	"github.com/papercomputeco/rolodex/pkg/storage"
	memstore "github.com/papercomputeco/rolodex/pkg/storage/inmemory"
	"github.com/papercomputeco/rolodex/pkg/storage/postgres"
	"github.com/papercomputeco/rolodex/pkg/storage/sqlite"
	"github.com/papercomputeco/rolodex/pkg/telemetry"
	"github.com/papercomputeco/rolodex/pkg/utils"
	"github.com/papercomputeco/rolodex/reconcile"
)

const (
	serviceName = "rolodex"

	// memorySweepInterval is how often in-process cache tiers drop
	// expired entries.
	memorySweepInterval = time.Minute
)

// Service holds every long-lived component built from a Config.
type Service struct {
	Config    Config
	Location  *time.Location
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics
	Cache     *cache.Tiered
	Store     storage.Driver
	Health    *health.Policy
	Directory source.Directory
	Memory    source.Memory
	Fanout    *resolver.Fanout
	Assembler *resolver.Assembler
	Publisher eventstream.Publisher

	telemetry *telemetry.Provider
	sqlTier   *sqlcache.Tier
	redisTier *redis.Tier

	memTiers    []*inmemory.Tier
	sweepCtx    context.Context
	stopSweeper context.CancelFunc
}

// New builds a Service. On error every component built so far is closed.
func New(ctx context.Context, c Config, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = logger.Nop()
	}

	s := &Service{Config: c, Logger: log}

	ok := false
	defer func() {
		if !ok {
			_ = s.Close(context.Background())
		}
	}()

	loc, err := loadLocation(c.Timezone)
	if err != nil {
		return nil, err
	}
	s.Location = loc

	if err := s.initTelemetry(ctx); err != nil {
		return nil, err
	}
	if err := s.initStore(ctx); err != nil {
		return nil, err
	}
	s.initCache()

	s.Health = health.NewPolicy(health.Config{
		Threshold: c.HealthThreshold,
		Cooldown:  c.HealthCooldown,
		Logger:    log,
	})

	s.initSources()

	if err := s.initPublisher(); err != nil {
		return nil, err
	}

	ok = true
	return s, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", name, err)
	}
	return loc, nil
}

func (s *Service) initTelemetry(ctx context.Context) error {
	p, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        s.Config.TelemetryEnabled,
		Endpoint:       s.Config.TelemetryEndpoint,
		Insecure:       s.Config.TelemetryInsecure,
		Interval:       s.Config.TelemetryInterval,
		ServiceName:    serviceName,
		ServiceVersion: utils.Version,
		Logger:         s.Logger,
	})
	if err != nil {
		return fmt.Errorf("creating telemetry provider: %w", err)
	}
	s.telemetry = p

	m, err := p.Metrics()
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}
	s.Metrics = m
	return nil
}

// initStore opens the durable store. SQL drivers share their handle with the
// durable cache tier.
func (s *Service) initStore(ctx context.Context) error {
	switch s.Config.DurableDriver {
	case config.DurableSQLite, "":
		dsn := s.Config.DurableDSN
		if dsn == "" {
			dsn = ":memory:"
		}
		d, err := sqlite.NewSQLiteDriver(dsn)
		if err != nil {
			return fmt.Errorf("creating SQLite store: %w", err)
		}
		s.Store = d
		s.sqlTier = sqlcache.NewTier(d.DB())
		s.Logger.Info("using SQLite storage", "path", dsn)

	case config.DurablePostgres:
		if s.Config.DurableDSN == "" {
			return errors.New("postgres durable driver requires a dsn")
		}
		d, err := postgres.NewDriver(ctx, s.Config.DurableDSN)
		if err != nil {
			return fmt.Errorf("creating PostgreSQL store: %w", err)
		}
		s.Store = d
		s.sqlTier = sqlcache.NewTier(d.DB())
		s.Logger.Info("using PostgreSQL storage")

	case config.DurableMemory:
		s.Store = memstore.NewDriver()
		s.Logger.Info("using in-memory storage")

	default:
		return fmt.Errorf("unknown durable driver: %q", s.Config.DurableDriver)
	}

	if s.sqlTier != nil {
		if err := s.sqlTier.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating cache table: %w", err)
		}
	}
	return nil
}

// initCache composes the tiers. Without Redis the fast tier is in-process;
// without a SQL store the durable tier is too.
func (s *Service) initCache() {
	var fast, durable cache.Tier

	if s.Config.RedisAddr != "" {
		s.redisTier = redis.NewTier(redis.Config{
			Addr:      s.Config.RedisAddr,
			Password:  s.Config.RedisPassword,
			DB:        s.Config.RedisDB,
			KeyPrefix: s.Config.RedisKeyPrefix,
		})
		fast = s.redisTier
		s.Logger.Info("using redis cache tier", "addr", s.Config.RedisAddr)
	} else {
		fast = s.memoryTier()
	}

	if s.sqlTier != nil {
		durable = s.sqlTier
	} else {
		durable = s.memoryTier()
	}

	policies := cache.DefaultPolicies()
	setTTL(policies, cache.NamespaceFullContext, s.Config.FullContextTTL)
	setTTL(policies, cache.NamespaceFactMemory, s.Config.FactMemoryTTL)
	setTTL(policies, cache.NamespaceDirectory, s.Config.DirectoryTTL)
	setTTL(policies, cache.NamespaceAvailability, s.Config.AvailabilityTTL)

	s.Cache = cache.New(cache.Config{
		Fast:     fast,
		Durable:  durable,
		Policies: policies,
		Logger:   s.Logger,
		Metrics:  s.Metrics,
	})
}

// memoryTier creates an in-process tier and starts its expiry sweeper.
func (s *Service) memoryTier() *inmemory.Tier {
	if s.stopSweeper == nil {
		s.sweepCtx, s.stopSweeper = context.WithCancel(context.Background())
	}

	tier := inmemory.NewTier()
	s.memTiers = append(s.memTiers, tier)
	go tier.Run(s.sweepCtx, memorySweepInterval)
	return tier
}

func setTTL(policies map[cache.Namespace]cache.Policy, ns cache.Namespace, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	p := policies[ns]
	p.TTL = ttl
	policies[ns] = p
}

// initSources builds the source clients. A source without an API key is
// left out, which the fan-out treats as configured away.
func (s *Service) initSources() {
	fc := resolver.FanoutConfig{
		Scope:    s.Config.Scope,
		Window:   s.Config.AvailabilityWindow,
		Location: s.Location,
		Timeouts: resolver.Timeouts{
			Memory:       s.Config.MemoryTimeout,
			Directory:    s.Config.DirectoryTimeout,
			Availability: s.Config.AvailabilityTimeout,
		},
		Cache:   s.Cache,
		Health:  s.Health,
		Logger:  s.Logger,
		Metrics: s.Metrics,
	}

	if s.Config.MemoryAPIKey != "" {
		m := memory.NewClient(memory.Config{
			URL:    s.Config.MemoryURL,
			APIKey: s.Config.MemoryAPIKey,
		})
		fc.Memory = m
		s.Memory = m
	} else {
		s.Logger.Warn("memory source not configured, facts disabled")
	}

	if s.Config.DirectoryAPIKey != "" {
		d := directory.NewClient(directory.Config{
			URL:        s.Config.DirectoryURL,
			APIKey:     s.Config.DirectoryAPIKey,
			LocationID: s.Config.DirectoryLocationID,
			Timezone:   s.Location.String(),
		})
		fc.Directory = d
		s.Directory = d
	} else {
		s.Logger.Warn("directory source not configured, contacts and availability disabled")
	}

	s.Fanout = resolver.NewFanout(fc)
	s.Assembler = resolver.NewAssembler(resolver.AssemblerConfig{
		Fanout:      s.Fanout,
		Cache:       s.Cache,
		MaxSlots:    s.Config.MaxSlots,
		DegradedTTL: s.Config.DegradedTTL,
		Location:    s.Location,
		Logger:      s.Logger,
		Metrics:     s.Metrics,
	})
}

func (s *Service) initPublisher() error {
	switch s.Config.EventStreamProvider {
	case config.EventStreamNop, "":
		s.Publisher = nop.NewPublisher()
	case config.EventStreamKafka:
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: s.Config.Brokers,
			Topic:   s.Config.Topic,
		})
		if err != nil {
			return fmt.Errorf("creating kafka publisher: %w", err)
		}
		s.Publisher = p
		s.Logger.Info("publishing interaction events to kafka", "topic", s.Config.Topic)
	default:
		return fmt.Errorf("unknown eventstream provider: %q", s.Config.EventStreamProvider)
	}
	return nil
}

// NewScheduler starts a reconciliation pool over the service's components.
func (s *Service) NewScheduler() (*reconcile.Scheduler, error) {
	return reconcile.NewScheduler(&reconcile.Config{
		Store:         s.Store,
		Directory:     s.Directory,
		Memory:        s.Memory,
		Cache:         s.Cache,
		Assembler:     s.Assembler,
		Refresh:       s.Config.Refresh,
		Publisher:     s.Publisher,
		Scope:         s.Config.Scope,
		ContactSource: s.Config.ContactSource,
		ContactTags:   s.Config.ContactTags,
		Location:      s.Location,
		NumWorkers:    s.Config.Workers,
		QueueSize:     s.Config.QueueSize,
		MaxTries:      s.Config.MaxTries,
		Logger:        s.Logger,
		Metrics:       s.Metrics,
	})
}

// Sweep deletes expired entries from the in-process tiers and expired rows
// from the SQL durable tier, and returns the total removed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	removed := 0
	now := time.Now()
	for _, tier := range s.memTiers {
		removed += tier.Sweep(now)
	}

	if s.sqlTier == nil {
		return removed, nil
	}
	n, err := s.sqlTier.Sweep(ctx)
	return removed + n, err
}

// Close waits for background cache writes, then releases every component.
func (s *Service) Close(ctx context.Context) error {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	if s.Cache != nil {
		s.Cache.Wait()
	}

	var errs []error
	if s.Publisher != nil {
		errs = append(errs, s.Publisher.Close())
	}
	if s.redisTier != nil {
		errs = append(errs, s.redisTier.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	if s.telemetry != nil {
		errs = append(errs, s.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
