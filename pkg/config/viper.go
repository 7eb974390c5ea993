package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/rolodex/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the ROLODEX_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (ROLODEX_SERVER_LISTEN, ROLODEX_REDIS_ADDR, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: ROLODEX_SOURCES_MEMORY_API_KEY, etc.
	v.SetEnvPrefix("ROLODEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Server
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.timezone", d.Server.Timezone)

	// Cache
	v.SetDefault("cache.full_context_ttl", d.Cache.FullContextTTL)
	v.SetDefault("cache.fact_memory_ttl", d.Cache.FactMemoryTTL)
	v.SetDefault("cache.directory_ttl", d.Cache.DirectoryTTL)
	v.SetDefault("cache.availability_ttl", d.Cache.AvailabilityTTL)
	v.SetDefault("cache.degraded_ttl", d.Cache.DegradedTTL)

	// Redis
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)

	// Durable
	v.SetDefault("durable.driver", d.Durable.Driver)
	v.SetDefault("durable.dsn", d.Durable.DSN)

	// Sources
	v.SetDefault("sources.memory.url", d.Sources.Memory.URL)
	v.SetDefault("sources.memory.api_key", d.Sources.Memory.APIKey)
	v.SetDefault("sources.memory.timeout", d.Sources.Memory.Timeout)
	v.SetDefault("sources.directory.url", d.Sources.Directory.URL)
	v.SetDefault("sources.directory.api_key", d.Sources.Directory.APIKey)
	v.SetDefault("sources.directory.location_id", d.Sources.Directory.LocationID)
	v.SetDefault("sources.directory.timeout", d.Sources.Directory.Timeout)
	v.SetDefault("sources.availability.scope", d.Sources.Availability.Scope)
	v.SetDefault("sources.availability.window", d.Sources.Availability.Window)
	v.SetDefault("sources.availability.max_slots", d.Sources.Availability.MaxSlots)
	v.SetDefault("sources.availability.timeout", d.Sources.Availability.Timeout)

	// Health
	v.SetDefault("health.threshold", d.Health.Threshold)
	v.SetDefault("health.cooldown", d.Health.Cooldown)

	// Reconcile
	v.SetDefault("reconcile.workers", d.Reconcile.Workers)
	v.SetDefault("reconcile.queue_size", d.Reconcile.QueueSize)
	v.SetDefault("reconcile.max_tries", d.Reconcile.MaxTries)
	v.SetDefault("reconcile.refresh", d.Reconcile.Refresh)
	v.SetDefault("reconcile.contact_source", d.Reconcile.ContactSource)
	v.SetDefault("reconcile.contact_tags", d.Reconcile.ContactTags)

	// Event stream
	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)

	// Telemetry
	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.insecure", d.Telemetry.Insecure)
	v.SetDefault("telemetry.interval", d.Telemetry.Interval)
}
