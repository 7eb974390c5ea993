package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent rolodex configuration stored as
// config.toml in the .rolodex/ directory. The TOML layout uses sections for
// logical grouping. Durations are Go duration strings ("5m", "300ms").
type Config struct {
	Version     int               `toml:"version"`
	Server      ServerConfig      `toml:"server"`
	Cache       CacheConfig       `toml:"cache"`
	Redis       RedisConfig       `toml:"redis"`
	Durable     DurableConfig     `toml:"durable"`
	Sources     SourcesConfig     `toml:"sources"`
	Health      HealthConfig      `toml:"health"`
	Reconcile   ReconcileConfig   `toml:"reconcile"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Listen string `toml:"listen,omitempty"`

	// Timezone renders slot labels and decides day boundaries.
	Timezone string `toml:"timezone,omitempty"`
}

// CacheConfig holds per-namespace TTLs.
type CacheConfig struct {
	FullContextTTL  string `toml:"full_context_ttl,omitempty"`
	FactMemoryTTL   string `toml:"fact_memory_ttl,omitempty"`
	DirectoryTTL    string `toml:"directory_ttl,omitempty"`
	AvailabilityTTL string `toml:"availability_ttl,omitempty"`

	// DegradedTTL caps the full context TTL when a source failed.
	DegradedTTL string `toml:"degraded_ttl,omitempty"`
}

// RedisConfig holds the fast cache tier settings. An empty Addr disables
// the fast tier.
type RedisConfig struct {
	Addr      string `toml:"addr,omitempty"`
	Password  string `toml:"password,omitempty"`
	DB        int    `toml:"db,omitempty"`
	KeyPrefix string `toml:"key_prefix,omitempty"`
}

// DurableConfig selects the SQL database backing the durable cache tier and
// the interaction store. Driver is "sqlite", "postgres" or "memory".
type DurableConfig struct {
	Driver string `toml:"driver,omitempty"`
	DSN    string `toml:"dsn,omitempty"`
}

// SourcesConfig groups the upstream source settings.
type SourcesConfig struct {
	Memory       MemorySourceConfig       `toml:"memory"`
	Directory    DirectorySourceConfig    `toml:"directory"`
	Availability AvailabilitySourceConfig `toml:"availability"`
}

// MemorySourceConfig configures the fact memory API. An empty APIKey
// leaves the source unconfigured.
type MemorySourceConfig struct {
	URL     string `toml:"url,omitempty"`
	APIKey  string `toml:"api_key,omitempty"`
	Timeout string `toml:"timeout,omitempty"`
}

// DirectorySourceConfig configures the contact directory API. An empty
// APIKey leaves the source unconfigured.
type DirectorySourceConfig struct {
	URL        string `toml:"url,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
	LocationID string `toml:"location_id,omitempty"`
	Timeout    string `toml:"timeout,omitempty"`
}

// AvailabilitySourceConfig configures free slot lookup. An empty Scope
// disables it.
type AvailabilitySourceConfig struct {
	Scope    string `toml:"scope,omitempty"`
	Window   string `toml:"window,omitempty"`
	MaxSlots int    `toml:"max_slots,omitempty"`
	Timeout  string `toml:"timeout,omitempty"`
}

// HealthConfig configures the per-source circuit breaker.
type HealthConfig struct {
	Threshold int    `toml:"threshold,omitempty"`
	Cooldown  string `toml:"cooldown,omitempty"`
}

// ReconcileConfig configures the background reconciliation pool.
type ReconcileConfig struct {
	Workers       uint     `toml:"workers,omitempty"`
	QueueSize     uint     `toml:"queue_size,omitempty"`
	MaxTries      uint     `toml:"max_tries,omitempty"`
	Refresh       bool     `toml:"refresh,omitempty"`
	ContactSource string   `toml:"contact_source,omitempty"`
	ContactTags   []string `toml:"contact_tags,omitempty"`
}

// EventStreamConfig selects where interaction events go. Provider is "nop"
// or "kafka".
type EventStreamConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// TelemetryConfig configures OTLP metric export.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled,omitempty"`
	Endpoint string `toml:"endpoint,omitempty"`
	Insecure bool   `toml:"insecure,omitempty"`
	Interval string `toml:"interval,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = v
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// listKey reads and writes a comma separated list.
func listKey(field func(c *Config) *[]string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strings.Join(*field(c), ",") },
		set: func(c *Config, v string) error {
			var out []string
			for _, item := range strings.Split(v, ",") {
				if item = strings.TrimSpace(item); item != "" {
					out = append(out, item)
				}
			}
			*field(c) = out
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.listen":   stringKey(func(c *Config) *string { return &c.Server.Listen }),
	"server.timezone": stringKey(func(c *Config) *string { return &c.Server.Timezone }),

	"cache.full_context_ttl": durationKey("cache.full_context_ttl", func(c *Config) *string { return &c.Cache.FullContextTTL }),
	"cache.fact_memory_ttl":  durationKey("cache.fact_memory_ttl", func(c *Config) *string { return &c.Cache.FactMemoryTTL }),
	"cache.directory_ttl":    durationKey("cache.directory_ttl", func(c *Config) *string { return &c.Cache.DirectoryTTL }),
	"cache.availability_ttl": durationKey("cache.availability_ttl", func(c *Config) *string { return &c.Cache.AvailabilityTTL }),
	"cache.degraded_ttl":     durationKey("cache.degraded_ttl", func(c *Config) *string { return &c.Cache.DegradedTTL }),

	"redis.addr":       stringKey(func(c *Config) *string { return &c.Redis.Addr }),
	"redis.password":   stringKey(func(c *Config) *string { return &c.Redis.Password }),
	"redis.db":         intKey("redis.db", func(c *Config) *int { return &c.Redis.DB }),
	"redis.key_prefix": stringKey(func(c *Config) *string { return &c.Redis.KeyPrefix }),

	"durable.driver": {
		get: func(c *Config) string { return c.Durable.Driver },
		set: func(c *Config, v string) error {
			switch v {
			case DurableSQLite, DurablePostgres, DurableMemory:
				c.Durable.Driver = v
				return nil
			default:
				return fmt.Errorf("invalid value for durable.driver: %q (available: sqlite, postgres, memory)", v)
			}
		},
	},
	"durable.dsn": stringKey(func(c *Config) *string { return &c.Durable.DSN }),

	"sources.memory.url":     stringKey(func(c *Config) *string { return &c.Sources.Memory.URL }),
	"sources.memory.api_key": stringKey(func(c *Config) *string { return &c.Sources.Memory.APIKey }),
	"sources.memory.timeout": durationKey("sources.memory.timeout", func(c *Config) *string { return &c.Sources.Memory.Timeout }),

	"sources.directory.url":         stringKey(func(c *Config) *string { return &c.Sources.Directory.URL }),
	"sources.directory.api_key":     stringKey(func(c *Config) *string { return &c.Sources.Directory.APIKey }),
	"sources.directory.location_id": stringKey(func(c *Config) *string { return &c.Sources.Directory.LocationID }),
	"sources.directory.timeout":     durationKey("sources.directory.timeout", func(c *Config) *string { return &c.Sources.Directory.Timeout }),

	"sources.availability.scope":     stringKey(func(c *Config) *string { return &c.Sources.Availability.Scope }),
	"sources.availability.window":    durationKey("sources.availability.window", func(c *Config) *string { return &c.Sources.Availability.Window }),
	"sources.availability.max_slots": intKey("sources.availability.max_slots", func(c *Config) *int { return &c.Sources.Availability.MaxSlots }),
	"sources.availability.timeout":   durationKey("sources.availability.timeout", func(c *Config) *string { return &c.Sources.Availability.Timeout }),

	"health.threshold": intKey("health.threshold", func(c *Config) *int { return &c.Health.Threshold }),
	"health.cooldown":  durationKey("health.cooldown", func(c *Config) *string { return &c.Health.Cooldown }),

	"reconcile.workers":        uintKey("reconcile.workers", func(c *Config) *uint { return &c.Reconcile.Workers }),
	"reconcile.queue_size":     uintKey("reconcile.queue_size", func(c *Config) *uint { return &c.Reconcile.QueueSize }),
	"reconcile.max_tries":      uintKey("reconcile.max_tries", func(c *Config) *uint { return &c.Reconcile.MaxTries }),
	"reconcile.refresh":        boolKey("reconcile.refresh", func(c *Config) *bool { return &c.Reconcile.Refresh }),
	"reconcile.contact_source": stringKey(func(c *Config) *string { return &c.Reconcile.ContactSource }),
	"reconcile.contact_tags":   listKey(func(c *Config) *[]string { return &c.Reconcile.ContactTags }),

	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case EventStreamNop, EventStreamKafka:
				c.EventStream.Provider = v
				return nil
			default:
				return fmt.Errorf("invalid value for eventstream.provider: %q (available: nop, kafka)", v)
			}
		},
	},
	"eventstream.brokers": listKey(func(c *Config) *[]string { return &c.EventStream.Brokers }),
	"eventstream.topic":   stringKey(func(c *Config) *string { return &c.EventStream.Topic }),

	"telemetry.enabled":  boolKey("telemetry.enabled", func(c *Config) *bool { return &c.Telemetry.Enabled }),
	"telemetry.endpoint": stringKey(func(c *Config) *string { return &c.Telemetry.Endpoint }),
	"telemetry.insecure": boolKey("telemetry.insecure", func(c *Config) *bool { return &c.Telemetry.Insecure }),
	"telemetry.interval": durationKey("telemetry.interval", func(c *Config) *string { return &c.Telemetry.Interval }),
}

// ParseDuration parses a configured duration string, returning fallback
// when s is empty or malformed.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
