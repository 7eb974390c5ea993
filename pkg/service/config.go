package service

import (
	"time"

	"github.com/spf13/viper"

	"github.com/papercomputeco/rolodex/pkg/config"
)

// Config is the resolved runtime configuration of a Service. Durations are
// parsed; zero values fall back to the component defaults.
type Config struct {
	Timezone string

	FullContextTTL  time.Duration
	FactMemoryTTL   time.Duration
	DirectoryTTL    time.Duration
	AvailabilityTTL time.Duration
	DegradedTTL     time.Duration

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	DurableDriver string
	DurableDSN    string

	MemoryURL     string
	MemoryAPIKey  string
	MemoryTimeout time.Duration

	DirectoryURL        string
	DirectoryAPIKey     string
	DirectoryLocationID string
	DirectoryTimeout    time.Duration

	Scope               string
	AvailabilityWindow  time.Duration
	MaxSlots            int
	AvailabilityTimeout time.Duration

	HealthThreshold int
	HealthCooldown  time.Duration

	Workers       uint
	QueueSize     uint
	MaxTries      uint
	Refresh       bool
	ContactSource string
	ContactTags   []string

	EventStreamProvider string
	Brokers             []string
	Topic               string

	TelemetryEnabled  bool
	TelemetryEndpoint string
	TelemetryInsecure bool
	TelemetryInterval time.Duration
}

// ConfigFromViper reads a Config from v, which should come from
// config.InitViper with any command flags bound.
func ConfigFromViper(v *viper.Viper) Config {
	d := func(key string) time.Duration {
		return config.ParseDuration(v.GetString(key), 0)
	}

	return Config{
		Timezone: v.GetString("server.timezone"),

		FullContextTTL:  d("cache.full_context_ttl"),
		FactMemoryTTL:   d("cache.fact_memory_ttl"),
		DirectoryTTL:    d("cache.directory_ttl"),
		AvailabilityTTL: d("cache.availability_ttl"),
		DegradedTTL:     d("cache.degraded_ttl"),

		RedisAddr:      v.GetString("redis.addr"),
		RedisPassword:  v.GetString("redis.password"),
		RedisDB:        v.GetInt("redis.db"),
		RedisKeyPrefix: v.GetString("redis.key_prefix"),

		DurableDriver: v.GetString("durable.driver"),
		DurableDSN:    v.GetString("durable.dsn"),

		MemoryURL:     v.GetString("sources.memory.url"),
		MemoryAPIKey:  v.GetString("sources.memory.api_key"),
		MemoryTimeout: d("sources.memory.timeout"),

		DirectoryURL:        v.GetString("sources.directory.url"),
		DirectoryAPIKey:     v.GetString("sources.directory.api_key"),
		DirectoryLocationID: v.GetString("sources.directory.location_id"),
		DirectoryTimeout:    d("sources.directory.timeout"),

		Scope:               v.GetString("sources.availability.scope"),
		AvailabilityWindow:  d("sources.availability.window"),
		MaxSlots:            v.GetInt("sources.availability.max_slots"),
		AvailabilityTimeout: d("sources.availability.timeout"),

		HealthThreshold: v.GetInt("health.threshold"),
		HealthCooldown:  d("health.cooldown"),

		Workers:       v.GetUint("reconcile.workers"),
		QueueSize:     v.GetUint("reconcile.queue_size"),
		MaxTries:      v.GetUint("reconcile.max_tries"),
		Refresh:       v.GetBool("reconcile.refresh"),
		ContactSource: v.GetString("reconcile.contact_source"),
		ContactTags:   v.GetStringSlice("reconcile.contact_tags"),

		EventStreamProvider: v.GetString("eventstream.provider"),
		Brokers:             v.GetStringSlice("eventstream.brokers"),
		Topic:               v.GetString("eventstream.topic"),

		TelemetryEnabled:  v.GetBool("telemetry.enabled"),
		TelemetryEndpoint: v.GetString("telemetry.endpoint"),
		TelemetryInsecure: v.GetBool("telemetry.insecure"),
		TelemetryInterval: d("telemetry.interval"),
	}
}
