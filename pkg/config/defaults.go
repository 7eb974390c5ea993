package config

// Durable drivers.
const (
	DurableSQLite   = "sqlite"
	DurablePostgres = "postgres"
	DurableMemory   = "memory"
)

// Event stream providers.
const (
	EventStreamNop   = "nop"
	EventStreamKafka = "kafka"
)

const (
	defaultListen   = ":8080"
	defaultTimezone = "America/New_York"

	defaultFullContextTTL  = "5m"
	defaultFactMemoryTTL   = "5m"
	defaultDirectoryTTL    = "5m"
	defaultAvailabilityTTL = "3m"
	defaultDegradedTTL     = "30s"

	defaultRedisKeyPrefix = "rolodex"

	defaultDurableDriver = DurableSQLite

	defaultMemoryURL    = "https://api.getzep.com"
	defaultDirectoryURL = "https://services.leadconnectorhq.com"
	defaultSourceTO     = "300ms"

	defaultAvailabilityWindow = "168h"
	defaultMaxSlots           = 5

	defaultHealthThreshold = 5
	defaultHealthCooldown  = "30s"

	defaultReconcileWorkers   uint = 3
	defaultReconcileQueueSize uint = 256
	defaultReconcileMaxTries  uint = 5
	defaultContactSource           = "rolodex inbound"

	defaultEventStreamProvider = EventStreamNop
	defaultEventStreamTopic    = "rolodex.interactions"

	defaultTelemetryEndpoint = "localhost:4317"
	defaultTelemetryInterval = "30s"
)

// defaultContactTags returns a fresh slice so callers cannot alias it.
func defaultContactTags() []string {
	return []string{"inbound", "voice-ai"}
}

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Listen:   defaultListen,
			Timezone: defaultTimezone,
		},
		Cache: CacheConfig{
			FullContextTTL:  defaultFullContextTTL,
			FactMemoryTTL:   defaultFactMemoryTTL,
			DirectoryTTL:    defaultDirectoryTTL,
			AvailabilityTTL: defaultAvailabilityTTL,
			DegradedTTL:     defaultDegradedTTL,
		},
		Redis: RedisConfig{
			KeyPrefix: defaultRedisKeyPrefix,
		},
		Durable: DurableConfig{
			Driver: defaultDurableDriver,
		},
		Sources: SourcesConfig{
			Memory: MemorySourceConfig{
				URL:     defaultMemoryURL,
				Timeout: defaultSourceTO,
			},
			Directory: DirectorySourceConfig{
				URL:     defaultDirectoryURL,
				Timeout: defaultSourceTO,
			},
			Availability: AvailabilitySourceConfig{
				Window:   defaultAvailabilityWindow,
				MaxSlots: defaultMaxSlots,
				Timeout:  defaultSourceTO,
			},
		},
		Health: HealthConfig{
			Threshold: defaultHealthThreshold,
			Cooldown:  defaultHealthCooldown,
		},
		Reconcile: ReconcileConfig{
			Workers:       defaultReconcileWorkers,
			QueueSize:     defaultReconcileQueueSize,
			MaxTries:      defaultReconcileMaxTries,
			ContactSource: defaultContactSource,
			ContactTags:   defaultContactTags(),
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		Telemetry: TelemetryConfig{
			Endpoint: defaultTelemetryEndpoint,
			Insecure: true,
			Interval: defaultTelemetryInterval,
		},
	}
}
