package domain

import "time"

// Config holds the complete service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier selects the default backing services
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Boundary layer
	Security SecurityConfig `json:"security"`
	Worker   WorkerConfig   `json:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// SecurityConfig holds the API-key and rate-limit settings of the HTTP boundary.
type SecurityConfig struct {
	AdminAPIKey        string   `json:"-"`
	APIKeyHeader       string   `json:"apiKeyHeader"`
	RateLimitPerMinute int      `json:"rateLimitPerMinute"`
	AllowedOrigins     []string `json:"allowedOrigins"`
}

// WorkerConfig holds reassessment worker settings.
type WorkerConfig struct {
	// ReassessPerSecond paces bulk reassessment. Zero disables pacing.
	ReassessPerSecond float64 `json:"reassessPerSecond"`
	ReassessBurst     int     `json:"reassessBurst"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, console

	// File enables rotated file output in addition to stdout.
	File       string `json:"file"`
	MaxSizeMB  int    `json:"maxSizeMb"`
	MaxBackups int    `json:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process LRU.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./merchantrisk.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			SnapshotTTL:  time.Minute,
		},
		EventBus: EventBusConfig{
			Type:               "channel",
			ChannelBufferSize:  1000,
			BreakerMaxFailures: 5,
			BreakerOpenTimeout: 30,
		},
		Security: SecurityConfig{
			APIKeyHeader:       "X-API-Key",
			RateLimitPerMinute: 100,
			AllowedOrigins:     []string{"*"},
		},
		Worker: WorkerConfig{
			ReassessPerSecond: 50,
			ReassessBurst:     10,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "merchantrisk",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "merchantrisk",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		SnapshotTTL:    time.Minute,
	}
	cfg.EventBus.Type = "nats"
	cfg.EventBus.NATSUrl = "nats://localhost:4222"
	cfg.EventBus.NATSMaxReconnects = 10
	cfg.EventBus.NATSReconnectWait = 5
	cfg.Tracing.Enabled = true
	return cfg
}
