// Package config loads the service configuration from defaults, an optional YAML file and
// MERCHANTRISK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/opensource-finance/merchantrisk/internal/domain"
)

// EnvPrefix is prepended to every environment variable, e.g. MERCHANTRISK_SERVER_PORT.
const EnvPrefix = "MERCHANTRISK"

// Load reads the configuration. configFile may be empty, in which case the usual
// search paths are tried and a missing file is not an error.
func Load(configFile string) (*domain.Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Tier decides which defaults apply, so it is resolved first.
	v.SetDefault("tier", string(domain.TierCommunity))
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("merchantrisk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/merchantrisk")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	base := domain.DefaultConfig()
	switch domain.Tier(v.GetString("tier")) {
	case domain.TierCommunity:
	case domain.TierPro:
		base = domain.ProConfig()
	default:
		return nil, fmt.Errorf("unknown tier %q", v.GetString("tier"))
	}
	setDefaults(v, base)

	cfg := fromViper(v)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *domain.Config) {
	// Server
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	// Repository
	v.SetDefault("repository.driver", d.Repository.Driver)
	v.SetDefault("repository.sqlite_path", d.Repository.SQLitePath)
	v.SetDefault("repository.postgres_host", d.Repository.PostgresHost)
	v.SetDefault("repository.postgres_port", d.Repository.PostgresPort)
	v.SetDefault("repository.postgres_user", d.Repository.PostgresUser)
	v.SetDefault("repository.postgres_password", d.Repository.PostgresPassword)
	v.SetDefault("repository.postgres_db", d.Repository.PostgresDB)
	v.SetDefault("repository.postgres_sslmode", d.Repository.PostgresSSLMode)
	v.SetDefault("repository.max_open_conns", d.Repository.MaxOpenConns)
	v.SetDefault("repository.max_idle_conns", d.Repository.MaxIdleConns)
	v.SetDefault("repository.conn_max_lifetime", d.Repository.ConnMaxLifetime)

	// Cache
	v.SetDefault("cache.type", d.Cache.Type)
	v.SetDefault("cache.local_max_size", d.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", d.Cache.LocalTTL)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", d.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	v.SetDefault("cache.two_phase", d.Cache.EnableTwoPhase)
	v.SetDefault("cache.snapshot_ttl", d.Cache.SnapshotTTL)

	// Event bus
	v.SetDefault("bus.type", d.EventBus.Type)
	v.SetDefault("bus.buffer_size", d.EventBus.ChannelBufferSize)
	v.SetDefault("bus.nats_url", d.EventBus.NATSUrl)
	v.SetDefault("bus.nats_token", d.EventBus.NATSToken)
	v.SetDefault("bus.nats_max_reconnects", d.EventBus.NATSMaxReconnects)
	v.SetDefault("bus.nats_reconnect_wait", d.EventBus.NATSReconnectWait)
	v.SetDefault("bus.breaker_max_failures", d.EventBus.BreakerMaxFailures)
	v.SetDefault("bus.breaker_open_timeout", d.EventBus.BreakerOpenTimeout)

	// Security
	v.SetDefault("security.admin_api_key", d.Security.AdminAPIKey)
	v.SetDefault("security.api_key_header", d.Security.APIKeyHeader)
	v.SetDefault("security.rate_limit_per_minute", d.Security.RateLimitPerMinute)
	v.SetDefault("security.allowed_origins", d.Security.AllowedOrigins)

	// Worker
	v.SetDefault("worker.reassess_per_second", d.Worker.ReassessPerSecond)
	v.SetDefault("worker.reassess_burst", d.Worker.ReassessBurst)

	// Observability
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

func fromViper(v *viper.Viper) *domain.Config {
	return &domain.Config{
		Server: domain.ServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetInt("server.read_timeout"),
			WriteTimeout: v.GetInt("server.write_timeout"),
		},
		Tier: domain.Tier(v.GetString("tier")),
		Repository: domain.RepositoryConfig{
			Driver:           v.GetString("repository.driver"),
			SQLitePath:       v.GetString("repository.sqlite_path"),
			PostgresHost:     v.GetString("repository.postgres_host"),
			PostgresPort:     v.GetInt("repository.postgres_port"),
			PostgresUser:     v.GetString("repository.postgres_user"),
			PostgresPassword: v.GetString("repository.postgres_password"),
			PostgresDB:       v.GetString("repository.postgres_db"),
			PostgresSSLMode:  v.GetString("repository.postgres_sslmode"),
			MaxOpenConns:     v.GetInt("repository.max_open_conns"),
			MaxIdleConns:     v.GetInt("repository.max_idle_conns"),
			ConnMaxLifetime:  v.GetDuration("repository.conn_max_lifetime"),
		},
		Cache: domain.CacheConfig{
			Type:           v.GetString("cache.type"),
			LocalMaxSize:   v.GetInt("cache.local_max_size"),
			LocalTTL:       v.GetDuration("cache.local_ttl"),
			RedisAddr:      v.GetString("cache.redis_addr"),
			RedisPassword:  v.GetString("cache.redis_password"),
			RedisDB:        v.GetInt("cache.redis_db"),
			EnableTwoPhase: v.GetBool("cache.two_phase"),
			SnapshotTTL:    v.GetDuration("cache.snapshot_ttl"),
		},
		EventBus: domain.EventBusConfig{
			Type:               v.GetString("bus.type"),
			ChannelBufferSize:  v.GetInt("bus.buffer_size"),
			NATSUrl:            v.GetString("bus.nats_url"),
			NATSToken:          v.GetString("bus.nats_token"),
			NATSMaxReconnects:  v.GetInt("bus.nats_max_reconnects"),
			NATSReconnectWait:  v.GetInt("bus.nats_reconnect_wait"),
			BreakerMaxFailures: v.GetUint32("bus.breaker_max_failures"),
			BreakerOpenTimeout: v.GetInt("bus.breaker_open_timeout"),
		},
		Security: domain.SecurityConfig{
			AdminAPIKey:        v.GetString("security.admin_api_key"),
			APIKeyHeader:       v.GetString("security.api_key_header"),
			RateLimitPerMinute: v.GetInt("security.rate_limit_per_minute"),
			AllowedOrigins:     v.GetStringSlice("security.allowed_origins"),
		},
		Worker: domain.WorkerConfig{
			ReassessPerSecond: v.GetFloat64("worker.reassess_per_second"),
			ReassessBurst:     v.GetInt("worker.reassess_burst"),
		},
		Logging: domain.LoggingConfig{
			Level:      v.GetString("logging.level"),
			Format:     v.GetString("logging.format"),
			File:       v.GetString("logging.file"),
			MaxSizeMB:  v.GetInt("logging.max_size_mb"),
			MaxBackups: v.GetInt("logging.max_backups"),
			MaxAgeDays: v.GetInt("logging.max_age_days"),
		},
		Tracing: domain.TracingConfig{
			Enabled:     v.GetBool("tracing.enabled"),
			ServiceName: v.GetString("tracing.service_name"),
		},
	}
}

func validate(cfg *domain.Config) error {
	var errs []error
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", cfg.Server.Port))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported repository.driver: %q", cfg.Repository.Driver))
	}
	if cfg.Security.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("security.rate_limit_per_minute must not be negative"))
	}
	if cfg.Worker.ReassessPerSecond < 0 {
		errs = append(errs, errors.New("worker.reassess_per_second must not be negative"))
	}
	return errors.Join(errs...)
}
