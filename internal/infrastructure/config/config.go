package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Gateway  GatewayConfig
	Retry    RetryConfig
	Sentry   SentryConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds pgx pool configuration
type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MinConnections int
	MaxLifetime    time.Duration
	MaxIdleTime    time.Duration
	HealthCheck    time.Duration
}

// JWTConfig holds JWT configuration for the admin API
type JWTConfig struct {
	Secret string
	Issuer string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL          string
	Password     string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// GatewayConfig holds the payment gateway trigger endpoint configuration
type GatewayConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RetryConfig holds retry subsystem tuning
type RetryConfig struct {
	// MigrationBatchSize is how many legacy records one background batch drains.
	MigrationBatchSize int
	// SiteTimezone is the legacy store's site-local timezone name.
	SiteTimezone string
}

// SentryConfig holds Sentry configuration
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// .env file is optional for production (env vars are used)
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server_port", 8080)
	viper.SetDefault("server_read_timeout", 10*time.Second)
	viper.SetDefault("server_write_timeout", 10*time.Second)
	viper.SetDefault("server_shutdown_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database_max_connections", 15)
	viper.SetDefault("database_min_connections", 2)
	viper.SetDefault("database_max_lifetime", 1*time.Hour)
	viper.SetDefault("database_max_idle_time", 15*time.Minute)
	viper.SetDefault("database_health_check", 1*time.Minute)

	// JWT defaults
	viper.SetDefault("jwt_issuer", "renewal-retry")

	// Redis defaults
	viper.SetDefault("redis_pool_size", 10)
	viper.SetDefault("redis_min_idle_conns", 3)
	viper.SetDefault("redis_dial_timeout", 5*time.Second)
	viper.SetDefault("redis_read_timeout", 3*time.Second)
	viper.SetDefault("redis_write_timeout", 3*time.Second)
	viper.SetDefault("redis_pool_timeout", 4*time.Second)

	// Gateway defaults
	viper.SetDefault("gateway_timeout", 30*time.Second)

	// Retry defaults
	viper.SetDefault("retry_migrationbatchsize", 10)
	viper.SetDefault("retry_sitetimezone", "UTC")
}

func validate(cfg *Config) error {
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if cfg.Gateway.BaseURL == "" {
		return fmt.Errorf("GATEWAY_BASEURL is required")
	}
	return nil
}
