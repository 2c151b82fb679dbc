package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sitewright/cloudcode/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Store configuration
	Store StoreConfig

	// Schema gateway configuration
	Schema SchemaConfig

	// Background pool configuration
	Background BackgroundConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// StoreConfig holds document-store configuration
type StoreConfig struct {
	// Type selects the store backend: "memory" or "postgres".
	Type string

	PostgresURL      string
	PostgresMaxConns int

	// Redis backs the schema-definition cache; empty disables caching.
	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// SchemaConfig holds the schema administration endpoint settings
type SchemaConfig struct {
	ServerURL string
	AppID     string
	MasterKey string
	CacheTTL  time.Duration
}

// BackgroundConfig holds the fire-and-forget pool settings
type BackgroundConfig struct {
	Workers     int
	TaskTimeout time.Duration

	// RegistryCacheSize bounds the site nameId LRU.
	RegistryCacheSize int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Store:         loadStoreConfig(),
		Schema:        loadSchemaConfig(),
		Background:    loadBackgroundConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CLOUDCODE_HOST", "0.0.0.0"),
		Port:            getEnv("CLOUDCODE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CLOUDCODE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CLOUDCODE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CLOUDCODE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CLOUDCODE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CLOUDCODE_HEALTH_PORT", "9090"),
	}
}

// loadStoreConfig loads store configuration from environment
func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Type:             getEnv("CLOUDCODE_STORE_TYPE", "memory"),
		PostgresURL:      getEnv("CLOUDCODE_POSTGRES_URL", ""),
		PostgresMaxConns: getEnvInt("CLOUDCODE_POSTGRES_MAX_CONNS", 10),
		RedisURL:         getEnv("CLOUDCODE_REDIS_URL", ""),
		RedisPassword:    getEnv("CLOUDCODE_REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("CLOUDCODE_REDIS_DB", 0),
	}
}

// loadSchemaConfig loads the schema endpoint configuration from environment
func loadSchemaConfig() SchemaConfig {
	return SchemaConfig{
		ServerURL: getEnv("CLOUDCODE_SCHEMA_URL", ""),
		AppID:     getEnv("CLOUDCODE_APP_ID", ""),
		MasterKey: getEnv("CLOUDCODE_MASTER_KEY", ""),
		CacheTTL:  getEnvDuration("CLOUDCODE_SCHEMA_CACHE_TTL", time.Minute),
	}
}

// loadBackgroundConfig loads the background pool configuration from environment
func loadBackgroundConfig() BackgroundConfig {
	return BackgroundConfig{
		Workers:           getEnvInt("CLOUDCODE_POOL_WORKERS", 8),
		TaskTimeout:       getEnvDuration("CLOUDCODE_TASK_TIMEOUT", 30*time.Second),
		RegistryCacheSize: getEnvInt("CLOUDCODE_REGISTRY_CACHE_SIZE", 1024),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("CLOUDCODE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("CLOUDCODE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Store.Type {
	case "memory":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be memory or postgres)", c.Store.Type)
	}

	if c.Schema.ServerURL == "" {
		return fmt.Errorf("schema server URL is required")
	}
	if c.Schema.AppID == "" || c.Schema.MasterKey == "" {
		return fmt.Errorf("schema app id and master key are required")
	}

	if c.Background.Workers <= 0 {
		return fmt.Errorf("pool workers must be positive")
	}
	if c.Background.RegistryCacheSize <= 0 {
		return fmt.Errorf("registry cache size must be positive")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
