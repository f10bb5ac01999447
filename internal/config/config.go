package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Schema store backends
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds all configuration for the pipeline engine
type Config struct {
	// Server configuration
	HTTPPort int    `env:"PIPEWRIGHT_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"PIPEWRIGHT_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Schema storage
	Schemas SchemaConfig

	// Redis configuration
	Redis RedisConfig

	// PostgreSQL configuration
	Postgres PostgresConfig

	// LLM configuration
	LLM LLMConfig

	// Event stream configuration
	Events EventConfig

	// Execution retention
	Executions ExecutionConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// SchemaConfig selects where schemas live
type SchemaConfig struct {
	Store string `env:"SCHEMA_STORE" envDefault:"memory"`
	// Dir is imported into the catalog at startup when set
	Dir string `env:"SCHEMA_DIR"`
}

// RedisConfig holds Redis connection configuration. An empty address
// disables every Redis-backed component.
type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR"`
	Password  string `env:"REDIS_PASS"`
	DB        int    `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"pipewright"`

	// MirrorEvents copies progress events into Redis Streams
	MirrorEvents bool          `env:"REDIS_MIRROR_EVENTS" envDefault:"false"`
	StreamTTL    time.Duration `env:"REDIS_STREAM_TTL" envDefault:"24h"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN      string `env:"POSTGRES_DSN"`
	MaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	Migrate  bool   `env:"POSTGRES_MIGRATE" envDefault:"true"`
}

// LLMConfig holds the real-mode transform provider configuration. Without an
// API key real-mode transform nodes fail.
type LLMConfig struct {
	Provider         string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	APIKey           string `env:"LLM_API_KEY"`
	DefaultModel     string `env:"LLM_DEFAULT_MODEL" envDefault:"claude-sonnet-4-5"`
	DefaultMaxTokens int64  `env:"LLM_DEFAULT_MAX_TOKENS" envDefault:"1024"`

	// Client-side request cap; zero disables it
	RequestsPerSecond float64 `env:"LLM_REQUESTS_PER_SECOND" envDefault:"0"`
	Burst             int     `env:"LLM_BURST" envDefault:"1"`
}

// EventConfig holds progress stream configuration
type EventConfig struct {
	BufferSize        int           `env:"EVENT_BUFFER_SIZE" envDefault:"256"`
	HeartbeatInterval time.Duration `env:"SSE_HEARTBEAT_INTERVAL" envDefault:"15s"`
}

// ExecutionConfig holds execution retention configuration
type ExecutionConfig struct {
	Retention time.Duration `env:"EXECUTION_RETENTION" envDefault:"24h"`
	// CleanupInterval of zero disables the periodic sweep
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"10m"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate storage selection
	switch c.Schemas.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required for the redis schema store")
		}
	case StorePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres DSN is required for the postgres schema store")
		}
	default:
		return fmt.Errorf("unsupported schema store: %s (must be memory, redis, or postgres)", c.Schemas.Store)
	}

	if c.Redis.MirrorEvents && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required to mirror events")
	}

	// Validate LLM config
	if c.LLM.APIKey != "" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("unsupported LLM provider: %s (only 'anthropic' is supported)", c.LLM.Provider)
	}

	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("LLM request rate must not be negative")
	}

	// Validate event and retention settings
	if c.Events.BufferSize < 1 {
		return fmt.Errorf("event buffer size must be at least 1")
	}
	if c.Events.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if c.Executions.Retention <= 0 {
		return fmt.Errorf("execution retention must be positive")
	}
	if c.Executions.CleanupInterval < 0 {
		return fmt.Errorf("cleanup interval must not be negative")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
