package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Backend names accepted for storage and events
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all configuration for the orchestrator service
type Config struct {
	// Server configuration
	HTTPPort int    `env:"CAPO_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"CAPO_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Backends
	StorageBackend string `env:"CAPO_STORAGE_BACKEND" envDefault:"memory"`
	EventsBackend  string `env:"CAPO_EVENTS_BACKEND" envDefault:"memory"`

	// CapabilityManifest is the path of the YAML capability manifest
	CapabilityManifest string `env:"CAPO_CAPABILITY_MANIFEST"`

	Redis     RedisConfig
	LLM       LLMConfig
	Workers   WorkerConfig
	Timeouts  TimeoutConfig
	RateLimit RateLimitConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// StateTTL bounds how long execution records are kept
	StateTTL time.Duration `env:"REDIS_STATE_TTL" envDefault:"24h"`
	// StreamMaxLen caps each event stream (approximate trimming)
	StreamMaxLen int64 `env:"REDIS_STREAM_MAX_LEN" envDefault:"10000"`
}

// LLMConfig holds defaults for llm capabilities
type LLMConfig struct {
	APIKey           string `env:"LLM_API_KEY"`
	DefaultModel     string `env:"LLM_DEFAULT_MODEL"`
	DefaultMaxTokens int64  `env:"LLM_DEFAULT_MAX_TOKENS" envDefault:"1024"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"5"`
	QueueSize           int           `env:"WORKER_QUEUE_SIZE" envDefault:"100"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	// Orchestration of zero means no deadline
	Orchestration time.Duration `env:"TIMEOUT_ORCHESTRATION" envDefault:"0s"`
	Shutdown      time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// RateLimitConfig holds the per-tenant API limit. Zero RPS disables it.
type RateLimitConfig struct {
	TenantRPS   float64       `env:"CAPO_TENANT_RPS" envDefault:"10"`
	TenantBurst int           `env:"CAPO_TENANT_BURST" envDefault:"20"`
	IdleTTL     time.Duration `env:"CAPO_TENANT_IDLE_TTL" envDefault:"10m"`
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
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}
	if c.HTTPPort == c.GRPCPort {
		return fmt.Errorf("HTTP and gRPC ports must differ: %d", c.HTTPPort)
	}

	for name, backend := range map[string]string{
		"storage": c.StorageBackend,
		"events":  c.EventsBackend,
	} {
		if backend != BackendMemory && backend != BackendRedis {
			return fmt.Errorf("unsupported %s backend: %s (must be memory or redis)", name, backend)
		}
	}

	if c.NeedsRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.Redis.StateTTL < 0 {
		return fmt.Errorf("redis state TTL must not be negative")
	}

	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}
	if c.Workers.QueueSize < 1 {
		return fmt.Errorf("worker queue size must be at least 1")
	}

	if c.Timeouts.Orchestration < 0 {
		return fmt.Errorf("orchestration timeout must not be negative")
	}
	if c.Timeouts.Shutdown <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}

	if c.RateLimit.TenantRPS < 0 {
		return fmt.Errorf("tenant rate limit must not be negative")
	}
	if c.RateLimit.TenantRPS > 0 && c.RateLimit.TenantBurst < 1 {
		return fmt.Errorf("tenant burst must be at least 1 when rate limiting is enabled")
	}

	if c.LLM.DefaultMaxTokens < 1 {
		return fmt.Errorf("LLM default max tokens must be at least 1")
	}

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

// NeedsRedis reports whether any backend uses Redis
func (c *Config) NeedsRedis() bool {
	return c.StorageBackend == BackendRedis || c.EventsBackend == BackendRedis
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
