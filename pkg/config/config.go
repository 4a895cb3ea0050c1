package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/ratelimit"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Cache         CacheConfig         `yaml:"cache"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds postgres configuration
type DatabaseConfig struct {
	URL          string        `yaml:"url"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
}

// RedisConfig holds the shared Redis client configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// CacheConfig tunes the authorization cache
type CacheConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	OpTimeout time.Duration `yaml:"op_timeout"`
}

// RateLimitConfig tunes the limiter tiers. Zero values fall back to the
// limiter's defaults.
type RateLimitConfig struct {
	GeneralLimit   int64         `yaml:"general_limit"`
	GeneralWindow  time.Duration `yaml:"general_window"`
	UserLimit      int64         `yaml:"user_limit"`
	UserWindow     time.Duration `yaml:"user_window"`
	AdminLimit     int64         `yaml:"admin_limit"`
	AdminWindow    time.Duration `yaml:"admin_window"`
	BurstLimit     int64         `yaml:"burst_limit"`
	BurstWindow    time.Duration `yaml:"burst_window"`
	DelayThreshold int64         `yaml:"delay_threshold"`
	DelayStep      time.Duration `yaml:"delay_step"`
	DelayMax       time.Duration `yaml:"delay_max"`
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Load resolves configuration from defaults, the optional YAML file and the
// environment, then validates the result
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("TENANT_MANAGER_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			ConnLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Cache: CacheConfig{
			TTL:       5 * time.Minute,
			OpTimeout: 500 * time.Millisecond,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
		},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.Server.Host = getEnv("TENANT_MANAGER_HOST", c.Server.Host)
	c.Server.Port = getEnv("TENANT_MANAGER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("TENANT_MANAGER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("TENANT_MANAGER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("TENANT_MANAGER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("TENANT_MANAGER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.URL = getEnv("TENANT_MANAGER_POSTGRES_URL", c.Database.URL)
	c.Database.MaxOpenConns = getEnvInt("TENANT_MANAGER_POSTGRES_MAX_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("TENANT_MANAGER_POSTGRES_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnLifetime = getEnvDuration("TENANT_MANAGER_POSTGRES_CONN_LIFETIME", c.Database.ConnLifetime)

	c.Redis.Addr = getEnv("TENANT_MANAGER_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("TENANT_MANAGER_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("TENANT_MANAGER_REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getEnvInt("TENANT_MANAGER_REDIS_POOL_SIZE", c.Redis.PoolSize)

	c.Cache.TTL = getEnvDuration("TENANT_MANAGER_CACHE_TTL", c.Cache.TTL)
	c.Cache.OpTimeout = getEnvDuration("TENANT_MANAGER_CACHE_OP_TIMEOUT", c.Cache.OpTimeout)

	c.RateLimit.GeneralLimit = getEnvInt64("TENANT_MANAGER_RATELIMIT_GENERAL", c.RateLimit.GeneralLimit)
	c.RateLimit.UserLimit = getEnvInt64("TENANT_MANAGER_RATELIMIT_USER", c.RateLimit.UserLimit)
	c.RateLimit.AdminLimit = getEnvInt64("TENANT_MANAGER_RATELIMIT_ADMIN", c.RateLimit.AdminLimit)
	c.RateLimit.BurstLimit = getEnvInt64("TENANT_MANAGER_RATELIMIT_BURST", c.RateLimit.BurstLimit)

	c.Observability.LogLevel = getEnv("TENANT_MANAGER_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("TENANT_MANAGER_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	return nil
}

// LimiterConfig converts the flat settings into the limiter's config,
// filling unset tiers from the limiter defaults
func (c *Config) LimiterConfig() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	applyTier(&cfg.General, c.RateLimit.GeneralLimit, c.RateLimit.GeneralWindow)
	applyTier(&cfg.User, c.RateLimit.UserLimit, c.RateLimit.UserWindow)
	applyTier(&cfg.Admin, c.RateLimit.AdminLimit, c.RateLimit.AdminWindow)
	applyTier(&cfg.Burst, c.RateLimit.BurstLimit, c.RateLimit.BurstWindow)
	if c.RateLimit.DelayThreshold > 0 {
		cfg.Delay.Threshold = c.RateLimit.DelayThreshold
	}
	if c.RateLimit.DelayStep > 0 {
		cfg.Delay.Step = c.RateLimit.DelayStep
	}
	if c.RateLimit.DelayMax > 0 {
		cfg.Delay.Max = c.RateLimit.DelayMax
	}
	return cfg
}

func applyTier(tier *ratelimit.TierConfig, limit int64, window time.Duration) {
	if limit > 0 {
		tier.Limit = limit
	}
	if window > 0 {
		tier.Window = window
	}
}

// LogLevel parses the configured log level
func (c *Config) LogLevel() observability.LogLevel {
	return observability.ParseLogLevel(strings.ToLower(c.Observability.LogLevel))
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

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
