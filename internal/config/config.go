package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	AppEnv    string          `json:"app_env"`
	LogLevel  string          `json:"log_level"`
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Security  SecurityConfig  `json:"security"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Cache     CacheConfig     `json:"cache"`
	Events    EventsConfig    `json:"events"`
	Tracing   TracingConfig   `json:"tracing"`
	// Feature flag overrides by name, applied after the defaults
	Features map[string]bool `json:"features"`
}

// ServerConfig holds settings for the local HTTP server.
type ServerConfig struct {
	Port string `json:"port"`
	Host string `json:"host"`
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	URL string `json:"url"`
	// Create the offers table on startup (local development only)
	AutoSchema bool `json:"auto_schema"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	// Shared secret expected in X-Admin-Auth for POST and DELETE
	AdminSecret string `json:"-"`
	// Max request body size in bytes (default: 1MB)
	MaxRequestBodySize int64 `json:"max_request_body_size"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `json:"enabled"`
	Rate    int  `json:"rate"`
	Window  int  `json:"window"` // in seconds
}

// CacheConfig controls the GET listing cache.
type CacheConfig struct {
	Enabled       bool   `json:"enabled"`
	TTLSeconds    int    `json:"ttl_seconds"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`
}

// EventsConfig controls offer lifecycle events.
type EventsConfig struct {
	Enabled bool `json:"enabled"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// LoadConfig loads configuration from defaults, an optional JSON file and the
// environment. A .env file in the working directory is loaded first, if present.
// Environment variables take precedence over config file values.
func LoadConfig(configFile string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	overrideFromEnv(cfg)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		AppEnv:   "local",
		LogLevel: "info",
		Server: ServerConfig{
			Port: "8080",
		},
		Security: SecurityConfig{
			MaxRequestBodySize: 1 << 20,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Rate:    100,
			Window:  60,
		},
		Cache: CacheConfig{
			TTLSeconds: 30,
		},
	}
}

// loadFromFile loads configuration from a JSON file.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, cfg)
}

// overrideFromEnv overrides configuration with environment variables.
func overrideFromEnv(cfg *Config) {
	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.AutoSchema = getEnvBool("DATABASE_AUTO_SCHEMA", cfg.Database.AutoSchema)

	cfg.Security.AdminSecret = getEnv("ADMIN_AUTH_SECRET", cfg.Security.AdminSecret)
	cfg.Security.MaxRequestBodySize = getEnvInt64("MAX_REQUEST_BODY_SIZE", cfg.Security.MaxRequestBodySize)

	cfg.RateLimit.Enabled = getEnvBool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.Rate = getEnvInt("RATE_LIMIT_RATE", cfg.RateLimit.Rate)
	cfg.RateLimit.Window = getEnvInt("RATE_LIMIT_WINDOW", cfg.RateLimit.Window)

	cfg.Cache.Enabled = getEnvBool("CACHE_ENABLED", cfg.Cache.Enabled)
	cfg.Cache.TTLSeconds = getEnvInt("CACHE_TTL", cfg.Cache.TTLSeconds)
	cfg.Cache.RedisAddr = getEnv("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getEnvInt("REDIS_DB", cfg.Cache.RedisDB)

	cfg.Events.Enabled = getEnvBool("EVENTS_ENABLED", cfg.Events.Enabled)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = getEnv("TRACING_ENDPOINT", cfg.Tracing.Endpoint)

	if flags := parseFlags(os.Getenv("FEATURE_FLAGS")); len(flags) > 0 {
		if cfg.Features == nil {
			cfg.Features = make(map[string]bool, len(flags))
		}
		for name, on := range flags {
			cfg.Features[name] = on
		}
	}
}

// parseFlags reads "name=true,other=false". Bare names mean enabled.
func parseFlags(raw string) map[string]bool {
	flags := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !found {
			flags[name] = true
			continue
		}
		on, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		flags[name] = on
	}
	return flags
}

// getEnv gets an environment variable or returns the default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvInt64 gets an int64 environment variable or returns the default value.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// IsLocal reports whether the service runs on a developer machine.
func (c *Config) IsLocal() bool {
	return c.AppEnv == "" || c.AppEnv == "local"
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Security.AdminSecret == "" {
		errs = append(errs, errors.New("ADMIN_AUTH_SECRET is required"))
	}
	if c.Security.MaxRequestBodySize <= 0 {
		errs = append(errs, errors.New("max request body size must be positive"))
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			errs = append(errs, errors.New("rate limit rate must be positive"))
		}
		if c.RateLimit.Window <= 0 {
			errs = append(errs, errors.New("rate limit window must be positive"))
		}
	}
	if c.Cache.Enabled && c.Cache.TTLSeconds <= 0 {
		errs = append(errs, errors.New("cache TTL must be positive"))
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing endpoint is required when tracing is enabled"))
	}

	return errors.Join(errs...)
}
