package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File represents the top-level tenantly configuration file.
type File struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	Production      bool       `yaml:"production"`
	CORS            CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// AuthConfig controls authentication settings.
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	JWTExpiry    string `yaml:"jwt_expiry"`
	APIKey       string `yaml:"api_key"`
	APIKeyHeader string `yaml:"api_key_header"`
}

// DatabaseConfig selects the persistence driver. Driver is "sqlite" (DataDir
// holds the database file, empty means in-memory) or "postgres" (DSN).
type DatabaseConfig struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	DataDir string `yaml:"data_dir"`
}

// CacheConfig selects the cache backend: "memory", "redis" or "none".
type CacheConfig struct {
	Driver     string `yaml:"driver"`
	URL        string `yaml:"url"`
	DefaultTTL string `yaml:"default_ttl"`
	MaxEntries int    `yaml:"max_entries"`

	// HealthInterval is how often the backend is re-pinged so a cache that
	// was down at boot, or dropped later, comes back without a restart.
	HealthInterval string `yaml:"health_interval"`
}

// RateLimitConfig controls the per-address request limiter.
type RateLimitConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Requests     int    `yaml:"requests"`
	AuthRequests int    `yaml:"auth_requests"`
	Window       string `yaml:"window"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RefreshTokenTTL is fixed; only the access token lifetime is configurable.
const RefreshTokenTTL = 30 * 24 * time.Hour

// Default returns a File pre-filled with sensible defaults.
func Default() *File {
	return &File{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			CORS:            CORSConfig{Origins: []string{"*"}},
		},
		Auth: AuthConfig{
			JWTExpiry:    "168h",
			APIKeyHeader: "X-API-Key",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		Cache: CacheConfig{
			Driver:         "memory",
			DefaultTTL:     "1h",
			MaxEntries:     10000,
			HealthInterval: "15s",
		},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			Requests:     100,
			AuthRequests: 20,
			Window:       "1m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile reads and parses a YAML configuration file on top of Default().
// Environment variables referenced as ${VAR_NAME} in the file are expanded
// before parsing.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to a YAML file.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// AccessTTL parses the configured access token lifetime.
func (a AuthConfig) AccessTTL() (time.Duration, error) {
	return parsePositiveDuration("auth.jwt_expiry", a.JWTExpiry)
}

// ShutdownTTL parses the graceful shutdown timeout.
func (s ServerConfig) ShutdownTTL() (time.Duration, error) {
	return parsePositiveDuration("server.shutdown_timeout", s.ShutdownTimeout)
}

// TTL parses the default cache entry lifetime.
func (c CacheConfig) TTL() (time.Duration, error) {
	return parsePositiveDuration("cache.default_ttl", c.DefaultTTL)
}

// HealthCheckInterval parses health_interval, defaulting to 15s when unset.
func (c CacheConfig) HealthCheckInterval() (time.Duration, error) {
	if c.HealthInterval == "" {
		return 15 * time.Second, nil
	}
	return parsePositiveDuration("cache.health_interval", c.HealthInterval)
}

// WindowDuration parses the rate-limit window.
func (r RateLimitConfig) WindowDuration() (time.Duration, error) {
	return parsePositiveDuration("rate_limit.window", r.Window)
}

func parsePositiveDuration(key, val string) (time.Duration, error) {
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, val)
	}
	return d, nil
}
