package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/tenantly/tenantly/internal/cache"
	"github.com/tenantly/tenantly/internal/config"
	"github.com/tenantly/tenantly/internal/service"
	"github.com/tenantly/tenantly/internal/telemetry"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// overrides are the settings viper may supply from the environment or bound
// flags on top of the YAML file.
var overrides = []string{
	"server.host",
	"server.port",
	"server.production",
	"auth.jwt_secret",
	"auth.jwt_expiry",
	"auth.api_key",
	"auth.api_key_header",
	"database.driver",
	"database.dsn",
	"database.data_dir",
	"cache.driver",
	"cache.url",
	"logging.level",
	"logging.format",
}

// loadConfig reads the config file viper discovered (if any) into a typed
// config.File and applies environment and flag overrides.
func loadConfig() (*config.File, error) {
	cfg := config.Default()
	if path := viper.ConfigFileUsed(); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	for _, key := range overrides {
		if !viper.IsSet(key) {
			continue
		}
		switch key {
		case "server.host":
			cfg.Server.Host = viper.GetString(key)
		case "server.port":
			cfg.Server.Port = viper.GetInt(key)
		case "server.production":
			cfg.Server.Production = viper.GetBool(key)
		case "auth.jwt_secret":
			cfg.Auth.JWTSecret = viper.GetString(key)
		case "auth.jwt_expiry":
			cfg.Auth.JWTExpiry = viper.GetString(key)
		case "auth.api_key":
			cfg.Auth.APIKey = viper.GetString(key)
		case "auth.api_key_header":
			cfg.Auth.APIKeyHeader = viper.GetString(key)
		case "database.driver":
			cfg.Database.Driver = viper.GetString(key)
		case "database.dsn":
			cfg.Database.DSN = viper.GetString(key)
		case "database.data_dir":
			cfg.Database.DataDir = viper.GetString(key)
		case "cache.driver":
			cfg.Cache.Driver = viper.GetString(key)
		case "cache.url":
			cfg.Cache.URL = viper.GetString(key)
		case "logging.level":
			cfg.Logging.Level = viper.GetString(key)
		case "logging.format":
			cfg.Logging.Format = viper.GetString(key)
		}
	}

	if dataDir != "" {
		cfg.Database.DataDir = dataDir
	}
	return cfg, nil
}

// resolveDataDir returns the SQLite data directory, falling back to
// ~/.tenantly.
func resolveDataDir(cfg *config.File) string {
	if cfg.Database.DataDir != "" {
		return cfg.Database.DataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tenantly")
}

// openStore opens the configured database and seeds the default role.
func openStore(ctx context.Context, cfg *config.File) (*config.Store, error) {
	var (
		store *config.Store
		err   error
	)
	switch strings.ToLower(cfg.Database.Driver) {
	case "", "sqlite":
		store, err = config.NewStore(resolveDataDir(cfg))
	default:
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("database.dsn is required for the %s driver", cfg.Database.Driver)
		}
		store, err = config.Open(cfg.Database.Driver, cfg.Database.DSN)
	}
	if err != nil {
		return nil, err
	}
	if _, err := store.SeedDefaultRole(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// openCache builds the configured cache. Driver "none" yields a nil store,
// which every caller treats as a permanent miss. A backend that cannot be
// reached is logged and left disconnected; the background health check
// marks it ready once it answers.
func openCache(ctx context.Context, cfg *config.File, metrics *telemetry.Metrics, logger *slog.Logger) (*cache.Store, error) {
	if strings.EqualFold(cfg.Cache.Driver, "none") {
		return nil, nil
	}
	ttl, err := cfg.Cache.TTL()
	if err != nil {
		return nil, err
	}
	interval, err := cfg.Cache.HealthCheckInterval()
	if err != nil {
		return nil, err
	}
	backend, err := cache.NewBackend(cfg.Cache)
	if err != nil {
		return nil, err
	}
	c := cache.New(backend, cache.Options{DefaultTTL: ttl, Logger: logger, Metrics: metrics})
	if err := c.Connect(ctx); err != nil {
		logger.Warn("cache unavailable, continuing without it", "backend", backend.Name(), "error", err)
	}
	c.Watch(interval)
	return c, nil
}

// newLogger builds the process logger from the logging section. dev forces
// debug level.
func newLogger(cfg config.LoggingConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openServices opens the store and builds the services for one-shot admin
// commands. No cache is attached; the caller must close the store.
func openServices(ctx context.Context) (*service.Services, *config.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	deps := service.Deps{Store: store, Logger: logger}
	roles := service.NewRoleService(deps)
	return &service.Services{
		Users:  service.NewUserService(deps, roles),
		Admins: service.NewAdminService(deps),
		Roles:  roles,
	}, store, nil
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
