package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/tenantly/tenantly/internal/config"
)

// withConfig points the CLI at path (empty for no file) and resets viper
// and the package flags afterwards.
func withConfig(t *testing.T, path string) {
	t.Helper()
	viper.Reset()
	if path != "" {
		cfgFile = path
		initConfig()
	}
	t.Cleanup(func() {
		viper.Reset()
		cfgFile = ""
		dataDir = ""
	})
}

func TestLoadConfigDefaults(t *testing.T) {
	withConfig(t, "")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Auth.APIKeyHeader != "X-API-Key" || cfg.Cache.Driver != "memory" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenantly.yaml")
	data := []byte(`server:
  port: 9090
auth:
  jwt_secret: from-file
cache:
  driver: none
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TENANTLY_AUTH_JWT_SECRET", "from-env")
	withConfig(t, path)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("jwt secret = %q, want env override", cfg.Auth.JWTSecret)
	}
	if cfg.Cache.Driver != "none" {
		t.Errorf("cache driver = %q", cfg.Cache.Driver)
	}
	// Untouched sections keep their defaults.
	if cfg.RateLimit.Requests != 100 {
		t.Errorf("rate limit requests = %d", cfg.RateLimit.Requests)
	}
}

func TestDataDirFlagWins(t *testing.T) {
	withConfig(t, "")
	dataDir = "/tmp/tenantly-flag"

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got := resolveDataDir(cfg); got != "/tmp/tenantly-flag" {
		t.Errorf("data dir = %q", got)
	}
}

func TestOpenCacheNone(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Driver = "none"

	c, err := openCache(context.Background(), cfg, nil, slog.Default())
	if err != nil {
		t.Fatalf("openCache: %v", err)
	}
	if c != nil {
		t.Error("expected nil cache for driver none")
	}
	if c.BackendName() != "none" {
		t.Errorf("backend = %q", c.BackendName())
	}
}

func TestOpenCacheMemory(t *testing.T) {
	cfg := config.Default()

	c, err := openCache(context.Background(), cfg, nil, slog.Default())
	if err != nil {
		t.Fatalf("openCache: %v", err)
	}
	defer c.Disconnect()
	if !c.IsReady() || c.BackendName() != "memory" {
		t.Errorf("ready=%v backend=%q", c.IsReady(), c.BackendName())
	}
}

func TestNewLoggerLevels(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		level string
		dev   bool
		debug bool
		info  bool
	}{
		{"info", false, false, true},
		{"debug", false, true, true},
		{"warn", false, false, false},
		{"error", true, true, true},
	}
	for _, tt := range tests {
		l := newLogger(config.LoggingConfig{Level: tt.level, Format: "json"}, tt.dev)
		if got := l.Enabled(ctx, slog.LevelDebug); got != tt.debug {
			t.Errorf("%s dev=%v: debug enabled = %v", tt.level, tt.dev, got)
		}
		if got := l.Enabled(ctx, slog.LevelInfo); got != tt.info {
			t.Errorf("%s dev=%v: info enabled = %v", tt.level, tt.dev, got)
		}
	}
}

func TestResolveRoleID(t *testing.T) {
	ctx := context.Background()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()
	def, err := store.SeedDefaultRole(ctx)
	if err != nil {
		t.Fatalf("SeedDefaultRole: %v", err)
	}

	for _, ref := range []string{"user", def.ID} {
		id, err := resolveRoleID(ctx, store, ref)
		if err != nil || id != def.ID {
			t.Errorf("resolveRoleID(%q) = %q, %v", ref, id, err)
		}
	}
	if _, err := resolveRoleID(ctx, store, "ghost"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestMask(t *testing.T) {
	if mask("") != "" || mask("secret") != "********" {
		t.Error("unexpected mask output")
	}
}
