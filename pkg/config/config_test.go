package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsAndEnvOverride(t *testing.T) {
	t.Setenv("TENANT_MANAGER_POSTGRES_URL", "postgres://localhost/tenants")
	t.Setenv("TENANT_MANAGER_PORT", "9000")
	t.Setenv("TENANT_MANAGER_CACHE_TTL", "2m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("port = %s", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host default = %s", cfg.Server.Host)
	}
	if cfg.Cache.TTL != 2*time.Minute {
		t.Errorf("cache ttl = %s", cfg.Cache.TTL)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr default = %s", cfg.Redis.Addr)
	}
}

func TestLoadRequiresPostgresURL(t *testing.T) {
	os.Unsetenv("TENANT_MANAGER_POSTGRES_URL")
	os.Unsetenv("TENANT_MANAGER_CONFIG_FILE")

	if _, err := Load(); err == nil {
		t.Error("Load should fail without a postgres URL")
	}
}

func TestFileOverlayWithEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: "7070"
database:
  url: postgres://filehost/tenants
redis:
  addr: redis-file:6379
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TENANT_MANAGER_CONFIG_FILE", path)
	t.Setenv("TENANT_MANAGER_REDIS_ADDR", "redis-env:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("file port = %s", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://filehost/tenants" {
		t.Errorf("file database url = %s", cfg.Database.URL)
	}
	// Environment beats the file
	if cfg.Redis.Addr != "redis-env:6379" {
		t.Errorf("redis addr = %s", cfg.Redis.Addr)
	}
}

func TestLimiterConfigFallsBackPerTier(t *testing.T) {
	cfg := defaults()
	cfg.RateLimit.GeneralLimit = 42

	lc := cfg.LimiterConfig()
	if lc.General.Limit != 42 {
		t.Errorf("general limit = %d", lc.General.Limit)
	}
	if lc.User.Limit == 0 || lc.Burst.Limit == 0 {
		t.Error("unset tiers must keep limiter defaults")
	}
	if lc.Delay.Threshold == 0 {
		t.Error("delay defaults must survive")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "150ms")
	if d := getEnvDuration("TEST_DURATION", time.Second); d != 150*time.Millisecond {
		t.Errorf("parsed = %s", d)
	}
	if d := getEnvDuration("TEST_DURATION_UNSET", time.Second); d != time.Second {
		t.Errorf("default = %s", d)
	}
	t.Setenv("TEST_DURATION_BAD", "nonsense")
	if d := getEnvDuration("TEST_DURATION_BAD", time.Second); d != time.Second {
		t.Errorf("invalid value should fall back, got %s", d)
	}
}
