package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("default backend = %q, want sqlite", cfg.Store.Backend)
	}
	if cfg.Cache.MaxEntries != 500 {
		t.Errorf("default cache size = %d, want 500", cfg.Cache.MaxEntries)
	}
	if cfg.Gateway.FailThreshold != 3 {
		t.Errorf("default fail threshold = %d, want 3", cfg.Gateway.FailThreshold)
	}
	if cfg.Gateway.CheckInterval != 24*time.Hour {
		t.Errorf("default check interval = %v, want 24h", cfg.Gateway.CheckInterval)
	}
	if len(cfg.Gateway.Hosts) == 0 {
		t.Error("default gateway pool must not be empty")
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
store:
  backend: postgres
search:
  defaultPageSize: 10
  maxPageSize: 50
  fetchWindow: 150
gateway:
  failThreshold: 5
  hosts:
    - gw.example.org
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Store.Backend != "postgres" {
		t.Errorf("backend = %q, want postgres", cfg.Store.Backend)
	}
	if cfg.Search.DefaultPageSize != 10 || cfg.Search.MaxPageSize != 50 {
		t.Errorf("page sizes = %d/%d, want 10/50",
			cfg.Search.DefaultPageSize, cfg.Search.MaxPageSize)
	}
	if cfg.Gateway.FailThreshold != 5 {
		t.Errorf("fail threshold = %d, want 5", cfg.Gateway.FailThreshold)
	}
	if len(cfg.Gateway.Hosts) != 1 || cfg.Gateway.Hosts[0] != "gw.example.org" {
		t.Errorf("hosts = %v, want the single configured host", cfg.Gateway.Hosts)
	}
	// Untouched sections keep their defaults.
	if cfg.Cache.MaxEntries != 500 {
		t.Errorf("cache size = %d, want default 500", cfg.Cache.MaxEntries)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("EB_STORE_BACKEND", "postgres")
	t.Setenv("EB_GATEWAY_HOSTS", "a.example, b.example ,")
	t.Setenv("EB_GATEWAY_FAIL_THRESHOLD", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Store.Backend != "postgres" {
		t.Errorf("backend = %q, want env override postgres", cfg.Store.Backend)
	}
	if len(cfg.Gateway.Hosts) != 2 || cfg.Gateway.Hosts[0] != "a.example" || cfg.Gateway.Hosts[1] != "b.example" {
		t.Errorf("hosts = %v, want trimmed [a.example b.example]", cfg.Gateway.Hosts)
	}
	if cfg.Gateway.FailThreshold != 7 {
		t.Errorf("fail threshold = %d, want 7", cfg.Gateway.FailThreshold)
	}
}

func TestLoadRedisEnvEnables(t *testing.T) {
	t.Setenv("EB_REDIS_ADDR", "redis.internal:6379")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis.internal:6379" {
		t.Errorf("redis = %+v, want enabled with env addr", cfg.Redis)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad backend", "store:\n  backend: mysql\n", "store.backend"},
		{"fetch window below page size", "search:\n  fetchWindow: 10\n", "fetchWindow"},
		{"zero threshold", "gateway:\n  failThreshold: -1\n", "failThreshold"},
		{"zero cache", "cache:\n  maxEntries: 0\n", "maxEntries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("explicitly named missing config file should fail loudly")
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db.internal", Port: 5433, User: "svc", Password: "secret",
		Database: "easybook", SSLMode: "require",
	}
	got := p.DSN()
	want := "host=db.internal port=5433 user=svc password=secret dbname=easybook sslmode=require"
	if got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
