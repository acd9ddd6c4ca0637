package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/masterdata/config"
)

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()
	return config.Load(writeConfig(t, content))
}

func TestLoad_ValidConfig(t *testing.T) {
	cfg := writeAndLoad(t, `
server:
  host: "127.0.0.1"
  port: 9000
  read_timeout: 5s
database:
  dsn: "/var/lib/masterdata/data.db"
logging:
  level: debug
  format: console
metrics:
  enabled: true
  path: /internal/metrics
cache:
  sync_interval: 1m
  watch_store: true
records:
  default_limit: 20
  max_limit: 50
`)

	if cfg.Server.Addr() != "127.0.0.1:9000" {
		t.Errorf("Addr() = %s", cfg.Server.Addr())
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Database.DSN != "/var/lib/masterdata/data.db" {
		t.Errorf("DSN = %s", cfg.Database.DSN)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/internal/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if cfg.Cache.SyncInterval != time.Minute || !cfg.Cache.WatchStore {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Records.DefaultLimit != 20 || cfg.Records.MaxLimit != 50 {
		t.Errorf("Records = %+v", cfg.Records)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "{}\n")

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Server.ReadTimeout != 30*time.Second || cfg.Server.WriteTimeout != 60*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	}
	if cfg.Database.DSN != "masterdata.db" {
		t.Errorf("DSN = %s", cfg.Database.DSN)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %s", cfg.Metrics.Path)
	}
	if cfg.Cache.SyncInterval != 30*time.Second || cfg.Cache.WatchStore {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Records.DefaultLimit != 10 || cfg.Records.MaxLimit != 100 {
		t.Errorf("Records = %+v", cfg.Records)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PATH", "/tmp/expanded.db")
	cfg := writeAndLoad(t, "database:\n  dsn: \"${TEST_DB_PATH}\"\n")
	if cfg.Database.DSN != "/tmp/expanded.db" {
		t.Errorf("DSN = %s, want /tmp/expanded.db", cfg.Database.DSN)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "server: [", "parse config"},
		{"port out of range", "server:\n  port: 70000\n", "server.port"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"bad format", "logging:\n  format: xml\n", "logging.format"},
		{"metrics path", "metrics:\n  path: metrics\n", "metrics.path"},
		{"sync too fast", "cache:\n  sync_interval: 10ms\n", "cache.sync_interval"},
		{"limits inverted", "records:\n  default_limit: 50\n  max_limit: 20\n", "records.max_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load should fail for a missing file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("MASTERDATA_SERVER_PORT", "7070")
	t.Setenv("MASTERDATA_DATABASE_DSN", "env.db")
	t.Setenv("MASTERDATA_LOG_LEVEL", "warn")
	t.Setenv("MASTERDATA_METRICS_ENABLED", "no")
	t.Setenv("MASTERDATA_CACHE_SYNC_INTERVAL", "2m")
	t.Setenv("MASTERDATA_CACHE_WATCH_STORE", "on")
	t.Setenv("MASTERDATA_RECORDS_MAX_LIMIT", "500")

	cfg := writeAndLoad(t, `
server:
  port: 9000
database:
  dsn: file.db
metrics:
  enabled: true
`)

	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Database.DSN != "env.db" {
		t.Errorf("DSN = %s, want env.db", cfg.Database.DSN)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %s, want warn", cfg.Logging.Level)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be overridden to false")
	}
	if cfg.Cache.SyncInterval != 2*time.Minute || !cfg.Cache.WatchStore {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Records.MaxLimit != 500 {
		t.Errorf("MaxLimit = %d", cfg.Records.MaxLimit)
	}
}

func TestEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("MASTERDATA_SERVER_PORT", "eighty")
	t.Setenv("MASTERDATA_CACHE_SYNC_INTERVAL", "often")
	t.Setenv("MASTERDATA_RECORDS_DEFAULT_LIMIT", "ten")

	cfg := writeAndLoad(t, "server:\n  port: 9000\n")
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want file value 9000", cfg.Server.Port)
	}
	if cfg.Cache.SyncInterval != 30*time.Second {
		t.Errorf("SyncInterval = %v, want default", cfg.Cache.SyncInterval)
	}
	if cfg.Records.DefaultLimit != 10 {
		t.Errorf("DefaultLimit = %d, want default", cfg.Records.DefaultLimit)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MASTERDATA_SERVER_HOST", "localhost")
	t.Setenv("MASTERDATA_LOG_FORMAT", "console")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.Server.Host != "localhost" || cfg.Logging.Format != "console" {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should be enabled by default without a file")
	}
}

func TestLoadWithFallback(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9100\n")

	cfg, err := config.LoadWithFallback(path)
	if err != nil || cfg.Server.Port != 9100 {
		t.Fatalf("file: cfg = %+v, err = %v", cfg, err)
	}

	cfg, err = config.LoadWithFallback(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil || cfg.Server.Port != 8080 {
		t.Errorf("env fallback: cfg = %+v, err = %v", cfg, err)
	}

	cfg, err = config.LoadWithFallback("")
	if err != nil || cfg == nil {
		t.Errorf("empty path: err = %v", err)
	}
}

func TestLoadWithFallback_BrokenFileIsAnError(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: loud\n")
	if _, err := config.LoadWithFallback(path); err == nil {
		t.Error("an existing but invalid file must not fall back to env")
	}
}

func TestParseBoolValues(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"off", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			os.Unsetenv("MASTERDATA_CACHE_WATCH_STORE")
			if tt.value != "" {
				t.Setenv("MASTERDATA_CACHE_WATCH_STORE", tt.value)
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Cache.WatchStore != tt.want {
				t.Errorf("WatchStore for %q = %v, want %v", tt.value, cfg.Cache.WatchStore, tt.want)
			}
		})
	}
}
