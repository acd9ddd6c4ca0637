// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Cache    CacheConfig    `yaml:"cache"`
	Records  RecordsConfig  `yaml:"records"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path or ":memory:"
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// CacheConfig configures the accessor cache resync.
type CacheConfig struct {
	SyncInterval time.Duration `yaml:"sync_interval"` // Full rebuild interval
	WatchStore   bool          `yaml:"watch_store"`   // Resync when the database file changes
}

// RecordsConfig configures record listing.
type RecordsConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	MASTERDATA_SERVER_HOST          - Server host (default: 0.0.0.0)
//	MASTERDATA_SERVER_PORT          - Server port (default: 8080)
//	MASTERDATA_DATABASE_DSN         - Database path (default: masterdata.db)
//	MASTERDATA_LOG_LEVEL            - Log level: debug, info, warn, error (default: info)
//	MASTERDATA_LOG_FORMAT           - Log format: json or console (default: json)
//	MASTERDATA_METRICS_ENABLED      - Enable /metrics endpoint (default: true)
//	MASTERDATA_CACHE_SYNC_INTERVAL  - Cache rebuild interval (default: 30s)
//	MASTERDATA_CACHE_WATCH_STORE    - Resync on database file writes (default: false)
//	MASTERDATA_RECORDS_DEFAULT_LIMIT - Default page size (default: 10)
//	MASTERDATA_RECORDS_MAX_LIMIT    - Maximum page size (default: 100)
func LoadFromEnv() (*Config, error) {
	cfg := Config{Metrics: MetricsConfig{Enabled: true}}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads path when it exists and the environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies MASTERDATA_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("MASTERDATA_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("MASTERDATA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MASTERDATA_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("MASTERDATA_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Database configuration
	if v := os.Getenv("MASTERDATA_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Logging configuration
	if v := os.Getenv("MASTERDATA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MASTERDATA_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("MASTERDATA_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("MASTERDATA_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	// Cache configuration
	if v := os.Getenv("MASTERDATA_CACHE_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SyncInterval = d
		}
	}
	if v := os.Getenv("MASTERDATA_CACHE_WATCH_STORE"); v != "" {
		cfg.Cache.WatchStore = parseBool(v)
	}

	// Records configuration
	if v := os.Getenv("MASTERDATA_RECORDS_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Records.DefaultLimit = n
		}
	}
	if v := os.Getenv("MASTERDATA_RECORDS_MAX_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Records.MaxLimit = n
		}
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "masterdata.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Cache.SyncInterval == 0 {
		cfg.Cache.SyncInterval = 30 * time.Second
	}

	if cfg.Records.DefaultLimit == 0 {
		cfg.Records.DefaultLimit = 10
	}
	if cfg.Records.MaxLimit == 0 {
		cfg.Records.MaxLimit = 100
	}
}

// Validate checks a loaded configuration.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got %q", cfg.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	if cfg.Cache.SyncInterval < time.Second {
		return fmt.Errorf("cache.sync_interval must be at least 1s, got %s", cfg.Cache.SyncInterval)
	}

	if cfg.Records.DefaultLimit < 1 {
		return fmt.Errorf("records.default_limit must be positive, got %d", cfg.Records.DefaultLimit)
	}
	if cfg.Records.MaxLimit < cfg.Records.DefaultLimit {
		return fmt.Errorf("records.max_limit (%d) must not be below records.default_limit (%d)",
			cfg.Records.MaxLimit, cfg.Records.DefaultLimit)
	}

	return nil
}
