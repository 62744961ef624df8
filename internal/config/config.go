// Package config loads appforge settings from an optional YAML file and
// APPFORGE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Limits   LimitsConfig   `yaml:"limits"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	// Address is the HTTP listen address.
	Address string `yaml:"address"`
	// OperationTimeout bounds file operations whose request has no deadline.
	OperationTimeout time.Duration `yaml:"operation_timeout"`
	// RateLimit is the sustained requests per second allowed per caller; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the burst size of the per-caller limiter.
	RateBurst int `yaml:"rate_burst"`
}

type DatabaseConfig struct {
	// Driver is "sqlite3" or "mysql".
	Driver string `yaml:"driver"`
	// DSN is the driver-specific data source. For sqlite3 a bare file path is accepted.
	DSN string `yaml:"dsn"`
}

// RedisConfig enables the distributed per-project lock when Host is set.
type RedisConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// Enabled reports whether a redis server is configured.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

type LimitsConfig struct {
	MaxFileSize    int64 `yaml:"max_file_size"`
	DefaultQuota   int64 `yaml:"default_quota"`
	MaxBulkOps     int   `yaml:"max_bulk_ops"`
	MinQueryLength int   `yaml:"min_query_length"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:          ":8080",
			OperationTimeout: 30 * time.Second,
			RateLimit:        20,
			RateBurst:        40,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "./data/appforge.db",
		},
		Redis: RedisConfig{
			Port:    6379,
			LockTTL: 30 * time.Second,
		},
		Limits: LimitsConfig{
			MaxFileSize:    1 << 20,
			DefaultQuota:   50 << 20,
			MaxBulkOps:     50,
			MinQueryLength: 2,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (skipped when empty), applies environment
// overrides and validates the result. Relative sqlite paths resolve against
// the config file's directory.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", absPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if cfg.isSQLite() && !strings.HasPrefix(cfg.Database.DSN, "file:") && !filepath.IsAbs(cfg.Database.DSN) {
			cfg.Database.DSN = filepath.Join(filepath.Dir(absPath), cfg.Database.DSN)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Address = getEnv("APPFORGE_ADDRESS", c.Server.Address)
	c.Server.OperationTimeout = getEnvDuration("APPFORGE_OPERATION_TIMEOUT", c.Server.OperationTimeout)
	c.Server.RateLimit = getEnvFloat("APPFORGE_RATE_LIMIT", c.Server.RateLimit)
	c.Server.RateBurst = getEnvInt("APPFORGE_RATE_BURST", c.Server.RateBurst)

	c.Database.Driver = getEnv("APPFORGE_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("APPFORGE_DB_DSN", c.Database.DSN)

	c.Redis.Host = getEnv("APPFORGE_REDIS_HOST", c.Redis.Host)
	c.Redis.Port = getEnvInt("APPFORGE_REDIS_PORT", c.Redis.Port)
	c.Redis.Username = getEnv("APPFORGE_REDIS_USERNAME", c.Redis.Username)
	c.Redis.Password = getEnv("APPFORGE_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("APPFORGE_REDIS_DB", c.Redis.DB)
	c.Redis.LockTTL = getEnvDuration("APPFORGE_REDIS_LOCK_TTL", c.Redis.LockTTL)

	c.Limits.MaxFileSize = getEnvInt64("APPFORGE_MAX_FILE_SIZE", c.Limits.MaxFileSize)
	c.Limits.DefaultQuota = getEnvInt64("APPFORGE_DEFAULT_QUOTA", c.Limits.DefaultQuota)
	c.Limits.MaxBulkOps = getEnvInt("APPFORGE_MAX_BULK_OPS", c.Limits.MaxBulkOps)
	c.Limits.MinQueryLength = getEnvInt("APPFORGE_MIN_QUERY_LENGTH", c.Limits.MinQueryLength)

	c.Log.Level = getEnv("APPFORGE_LOG_LEVEL", c.Log.Level)
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3", "mysql":
	default:
		return fmt.Errorf("database.driver must be sqlite3 or mysql, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must be configured")
	}
	if c.Limits.MaxFileSize <= 0 {
		return fmt.Errorf("limits.max_file_size must be positive")
	}
	if c.Limits.DefaultQuota < 0 {
		return fmt.Errorf("limits.default_quota must be non-negative")
	}
	if c.Limits.MaxBulkOps <= 0 {
		return fmt.Errorf("limits.max_bulk_ops must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must be non-negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

func (c *Config) isSQLite() bool {
	d := strings.ToLower(c.Database.Driver)
	return d == "sqlite" || d == "sqlite3"
}

// SQLitePath returns the database file when the driver is sqlite and the DSN
// is a bare path rather than a "file:" URI.
func (c *Config) SQLitePath() (string, bool) {
	if !c.isSQLite() || strings.HasPrefix(c.Database.DSN, "file:") {
		return "", false
	}
	return c.Database.DSN, true
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
