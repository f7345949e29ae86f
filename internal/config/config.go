// Package config loads the gridquery CLI configuration from an optional
// config file and GRIDQUERY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable the CLI reads.
const EnvPrefix = "GRIDQUERY"

// Backend names accepted in Config.Backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMSSQL    = "mssql"
	BackendMongo    = "mongo"
)

// Config holds CLI settings.
type Config struct {
	LogLevel       string `mapstructure:"log_level"`
	Backend        string `mapstructure:"backend"`
	DSN            string `mapstructure:"dsn"`
	Database       string `mapstructure:"database"`
	Schema         string `mapstructure:"schema"`
	Collection     string `mapstructure:"collection"`
	DataFile       string `mapstructure:"data_file"`
	MaxConcurrency int    `mapstructure:"max_concurrency"`
	ReviveDates    bool   `mapstructure:"revive_dates"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

var defaults = map[string]any{
	"log_level":       "info",
	"backend":         BackendMemory,
	"dsn":             "",
	"database":        "gridquery",
	"schema":          "",
	"collection":      "rows",
	"data_file":       "",
	"max_concurrency": 8,
	"revive_dates":    true,
	"auto_migrate":    false,
}

// Load reads configuration. path names an optional config file (any format
// viper understands); environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	return &cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("max_concurrency must be >= 1, got %d", c.MaxConcurrency))
	}
	if strings.TrimSpace(c.Collection) == "" {
		errs = append(errs, errors.New("collection is required"))
	}

	switch c.Backend {
	case BackendMemory:
		if strings.TrimSpace(c.DataFile) == "" {
			errs = append(errs, errors.New("data_file is required for the memory backend"))
		}
	case BackendPostgres, BackendMSSQL:
		if strings.TrimSpace(c.DSN) == "" {
			errs = append(errs, fmt.Errorf("dsn is required for the %s backend", c.Backend))
		}
	case BackendMongo:
		if strings.TrimSpace(c.DSN) == "" {
			errs = append(errs, errors.New("dsn is required for the mongo backend"))
		}
		if strings.TrimSpace(c.Database) == "" {
			errs = append(errs, errors.New("database is required for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	return errors.Join(errs...)
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
