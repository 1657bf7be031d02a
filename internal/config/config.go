// Package config loads replica configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/iudanet/sessionstore/internal/repl"
)

const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// Config holds replica settings. Durations are kept as strings and parsed by
// the accessor methods.
type Config struct {
	DBDriver        string `mapstructure:"DB_DRIVER"`
	DBPath          string `mapstructure:"DB_PATH"`
	StorePassphrase string `mapstructure:"STORE_PASSPHRASE"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogFormat       string `mapstructure:"LOG_FORMAT"`
	MetricsAddr     string `mapstructure:"METRICS_ADDR"`
	TrimInterval    string `mapstructure:"TRIM_INTERVAL"`
	ChangelogMaxAge string `mapstructure:"CHANGELOG_MAX_AGE"`
	ServerID        string `mapstructure:"SERVER_ID"`
}

// Load reads .env from the working directory when present, then the
// environment, which takes precedence.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	v.SetDefault("DB_DRIVER", DriverBolt)
	v.SetDefault("DB_PATH", "sessionstore.db")
	v.SetDefault("STORE_PASSPHRASE", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("METRICS_ADDR", ":9464")
	v.SetDefault("TRIM_INTERVAL", "5m")
	v.SetDefault("CHANGELOG_MAX_AGE", repl.DefaultChangelogMaxAge.String())
	v.SetDefault("SERVER_ID", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverBolt, DriverSQLite:
	default:
		return fmt.Errorf("config: DB_DRIVER must be %q or %q, got %q", DriverBolt, DriverSQLite, c.DBDriver)
	}
	if c.DBPath == "" {
		return errors.New("config: DB_PATH must be set")
	}
	if c.StorePassphrase != "" && c.DBDriver != DriverBolt {
		return errors.New("config: STORE_PASSPHRASE is only supported with the bolt driver")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if d, err := time.ParseDuration(c.TrimInterval); err != nil || d <= 0 {
		return fmt.Errorf("config: TRIM_INTERVAL must be a positive duration, got %q", c.TrimInterval)
	}
	if d, err := time.ParseDuration(c.ChangelogMaxAge); err != nil || d <= 0 {
		return fmt.Errorf("config: CHANGELOG_MAX_AGE must be a positive duration, got %q", c.ChangelogMaxAge)
	}
	if c.ServerID != "" {
		if _, err := uuid.Parse(c.ServerID); err != nil {
			return fmt.Errorf("config: SERVER_ID must be a uuid: %w", err)
		}
	}
	return nil
}

// TrimEvery returns TRIM_INTERVAL.
func (c *Config) TrimEvery() time.Duration {
	d, _ := time.ParseDuration(c.TrimInterval)
	return d
}

// MaxAge returns CHANGELOG_MAX_AGE.
func (c *Config) MaxAge() time.Duration {
	d, _ := time.ParseDuration(c.ChangelogMaxAge)
	return d
}

// ReplicaID returns SERVER_ID, or a fresh random id when it is unset.
func (c *Config) ReplicaID() uuid.UUID {
	if id, err := uuid.Parse(c.ServerID); err == nil {
		return id
	}
	return uuid.New()
}

// Level returns LOG_LEVEL as a slog level.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

// NewLogger builds the process logger described by LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: LOG_LEVEL %q: %w", s, err)
	}
	return l, nil
}
