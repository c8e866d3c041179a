// Package config loads scd2 settings from a config file, the environment
// and command-line flags.
//
// Precedence, highest first:
//  1. Command-line flags
//  2. SCD2_* environment variables (.env is loaded into the environment first)
//  3. Config file (--config, or ./scd2.yaml when present)
//  4. Defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SCD2_DB.
const EnvPrefix = "SCD2"

// DefaultConfigFile is read when no --config is given and it exists.
const DefaultConfigFile = "scd2.yaml"

// Keys
const (
	KeyDB              = "db"
	KeySpecs           = "specs"
	KeyTimezone        = "timezone"
	KeyWorkers         = "workers"
	KeyMetricsTextfile = "metrics.textfile"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
)

// Config holds resolved settings.
type Config struct {
	// DB is the store DSN. duckdb://path selects DuckDB, anything else is
	// a SQLite path.
	DB string

	// Specs is the directory holding CUE dimension definitions.
	Specs string

	// Timezone interprets timestamps given without an offset and renders
	// timestamps for display. Storage is always UTC.
	Timezone string

	// Workers bounds fingerprint parallelism.
	Workers int

	// MetricsTextfile, when set, receives Prometheus metrics after each run.
	MetricsTextfile string

	LogLevel  string
	LogFormat string

	// ConfigFile is the config file actually read, if any.
	ConfigFile string
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyDB, "scd2.db")
	v.SetDefault(KeySpecs, "specs")
	v.SetDefault(KeyTimezone, "UTC")
	v.SetDefault(KeyWorkers, runtime.GOMAXPROCS(0))
	v.SetDefault(KeyMetricsTextfile, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds flags to their config keys. Flags that were not set on
// the command line do not override other sources.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		KeyDB:        "db",
		KeySpecs:     "specs",
		KeyTimezone:  "timezone",
		KeyWorkers:   "workers",
		KeyLogLevel:  "log-level",
		KeyLogFormat: "log-format",
	}
	for key, name := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment. Variables that
// are already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// Load reads the config file and returns the resolved settings.
//
// An explicit path must exist. Without one, DefaultConfigFile is read if it
// exists.
func Load(v *viper.Viper, path string) (*Config, error) {
	switch {
	case path != "":
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	default:
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			v.SetConfigFile(DefaultConfigFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", DefaultConfigFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
	}

	cfg := &Config{
		DB:              v.GetString(KeyDB),
		Specs:           v.GetString(KeySpecs),
		Timezone:        v.GetString(KeyTimezone),
		Workers:         v.GetInt(KeyWorkers),
		MetricsTextfile: v.GetString(KeyMetricsTextfile),
		LogLevel:        v.GetString(KeyLogLevel),
		LogFormat:       v.GetString(KeyLogFormat),
		ConfigFile:      v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for values that cannot work.
func (c *Config) Validate() error {
	if c.DB == "" {
		return fmt.Errorf("config: %s must be set", KeyDB)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: %s must not be negative, got %d", KeyWorkers, c.Workers)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("config: %s must be text or json, got %q", KeyLogFormat, c.LogFormat)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: %s must be debug, info, warn or error, got %q", KeyLogLevel, c.LogLevel)
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", KeyTimezone, err)
	}
	return loc, nil
}
