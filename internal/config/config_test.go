package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "scd2.db", cfg.DB)
	assert.Equal(t, "specs", cfg.Specs)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.Workers)
	assert.Empty(t, cfg.MetricsTextfile)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.ConfigFile)
}

func TestLoad_DefaultFileDiscovered(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, DefaultConfigFile, "db: warehouse.db\nworkers: 2\n")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "warehouse.db", cfg.DB)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, DefaultConfigFile, cfg.ConfigFile)
}

func TestLoad_ExplicitFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "custom.yaml", `
db: duckdb://lake.duckdb
specs: dims
timezone: Europe/Berlin
metrics:
  textfile: /var/lib/node_exporter/scd2.prom
log:
  level: debug
  format: json
`)

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "duckdb://lake.duckdb", cfg.DB)
	assert.Equal(t, "dims", cfg.Specs)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, "/var/lib/node_exporter/scd2.prom", cfg.MetricsTextfile)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.yaml", "db: from-file.db\nlog:\n  level: warn\n")
	t.Setenv("SCD2_DB", "from-env.db")
	t.Setenv("SCD2_LOG_LEVEL", "error")
	t.Setenv("SCD2_METRICS_TEXTFILE", "m.prom")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.DB)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "m.prom", cfg.MetricsTextfile)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SCD2_DB", "from-env.db")
	t.Setenv("SCD2_SPECS", "env-specs")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "", "")
	flags.String("specs", "", "")
	flags.Int("workers", 0, "")
	require.NoError(t, flags.Parse([]string{"--db", "from-flag.db", "--workers", "3"}))

	v := New()
	require.NoError(t, BindFlags(v, flags))
	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, "from-flag.db", cfg.DB)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "env-specs", cfg.Specs, "unset flags do not mask the environment")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{DB: "x.db", Timezone: "UTC", LogLevel: "info", LogFormat: "text"}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty db", func(c *Config) { c.DB = "" }, "db must be set"},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers must not be negative"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log.format"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}

	c := valid()
	assert.NoError(t, c.Validate())
}

func TestLocation(t *testing.T) {
	c := Config{}
	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	c.Timezone = "America/New_York"
	loc, err = c.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, ".env", "SCD2_TEST_FROM_DOTENV=dotenv\nSCD2_TEST_PRESET=dotenv\n")
	t.Setenv("SCD2_TEST_PRESET", "shell")
	t.Setenv("SCD2_TEST_FROM_DOTENV", "")
	os.Unsetenv("SCD2_TEST_FROM_DOTENV")

	LoadDotEnv(path, filepath.Join(dir, "missing.env"))

	assert.Equal(t, "dotenv", os.Getenv("SCD2_TEST_FROM_DOTENV"))
	assert.Equal(t, "shell", os.Getenv("SCD2_TEST_PRESET"), "existing variables win")
}
