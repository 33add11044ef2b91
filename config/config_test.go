package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/config"
)

var keys = []string{
	"PORT", "DB_DRIVER", "DB_DSN", "LOG_MODE", "LOCK_BACKEND", "REDIS_ADDR",
	"LOCK_TTL", "BATCH_CONCURRENCY", "EVENTS_ENABLED", "EVENTS_REDIS_ADDR",
	"JWT_SECRET", "TRACE_STDOUT", "CONFIG_FILE",
}

// clearEnv blanks every key the loader reads. Empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))

	require.NoError(t, err)
	want := config.Default()
	want.EventsRedisAddr = want.RedisAddr
	assert.Equal(t, want, cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	// GIVEN: a YAML file, a .env file and a process variable touching the same keys
	clearEnv(t)
	yamlPath := writeFile(t, "config.yaml", `
port: 7000
db_driver: postgres
db_dsn: postgres://yaml
lock_ttl: 30s
batch_concurrency: 8
`)
	envPath := writeFile(t, ".env", "CONFIG_FILE="+yamlPath+"\nDB_DSN=postgres://dotenv\nPORT=7100\n")
	t.Setenv("PORT", "7200")

	// WHEN: loading
	cfg, err := config.Load(envPath)

	// THEN: env beats .env beats YAML beats defaults
	require.NoError(t, err)
	assert.Equal(t, 7200, cfg.Port)
	assert.Equal(t, "postgres://dotenv", cfg.DBDSN)
	assert.Equal(t, config.DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, 8, cfg.BatchConcurrency)
	assert.Equal(t, "development", cfg.LogMode)
}

func TestLoad_EventsAddrFollowsRedisAddr(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("EVENTS_ENABLED", "true")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))

	require.NoError(t, err)
	assert.True(t, cfg.EventsEnabled)
	assert.Equal(t, "redis:6380", cfg.EventsRedisAddr)
}

func TestLoad_RejectsMalformedValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "six thousand")
	t.Setenv("LOCK_TTL", "forever")
	t.Setenv("TRACE_STDOUT", "maybe")

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "LOCK_TTL")
	assert.Contains(t, err.Error(), "TRACE_STDOUT")
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"memory driver needs no dsn", func(c *config.Config) { c.DBDriver = config.DriverMemory; c.DBDSN = "" }, ""},
		{"unknown driver", func(c *config.Config) { c.DBDriver = "mongo" }, `unknown db driver "mongo"`},
		{"postgres without dsn", func(c *config.Config) { c.DBDriver = config.DriverPostgres; c.DBDSN = "" }, "db_dsn is required"},
		{"unknown lock", func(c *config.Config) { c.LockBackend = "etcd" }, `unknown lock backend "etcd"`},
		{"zero concurrency", func(c *config.Config) { c.BatchConcurrency = 0 }, "batch_concurrency must be positive"},
		{"negative ttl", func(c *config.Config) { c.LockTTL = -time.Second }, "lock_ttl must be positive"},
		{"bad port", func(c *config.Config) { c.Port = 70000 }, "port 70000 out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
