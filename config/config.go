/*
Package config loads server configuration.

PURPOSE:
  One Config value drives cmd/server: which store, which lock, whether
  events are published, and how the logger and tracer are set up.

SOURCES (later wins):
  1. Defaults (Default())
  2. YAML file named by CONFIG_FILE
  3. .env file (missing file is fine)
  4. Process environment
  Command-line flags in cmd/server override the result.

SEE ALSO:
  - cmd/server/main.go: flag overrides and wiring
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Lock backends.
const (
	LockMemory = "memory"
	LockRedis  = "redis"
)

// Config is the full server configuration.
type Config struct {
	Port             int           `yaml:"port"`
	DBDriver         string        `yaml:"db_driver"`
	DBDSN            string        `yaml:"db_dsn"`
	LogMode          string        `yaml:"log_mode"`
	LockBackend      string        `yaml:"lock_backend"`
	RedisAddr        string        `yaml:"redis_addr"`
	LockTTL          time.Duration `yaml:"lock_ttl"`
	BatchConcurrency int           `yaml:"batch_concurrency"`
	EventsEnabled    bool          `yaml:"events_enabled"`
	EventsRedisAddr  string        `yaml:"events_redis_addr"`
	JWTSecret        string        `yaml:"jwt_secret"`
	TraceStdout      bool          `yaml:"trace_stdout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:             6000,
		DBDriver:         DriverSQLite,
		DBDSN:            "attendance.db",
		LogMode:          "development",
		LockBackend:      LockMemory,
		RedisAddr:        "localhost:6379",
		LockTTL:          10 * time.Second,
		BatchConcurrency: 4,
	}
}

// Load builds a Config from every source. envFiles defaults to ".env".
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	dotenv := map[string]string{}
	for _, f := range envFiles {
		vals, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vals {
			if _, ok := dotenv[k]; !ok {
				dotenv[k] = v
			}
		}
	}
	env := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	cfg := Default()
	if path, ok := env("CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		if err := cfg.loadYAML(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(env); err != nil {
		return Config{}, err
	}
	if cfg.EventsRedisAddr == "" {
		cfg.EventsRedisAddr = cfg.RedisAddr
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(env func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := env(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v, ok := env(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a boolean", key, v))
			return
		}
		*dst = b
	}

	num("PORT", &c.Port)
	str("DB_DRIVER", &c.DBDriver)
	str("DB_DSN", &c.DBDSN)
	str("LOG_MODE", &c.LogMode)
	str("LOCK_BACKEND", &c.LockBackend)
	str("REDIS_ADDR", &c.RedisAddr)
	if v, ok := env("LOCK_TTL"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("LOCK_TTL: %q is not a duration", v))
		} else {
			c.LockTTL = d
		}
	}
	num("BATCH_CONCURRENCY", &c.BatchConcurrency)
	flag("EVENTS_ENABLED", &c.EventsEnabled)
	str("EVENTS_REDIS_ADDR", &c.EventsRedisAddr)
	str("JWT_SECRET", &c.JWTSecret)
	flag("TRACE_STDOUT", &c.TraceStdout)

	return errors.Join(errs...)
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
		if c.DBDSN == "" {
			errs = append(errs, fmt.Errorf("db_dsn is required for driver %s", c.DBDriver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown db driver %q", c.DBDriver))
	}
	switch c.LockBackend {
	case LockMemory:
	case LockRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required for the redis lock"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown lock backend %q", c.LockBackend))
	}
	if c.LockTTL <= 0 {
		errs = append(errs, errors.New("lock_ttl must be positive"))
	}
	if c.BatchConcurrency <= 0 {
		errs = append(errs, errors.New("batch_concurrency must be positive"))
	}
	if c.EventsEnabled && c.EventsRedisAddr == "" {
		errs = append(errs, errors.New("events_redis_addr is required when events are enabled"))
	}
	return errors.Join(errs...)
}
