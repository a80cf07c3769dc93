/*
Package config loads server settings.

SOURCES (later wins):
  1. Defaults
  2. .env file in the working directory, if present
  3. Environment variables
  4. Command-line flags

ENVIRONMENT:
  PORT                       HTTP port (default 8080)
  DB_DRIVER                  sqlite | postgres (default sqlite)
  DATABASE_URL               SQLite path or Postgres DSN (default credit.db)
  JWT_SECRET                 HMAC key for bearer tokens (required)
  CREDIT_CONTRACT            Identity mixed into every credit hash
  REFRESH_INTERVAL           Scheduler period, Go duration (default 1h)
  REFRESH_CONCURRENCY        Credits refreshed in parallel per tick (default 8)
  POOLS_FILE                 JSON array of pool documents loaded at startup
  LOG_LEVEL                  debug | info | warn | error (default info)
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds every setting of the server.
type Config struct {
	Port               int           `env:"PORT" validate:"min=1,max=65535"`
	DBDriver           string        `env:"DB_DRIVER" validate:"oneof=sqlite postgres"`
	DatabaseURL        string        `env:"DATABASE_URL" validate:"required"`
	JWTSecret          string        `env:"JWT_SECRET" validate:"required,min=16"`
	CreditContract     string        `env:"CREDIT_CONTRACT" validate:"required"`
	RefreshInterval    time.Duration `env:"REFRESH_INTERVAL" validate:"gt=0"`
	RefreshConcurrency int           `env:"REFRESH_CONCURRENCY" validate:"min=1,max=256"`
	PoolsFile          string        `env:"POOLS_FILE"`
	LogLevel           string        `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Port:               8080,
		DBDriver:           DriverSQLite,
		DatabaseURL:        "credit.db",
		CreditContract:     "credit-contract",
		RefreshInterval:    time.Hour,
		RefreshConcurrency: 8,
		LogLevel:           "info",
	}
}

// Load reads envFiles (".env" if none given) and the environment over the
// defaults. Missing files are skipped. The result is not validated yet,
// since flags may still change it.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv applies the variables returned by getenv over the defaults.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("PORT: %w", err)
		}
		cfg.Port = port
	}
	if v := getenv("REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("REFRESH_INTERVAL: %w", err)
		}
		cfg.RefreshInterval = d
	}
	if v := getenv("REFRESH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("REFRESH_CONCURRENCY: %w", err)
		}
		cfg.RefreshConcurrency = n
	}

	setString(&cfg.DBDriver, getenv("DB_DRIVER"))
	setString(&cfg.DatabaseURL, getenv("DATABASE_URL"))
	setString(&cfg.JWTSecret, getenv("JWT_SECRET"))
	setString(&cfg.CreditContract, getenv("CREDIT_CONTRACT"))
	setString(&cfg.PoolsFile, getenv("POOLS_FILE"))
	setString(&cfg.LogLevel, strings.ToLower(getenv("LOG_LEVEL")))
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// RegisterFlags binds flags to c, using its current values as defaults.
func (c *Config) RegisterFlags(flags *flag.FlagSet) {
	flags.IntVar(&c.Port, "port", c.Port, "HTTP server port")
	flags.StringVar(&c.DBDriver, "db-driver", c.DBDriver, "database driver: sqlite or postgres")
	flags.StringVar(&c.DatabaseURL, "db", c.DatabaseURL, `SQLite path (":memory:" for in-memory) or Postgres DSN`)
	flags.StringVar(&c.CreditContract, "credit-contract", c.CreditContract, "identity mixed into credit hashes")
	flags.DurationVar(&c.RefreshInterval, "refresh-interval", c.RefreshInterval, "period of the credit refresh scheduler")
	flags.IntVar(&c.RefreshConcurrency, "refresh-concurrency", c.RefreshConcurrency, "credits refreshed in parallel")
	flags.StringVar(&c.PoolsFile, "pools", c.PoolsFile, "JSON file of pool configurations to load at startup")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
}

// Validate reports every invalid setting by its environment variable name.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("env")
	})

	err := v.Struct(c)
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (%s)", fe.Field(), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}
