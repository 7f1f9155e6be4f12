package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError reports which stage of LoadConfig failed.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := "[" + string(e.Type) + "] " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(kind ConfigErrorType, msg string, err error) *ConfigError {
	return &ConfigError{Type: kind, Message: msg, Err: err}
}

// loader reads configuration from the process environment. Its hooks are
// swapped out in tests.
type loader struct {
	dotenv    []string
	lookupEnv func(key string) (string, bool)
	loadEnv   func(files ...string) error
}

func newLoader() loader {
	return loader{
		dotenv:    []string{".env"},
		lookupEnv: os.LookupEnv,
		loadEnv:   godotenv.Load,
	}
}

// LoadConfig resolves the service configuration from the environment, with a
// .env file in the working directory filling in anything unset. It pins
// time.Local to UTC. A *ConfigError is returned for any missing, malformed
// or inconsistent value.
func LoadConfig() (*Config, error) {
	return newLoader().load()
}

func (l loader) load() (*Config, error) {
	time.Local = time.UTC

	for _, f := range l.dotenv {
		// godotenv.Load leaves variables that are already set untouched.
		if err := l.loadEnv(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, configErr(ErrParsing, "failed to load "+f, err)
		}
	}

	if _, ok := l.lookupEnv("APP_ENV"); !ok {
		return nil, configErr(ErrMissingEnv, "APP_ENV is not set", nil)
	}

	cfg := &Config{Build: NewBuildInfo()}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, configErr(ErrParsing, "failed to process environment configuration", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, configErr(ErrValidation, "configuration validation failed", err)
	}
	if err := cfg.crossCheck(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// crossCheck covers constraints that span sections and so cannot be
// expressed as validate tags.
func (c *Config) crossCheck() error {
	switch {
	case c.Guard.Backend == "redis" && c.Redis.Addr == "":
		return configErr(ErrValidation, "REDIS_ADDR is required when GUARD_BACKEND=redis", nil)
	case c.Guard.TTL < c.Detection.MaxDuration:
		return configErr(ErrValidation,
			fmt.Sprintf("DETECTION_GUARD_TTL (%s) must not be shorter than DETECTION_MAX_DURATION (%s)", c.Guard.TTL, c.Detection.MaxDuration), nil)
	case c.Database.MinConns > c.Database.MaxConns:
		return configErr(ErrValidation,
			fmt.Sprintf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.Database.MinConns, c.Database.MaxConns), nil)
	}
	return nil
}
