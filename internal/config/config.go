package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the process configuration read from CHOREFLOW_* environment
// variables.
type Config struct {
	Port         string
	DBPath       string
	LogLevel     string
	LogFormat    string
	Location     *time.Location
	TickInterval time.Duration
	LockTimeout  time.Duration
	ChoresFile   string
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through getenv. Unset variables fall
// back to defaults.
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:         "8080",
		DBPath:       "choreflow.db",
		LogLevel:     "info",
		LogFormat:    "text",
		Location:     time.Local,
		TickInterval: time.Minute,
		LockTimeout:  5 * time.Second,
		ChoresFile:   getenv("CHOREFLOW_CHORES_FILE"),
	}

	if v := getenv("CHOREFLOW_PORT"); v != "" {
		cfg.Port = v
	}
	if v := getenv("CHOREFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("CHOREFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("CHOREFLOW_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := getenv("CHOREFLOW_TIMEZONE"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return Config{}, fmt.Errorf("load timezone %q: %w", v, err)
		}
		cfg.Location = loc
	}

	var err error
	if cfg.TickInterval, err = durationVar(getenv, "CHOREFLOW_TICK_INTERVAL", cfg.TickInterval); err != nil {
		return Config{}, err
	}
	if cfg.LockTimeout, err = durationVar(getenv, "CHOREFLOW_LOCK_TIMEOUT", cfg.LockTimeout); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func durationVar(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}
