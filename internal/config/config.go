// Package config resolves studydesk settings from a TOML file, the
// environment and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Addr  string `toml:"addr"`
	Dev   bool   `toml:"dev"`
	Store Store  `toml:"store"`
}

type Store struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`  // sqlite database file
	DSN    string `toml:"dsn"`   // postgres connection string
	Watch  bool   `toml:"watch"` // pick up writes from other processes (sqlite)
}

func Default() Config {
	return Config{
		Addr: ":8080",
		Store: Store{
			Driver: DriverSQLite,
			Path:   "studydesk.db",
			Watch:  true,
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file is not
// an error unless required is set. The result is not validated, since a
// later layer may still supply required values; call Validate once every
// layer is applied.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields with any STUDYDESK_* variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("STUDYDESK_ADDR"); v != "" {
		c.Addr = v
	}
	if v := getenv("STUDYDESK_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := getenv("STUDYDESK_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := getenv("STUDYDESK_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := getenv("STUDYDESK_STORE_WATCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("STUDYDESK_STORE_WATCH: %w", err)
		}
		c.Store.Watch = b
	}
	if v := getenv("STUDYDESK_DEV"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("STUDYDESK_DEV: %w", err)
		}
		c.Dev = b
	}
	return nil
}

// Validate checks the fully layered configuration.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverSQLite && c.Store.Path == "" {
		return errors.New("sqlite driver requires a path")
	}
	if c.Store.Driver == DriverPostgres && c.Store.DSN == "" {
		return errors.New("postgres driver requires a dsn")
	}
	return nil
}

// Value returns the flag value if set, otherwise falls back to env var.
func Value(flagVal, envKey string) string {
	if flagVal != "" {
		return flagVal
	}
	return os.Getenv(envKey)
}

// Encode renders c as TOML, used by `studydesk config`.
func (c Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
