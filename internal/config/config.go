// Package config loads relq settings.
//
// Precedence (highest to lowest): flags > RELQ_ environment variables >
// config file > defaults. The config file is relq.yaml (or relq.yml) in
// the working directory unless an explicit path is given.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/roach88/relq/internal/querysql"
	"github.com/roach88/relq/internal/store"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RELQ_"

// Defaults.
const (
	DefaultDriver   = store.DriverMattn
	DefaultDialect  = "sqlite"
	DefaultLogLevel = "warn"
	DefaultFormat   = "text"
)

// Config holds all settings shared by CLI commands.
type Config struct {
	// Database is the SQLite file commands operate on.
	Database string `koanf:"database"`

	// Driver selects the database/sql driver: "sqlite3" (cgo) or
	// "sqlite" (pure Go).
	Driver string `koanf:"driver"`

	// Dialect selects the SQL dialect for printed statements.
	Dialect string `koanf:"dialect"`

	// Schema is the CUE or YAML file declaring schema versions.
	Schema string `koanf:"schema"`

	LogLevel    string        `koanf:"log_level"`
	Format      string        `koanf:"format"`
	Verbose     bool          `koanf:"verbose"`
	BusyTimeout time.Duration `koanf:"busy_timeout"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// flagKeys maps flag names that differ from their config key.
var flagKeys = map[string]string{
	"db":     "database",
	"config": "",
}

// findConfigFile returns explicit, or relq.yaml / relq.yml if present.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"relq.yaml", "relq.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load builds a Config from defaults, the config file, the environment
// and the flags in flags that were explicitly set. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"driver":       DefaultDriver,
		"dialect":      DefaultDialect,
		"log_level":    DefaultLogLevel,
		"format":       DefaultFormat,
		"verbose":      false,
		"busy_timeout": store.DefaultBusyTimeout.String(),
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// RELQ_LOG_LEVEL -> log_level
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if mapped, ok := flagKeys[f.Name]; ok {
				key = mapped
			}
			if key == "" {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Driver {
	case store.DriverMattn, store.DriverModernc:
	default:
		return fmt.Errorf("invalid driver %q: must be %s or %s", c.Driver, store.DriverMattn, store.DriverModernc)
	}
	if _, err := querysql.DialectByName(c.Dialect); err != nil {
		return err
	}
	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("invalid format %q: must be one of [text json]", c.Format)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("invalid busy_timeout %s", c.BusyTimeout)
	}
	return nil
}

// Level parses LogLevel. Verbose forces debug.
func (c *Config) Level() (slog.Level, error) {
	if c.Verbose {
		return slog.LevelDebug, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// Logger returns a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// StoreOptions returns the store options selected by c.
func (c *Config) StoreOptions(logger *slog.Logger) []store.Option {
	opts := []store.Option{store.WithDriver(c.Driver), store.WithLogger(logger)}
	if c.BusyTimeout > 0 {
		opts = append(opts, store.WithBusyTimeout(c.BusyTimeout))
	}
	return opts
}

// SQLDialect returns the dialect selected by c.
func (c *Config) SQLDialect() querysql.Dialect {
	d, err := querysql.DialectByName(c.Dialect)
	if err != nil {
		return querysql.SQLite
	}
	return d
}
