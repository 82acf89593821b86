package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"

	"txdb/internal/logging"
)

// Backends lists the storage engines a config may name.
var Backends = []string{"bolt", "leveldb", "memory", "sqlite"}

// DefaultPath is read by Load when no path is given and the file exists.
const DefaultPath = "~/.txdb/config.toml"

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

type DatabaseConfig struct {
	Backend  string `toml:"backend"`
	Path     string `toml:"path"`
	ReadOnly bool   `toml:"read_only"`
	// MaxReaders caps concurrent read transactions. Zero is unlimited.
	MaxReaders int `toml:"max_readers"`
	// OpenTimeout bounds waiting for a file lock (bolt) or a busy database
	// (sqlite). Zero uses the engine default.
	OpenTimeout Duration `toml:"open_timeout"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
}

// Duration is a time.Duration that decodes from TOML strings like "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Backend: "bolt",
			Path:    "~/.txdb/data.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Namespace: "txdb",
		},
	}
}

// Load reads a TOML config file and returns the parsed Config.
// If path is empty, DefaultPath is tried and defaults are returned when it
// does not exist.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = expandHome(DefaultPath)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parsing config: unknown keys: %s", strings.Join(keys, ", "))
	}

	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var err error
	d := c.Database
	if !slices.Contains(Backends, d.Backend) {
		err = multierr.Append(err, fmt.Errorf("database.backend: %q is not one of %s", d.Backend, strings.Join(Backends, ", ")))
	}
	if d.Backend != "memory" && strings.TrimSpace(d.Path) == "" {
		err = multierr.Append(err, fmt.Errorf("database.path: required for backend %q", d.Backend))
	}
	if d.Backend == "memory" && d.ReadOnly {
		err = multierr.Append(err, fmt.Errorf("database.read_only: a memory database starts empty and cannot be read-only"))
	}
	if d.MaxReaders < 0 {
		err = multierr.Append(err, fmt.Errorf("database.max_readers: must not be negative, got %d", d.MaxReaders))
	}
	if d.OpenTimeout.Duration < 0 {
		err = multierr.Append(err, fmt.Errorf("database.open_timeout: must not be negative, got %s", d.OpenTimeout))
	}
	if e := validateLogLevel(c.Logging.Level); e != nil {
		err = multierr.Append(err, fmt.Errorf("logging.level: %w", e))
	}
	if e := validateLogFormat(c.Logging.Format); e != nil {
		err = multierr.Append(err, fmt.Errorf("logging.format: %w", e))
	}
	if c.Metrics.Enabled {
		if e := validateNamespace(c.Metrics.Namespace); e != nil {
			err = multierr.Append(err, fmt.Errorf("metrics.namespace: %w", e))
		}
	}
	return err
}

// validateLogLevel accepts an empty level, which means info.
func validateLogLevel(level string) error {
	if level == "" || logging.ValidLevel(level) {
		return nil
	}
	return fmt.Errorf("unknown level %q (want debug, info, warn or error)", level)
}

func validateLogFormat(format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text", "json":
		return nil
	}
	return fmt.Errorf("unknown format %q (want text or json)", format)
}

var metricName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validateNamespace(ns string) error {
	if !metricName.MatchString(ns) {
		return fmt.Errorf("%q is not a valid metric name prefix", ns)
	}
	return nil
}

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	return expandHome(path)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
