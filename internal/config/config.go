// Package config loads centsync configuration from a TOML file with the
// override chain defaults → file → environment → CLI flags. Unknown keys are
// fatal: silently ignoring a typo leads to hard-to-debug behavior.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/centsync/centsync/internal/model"
)

// Defaults applied before the config file is read.
const (
	DefaultProbeURL      = "https://firestore.googleapis.com/"
	DefaultProbeInterval = 30 * time.Second
	DefaultCurrency      = "EUR"
	DefaultLogLevel      = "info"
)

// Config is the on-disk configuration.
type Config struct {
	// ProjectID is the cloud project hosting the per-user document store.
	ProjectID string `toml:"project_id"`

	// CredentialsFile optionally overrides the SDK's default credential chain.
	CredentialsFile string `toml:"credentials_file"`

	// DBPath is the local SQLite database location.
	DBPath string `toml:"db_path"`

	// AuthPath is the auth file location.
	AuthPath string `toml:"auth_path"`

	// DefaultCurrency is the ISO 4217 code for new accounts.
	DefaultCurrency string `toml:"default_currency"`

	// ProbeURL and ProbeInterval configure the connectivity monitor.
	ProbeURL      string   `toml:"probe_url"`
	ProbeInterval duration `toml:"probe_interval"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// duration wraps time.Duration for TOML string values like "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}

	d.Duration = parsed

	return nil
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		DBPath:          filepath.Join(defaultDataDir(), "centsync.db"),
		AuthPath:        filepath.Join(defaultDataDir(), "auth.json"),
		DefaultCurrency: DefaultCurrency,
		ProbeURL:        DefaultProbeURL,
		ProbeInterval:   duration{DefaultProbeInterval},
		LogLevel:        DefaultLogLevel,
	}
}

// DefaultConfigPath returns the conventional config file location.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.toml")
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "centsync")
	}

	return "."
}

func defaultDataDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".local", "share", "centsync")
	}

	return "."
}

// Load reads and parses a TOML config file, rejects unknown keys, validates,
// and returns the resulting Config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}

		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a config file if it exists, otherwise returns a Config
// with all default values. Supports the zero-config first run.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// ApplyEnv overlays CENTSYNC_* environment variables. Env wins over the file
// but loses to CLI flags.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CENTSYNC_PROJECT_ID"); v != "" {
		c.ProjectID = v
	}

	if v := os.Getenv("CENTSYNC_CREDENTIALS_FILE"); v != "" {
		c.CredentialsFile = v
	}

	if v := os.Getenv("CENTSYNC_DB_PATH"); v != "" {
		c.DBPath = v
	}

	if v := os.Getenv("CENTSYNC_AUTH_PATH"); v != "" {
		c.AuthPath = v
	}

	if v := os.Getenv("CENTSYNC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks field sanity. The default currency must be a real ISO 4217
// code because it seeds every new account.
func (c *Config) Validate() error {
	if c.DefaultCurrency != "" && !model.ValidCurrency(c.DefaultCurrency) {
		return fmt.Errorf("default_currency %q is not a valid ISO 4217 code", c.DefaultCurrency)
	}

	if c.ProbeInterval.Duration < time.Second {
		return fmt.Errorf("probe_interval %s is below the 1s minimum", c.ProbeInterval.Duration)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	return nil
}
