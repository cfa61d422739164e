// Package config loads chairside configuration from file, environment, and
// defaults, in that order of increasing precedence for the environment.
//
// Configuration is read with viper from an optional YAML file (default
// ~/.chairside/config.yaml) and from CHAIRSIDE_* environment variables, e.g.
// CHAIRSIDE_CLINIC_ID or CHAIRSIDE_REMOTE_DSN.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full chairside runtime configuration.
type Config struct {
	// ClinicID identifies the tenant this device belongs to. Required.
	ClinicID string `mapstructure:"clinic_id"`

	// CachePath is the location of the local SQLite cache.
	CachePath string `mapstructure:"cache_path"`

	// RemoteDSN is the MySQL DSN of the canonical store. Empty means demo
	// mode with an in-memory canonical store.
	RemoteDSN string `mapstructure:"remote_dsn"`

	// JWTSecret signs and verifies session tokens. Required when
	// RemoteDSN is set.
	JWTSecret string `mapstructure:"jwt_secret"`

	// SessionFile stores the current session token between invocations.
	SessionFile string `mapstructure:"session_file"`

	// ProbeInterval is how often connectivity is re-checked.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// SyncInterval is the periodic reconciliation cadence.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// DashboardPort is the WebSocket dashboard port (0 disables it).
	DashboardPort int `mapstructure:"dashboard_port"`

	// LogFile is where daemon logs are written (empty means stderr only).
	LogFile string `mapstructure:"log_file"`

	// LogMaxSizeMB caps a log file before rotation.
	LogMaxSizeMB int `mapstructure:"log_max_size_mb"`

	// LogMaxBackups is how many rotated log files to keep.
	LogMaxBackups int `mapstructure:"log_max_backups"`
}

// Load reads configuration from path (or the default location when empty).
// A missing config file is not an error; defaults and environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("cache_path", defaultPath("cache.db"))
	v.SetDefault("session_file", defaultPath("session"))
	v.SetDefault("probe_interval", 15*time.Second)
	v.SetDefault("sync_interval", 2*time.Minute)
	v.SetDefault("dashboard_port", 7420)
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_max_backups", 3)

	v.SetEnvPrefix("CHAIRSIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultPath(""))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if c.ClinicID == "" {
		return fmt.Errorf("clinic_id is required (set CHAIRSIDE_CLINIC_ID or config file)")
	}
	if c.RemoteDSN != "" && c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required when remote_dsn is set")
	}
	return nil
}

// defaultPath resolves a file under the ~/.chairside directory.
func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".chairside", name)
}
