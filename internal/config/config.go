// Package config loads the site configuration.
//
// Values come from, in increasing priority: built-in defaults, pesaje.yaml
// (searched in . and ./configs, or an explicit path), a .env file, and
// PESAJE_* environment variables (remote.key → PESAJE_REMOTE_KEY).
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/procesa/pesaje/internal/sitetime"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PESAJE"

// Config is the effective site configuration.
type Config struct {
	Site     SiteConfig     `mapstructure:"site" yaml:"site"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Remote   RemoteConfig   `mapstructure:"remote" yaml:"remote"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type SiteConfig struct {
	Zone string `mapstructure:"zone" yaml:"zone"`
}

type DatabaseConfig struct {
	Path         string        `mapstructure:"path" yaml:"path"`
	BusyTimeout  time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	Mode            string        `mapstructure:"mode" yaml:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// RemoteConfig locates the remote authoritative backend.
type RemoteConfig struct {
	SnapshotURL string        `mapstructure:"snapshot_url" yaml:"snapshot_url"`
	RecordURL   string        `mapstructure:"record_url" yaml:"record_url"`
	UpdateURL   string        `mapstructure:"update_url" yaml:"update_url"`
	DeleteURL   string        `mapstructure:"delete_url" yaml:"delete_url"`
	Key         string        `mapstructure:"key" yaml:"key"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SyncConfig drives the background orchestrator.
type SyncConfig struct {
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
	SwitchFile string        `mapstructure:"switch_file" yaml:"switch_file"`
	Watch      bool          `mapstructure:"watch" yaml:"watch"`
}

// LogConfig configures the rotating log file. An empty File logs to stderr
// only.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

var defaults = map[string]any{
	"site.zone": "America/Mexico_City",

	"database.path":           "data/pesaje.db",
	"database.busy_timeout":   "5s",
	"database.max_open_conns": 25,

	"server.addr":             ":5000",
	"server.mode":             "release",
	"server.read_timeout":     "30s",
	"server.write_timeout":    "60s",
	"server.shutdown_timeout": "10s",

	"remote.snapshot_url": "",
	"remote.record_url":   "",
	"remote.update_url":   "",
	"remote.delete_url":   "",
	"remote.key":          "",
	"remote.timeout":      "30s",

	"sync.interval":    "10m",
	"sync.switch_file": "configuraciones_varias.json",
	"sync.watch":       true,

	"log.file":         "logs/pesaje.log",
	"log.max_size_mb":  10,
	"log.max_backups":  5,
	"log.max_age_days": 30,
	"log.compress":     true,
}

// NewViper returns a viper instance with defaults and environment bindings
// in place. Callers may bind command-line flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. path selects an explicit file; when empty,
// pesaje.yaml is searched in . and ./configs and its absence is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	if v == nil {
		v = NewViper()
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pesaje")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path cannot be empty")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval)
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive, got %s", c.Remote.Timeout)
	}
	if _, err := sitetime.New(c.Site.Zone); err != nil {
		return fmt.Errorf("invalid site.zone: %w", err)
	}
	return nil
}

// YAML renders the configuration with the remote key masked.
func (c *Config) YAML() ([]byte, error) {
	masked := *c
	if masked.Remote.Key != "" {
		masked.Remote.Key = "********"
	}
	out, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return out, nil
}
