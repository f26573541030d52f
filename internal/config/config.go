// Package config loads tl settings from a TOML file and TL_* environment
// variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name used for config and data directories
	AppName = "tl"
	// ConfigFile is the name of the TOML configuration file
	ConfigFile = "config.toml"
	// EnvPrefix prefixes environment overrides, e.g. TL_DATA_DIR.
	EnvPrefix = "TL"
)

// LogConfig controls the rotated diagnostic log.
type LogConfig struct {
	File       string `mapstructure:"file" toml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
	Verbose    bool   `mapstructure:"verbose" toml:"verbose"`
}

// DaemonConfig controls `tl watch`. Durations use Go syntax ("200ms").
type DaemonConfig struct {
	Debounce      string `mapstructure:"debounce" toml:"debounce"`
	SweepInterval string `mapstructure:"sweep_interval" toml:"sweep_interval"`
}

// DashboardConfig controls the live dashboard served by `tl watch`.
type DashboardConfig struct {
	Port int `mapstructure:"port" toml:"port"`
}

// Config is the effective configuration. Relative directories are resolved
// against DataDir by Load.
type Config struct {
	DataDir     string `mapstructure:"data_dir" toml:"data_dir"`
	LogsDir     string `mapstructure:"logs_dir" toml:"logs_dir"`
	ProjectsDir string `mapstructure:"projects_dir" toml:"projects_dir"`
	DBPath      string `mapstructure:"db_path" toml:"db_path"`
	// Timezone is an IANA name or "Local".
	Timezone string `mapstructure:"timezone" toml:"timezone"`

	Log       LogConfig       `mapstructure:"log" toml:"log"`
	Daemon    DaemonConfig    `mapstructure:"daemon" toml:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard" toml:"dashboard"`

	// Path is the config file that was read, or would have been.
	Path string `mapstructure:"-" toml:"-"`
}

// DefaultConfig returns the settings used when no file or environment
// override is present.
func DefaultConfig() Config {
	return Config{
		DataDir:     defaultDataDir(),
		LogsDir:     "logs",
		ProjectsDir: "projects",
		DBPath:      "index.db",
		Timezone:    "Local",
		Log: LogConfig{
			File:       "tl.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Daemon: DaemonConfig{
			Debounce:      "200ms",
			SweepInterval: "5m",
		},
		Dashboard: DashboardConfig{Port: 8787},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/tl/config.toml, falling back to the
// platform config directory.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			return "", fmt.Errorf("failed to locate config directory: %w", err)
		}
	}
	return filepath.Join(dir, AppName, ConfigFile), nil
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", AppName)
	}
	return AppName
}

// Load reads the config file at path (DefaultPath when empty), applies
// TL_* environment overrides and resolves relative paths. A missing file
// is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	def := DefaultConfig()
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("logs_dir", def.LogsDir)
	v.SetDefault("projects_dir", def.ProjectsDir)
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("timezone", def.Timezone)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("log.max_size_mb", def.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", def.Log.MaxBackups)
	v.SetDefault("log.max_age_days", def.Log.MaxAgeDays)
	v.SetDefault("log.verbose", def.Log.Verbose)
	v.SetDefault("daemon.debounce", def.Daemon.Debounce)
	v.SetDefault("daemon.sweep_interval", def.Daemon.SweepInterval)
	v.SetDefault("dashboard.port", def.Dashboard.Port)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	cfg.Path = path
	cfg.resolve()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// resolve expands ~ and makes data paths absolute under DataDir.
func (c *Config) resolve() {
	c.DataDir = expandHome(c.DataDir)
	if abs, err := filepath.Abs(c.DataDir); err == nil {
		c.DataDir = abs
	}
	for _, p := range []*string{&c.LogsDir, &c.ProjectsDir, &c.DBPath, &c.Log.File} {
		*p = expandHome(*p)
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.DataDir, *p)
		}
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Validate checks values that would otherwise fail later.
func (c *Config) Validate() error {
	if c.LogsDir == "" {
		return fmt.Errorf("logs_dir is required")
	}
	// Project files would otherwise be read as log files and vice versa.
	if c.ProjectsDir != "" && filepath.Clean(c.ProjectsDir) == filepath.Clean(c.LogsDir) {
		return fmt.Errorf("projects_dir must differ from logs_dir (%s)", c.LogsDir)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.DebounceInterval(); err != nil {
		return err
	}
	if _, err := c.SweepInterval(); err != nil {
		return err
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port %d is out of range", c.Dashboard.Port)
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return loc, nil
}

// DebounceInterval parses daemon.debounce.
func (c *Config) DebounceInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Daemon.Debounce)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("daemon.debounce %q must be a positive duration", c.Daemon.Debounce)
	}
	return d, nil
}

// SweepInterval parses daemon.sweep_interval. "0" or "" disables sweeps.
func (c *Config) SweepInterval() (time.Duration, error) {
	if c.Daemon.SweepInterval == "" || c.Daemon.SweepInterval == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Daemon.SweepInterval)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("daemon.sweep_interval %q must be a duration", c.Daemon.SweepInterval)
	}
	return d, nil
}

// Encode renders the config as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes cfg to path as TOML. An existing file is only replaced
// when force is set.
func WriteFile(path string, cfg Config, force bool) error {
	data, err := cfg.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("config %s already exists", path)
		}
		return fmt.Errorf("failed to create config: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	return f.Close()
}
