// Package config loads framework settings from an optional yaml file,
// MODDATA_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/goatkit/moddata/internal/plugin/version"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "MODDATA"

// Keys understood by the loader.
const (
	KeySaveDir          = "save_dir"
	KeyPluginDir        = "plugin_dir"
	KeyFrameworkVersion = "framework_version"
	KeyDebug            = "debug"
	KeyWatchPlugins     = "watch_plugins"
	KeyLogFormat        = "log_format"
	KeyAutosaveSchedule = "autosave_schedule"
)

// Config is the resolved framework configuration.
type Config struct {
	SaveDir          string `mapstructure:"save_dir"`
	PluginDir        string `mapstructure:"plugin_dir"`
	FrameworkVersion string `mapstructure:"framework_version"`
	Debug            bool   `mapstructure:"debug"`
	WatchPlugins     bool   `mapstructure:"watch_plugins"`
	LogFormat        string `mapstructure:"log_format"`
	AutosaveSchedule string `mapstructure:"autosave_schedule"`
}

// DefaultSaveDir is the save directory used when none is configured.
func DefaultSaveDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		base = "."
	}
	return filepath.Join(base, "moddata")
}

// New returns a viper instance with defaults and environment binding set up.
// Callers may bind flags to it before passing it to Resolve.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeySaveDir, DefaultSaveDir())
	v.SetDefault(KeyPluginDir, "plugins")
	v.SetDefault(KeyFrameworkVersion, "1.0.0")
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyWatchPlugins, false)
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyAutosaveSchedule, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, if given, and resolves the configuration.
func Load(path string) (*Config, error) {
	v := New()
	if err := ReadFile(v, path); err != nil {
		return nil, err
	}
	return Resolve(v)
}

// ReadFile merges a yaml file into v. An empty path is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Resolve decodes v and validates the result.
func Resolve(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SaveDir) == "" {
		return errors.New("config: save_dir must not be empty")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	if _, err := version.Major(c.FrameworkVersion); err != nil {
		return fmt.Errorf("config: framework_version: %w", err)
	}
	return nil
}
