// Package config loads vibesrails settings from ~/.vibesrails/config.toml and
// VIBESRAILS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"vibesrails/internal/paths"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = 1

// EnvPrefix is the prefix for environment overrides, e.g. VIBESRAILS_LOGGING_LEVEL.
const EnvPrefix = "VIBESRAILS"

// Config represents the complete vibesrails configuration
type Config struct {
	Version  int            `json:"version" toml:"version" mapstructure:"version"`
	Database DatabaseConfig `json:"database" toml:"database" mapstructure:"database"`
	Metrics  MetricsConfig  `json:"metrics" toml:"metrics" mapstructure:"metrics"`
	Watcher  WatcherConfig  `json:"watcher" toml:"watcher" mapstructure:"watcher"`
	Logging  LoggingConfig  `json:"logging" toml:"logging" mapstructure:"logging"`
}

// DatabaseConfig locates the shared store.
type DatabaseConfig struct {
	// Path of the SQLite file; empty means ~/.vibesrails/vibesrails.db.
	Path          string `json:"path" toml:"path" mapstructure:"path"`
	BusyTimeoutMs int    `json:"busyTimeoutMs" toml:"busyTimeoutMs" mapstructure:"busyTimeoutMs"`
}

// MetricsConfig bounds the structural metrics walk.
type MetricsConfig struct {
	MaxFiles         int      `json:"maxFiles" toml:"maxFiles" mapstructure:"maxFiles"`
	MaxFileSizeBytes int64    `json:"maxFileSizeBytes" toml:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes"`
	SkipDirs         []string `json:"skipDirs" toml:"skipDirs" mapstructure:"skipDirs"`
}

// WatcherConfig tunes `session watch`.
type WatcherConfig struct {
	DebounceMs     int      `json:"debounceMs" toml:"debounceMs" mapstructure:"debounceMs"`
	IgnorePatterns []string `json:"ignorePatterns" toml:"ignorePatterns" mapstructure:"ignorePatterns"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `json:"level" toml:"level" mapstructure:"level"`
	Format     string `json:"format" toml:"format" mapstructure:"format"`
	File       string `json:"file" toml:"file" mapstructure:"file"`
	MaxSize    string `json:"maxSize" toml:"maxSize" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups" toml:"maxBackups" mapstructure:"maxBackups"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Database: DatabaseConfig{
			BusyTimeoutMs: 5000,
		},
		Metrics: MetricsConfig{
			MaxFiles:         1000,
			MaxFileSizeBytes: 10 * 1024 * 1024,
			SkipDirs: []string{
				"__pycache__", "node_modules", "venv", "env", "build",
				"dist", "vendor", "target", "site-packages",
			},
		},
		Watcher: WatcherConfig{
			DebounceMs:     750,
			IgnorePatterns: []string{"*.log", "*.tmp", "*.swp", "*~"},
		},
		Logging: LoggingConfig{
			Level:      "warn",
			Format:     "human",
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
	}
}

// LoadResult describes where a configuration came from.
type LoadResult struct {
	Config       *Config
	ConfigPath   string
	UsedDefaults bool
}

// LoadConfig loads configuration from path, or from the default location when
// path is empty. A missing file yields the defaults; environment overrides
// apply in both cases.
func LoadConfig(path string) (*Config, error) {
	res, err := LoadConfigWithDetails(path)
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// LoadConfigWithDetails is LoadConfig plus provenance for `config show`.
func LoadConfigWithDetails(path string) (*LoadResult, error) {
	if path == "" {
		p, err := paths.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	res := &LoadResult{ConfigPath: path}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		res.UsedDefaults = true
	} else {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	res.Config = &cfg
	return res, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.busyTimeoutMs", d.Database.BusyTimeoutMs)
	v.SetDefault("metrics.maxFiles", d.Metrics.MaxFiles)
	v.SetDefault("metrics.maxFileSizeBytes", d.Metrics.MaxFileSizeBytes)
	v.SetDefault("metrics.skipDirs", d.Metrics.SkipDirs)
	v.SetDefault("watcher.debounceMs", d.Watcher.DebounceMs)
	v.SetDefault("watcher.ignorePatterns", d.Watcher.IgnorePatterns)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.maxSize", d.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
}

// Save writes the configuration as TOML, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	return f.Close()
}

// ResolveDBPath returns Database.Path or the default store location.
func (c *Config) ResolveDBPath() (string, error) {
	if c.Database.Path != "" {
		return c.Database.Path, nil
	}
	return paths.DefaultDBPath()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: fmt.Sprintf("unsupported config version %d", c.Version)}
	}
	if c.Database.BusyTimeoutMs < 0 {
		return &ConfigError{Field: "database.busyTimeoutMs", Message: "must be >= 0"}
	}
	if c.Metrics.MaxFiles <= 0 {
		return &ConfigError{Field: "metrics.maxFiles", Message: "must be > 0"}
	}
	if c.Metrics.MaxFileSizeBytes <= 0 {
		return &ConfigError{Field: "metrics.maxFileSizeBytes", Message: "must be > 0"}
	}
	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be human or json"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
