package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"snaphound/internal/eventbus"
	"snaphound/internal/logging"
)

// Environment variables that override the config file
const (
	EnvHost     = "SNAPHOUND_HOST"
	EnvLogLevel = "LOG_LEVEL"
)

// Config represents the client configuration
type Config struct {
	Version int            `toml:"version"`
	Host    HostSettings   `toml:"host"`
	Search  SearchSettings `toml:"search"`
	View    ViewSettings   `toml:"view"`
	Retry   RetrySettings  `toml:"retry"`
	Logging LogSettings    `toml:"logging"`
	Metrics MetricSettings `toml:"metrics"`
}

// HostSettings locates the indexing host
type HostSettings struct {
	URL       string `toml:"url"`
	TimeoutMs int    `toml:"timeout_ms"`
}

// SearchSettings tunes the query debounce
type SearchSettings struct {
	DebounceMs       int  `toml:"debounce_ms"`
	MinQueryLength   int  `toml:"min_query_length"`
	CancelSuperseded bool `toml:"cancel_superseded"`
}

// ViewSettings tunes the media grid
type ViewSettings struct {
	VisibilityThreshold float64 `toml:"visibility_threshold"`
	ReloadDelayMs       int     `toml:"reload_delay_ms"`
}

// RetrySettings bounds retries of host calls
type RetrySettings struct {
	MaxAttempts       int `toml:"max_attempts"`
	InitialIntervalMs int `toml:"initial_interval_ms"`
	MaxIntervalMs     int `toml:"max_interval_ms"`
}

// LogSettings configures the log file
type LogSettings struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// MetricSettings configures the Prometheus endpoint
type MetricSettings struct {
	Listen string `toml:"listen"` // empty disables the endpoint
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Timeout returns the per-request host timeout
func (h HostSettings) Timeout() time.Duration { return ms(h.TimeoutMs) }

// Debounce returns the quiet interval before a query is dispatched
func (s SearchSettings) Debounce() time.Duration { return ms(s.DebounceMs) }

// ReloadDelay returns the wait between a host reset and the reload
func (v ViewSettings) ReloadDelay() time.Duration { return ms(v.ReloadDelayMs) }

func (r RetrySettings) InitialInterval() time.Duration { return ms(r.InitialIntervalMs) }
func (r RetrySettings) MaxInterval() time.Duration { return ms(r.MaxIntervalMs) }

// ConfigService handles configuration management
type ConfigService interface {
	Load() (*Config, error)
	Save(config *Config) error
	LoadFromPath(path string) (*Config, error)
	SaveToPath(config *Config, path string) error
	EnsureFile() (bool, error)
	Path() string
}

// configService is the concrete implementation
type configService struct {
	bus      eventbus.EventBus
	filePath string
}

// DefaultPath returns the config file location under the user config dir
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		// Fallback to home directory
		configDir, err = os.UserHomeDir()
		if err != nil {
			configDir = "."
		}
		configDir = filepath.Join(configDir, ".config")
	}
	return filepath.Join(configDir, "snaphound", "config.toml")
}

// NewConfigService creates a config service for the default location
func NewConfigService() ConfigService {
	return &configService{filePath: DefaultPath()}
}

// NewConfigServiceWithBus creates a config service with event bus support.
// An empty path selects the default location.
func NewConfigServiceWithBus(bus eventbus.EventBus, path string) ConfigService {
	if path == "" {
		path = DefaultPath()
	}
	return &configService{bus: bus, filePath: path}
}

// Path returns the file Load and Save use
func (cs *configService) Path() string {
	return cs.filePath
}

// Load loads the configuration from file, falling back to defaults when the
// file does not exist. Environment overrides are applied last.
func (cs *configService) Load() (*Config, error) {
	var cfg *Config
	loadedFrom := ""

	if _, err := os.Stat(cs.filePath); os.IsNotExist(err) {
		logging.Debug("Config: %s not found, using defaults", cs.filePath)
		cfg = DefaultConfig()
	} else {
		loaded, err := cs.LoadFromPath(cs.filePath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		loadedFrom = cs.filePath
	}

	ApplyEnv(cfg)

	// Publish ConfigLoaded event if bus is available
	if cs.bus != nil {
		cs.bus.Publish(eventbus.ConfigLoadedEvent{File: loadedFrom})
	}

	return cfg, nil
}

// Save saves the configuration to file
func (cs *configService) Save(config *Config) error {
	if err := cs.SaveToPath(config, cs.filePath); err != nil {
		return err
	}

	// Publish ConfigSaved event if bus is available
	if cs.bus != nil {
		cs.bus.Publish(eventbus.ConfigSavedEvent{File: cs.filePath})
	}

	return nil
}

// EnsureFile writes the default configuration when no file exists yet, so
// users have a file to edit. It reports whether a file was created.
func (cs *configService) EnsureFile() (bool, error) {
	if _, err := os.Stat(cs.filePath); err == nil || !os.IsNotExist(err) {
		return false, err
	}
	if err := cs.Save(DefaultConfig()); err != nil {
		return false, err
	}
	logging.Debug("Config: wrote defaults to %s", cs.filePath)
	return true, nil
}

// LoadFromPath loads configuration from a specific path. Keys missing from
// the file keep their default values.
func (cs *configService) LoadFromPath(path string) (*Config, error) {
	// Check if config file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()

	return cfg, nil
}

// SaveToPath saves configuration to a specific path
func (cs *configService) SaveToPath(config *Config, path string) error {
	// Ensure config directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides file settings from the environment
func ApplyEnv(cfg *Config) {
	if host := strings.TrimSpace(os.Getenv(EnvHost)); host != "" {
		cfg.Host.URL = host
	}
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		cfg.Logging.Level = level
	}
}

// normalize replaces out-of-range values with defaults
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Host.URL == "" {
		c.Host.URL = def.Host.URL
	}
	if c.Host.TimeoutMs <= 0 {
		c.Host.TimeoutMs = def.Host.TimeoutMs
	}
	if c.Search.DebounceMs <= 0 {
		c.Search.DebounceMs = def.Search.DebounceMs
	}
	if c.Search.MinQueryLength <= 0 {
		c.Search.MinQueryLength = def.Search.MinQueryLength
	}
	if c.View.VisibilityThreshold <= 0 || c.View.VisibilityThreshold > 1 {
		c.View.VisibilityThreshold = def.View.VisibilityThreshold
	}
	if c.View.ReloadDelayMs <= 0 {
		c.View.ReloadDelayMs = def.View.ReloadDelayMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if c.Retry.InitialIntervalMs <= 0 {
		c.Retry.InitialIntervalMs = def.Retry.InitialIntervalMs
	}
	if c.Retry.MaxIntervalMs <= 0 {
		c.Retry.MaxIntervalMs = def.Retry.MaxIntervalMs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.File == "" {
		c.Logging.File = def.Logging.File
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Host: HostSettings{
			URL:       "http://127.0.0.1:1420",
			TimeoutMs: 30000,
		},
		Search: SearchSettings{
			DebounceMs:       500,
			MinQueryLength:   3,
			CancelSuperseded: true,
		},
		View: ViewSettings{
			VisibilityThreshold: 0.1,
			ReloadDelayMs:       1000,
		},
		Retry: RetrySettings{
			MaxAttempts:       3,
			InitialIntervalMs: 200,
			MaxIntervalMs:     2000,
		},
		Logging: LogSettings{
			Level:      "info",
			File:       "snaphound.log",
			MaxSizeMB:  16,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}
