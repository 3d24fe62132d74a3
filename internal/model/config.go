package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Platform values. Background execution only exists on PlatformTerminal.
const (
	PlatformTerminal = "terminal"
	PlatformWeb      = "web"
)

// APIConfig holds the backend connection settings.
type APIConfig struct {
	// BaseURL is the root URL of the backend, shared by REST and hubs.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds every REST request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// HubConfig holds the realtime connection policy.
type HubConfig struct {
	// RetryDelaysMs is the reconnect schedule; the last entry repeats.
	RetryDelaysMs []int `mapstructure:"retry_delays_ms" yaml:"retry_delays_ms"`

	// MaxRetries is the number of attempts after a drop before giving up.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	KeepAliveSec     int `mapstructure:"keep_alive_sec" yaml:"keep_alive_sec"`
	ServerTimeoutSec int `mapstructure:"server_timeout_sec" yaml:"server_timeout_sec"`
}

// SyncConfig holds polling settings.
type SyncConfig struct {
	// PollIntervalSec is the foreground fallback poll.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// BackgroundIntervalSec is how often the background task runs.
	BackgroundIntervalSec int `mapstructure:"background_interval_sec" yaml:"background_interval_sec"`

	// TypingDebounceMs delays the automatic "typing stopped" signal.
	TypingDebounceMs int `mapstructure:"typing_debounce_ms" yaml:"typing_debounce_ms"`
}

// StorageConfig holds local file locations.
type StorageConfig struct {
	CachePath string `mapstructure:"cache_path" yaml:"cache_path"`
	LogPath   string `mapstructure:"log_path" yaml:"log_path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API      APIConfig     `mapstructure:"api" yaml:"api"`
	Hub      HubConfig     `mapstructure:"hub" yaml:"hub"`
	Sync     SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Storage  StorageConfig `mapstructure:"storage" yaml:"storage"`
	Platform string        `mapstructure:"platform" yaml:"platform"`
}

// RequestTimeout returns the REST timeout as a duration.
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// RetryDelays returns the reconnect schedule as durations.
func (c *AppConfig) RetryDelays() []time.Duration {
	delays := make([]time.Duration, 0, len(c.Hub.RetryDelaysMs))
	for _, ms := range c.Hub.RetryDelaysMs {
		delays = append(delays, time.Duration(ms)*time.Millisecond)
	}
	return delays
}

// PollInterval returns the foreground poll interval.
func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalSec) * time.Second
}

// BackgroundInterval returns the background task interval.
func (c *AppConfig) BackgroundInterval() time.Duration {
	return time.Duration(c.Sync.BackgroundIntervalSec) * time.Second
}

// TypingDebounce returns the typing auto-stop delay.
func (c *AppConfig) TypingDebounce() time.Duration {
	return time.Duration(c.Sync.TypingDebounceMs) * time.Millisecond
}

// ConfigDir returns ~/.config/brancard, or the working directory when the
// home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "brancard")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/brancard/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	dir := ConfigDir()
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:5000",
			TimeoutSec: 10,
		},
		Hub: HubConfig{
			RetryDelaysMs:    []int{0, 2000, 5000, 10000, 30000},
			MaxRetries:       5,
			KeepAliveSec:     15,
			ServerTimeoutSec: 30,
		},
		Sync: SyncConfig{
			PollIntervalSec:       600,
			BackgroundIntervalSec: 900,
			TypingDebounceMs:      2000,
		},
		Storage: StorageConfig{
			CachePath: filepath.Join(dir, "cache.db"),
			LogPath:   filepath.Join(dir, "brancard.log"),
		},
		Platform: PlatformTerminal,
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
// Environment variables prefixed with BRANCARD_ override file values
// (e.g. BRANCARD_API_BASE_URL).
func LoadConfig(path string) (*AppConfig, error) {
	defaults := DefaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("brancard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("api.base_url", defaults.API.BaseURL)
	v.SetDefault("api.timeout_sec", defaults.API.TimeoutSec)
	v.SetDefault("hub.retry_delays_ms", defaults.Hub.RetryDelaysMs)
	v.SetDefault("hub.max_retries", defaults.Hub.MaxRetries)
	v.SetDefault("hub.keep_alive_sec", defaults.Hub.KeepAliveSec)
	v.SetDefault("hub.server_timeout_sec", defaults.Hub.ServerTimeoutSec)
	v.SetDefault("sync.poll_interval_sec", defaults.Sync.PollIntervalSec)
	v.SetDefault("sync.background_interval_sec", defaults.Sync.BackgroundIntervalSec)
	v.SetDefault("sync.typing_debounce_ms", defaults.Sync.TypingDebounceMs)
	v.SetDefault("storage.cache_path", defaults.Storage.CachePath)
	v.SetDefault("storage.log_path", defaults.Storage.LogPath)
	v.SetDefault("platform", defaults.Platform)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if _, ok := err.(*os.PathError); !ok && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects settings the clients cannot run with.
func (c *AppConfig) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must be set")
	}
	if c.API.TimeoutSec <= 0 {
		return fmt.Errorf("api.timeout_sec must be positive")
	}
	if c.Hub.MaxRetries < 0 {
		return fmt.Errorf("hub.max_retries must not be negative")
	}
	for _, ms := range c.Hub.RetryDelaysMs {
		if ms < 0 {
			return fmt.Errorf("hub.retry_delays_ms must not contain negative delays")
		}
	}
	if c.Platform != PlatformTerminal && c.Platform != PlatformWeb {
		return fmt.Errorf("platform must be %q or %q", PlatformTerminal, PlatformWeb)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("hub", cfg.Hub)
	v.Set("sync", cfg.Sync)
	v.Set("storage", cfg.Storage)
	v.Set("platform", cfg.Platform)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
