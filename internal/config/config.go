// Package config handles pulsechat configuration loading and
// validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Server connection settings
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Storage settings
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Sync tunables
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// GlobalConfig contains settings shared across commands.
type GlobalConfig struct {
	// DataDir is where pulsechat stores its state (default:
	// ~/.local/share/pulsechat).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default:
	// ~/.config/pulsechat).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// ServerConfig identifies the chat server and the local account.
type ServerConfig struct {
	// BaseURL is the HTTP API root, e.g. https://chat.example.com.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// WebsocketURL is the realtime endpoint. Derived from BaseURL when
	// empty.
	WebsocketURL string `yaml:"websocket_url" mapstructure:"websocket_url"`

	// UserID is the local account's numeric id.
	UserID int64 `yaml:"user_id" mapstructure:"user_id"`

	// AuthToken authenticates HTTP and websocket requests.
	AuthToken string `yaml:"auth_token" mapstructure:"auth_token"`

	// RequestTimeout bounds each HTTP request.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`

	// ReconnectInterval is the delay between websocket redials.
	ReconnectInterval time.Duration `yaml:"reconnect_interval" mapstructure:"reconnect_interval"`
}

// StorageConfig contains local persistence settings.
type StorageConfig struct {
	// Path is the SQLite state file path (default: DataDir/pulsechat.db).
	Path string `yaml:"path" mapstructure:"path"`
}

// SyncConfig contains the sync core's tunables.
type SyncConfig struct {
	// PageSize is how many messages one history page fetches.
	PageSize int `yaml:"page_size" mapstructure:"page_size"`

	// CacheLimit bounds the per-conversation snapshot.
	CacheLimit int `yaml:"cache_limit" mapstructure:"cache_limit"`

	// TypingDebounce is the quiet window after which the typing
	// indicator turns off.
	TypingDebounce time.Duration `yaml:"typing_debounce" mapstructure:"typing_debounce"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "pulsechat"),
			ConfigDir: filepath.Join(homeDir, ".config", "pulsechat"),
		},
		Server: ServerConfig{
			RequestTimeout:    10 * time.Second,
			ReconnectInterval: 2 * time.Second,
		},
		Storage: StorageConfig{
			Path: "", // set to DataDir/pulsechat.db when empty
		},
		Sync: SyncConfig{
			PageSize:       25,
			CacheLimit:     200,
			TypingDebounce: 900 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if _, err := url.Parse(c.Server.BaseURL); err != nil {
		return fmt.Errorf("server.base_url is not a valid URL: %w", err)
	}
	if c.Server.UserID <= 0 {
		return fmt.Errorf("server.user_id is required")
	}
	if c.Sync.PageSize < 1 {
		return fmt.Errorf("sync.page_size must be at least 1")
	}
	if c.Sync.CacheLimit < c.Sync.PageSize {
		return fmt.Errorf("sync.cache_limit must be at least sync.page_size")
	}
	if c.Sync.TypingDebounce < 100*time.Millisecond {
		return fmt.Errorf("sync.typing_debounce must be at least 100ms")
	}
	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// StoragePath returns the full state file path.
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.Global.DataDir, "pulsechat.db")
}

// WebsocketURL returns the realtime endpoint, deriving it from BaseURL
// when not configured explicitly.
func (c *Config) WebsocketURL() string {
	if c.Server.WebsocketURL != "" {
		return c.Server.WebsocketURL
	}

	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String()
}
