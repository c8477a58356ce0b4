package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the TOML config file under the loglens directory.
const FileName = "config.toml"

// Config is the user-facing configuration loaded from config.toml.
// Every field has a working default; a missing file is not an error.
type Config struct {
	// Sessions defines where session logs live
	Sessions SessionsSettings `toml:"sessions"`

	// Cache tunes the client-side message window
	Cache CacheSettings `toml:"cache"`

	// Tail tunes live log following
	Tail TailSettings `toml:"tail"`

	// Server defines the HTTP/WebSocket API settings
	Server ServerSettings `toml:"server"`

	// Logs defines diagnostic log output settings
	Logs LogSettings `toml:"logs"`
}

// SessionsSettings defines where session log files are discovered.
type SessionsSettings struct {
	// Dir is the directory holding <uuid>.jsonl session logs
	// Default: ~/.loglens/sessions
	Dir string `toml:"dir"`
}

// CacheSettings tunes the sliding message window.
type CacheSettings struct {
	// WindowSize is the target number of resident records (default: 200)
	WindowSize int `toml:"window_size"`

	// PreloadThreshold is how many lines beyond the visible range are
	// prefetched in each direction. Zero is a valid setting (no preload),
	// so a pointer distinguishes it from "not set" (default: 50).
	PreloadThreshold *int64 `toml:"preload_threshold"`
}

// GetPreloadThreshold returns the preload threshold, defaulting to 50.
func (c *CacheSettings) GetPreloadThreshold() int64 {
	if c.PreloadThreshold == nil {
		return 50
	}
	if *c.PreloadThreshold < 0 {
		return 0
	}
	return *c.PreloadThreshold
}

// TailSettings tunes live-follow behavior.
type TailSettings struct {
	// PollIntervalMS is the fallback poll interval in milliseconds when
	// filesystem notification is unavailable (default: 200)
	PollIntervalMS int `toml:"poll_interval_ms"`
}

// ServerSettings defines the serve command's listener.
type ServerSettings struct {
	// ListenAddr is the host:port to bind (default: 127.0.0.1:7333)
	ListenAddr string `toml:"listen_addr"`

	// Token, when set, requires Bearer auth on every API request
	Token string `toml:"token"`

	// RateLimitPerSec caps requests per client IP; 0 disables (default: 0)
	RateLimitPerSec float64 `toml:"rate_limit_per_sec"`
}

// LogSettings defines diagnostic log output configuration.
type LogSettings struct {
	// Level: "debug", "info", "warn", "error" (default: "info")
	Level string `toml:"level"`

	// Format: "json" (default) or "text"
	Format string `toml:"format"`

	// MaxSizeMB is the max size of debug.log before rotation (default: 10)
	MaxSizeMB int `toml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep (default: 5)
	MaxBackups int `toml:"max_backups"`

	// MaxAgeDays is the retention for rotated files (default: 10)
	MaxAgeDays int `toml:"max_age_days"`

	// Compress gzips rotated files (default: true)
	Compress *bool `toml:"compress"`
}

// GetCompress returns whether rotated logs are compressed, defaulting to true.
func (l *LogSettings) GetCompress() bool {
	if l.Compress == nil {
		return true
	}
	return *l.Compress
}

// Dir returns the loglens config/data directory, honoring LOGLENS_DIR.
func Dir() (string, error) {
	if dir := os.Getenv("LOGLENS_DIR"); dir != "" {
		return expandTilde(dir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".loglens"), nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Default returns a Config with every default applied.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

// Load reads the config file, applying defaults for anything unset.
// A missing file yields the defaults; a malformed file is an error.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Default(), err
	}
	return LoadFile(path)
}

// LoadFile reads a specific config file.
func LoadFile(path string) (Config, error) {
	var c Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		c.applyDefaults()
		return c, nil
	}
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Default(), fmt.Errorf("%s: parse error: %w", path, err)
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Sessions.Dir == "" {
		if dir, err := Dir(); err == nil {
			c.Sessions.Dir = filepath.Join(dir, "sessions")
		}
	} else {
		c.Sessions.Dir = expandTilde(c.Sessions.Dir)
	}
	if c.Cache.WindowSize <= 0 {
		c.Cache.WindowSize = 200
	}
	if c.Tail.PollIntervalMS <= 0 {
		c.Tail.PollIntervalMS = 200
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1:7333"
	}
	if c.Server.RateLimitPerSec < 0 {
		c.Server.RateLimitPerSec = 0
	}
	switch c.Logs.Level {
	case "debug", "info", "warn", "error":
	default:
		c.Logs.Level = "info"
	}
	switch c.Logs.Format {
	case "json", "text":
	default:
		c.Logs.Format = "json"
	}
	if c.Logs.MaxSizeMB <= 0 {
		c.Logs.MaxSizeMB = 10
	}
	if c.Logs.MaxBackups <= 0 {
		c.Logs.MaxBackups = 5
	}
	if c.Logs.MaxAgeDays <= 0 {
		c.Logs.MaxAgeDays = 10
	}
}

func expandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
