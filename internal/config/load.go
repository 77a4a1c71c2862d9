package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	appName = "reviewbadge"

	DefaultBaseURL        = "https://www.bunpro.jp"
	DefaultStudyURL       = "https://www.bunpro.jp/study"
	DefaultAlarmName      = "refresh"
	DefaultRepeatInterval = time.Minute
	DefaultSyncInterval   = 15 * time.Second

	DefaultNotificationTitle   = "Bunpro"
	DefaultNotificationMessage = "You have new reviews on Bunpro!"
	DefaultNotificationIcon    = "icon_128.png"
)

// Load reads the config file at path. A missing file is not an error: the
// defaults describe a working setup.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := Decode(path, b, cfg, true); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if strings.TrimSpace(c.API.StudyURL) == "" {
		c.API.StudyURL = DefaultStudyURL
	}
	if c.API.RatePerSec <= 0 {
		c.API.RatePerSec = 1
	}
	if c.API.Burst <= 0 {
		c.API.Burst = 3
	}
	if strings.TrimSpace(c.Poller.AlarmName) == "" {
		c.Poller.AlarmName = DefaultAlarmName
	}
	if strings.TrimSpace(c.Settings.Path) == "" {
		c.Settings.Path = filepath.Join(ConfigDir(), "settings.yaml")
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "sqlite"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		name := "local.db"
		if strings.EqualFold(c.Storage.Driver, "file") {
			name = "local.json"
		}
		c.Storage.Path = filepath.Join(DataDir(), name)
	}
	if strings.TrimSpace(c.Badge.Path) == "" {
		c.Badge.Path = filepath.Join(StateDir(), "badge")
	}
	if c.Notifier.Title == "" {
		c.Notifier.Title = DefaultNotificationTitle
	}
	if c.Notifier.Message == "" {
		c.Notifier.Message = DefaultNotificationMessage
	}
	if c.Notifier.Icon == "" {
		c.Notifier.Icon = DefaultNotificationIcon
	}
	if c.Notifier.RatePerSec <= 0 {
		c.Notifier.RatePerSec = 2
	}
	if c.Notifier.Desktop.AppName == "" {
		c.Notifier.Desktop.AppName = appName
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		c.Logging.File.Path = filepath.Join(StateDir(), appName+".log")
	}
	c.Settings.Path = expandHome(c.Settings.Path)
	c.Storage.Path = expandHome(c.Storage.Path)
	c.Badge.Path = expandHome(c.Badge.Path)
	c.Logging.File.Path = expandHome(c.Logging.File.Path)
}

// Validate checks field formats. It expects ApplyDefaults to have run.
func (c *Config) Validate() error {
	var errs []error
	for _, raw := range []struct{ field, value string }{
		{"api.base_url", c.API.BaseURL},
		{"api.study_url", c.API.StudyURL},
	} {
		u, err := url.Parse(raw.value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s: invalid url %q", raw.field, raw.value))
		}
	}
	if _, err := c.APITimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.RepeatInterval(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SyncInterval(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.BusyTimeout(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "sqlite", "sqlite3", "file":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Notifier.Telegram.Enabled {
		if strings.TrimSpace(c.Notifier.Telegram.Token) == "" {
			errs = append(errs, errors.New("notifier.telegram.token is required when telegram is enabled"))
		}
		if c.Notifier.Telegram.ChatID == 0 {
			errs = append(errs, errors.New("notifier.telegram.chat_id is required when telegram is enabled"))
		}
	}
	if addr := strings.TrimSpace(c.Debug.Addr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("debug.addr: %w", err))
		}
	}
	return errors.Join(errs...)
}

// DesktopEnabled reports whether desktop notifications are on (default true).
func (c *Config) DesktopEnabled() bool {
	return c.Notifier.Desktop.Enabled == nil || *c.Notifier.Desktop.Enabled
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ConfigDir is $XDG_CONFIG_HOME/reviewbadge (default ~/.config/reviewbadge).
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir is $XDG_DATA_HOME/reviewbadge (default ~/.local/share/reviewbadge).
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// StateDir is $XDG_STATE_HOME/reviewbadge. On macOS without XDG_STATE_HOME
// it is ~/Library/Logs/reviewbadge.
func StateDir() string {
	if os.Getenv("XDG_STATE_HOME") == "" && runtime.GOOS == "darwin" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Logs", appName)
	}
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func xdgDir(env, fallback string) string {
	base := os.Getenv(env)
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, fallback)
	}
	return filepath.Join(base, appName)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
