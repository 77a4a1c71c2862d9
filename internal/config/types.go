package config

// Config is the daemon/CLI configuration file.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Omitted fields fall back to the defaults filled in by Load.
type Config struct {
	API      APIConfig      `json:"api"`
	Poller   PollerConfig   `json:"poller"`
	Alarm    AlarmConfig    `json:"alarm"`
	Settings SettingsConfig `json:"settings"`
	Storage  StorageConfig  `json:"storage"`
	Badge    BadgeConfig    `json:"badge"`
	Notifier NotifierConfig `json:"notifier"`
	Logging  LoggingConfig  `json:"logging"`
	Debug    DebugConfig    `json:"debug"`
}

// APIConfig points at the review service.
//
// Timeout defaults to "0s" (no timeout): the service's own behavior decides
// when a hung request gives up.
type APIConfig struct {
	BaseURL    string  `json:"base_url"`
	StudyURL   string  `json:"study_url"`
	Timeout    string  `json:"timeout,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
}

type PollerConfig struct {
	AlarmName string `json:"alarm_name,omitempty"`
	// RepeatInterval is how often to re-check while reviews are already due.
	RepeatInterval string `json:"repeat_interval,omitempty"`
}

type AlarmConfig struct {
	// SyncInterval controls how often the daemon reconciles its timers with
	// alarms persisted by other processes (e.g. the options command).
	// Empty means 15s; 0 disables the periodic sync.
	SyncInterval string `json:"sync_interval,omitempty"`
}

// SettingsConfig locates the synced settings file (api key + notification
// preference). Point it into a synced folder to share settings across machines.
type SettingsConfig struct {
	Path string `json:"path"`
}

// StorageConfig controls local (per-machine) state.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "~/.local/share/reviewbadge/local.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type BadgeConfig struct {
	Path string `json:"path"`
}

type NotifierConfig struct {
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Icon       string `json:"icon,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`

	Desktop  DesktopConfig  `json:"desktop"`
	Telegram TelegramConfig `json:"telegram"`
}

// DesktopConfig controls freedesktop notifications. Enabled defaults to true.
type DesktopConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	AppName string `json:"app_name,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"` // do not log
	ChatID  int64  `json:"chat_id,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DebugConfig enables the pprof/health endpoint. Empty Addr means off.
// A non-loopback Addr requires Token.
type DebugConfig struct {
	Addr  string `json:"addr,omitempty"`
	Token string `json:"token,omitempty"` // do not log
}
