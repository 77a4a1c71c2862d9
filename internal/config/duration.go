package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// APITimeout is api.timeout; 0 means none.
func (c *Config) APITimeout() (time.Duration, error) {
	return duration("api.timeout", c.API.Timeout, 0)
}

// RepeatInterval is poller.repeat_interval; it must be positive.
func (c *Config) RepeatInterval() (time.Duration, error) {
	d, err := duration("poller.repeat_interval", c.Poller.RepeatInterval, DefaultRepeatInterval)
	if err == nil && d == 0 {
		return 0, fmt.Errorf("poller.repeat_interval: must be positive")
	}
	return d, err
}

// SyncInterval is alarm.sync_interval; 0 disables the periodic sync.
func (c *Config) SyncInterval() (time.Duration, error) {
	return duration("alarm.sync_interval", c.Alarm.SyncInterval, DefaultSyncInterval)
}

func (c *Config) BusyTimeout() (time.Duration, error) {
	return duration("storage.busy_timeout", c.Storage.BusyTimeout, 5*time.Second)
}

// duration parses a config duration such as "90s" or "1m30s". A bare number
// is seconds. Empty yields def; negative values are rejected.
func duration(field, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	var (
		d   time.Duration
		err error
	)
	if n, perr := strconv.ParseFloat(s, 64); perr == nil {
		d = time.Duration(n * float64(time.Second))
	} else {
		d, err = time.ParseDuration(s)
	}
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q", field, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: must not be negative", field)
	}
	return d, nil
}
