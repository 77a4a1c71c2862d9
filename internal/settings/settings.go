// Package settings is the synced key-value storage: the user's API key and
// notification preference, kept in one small YAML (or JSON) file.
//
// The file is meant to be shareable (dotfiles repo, synced folder), so it holds
// nothing machine-specific. Every change, made by this process or noticed by
// Watch, is published on the event bus as one Change per key.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"reviewbadge/internal/config"
	"reviewbadge/internal/eventbus"
	logx "reviewbadge/pkg/logx"
)

// Keys as they appear in the file and in Change events.
const (
	KeyAPIKey        = "api_key"
	KeyNotifications = "notifications"
)

// ErrNoAPIKey is returned by operations that need a configured key.
var ErrNoAPIKey = errors.New("settings: no api key configured")

// Notifications is the desktop notification preference.
type Notifications string

const (
	NotificationsOn  Notifications = "on"
	NotificationsOff Notifications = "off"
)

// Values is the whole synced document. Empty fields are absent.
type Values struct {
	APIKey        string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Notifications Notifications `json:"notifications,omitempty" yaml:"notifications,omitempty"`
}

// document is the file layout. KeyRev moves on every api key write, so a
// watcher that only sees the end state of a remove-then-set still notices it.
type document struct {
	Values `yaml:",inline"`
	KeyRev uint64 `json:"key_rev,omitempty" yaml:"key_rev,omitempty"`
}

// Change describes one key's transition. Old/New are "" when absent.
type Change struct {
	Key string
	Old string
	New string
}

// Store reads and writes the settings file.
type Store struct {
	path string
	bus  eventbus.Bus
	log  logx.Logger

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex

	// last is the most recent content this process has seen, used to turn
	// file events into per-key changes.
	lastMu sync.Mutex
	last   document
	seeded bool
}

func New(path string, bus eventbus.Bus, log logx.Logger) *Store {
	if bus == nil {
		bus = eventbus.Nop()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{path: path, bus: bus, log: log}
}

func (s *Store) Path() string { return s.path }

// Exists reports whether the settings file has been created yet.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Get returns the current values. A missing file yields zero Values.
func (s *Store) Get(ctx context.Context) (Values, error) {
	_ = ctx
	d, err := s.read()
	if err != nil {
		return Values{}, err
	}
	s.remember(d)
	return d.Values, nil
}

// APIKey returns the stored key, or "" when unconfigured.
func (s *Store) APIKey(ctx context.Context) (string, error) {
	v, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return v.APIKey, nil
}

// Update applies fn to the current values, writes the file atomically and
// publishes the resulting changes.
func (s *Store) Update(ctx context.Context, fn func(v *Values)) error {
	return s.update(ctx, false, fn)
}

// SetAPIKey stores key. Other processes watching the file see an api_key
// change even when key equals the stored one.
func (s *Store) SetAPIKey(ctx context.Context, key string) error {
	return s.update(ctx, true, func(v *Values) { v.APIKey = key })
}

func (s *Store) RemoveAPIKey(ctx context.Context) error {
	return s.update(ctx, true, func(v *Values) { v.APIKey = "" })
}

func (s *Store) update(ctx context.Context, keyWrite bool, fn func(v *Values)) error {
	_ = ctx
	s.mu.Lock()
	old, err := s.read()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	next := old
	fn(&next.Values)
	next.APIKey = strings.TrimSpace(next.APIKey)
	if keyWrite {
		next.KeyRev++
	}
	if err := s.write(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.lastMu.Lock()
	s.last, s.seeded = next, true
	s.lastMu.Unlock()

	// This process already knows what it wrote; only value changes matter here.
	s.publish(Diff(old.Values, next.Values))
	return nil
}

func (s *Store) SetNotifications(ctx context.Context, n Notifications) error {
	if err := n.Validate(); err != nil {
		return err
	}
	return s.Update(ctx, func(v *Values) { v.Notifications = n })
}

// Validate accepts "on" and "off".
func (n Notifications) Validate() error {
	switch n {
	case NotificationsOn, NotificationsOff:
		return nil
	default:
		return fmt.Errorf("notifications must be %q or %q, got %q", NotificationsOn, NotificationsOff, string(n))
	}
}

// Enabled is true only for an explicit "on"; unset means off.
func (n Notifications) Enabled() bool { return n == NotificationsOn }

func (s *Store) read() (document, error) {
	var d document
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return d, fmt.Errorf("read settings: %w", err)
	}
	if err := config.Decode(s.path, b, &d, false); err != nil {
		return document{}, fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	d.APIKey = strings.TrimSpace(d.APIKey)
	return d, nil
}

func (s *Store) write(d document) error {
	b, err := config.Encode(s.path, d)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := mkdirAll(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	// CreateTemp makes the file 0600; the api key is a secret.
	f, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	tmp := f.Name()
	_, err = f.Write(b)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, s.path)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func (s *Store) remember(d document) {
	s.lastMu.Lock()
	if !s.seeded {
		s.last, s.seeded = d, true
	}
	s.lastMu.Unlock()
}

func (s *Store) publish(changes []Change) {
	for _, c := range changes {
		s.log.Debug("settings changed", logx.String("key", c.Key), logx.Bool("set", c.New != ""))
		s.bus.Publish(eventbus.Event{Topic: eventbus.TopicSettingsChanged, Data: c})
	}
}

// Diff lists the keys whose values differ between a and b.
func Diff(a, b Values) []Change {
	var out []Change
	if a.APIKey != b.APIKey {
		out = append(out, Change{Key: KeyAPIKey, Old: a.APIKey, New: b.APIKey})
	}
	if a.Notifications != b.Notifications {
		out = append(out, Change{Key: KeyNotifications, Old: string(a.Notifications), New: string(b.Notifications)})
	}
	return out
}

// diffDocuments is Diff plus an api_key change when only the key revision
// moved: the key was rewritten, possibly after a removal this process missed.
func diffDocuments(a, b document) []Change {
	changes := Diff(a.Values, b.Values)
	if a.KeyRev != b.KeyRev && a.APIKey == b.APIKey {
		changes = append([]Change{{Key: KeyAPIKey, Old: a.APIKey, New: b.APIKey}}, changes...)
	}
	return changes
}

func mkdirAll(dir string) error { return os.MkdirAll(dir, 0o700) }
