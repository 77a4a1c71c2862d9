package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	logx "reviewbadge/pkg/logx"
)

// fileStore is a dependency-free persistence backend: one JSON document,
// re-read before and rewritten (temp file + rename) after every change so
// the daemon and the CLI see each other's writes.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

type fileDoc struct {
	Local  fileLocal            `json:"local"`
	Alarms map[string]fileAlarm `json:"alarms,omitempty"`
	// Notifications maps our notification id to the server's.
	Notifications map[string]fileNotification `json:"notifications,omitempty"`
}

type fileNotification struct {
	ServerID uint32 `json:"server_id"`
	ShownAt  int64  `json:"shown_at"` // unix milli
}

type fileLocal struct {
	ReviewsAvailable *int       `json:"reviews_available,omitempty"`
	NextReview       *time.Time `json:"next_review,omitempty"`
}

type fileAlarm struct {
	ScheduledAt int64 `json:"scheduled_at"` // unix milli
	PeriodMS    int64 `json:"period_ms,omitempty"`
	Generation  int64 `json:"generation"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &fileStore{log: log, path: path}
	// Fail early on an unreadable document.
	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) read() (fileDoc, error) {
	var d fileDoc
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return d, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(b, &d); err != nil {
		return d, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return d, nil
}

func (s *fileStore) write(d fileDoc) error {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	// The daemon and the CLI may write at the same time; each gets its own temp file.
	f, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.path)
}

// update runs fn on the current document and persists the result.
func (s *fileStore) update(fn func(d *fileDoc)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.read()
	if err != nil {
		return err
	}
	fn(&d)
	return s.write(d)
}

func (s *fileStore) Load(ctx context.Context) (State, error) {
	_ = ctx
	s.mu.Lock()
	d, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return State{}, fmt.Errorf("load local state: %w", err)
	}
	var st State
	if d.Local.ReviewsAvailable != nil {
		st.ReviewsAvailable = *d.Local.ReviewsAvailable
	}
	if d.Local.NextReview != nil {
		st.NextReview = *d.Local.NextReview
	}
	return st, nil
}

func (s *fileStore) Save(ctx context.Context, st State) error {
	_ = ctx
	n, at := st.ReviewsAvailable, st.NextReview.UTC()
	return s.update(func(d *fileDoc) {
		d.Local.ReviewsAvailable = &n
		d.Local.NextReview = &at
	})
}

func (s *fileStore) SetReviewCount(ctx context.Context, n int) error {
	_ = ctx
	return s.update(func(d *fileDoc) { d.Local.ReviewsAvailable = &n })
}

func (s *fileStore) SetNextReview(ctx context.Context, at time.Time) error {
	_ = ctx
	at = at.UTC()
	return s.update(func(d *fileDoc) { d.Local.NextReview = &at })
}

func (s *fileStore) Clear(ctx context.Context) error {
	_ = ctx
	return s.update(func(d *fileDoc) { d.Local = fileLocal{} })
}

func (s *fileStore) PutAlarm(ctx context.Context, a AlarmRecord) error {
	_ = ctx
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("alarm name required")
	}
	return s.update(func(d *fileDoc) {
		if d.Alarms == nil {
			d.Alarms = map[string]fileAlarm{}
		}
		d.Alarms[a.Name] = fileAlarm{
			ScheduledAt: a.ScheduledAt.UnixMilli(),
			PeriodMS:    a.Period.Milliseconds(),
			Generation:  a.Generation,
		}
	})
}

func (s *fileStore) GetAlarm(ctx context.Context, name string) (AlarmRecord, error) {
	_ = ctx
	s.mu.Lock()
	d, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return AlarmRecord{}, fmt.Errorf("get alarm %q: %w", name, err)
	}
	fa, ok := d.Alarms[name]
	if !ok {
		return AlarmRecord{}, fmt.Errorf("alarm %q: %w", name, ErrNotFound)
	}
	return fa.record(name), nil
}

func (s *fileStore) DeleteAlarm(ctx context.Context, name string) error {
	_ = ctx
	return s.update(func(d *fileDoc) { delete(d.Alarms, name) })
}

func (s *fileStore) ListAlarms(ctx context.Context) ([]AlarmRecord, error) {
	_ = ctx
	s.mu.Lock()
	d, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}
	out := make([]AlarmRecord, 0, len(d.Alarms))
	for name, fa := range d.Alarms {
		out = append(out, fa.record(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fileStore) PutNotification(ctx context.Context, n NotificationRecord) error {
	_ = ctx
	if strings.TrimSpace(n.ID) == "" {
		return errors.New("notification id required")
	}
	return s.update(func(d *fileDoc) {
		if d.Notifications == nil {
			d.Notifications = map[string]fileNotification{}
		}
		d.Notifications[n.ID] = fileNotification{ServerID: n.ServerID, ShownAt: n.ShownAt.UnixMilli()}
	})
}

func (s *fileStore) GetNotification(ctx context.Context, id string) (NotificationRecord, error) {
	_ = ctx
	s.mu.Lock()
	d, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return NotificationRecord{}, fmt.Errorf("get notification %q: %w", id, err)
	}
	fn, ok := d.Notifications[id]
	if !ok {
		return NotificationRecord{}, fmt.Errorf("notification %q: %w", id, ErrNotFound)
	}
	return fn.record(id), nil
}

func (s *fileStore) NotificationByServerID(ctx context.Context, serverID uint32) (NotificationRecord, error) {
	_ = ctx
	s.mu.Lock()
	d, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return NotificationRecord{}, fmt.Errorf("get notification server id %d: %w", serverID, err)
	}
	var (
		best  NotificationRecord
		found bool
	)
	for id, fn := range d.Notifications {
		if fn.ServerID != serverID {
			continue
		}
		if rec := fn.record(id); !found || rec.ShownAt.After(best.ShownAt) {
			best, found = rec, true
		}
	}
	if !found {
		return NotificationRecord{}, fmt.Errorf("notification server id %d: %w", serverID, ErrNotFound)
	}
	return best, nil
}

func (s *fileStore) DeleteNotification(ctx context.Context, id string) error {
	_ = ctx
	return s.update(func(d *fileDoc) { delete(d.Notifications, id) })
}

func (fn fileNotification) record(id string) NotificationRecord {
	return NotificationRecord{ID: id, ServerID: fn.ServerID, ShownAt: time.UnixMilli(fn.ShownAt)}
}

func (fa fileAlarm) record(name string) AlarmRecord {
	return AlarmRecord{
		Name:        name,
		ScheduledAt: time.UnixMilli(fa.ScheduledAt),
		Period:      time.Duration(fa.PeriodMS) * time.Millisecond,
		Generation:  fa.Generation,
	}
}
