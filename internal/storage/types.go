package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file": JSON snapshot file, rewritten atomically on every change
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// State is the cached review state. An absent count reads as 0 and an absent
// next review as the zero time.
type State struct {
	ReviewsAvailable int
	NextReview       time.Time
}

// AlarmRecord is a persisted alarm. Period == 0 means one-shot.
// Generation changes every time the alarm is (re)created so a running timer
// can tell whether it is still current.
type AlarmRecord struct {
	Name        string
	ScheduledAt time.Time
	Period      time.Duration
	Generation  int64
}

// NotificationRecord maps one of our notifications to the id the desktop
// notification server gave it. Kept in shared storage so the daemon can
// handle clicks on a notification a CLI process showed before exiting.
type NotificationRecord struct {
	ID       string
	ServerID uint32
	ShownAt  time.Time
}

// Store is the persistence API used by the poller, options controller and alarms.
type Store interface {
	Load(ctx context.Context) (State, error)
	// Save writes both fields in one update.
	Save(ctx context.Context, st State) error
	SetReviewCount(ctx context.Context, n int) error
	SetNextReview(ctx context.Context, at time.Time) error
	// Clear drops the cached review state. Alarms are kept.
	Clear(ctx context.Context) error

	PutAlarm(ctx context.Context, a AlarmRecord) error
	// GetAlarm returns ErrNotFound if no alarm has that name.
	GetAlarm(ctx context.Context, name string) (AlarmRecord, error)
	DeleteAlarm(ctx context.Context, name string) error
	ListAlarms(ctx context.Context) ([]AlarmRecord, error)

	// PutNotification replaces the record for n.ID.
	PutNotification(ctx context.Context, n NotificationRecord) error
	// GetNotification and NotificationByServerID return ErrNotFound when
	// nothing matches.
	GetNotification(ctx context.Context, id string) (NotificationRecord, error)
	NotificationByServerID(ctx context.Context, serverID uint32) (NotificationRecord, error)
	DeleteNotification(ctx context.Context, id string) error

	Close() error
}
