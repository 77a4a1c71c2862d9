package notifier

import (
	"context"
	"time"
)

// Notification is one message to show.
type Notification struct {
	// ID identifies the notification so it can be replaced or cleared.
	ID      string
	Title   string
	Message string
	// Icon is a file path or a freedesktop icon name.
	Icon string
	// URL is opened by sinks that support link buttons.
	URL string
}

// Sink delivers notifications to one destination.
type Sink interface {
	Name() string
	Show(ctx context.Context, n Notification) error
	Clear(ctx context.Context, id string) error
}

// Config controls the service.
type Config struct {
	// RatePerSec caps how many notifications go out per second (burst 1).
	// 0 means unlimited.
	RatePerSec float64
	// HistorySize bounds History; 0 uses a default.
	HistorySize int
}

type HistoryItem struct {
	At    time.Time
	ID    string
	Title string
	Error string
}
