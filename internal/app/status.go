package app

import (
	"context"
	"errors"
	"time"

	"reviewbadge/internal/alarm"
	"reviewbadge/internal/badge"
	"reviewbadge/internal/notifier"
	"reviewbadge/internal/runtime/supervisor"
	"reviewbadge/internal/settings"
	"reviewbadge/pkg/systemdmanager"
)

// Status is a read-only snapshot for the status command.
type Status struct {
	Badge            string
	ReviewsAvailable int
	NextReview       time.Time
	Alarm            *alarm.Alarm
	APIKeySet        bool
	Notifications    settings.Notifications
	Unit             *systemdmanager.UnitStatus
	UnitErr          error
}

// Status gathers what the daemon last recorded. It reads the badge file, so
// it reflects the daemon's badge rather than this process's.
func (a *App) Status(ctx context.Context) (Status, error) {
	var st Status

	text, err := badge.Read(a.Config.Badge.Path)
	if err != nil {
		return st, err
	}
	st.Badge = text

	local, err := a.Local.Load(ctx)
	if err != nil {
		return st, err
	}
	st.ReviewsAvailable = local.ReviewsAvailable
	st.NextReview = local.NextReview

	al, err := a.Alarms.Get(ctx, a.Config.Poller.AlarmName)
	switch {
	case err == nil:
		st.Alarm = &al
	case !errors.Is(err, alarm.ErrNotFound):
		return st, err
	}

	v, err := a.Settings.Get(ctx)
	if err != nil {
		return st, err
	}
	st.APIKeySet = v.APIKey != ""
	st.Notifications = v.Notifications
	if st.Notifications == "" {
		st.Notifications = settings.NotificationsOff
	}

	st.Unit, st.UnitErr = systemdmanager.UserUnitStatus(ctx, UnitName)
	return st, nil
}

// Health is served by the debug endpoint while the daemon runs.
type Health struct {
	Status        string
	Badge         string
	Alarm         *alarm.Alarm `json:",omitempty"`
	Loops         []supervisor.Stats
	Notifications []notifier.HistoryItem
}

func (a *App) health(ctx context.Context, sup *supervisor.Supervisor) Health {
	h := Health{
		Status:        "ok",
		Badge:         a.Badge.Text(),
		Loops:         sup.Snapshot(),
		Notifications: a.Notifier.History(),
	}
	if al, err := a.Alarms.Get(ctx, a.Config.Poller.AlarmName); err == nil {
		h.Alarm = &al
	}
	for _, st := range h.Loops {
		if !st.Running && st.LastErr != "" {
			h.Status = "degraded"
		}
	}
	return h
}
