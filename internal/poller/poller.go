// Package poller keeps the review badge current.
//
// It fetches the study queue whenever something may have changed (start,
// the refresh alarm, a new API key, the user asking for it), caches the
// result in the local store, notifies on new reviews and schedules the next
// check: a one-shot alarm at the next review time, or a short repeating alarm
// while reviews are already due.
package poller

import (
	"context"
	"errors"
	"strconv"
	"time"

	"reviewbadge/internal/alarm"
	"reviewbadge/internal/badge"
	"reviewbadge/internal/browser"
	"reviewbadge/internal/eventbus"
	"reviewbadge/internal/notifier"
	"reviewbadge/internal/settings"
	"reviewbadge/internal/storage"
	"reviewbadge/internal/studyqueue"
	logx "reviewbadge/pkg/logx"
)

// NotificationID names the review notification so clicks and clears find it.
const NotificationID = "review"

type Config struct {
	// AlarmName is the single alarm the poller owns.
	AlarmName string
	// RepeatInterval is used while reviews are already due.
	RepeatInterval time.Duration
	// StudyURL is opened on icon and notification clicks.
	StudyURL string

	NotificationTitle   string
	NotificationMessage string
	NotificationIcon    string

	Now func() time.Time
}

type SettingsReader interface {
	Get(ctx context.Context) (settings.Values, error)
}

type LocalStore interface {
	Load(ctx context.Context) (storage.State, error)
	Save(ctx context.Context, st storage.State) error
	SetReviewCount(ctx context.Context, n int) error
	SetNextReview(ctx context.Context, at time.Time) error
}

type StudyQueueAPI interface {
	StudyQueue(ctx context.Context, apiKey string) (*studyqueue.StudyQueue, error)
}

type Alarms interface {
	Create(ctx context.Context, name string, info alarm.Info) (alarm.Alarm, error)
}

type Badge interface {
	SetText(text string) error
}

type Notifier interface {
	Show(ctx context.Context, n notifier.Notification) error
	Clear(ctx context.Context, id string) error
}

// Deps are the collaborators of a Poller. Notifier, Opener and Onboard may be nil.
type Deps struct {
	Settings SettingsReader
	Local    LocalStore
	API      StudyQueueAPI
	Alarms   Alarms
	Badge    Badge
	Notifier Notifier
	Opener   browser.Opener
	// Onboard sends a user without an API key to the options.
	Onboard func(ctx context.Context) error
	Log     logx.Logger
}

type Poller struct {
	cfg Config
	d   Deps
	log logx.Logger
}

func New(cfg Config, d Deps) *Poller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RepeatInterval <= 0 {
		cfg.RepeatInterval = time.Minute
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{cfg: cfg, d: d, log: log.With(logx.String("comp", "poller"))}
}

// FetchReviews runs one poll cycle.
//
// Without an API key the badge shows "!" and settings.ErrNoAPIKey is
// returned. A failed request or unreadable body aborts the cycle without
// touching the badge or the alarm. A body without requested_information is
// ignored.
func (p *Poller) FetchReviews(ctx context.Context) error {
	v, err := p.d.Settings.Get(ctx)
	if err != nil {
		return err
	}
	if v.APIKey == "" {
		p.log.Info("no api key configured")
		p.setBadge(badge.ErrorText)
		return settings.ErrNoAPIKey
	}

	q, err := p.d.API.StudyQueue(ctx, v.APIKey)
	if err != nil {
		p.log.Warn("fetch failed", logx.Bool("transport", errors.Is(err, studyqueue.ErrTransport)), logx.Err(err))
		return err
	}
	ri := q.RequestedInformation
	if ri == nil {
		p.log.Debug("response without requested_information")
		return nil
	}

	n := max(ri.ReviewsAvailable, 0)
	next := ri.NextReviewDate.Time()
	p.log.Info("reviews fetched", logx.Int("reviews", n), logx.Time("next_review", next))

	p.setBadge(strconv.Itoa(n))
	prev, known := p.previousCount(ctx)
	if err := p.d.Local.Save(ctx, storage.State{ReviewsAvailable: n, NextReview: next}); err != nil {
		return err
	}
	if known && n > prev {
		p.notify(ctx)
	}
	return p.schedule(ctx, next)
}

// SetReviewCount shows n on the badge, caches it and notifies if it grew.
func (p *Poller) SetReviewCount(ctx context.Context, n int) error {
	n = max(n, 0)
	p.setBadge(strconv.Itoa(n))

	prev, known := p.previousCount(ctx)
	if err := p.d.Local.SetReviewCount(ctx, n); err != nil {
		return err
	}
	if known && n > prev {
		p.notify(ctx)
	}
	return nil
}

// previousCount is the cached count. When it cannot be read the caller must
// not treat the new count as an increase.
func (p *Poller) previousCount(ctx context.Context) (int, bool) {
	old, err := p.d.Local.Load(ctx)
	if err != nil {
		p.log.Warn("load cached state failed; skipping notification check", logx.Err(err))
		return 0, false
	}
	return old.ReviewsAvailable, true
}

// SetNextReview caches the next review time and schedules the refresh alarm
// around it.
func (p *Poller) SetNextReview(ctx context.Context, epochSeconds int64) error {
	at := time.Unix(epochSeconds, 0)
	if err := p.d.Local.SetNextReview(ctx, at); err != nil {
		return err
	}
	return p.schedule(ctx, at)
}

func (p *Poller) schedule(ctx context.Context, at time.Time) error {
	info := alarm.Info{When: at}
	if !at.After(p.cfg.Now()) {
		info = alarm.Info{Period: p.cfg.RepeatInterval}
	}
	a, err := p.d.Alarms.Create(ctx, p.cfg.AlarmName, info)
	if err != nil {
		return err
	}
	p.log.Debug("next check scheduled", logx.String("alarm", a.String()))
	return nil
}

// ShowNotification shows the review notification if the user turned
// notifications on.
func (p *Poller) ShowNotification(ctx context.Context) error {
	v, err := p.d.Settings.Get(ctx)
	if err != nil {
		return err
	}
	if !v.Notifications.Enabled() || p.d.Notifier == nil {
		return nil
	}
	return p.d.Notifier.Show(ctx, notifier.Notification{
		ID:      NotificationID,
		Title:   p.cfg.NotificationTitle,
		Message: p.cfg.NotificationMessage,
		Icon:    p.cfg.NotificationIcon,
		URL:     p.cfg.StudyURL,
	})
}

func (p *Poller) notify(ctx context.Context) {
	if err := p.ShowNotification(ctx); err != nil {
		p.log.Warn("show notification failed", logx.Err(err))
	}
}

// IconClicked is the user asking to study: without a key they are sent to the
// options; otherwise the study page opens and the count is refreshed.
func (p *Poller) IconClicked(ctx context.Context) error {
	v, err := p.d.Settings.Get(ctx)
	if err != nil {
		return err
	}
	if v.APIKey == "" {
		return p.onboard(ctx)
	}
	openErr := p.open(ctx)
	if err := p.FetchReviews(ctx); err != nil {
		return errors.Join(err, openErr)
	}
	return openErr
}

// NotificationClicked opens the study page and dismisses the notification.
func (p *Poller) NotificationClicked(ctx context.Context, id string) error {
	if id != "" && id != NotificationID {
		return nil
	}
	openErr := p.open(ctx)
	var clearErr error
	if p.d.Notifier != nil {
		clearErr = p.d.Notifier.Clear(ctx, NotificationID)
	}
	return errors.Join(openErr, clearErr)
}

// OnInstalled sends a new user to the options. It does not fetch.
func (p *Poller) OnInstalled(ctx context.Context, firstRun bool) error {
	if !firstRun {
		return nil
	}
	p.log.Info("first run")
	return p.onboard(ctx)
}

func (p *Poller) onboard(ctx context.Context) error {
	if p.d.Onboard == nil {
		return settings.ErrNoAPIKey
	}
	return p.d.Onboard(ctx)
}

func (p *Poller) open(ctx context.Context) error {
	if p.d.Opener == nil || p.cfg.StudyURL == "" {
		return nil
	}
	return p.d.Opener.Open(ctx, p.cfg.StudyURL)
}

func (p *Poller) setBadge(text string) {
	if err := p.d.Badge.SetText(text); err != nil {
		p.log.Warn("set badge failed", logx.Err(err))
	}
}

// Register installs the poller's message handlers on r.
func (p *Poller) Register(r *eventbus.Router) {
	r.Handle(eventbus.MessageShowNotification, func(ctx context.Context, _ eventbus.Message) error {
		return p.ShowNotification(ctx)
	})
	r.Handle(eventbus.MessageSetBadge, func(_ context.Context, msg eventbus.Message) error {
		return p.d.Badge.SetText(msg.Text)
	})
}
