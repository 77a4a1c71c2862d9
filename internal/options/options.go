// Package options saves and restores the user's options: the API key, which
// is checked against the service before it is kept, and the notification
// preference.
package options

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reviewbadge/internal/badge"
	"reviewbadge/internal/eventbus"
	"reviewbadge/internal/settings"
	"reviewbadge/internal/studyqueue"
	logx "reviewbadge/pkg/logx"
)

// Status messages shown after a save.
const (
	MsgInvalidKey  = "Sorry, that API key isn't valid. Please try again!"
	MsgUnreachable = "Sorry, Bunpro couldn't be reached to check that API key. Please try again later."
	MsgSaved       = "Your options have been saved. Thanks!"
	msgSavedUser   = "Your options have been saved. Thanks, %s!"
)

type Settings interface {
	Get(ctx context.Context) (settings.Values, error)
	SetAPIKey(ctx context.Context, key string) error
	RemoveAPIKey(ctx context.Context) error
	SetNotifications(ctx context.Context, n settings.Notifications) error
}

type LocalState interface {
	Clear(ctx context.Context) error
}

type Alarms interface {
	Clear(ctx context.Context, name string) (bool, error)
}

type StudyQueueAPI interface {
	StudyQueue(ctx context.Context, apiKey string) (*studyqueue.StudyQueue, error)
}

// Sender delivers messages to the component that owns the badge and the
// notification (eventbus.Router).
type Sender interface {
	Send(ctx context.Context, msg eventbus.Message) error
}

type Deps struct {
	Settings Settings
	Local    LocalState
	Alarms   Alarms
	API      StudyQueueAPI
	Sender   Sender
	// AlarmName is the poller's refresh alarm, cancelled on every save.
	AlarmName string
	Log       logx.Logger
}

// Form is what the user entered.
type Form struct {
	APIKey        string
	Notifications settings.Notifications
}

// Status is the outcome of a save, shown to the user.
type Status struct {
	// KeySaved is true when the API key was accepted and stored.
	KeySaved bool
	Username string
	Message  string
}

type Controller struct {
	d   Deps
	log logx.Logger
}

func New(d Deps) *Controller {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Controller{d: d, log: log.With(logx.String("comp", "options"))}
}

// SaveOptions forgets the current key and everything cached for it, checks
// the new key with one request and keeps it only if the service answered
// with a readable body. The notification preference is saved either way.
//
// The returned error covers storage failures only; a rejected key is
// reported through Status.
func (c *Controller) SaveOptions(ctx context.Context, f Form) (Status, error) {
	if f.Notifications == "" {
		f.Notifications = settings.NotificationsOff
	}
	if err := f.Notifications.Validate(); err != nil {
		return Status{}, err
	}

	st, keyErr := c.replaceKey(ctx, strings.TrimSpace(f.APIKey))
	if err := c.d.Settings.SetNotifications(ctx, f.Notifications); err != nil {
		return st, errors.Join(keyErr, err)
	}
	if keyErr != nil {
		return st, keyErr
	}
	c.send(ctx, eventbus.Message{Type: eventbus.MessageShowNotification})
	return st, nil
}

// replaceKey drops the old key with its cached state and alarm, then
// validates and stores the new one.
func (c *Controller) replaceKey(ctx context.Context, key string) (Status, error) {
	if err := c.d.Settings.RemoveAPIKey(ctx); err != nil {
		return Status{}, err
	}
	if err := c.d.Local.Clear(ctx); err != nil {
		return Status{}, err
	}
	if _, err := c.d.Alarms.Clear(ctx, c.d.AlarmName); err != nil {
		return Status{}, err
	}
	return c.validate(ctx, key)
}

func (c *Controller) validate(ctx context.Context, key string) (Status, error) {
	if key == "" {
		c.send(ctx, eventbus.Message{Type: eventbus.MessageSetBadge, Text: badge.ErrorText})
		return Status{Message: MsgInvalidKey}, nil
	}

	q, err := c.d.API.StudyQueue(ctx, key)
	switch {
	case errors.Is(err, studyqueue.ErrTransport):
		c.log.Warn("api key check failed", logx.Err(err))
		c.send(ctx, eventbus.Message{Type: eventbus.MessageSetBadge, Text: badge.ErrorText})
		return Status{Message: MsgUnreachable}, nil
	case err != nil:
		c.log.Info("api key rejected", logx.Err(err))
		c.send(ctx, eventbus.Message{Type: eventbus.MessageSetBadge, Text: badge.ErrorText})
		return Status{Message: MsgInvalidKey}, nil
	}

	if err := c.d.Settings.SetAPIKey(ctx, key); err != nil {
		return Status{}, err
	}
	st := Status{KeySaved: true, Message: MsgSaved}
	if q.UserInformation != nil && q.UserInformation.Username != "" {
		st.Username = q.UserInformation.Username
		st.Message = fmt.Sprintf(msgSavedUser, st.Username)
	}
	c.log.Info("api key saved", logx.String("username", st.Username))
	return st, nil
}

// RestoreOptions returns the stored options for display. An unset
// notification preference is stored as "off".
func (c *Controller) RestoreOptions(ctx context.Context) (Form, error) {
	v, err := c.d.Settings.Get(ctx)
	if err != nil {
		return Form{}, err
	}
	if v.Notifications == "" {
		v.Notifications = settings.NotificationsOff
		if err := c.d.Settings.SetNotifications(ctx, v.Notifications); err != nil {
			return Form{}, err
		}
	}
	return Form{APIKey: v.APIKey, Notifications: v.Notifications}, nil
}

func (c *Controller) send(ctx context.Context, msg eventbus.Message) {
	if c.d.Sender == nil {
		return
	}
	if err := c.d.Sender.Send(ctx, msg); err != nil {
		c.log.Warn("message not delivered", logx.String("type", msg.Type), logx.Err(err))
	}
}
