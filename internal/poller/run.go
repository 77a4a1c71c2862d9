package poller

import (
	"context"
	"errors"
	"sync"

	"reviewbadge/internal/alarm"
	"reviewbadge/internal/eventbus"
	"reviewbadge/internal/settings"
	logx "reviewbadge/pkg/logx"
)

// Triggers is the poller's subscription to the bus.
type Triggers struct {
	ch    <-chan eventbus.Event
	unsub func()
}

// Close drops the subscription. Run closes it on return.
func (t Triggers) Close() { t.unsub() }

// Subscribe registers for the events Run reacts to. Subscribing before the
// alarm service starts means an overdue alarm firing at once is not missed.
func (p *Poller) Subscribe(bus eventbus.Bus) Triggers {
	ch, unsub := bus.Subscribe(64,
		eventbus.TopicAlarmFired,
		eventbus.TopicSettingsChanged,
		eventbus.TopicNotificationClicked,
	)
	return Triggers{ch: ch, unsub: unsub}
}

// Run fetches once, then reacts to triggers until ctx is done: the refresh
// alarm and API key changes trigger a fetch, notification clicks open the
// study page.
//
// Each trigger runs on its own goroutine; overlapping fetches are not
// coalesced and the last one to finish wins.
func (p *Poller) Run(ctx context.Context, t Triggers) error {
	ch := t.ch
	defer t.Close()

	var wg sync.WaitGroup
	defer wg.Wait()
	spawn := func(reason string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, settings.ErrNoAPIKey) && ctx.Err() == nil {
				p.log.Warn("trigger failed", logx.String("trigger", reason), logx.Err(err))
			}
		}()
	}

	spawn("start", p.FetchReviews)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			switch ev.Topic {
			case eventbus.TopicAlarmFired:
				if a, ok := ev.Data.(alarm.Alarm); ok && a.Name == p.cfg.AlarmName {
					spawn("alarm", p.FetchReviews)
				}
			case eventbus.TopicSettingsChanged:
				if c, ok := ev.Data.(settings.Change); ok && c.Key == settings.KeyAPIKey {
					spawn("api_key", p.FetchReviews)
				}
			case eventbus.TopicNotificationClicked:
				id, _ := ev.Data.(string)
				spawn("notification", func(ctx context.Context) error { return p.NotificationClicked(ctx, id) })
			}
		}
	}
}
