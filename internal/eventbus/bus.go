package eventbus

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Topic names an event stream.
type Topic string

const (
	// TopicAlarmFired carries an alarm.Alarm whenever a named alarm goes off.
	TopicAlarmFired Topic = "alarm.fired"
	// TopicSettingsChanged carries one settings.Change per changed key.
	TopicSettingsChanged Topic = "settings.changed"
	// TopicNotificationClicked carries the clicked notification id (string).
	TopicNotificationClicked Topic = "notification.clicked"
)

// Event is published to every subscriber of its topic. Publish never blocks:
// a subscriber whose buffer is full misses the event.
type Event struct {
	Topic Topic
	Time  time.Time
	Data  any
}

type Bus interface {
	Publish(e Event)
	// Subscribe returns a channel receiving events on the given topics, or on
	// all topics when none are given.
	Subscribe(buffer int, topics ...Topic) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory bus. It starts no goroutines.
func New() Bus {
	return &memBus{subs: map[*subscriber]struct{}{}}
}

type subscriber struct {
	ch     chan Event
	topics []Topic
}

func (s *subscriber) wants(t Topic) bool {
	return len(s.topics) == 0 || slices.Contains(s.topics, t)
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends don't block, so holding the read lock is cheap and keeps
	// unsubscribe from closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !s.wants(e.Topic) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int, topics ...Topic) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer), topics: slices.Clone(topics)}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			close(s.ch)
			b.mu.Unlock()
		})
	}
}

// Dropped counts deliveries skipped because a subscriber was full.
func Dropped(b Bus) uint64 {
	if mb, ok := b.(*memBus); ok {
		return mb.dropped.Load()
	}
	return 0
}

// Nop returns a bus that discards everything.
func Nop() Bus { return nopBus{} }

type nopBus struct{}

func (nopBus) Publish(Event) {}
func (nopBus) Subscribe(int, ...Topic) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
