package alarm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"reviewbadge/internal/eventbus"
	"reviewbadge/internal/storage"
	logx "reviewbadge/pkg/logx"
)

const fireTimeout = 10 * time.Second

type Config struct {
	// SyncInterval is how often a started service reconciles its timers with
	// the store. 0 disables the periodic sync.
	SyncInterval time.Duration
	// Now overrides the clock used to compute fire times.
	Now func() time.Time
}

// Service manages named alarms.
//
// A Service that was never started only records alarms in the store; this is
// what short-lived CLI commands use. Start arms timers for everything stored
// and keeps them in sync.
type Service struct {
	cfg   Config
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	mu      sync.Mutex
	c       *cron.Cron
	entries map[string]*entry
}

// entry is the runtime side of one armed alarm.
type entry struct {
	alarm  Alarm
	timer  *time.Timer
	cronID cron.EntryID
}

func New(cfg Config, store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{cfg: cfg, store: store, bus: bus, log: log, entries: map[string]*entry{}}
}

// Create schedules an alarm, replacing any existing alarm with the same name.
func (s *Service) Create(ctx context.Context, name string, info Info) (Alarm, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Alarm{}, errors.New("alarm: name is required")
	}
	at, period, err := resolve(info, s.cfg.Now())
	if err != nil {
		return Alarm{}, err
	}
	a := Alarm{Name: name, ScheduledTime: at, Period: period, Generation: newGeneration()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.PutAlarm(ctx, a.record()); err != nil {
		return Alarm{}, fmt.Errorf("create alarm %q: %w", name, err)
	}
	if s.c != nil {
		s.disarmLocked(name)
		s.armLocked(a)
	}
	s.log.Debug("alarm created", logx.String("alarm", name), logx.Time("at", at), logx.Duration("period", period))
	return a, nil
}

// Clear removes the alarm. It reports whether an alarm existed.
func (s *Service) Clear(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.store.GetAlarm(ctx, name)
	existed := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("clear alarm %q: %w", name, err)
	}
	if existed {
		if err := s.store.DeleteAlarm(ctx, name); err != nil {
			return false, fmt.Errorf("clear alarm %q: %w", name, err)
		}
	}
	_, armed := s.entries[name]
	s.disarmLocked(name)
	if existed || armed {
		s.log.Debug("alarm cleared", logx.String("alarm", name))
	}
	return existed, nil
}

// Get returns the stored alarm, or ErrNotFound.
func (s *Service) Get(ctx context.Context, name string) (Alarm, error) {
	r, err := s.store.GetAlarm(ctx, name)
	if err != nil {
		return Alarm{}, err
	}
	return fromRecord(r), nil
}

// All returns every stored alarm.
func (s *Service) All(ctx context.Context) ([]Alarm, error) {
	recs, err := s.store.ListAlarms(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Alarm, 0, len(recs))
	for _, r := range recs {
		out = append(out, fromRecord(r))
	}
	return out, nil
}

// Start arms every stored alarm. One-shot alarms whose time has passed fire
// right away; repeating alarms continue at their next slot.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.c = cron.New()
	if err := s.syncLocked(ctx); err != nil {
		s.c = nil
		return err
	}
	if every := s.cfg.SyncInterval; every > 0 {
		sched := periodicSchedule{first: s.cfg.Now().Add(every), every: every}
		s.c.Schedule(sched, cron.FuncJob(func() {
			ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
			defer cancel()
			if err := s.Sync(ctx); err != nil {
				s.log.Warn("alarm sync failed", logx.Err(err))
			}
		}))
	}
	s.c.Start()
	s.log.Info("alarm service started", logx.Int("alarms", len(s.entries)), logx.Duration("sync_interval", s.cfg.SyncInterval))
	return nil
}

// Stop disarms all timers. Stored alarms stay and resume on the next Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	for name := range s.entries {
		s.disarmLocked(name)
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("alarm service stopped")
}

// Sync reconciles armed timers with the store, picking up alarms created,
// replaced or cleared by other processes.
func (s *Service) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	return s.syncLocked(ctx)
}

func (s *Service) syncLocked(ctx context.Context) error {
	recs, err := s.store.ListAlarms(ctx)
	if err != nil {
		return fmt.Errorf("sync alarms: %w", err)
	}
	seen := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		seen[r.Name] = struct{}{}
		if e, ok := s.entries[r.Name]; ok && e.alarm.Generation == r.Generation {
			continue
		}
		s.disarmLocked(r.Name)
		s.armLocked(fromRecord(r))
	}
	for name := range s.entries {
		if _, ok := seen[name]; !ok {
			s.log.Debug("alarm removed elsewhere", logx.String("alarm", name))
			s.disarmLocked(name)
		}
	}
	return nil
}

func (s *Service) armLocked(a Alarm) {
	e := &entry{alarm: a}
	name, gen := a.Name, a.Generation
	if a.Repeating() {
		sched := periodicSchedule{first: a.ScheduledTime, every: a.Period}
		e.cronID = s.c.Schedule(sched, cron.FuncJob(func() { s.fire(name, gen) }))
	} else {
		d := max(a.ScheduledTime.Sub(s.cfg.Now()), 0)
		e.timer = time.AfterFunc(d, func() { s.fire(name, gen) })
	}
	s.entries[name] = e
}

func (s *Service) disarmLocked(name string) {
	e, ok := s.entries[name]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.cronID != 0 && s.c != nil {
		s.c.Remove(e.cronID)
	}
	delete(s.entries, name)
}

// fire runs when a timer for (name, gen) goes off. The stored record decides
// whether the fire still counts.
func (s *Service) fire(name string, gen int64) {
	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	s.mu.Lock()
	if e, ok := s.entries[name]; !ok || e.alarm.Generation != gen {
		// Replaced or cleared in this process after the timer was queued.
		s.mu.Unlock()
		return
	}
	r, err := s.store.GetAlarm(ctx, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.log.Debug("alarm cleared elsewhere; skipping", logx.String("alarm", name))
		s.disarmLocked(name)
		s.mu.Unlock()
		return
	case err != nil:
		s.log.Warn("alarm lookup failed; skipping fire", logx.String("alarm", name), logx.Err(err))
		s.mu.Unlock()
		return
	case r.Generation != gen:
		s.log.Debug("alarm replaced elsewhere; re-arming", logx.String("alarm", name))
		s.disarmLocked(name)
		if s.c != nil {
			s.armLocked(fromRecord(r))
		}
		s.mu.Unlock()
		return
	}

	a := fromRecord(r)
	if a.Repeating() {
		next := periodicSchedule{first: a.ScheduledTime, every: a.Period}.Next(s.cfg.Now())
		r.ScheduledAt = next
		if err := s.store.PutAlarm(ctx, r); err != nil {
			s.log.Warn("alarm reschedule failed", logx.String("alarm", name), logx.Err(err))
		}
		s.entries[name].alarm.ScheduledTime = next
	} else {
		if err := s.store.DeleteAlarm(ctx, name); err != nil {
			s.log.Warn("alarm delete failed", logx.String("alarm", name), logx.Err(err))
		}
		delete(s.entries, name)
	}
	s.mu.Unlock()

	s.log.Debug("alarm fired", logx.String("alarm", name))
	s.bus.Publish(eventbus.Event{Topic: eventbus.TopicAlarmFired, Data: a})
}
