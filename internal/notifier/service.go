package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "reviewbadge/pkg/logx"
)

const defaultHistorySize = 32

var ErrNoSinks = errors.New("notifier: no sinks configured")

// Service delivers notifications to every configured sink.
//
// It is safe for concurrent use.
type Service struct {
	log     logx.Logger
	sinks   []Sink
	limiter *rate.Limiter
	maxHist int

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger, sinks ...Sink) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	var ss []Sink
	for _, s := range sinks {
		if s != nil {
			ss = append(ss, s)
		}
	}
	return &Service{log: log, sinks: ss, limiter: lim, maxHist: cfg.HistorySize}
}

// Sinks returns the names of the configured sinks.
func (s *Service) Sinks() []string {
	out := make([]string, 0, len(s.sinks))
	for _, sk := range s.sinks {
		out = append(out, sk.Name())
	}
	return out
}

// Show delivers n to all sinks. It fails only if every sink failed.
func (s *Service) Show(ctx context.Context, n Notification) error {
	if len(s.sinks) == 0 {
		return ErrNoSinks
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	var errs []error
	for _, sk := range s.sinks {
		if err := sk.Show(ctx, n); err != nil {
			s.log.Warn("notification failed", logx.String("sink", sk.Name()), logx.String("id", n.ID), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", sk.Name(), err))
		}
	}
	var err error
	if len(errs) == len(s.sinks) {
		err = errors.Join(errs...)
	}
	s.record(n, err)
	if err == nil {
		s.log.Debug("notification shown", logx.String("id", n.ID))
	}
	return err
}

// Clear removes the notification from every sink that still shows it.
func (s *Service) Clear(ctx context.Context, id string) error {
	var errs []error
	for _, sk := range s.sinks {
		if err := sk.Clear(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sk.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// History returns the most recent notifications, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) record(n Notification, err error) {
	item := HistoryItem{At: time.Now(), ID: n.ID, Title: n.Title}
	if err != nil {
		item.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if over := len(s.history) - s.maxHist; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
	s.hmu.Unlock()
}
