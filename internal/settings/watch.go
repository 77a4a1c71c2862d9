package settings

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "reviewbadge/pkg/logx"
)

const (
	watchDebounce      = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

// Watch follows the settings file until ctx is done, publishing a Change for
// every key that another process (or an editor) modified.
//
// The parent directory is watched rather than the file so atomic renames and
// first-time creation are seen. A broken watcher is recreated with a jittered
// backoff.
func (s *Store) Watch(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	file := filepath.Base(s.path)

	// Seed the baseline so the first event diffs against what was on disk at start.
	if v, err := s.read(); err == nil {
		s.lastMu.Lock()
		s.last, s.seeded = v, true
		s.lastMu.Unlock()
	} else {
		s.log.Warn("settings read failed", logx.Err(err), logx.String("path", s.path))
	}

	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff = min(backoff*2, restartBackoffMax)
		}
		return wait
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, s.reload)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := mkdirAll(dir); err != nil {
			s.log.Warn("settings dir unavailable", logx.Err(err), logx.String("dir", dir))
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			s.log.Warn("settings watch init failed", logx.Err(err), logx.String("dir", dir))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(nextWait()):
				continue
			}
		}

		backoff = restartBackoffBase
		s.log.Debug("settings watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if !strings.EqualFold(filepath.Base(ev.Name), file) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				if err == fsnotify.ErrEventOverflow {
					// Events were lost; re-read once.
					s.log.Warn("settings watch overflow; forcing reload", logx.String("dir", dir))
					debounce()
					continue
				}
				s.log.Warn("settings watch error", logx.Err(err), logx.String("dir", dir))
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		wait := nextWait()
		s.log.Warn("settings watcher stopped; restarting", logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// reload re-reads the file and publishes whatever differs from the last
// known values.
func (s *Store) reload() {
	d, err := s.read()
	if err != nil {
		// Half-written or invalid file: keep the last good values.
		s.log.Warn("settings parse failed", logx.Err(err), logx.String("path", s.path))
		return
	}
	s.lastMu.Lock()
	changes := diffDocuments(s.last, d)
	s.last, s.seeded = d, true
	s.lastMu.Unlock()

	if len(changes) == 0 {
		return
	}
	s.publish(changes)
}
