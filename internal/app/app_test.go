package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewbadge/internal/badge"
	"reviewbadge/internal/browser"
	"reviewbadge/internal/options"
	"reviewbadge/internal/runtime/supervisor"
	"reviewbadge/internal/settings"
)

// newTestApp builds an app against a fake service with every path in a temp dir.
func newTestApp(t *testing.T, next time.Time) (*App, *atomic.Int32) {
	t.Helper()
	cfgPath, requests := writeTestConfig(t, next)
	return openTestApp(t, cfgPath), requests
}

// writeTestConfig starts the fake service and writes a config pointing at it.
func writeTestConfig(t *testing.T, next time.Time) (string, *atomic.Int32) {
	t.Helper()
	dir := t.TempDir()
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprintf(w, `{"user_information":{"username":"neko"},"requested_information":{"reviews_available":4,"next_review_date":%d}}`, next.Unix())
	}))
	t.Cleanup(srv.Close)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
api:
  base_url: %s
  study_url: %s/study
settings:
  path: %s
storage:
  driver: sqlite
  path: %s
badge:
  path: %s
notifier:
  desktop:
    enabled: false
alarm:
  sync_interval: 50ms
logging:
  level: error
`, srv.URL, srv.URL,
		filepath.Join(dir, "settings.yaml"),
		filepath.Join(dir, "local.db"),
		filepath.Join(dir, "badge"))), 0o600))
	return cfgPath, &requests
}

// openTestApp builds an app from cfgPath; several may share one config, like
// the daemon and a CLI command.
func openTestApp(t *testing.T, cfgPath string) *App {
	t.Helper()
	a, err := New(Params{
		ConfigPath: cfgPath,
		Opener:     browser.OpenerFunc(func(context.Context, string) error { return nil }),
		Onboard:    func(context.Context) error { return nil },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewDetectsFirstRun(t *testing.T) {
	a, _ := newTestApp(t, time.Now().Add(time.Hour))
	assert.True(t, a.FirstRun())
	assert.Empty(t, a.Notifier.Sinks())
}

func TestOptionsThenStatus(t *testing.T) {
	ctx := context.Background()
	next := time.Now().Add(time.Hour).Truncate(time.Second)
	a, requests := newTestApp(t, next)

	st, err := a.Options.SaveOptions(ctx, options.Form{APIKey: "abc123", Notifications: settings.NotificationsOn})
	require.NoError(t, err)
	assert.True(t, st.KeySaved)
	assert.Equal(t, int32(1), requests.Load())

	require.NoError(t, a.Poller.FetchReviews(ctx))

	s, err := a.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4", s.Badge)
	assert.Equal(t, 4, s.ReviewsAvailable)
	assert.True(t, next.Equal(s.NextReview))
	assert.True(t, s.APIKeySet)
	assert.Equal(t, settings.NotificationsOn, s.Notifications)
	require.NotNil(t, s.Alarm)
	assert.False(t, s.Alarm.Repeating())
}

func TestRunFetchesOnStartAndStops(t *testing.T) {
	a, requests := newTestApp(t, time.Now().Add(time.Hour))
	require.NoError(t, a.Settings.SetAPIKey(context.Background(), "abc123"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		text, _ := badge.Read(a.Config.Badge.Path)
		return text == "4"
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, requests.Load(), int32(1))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestHealthReportsLoops(t *testing.T) {
	a, _ := newTestApp(t, time.Now().Add(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := supervisor.New(ctx)
	sup.Go("quits", func(context.Context) error { return errors.New("boom") })
	require.Eventually(t, func() bool {
		s := sup.Snapshot()
		return len(s) == 1 && !s[0].Running
	}, time.Second, 10*time.Millisecond)

	h := a.health(ctx, sup)
	assert.Equal(t, "degraded", h.Status)
	require.Len(t, h.Loops, 1)
	assert.Equal(t, "boom", h.Loops[0].LastErr)
	assert.Nil(t, h.Alarm)
}

func TestDaemonRefetchesAfterCLIResavesKey(t *testing.T) {
	ctx := context.Background()
	cfgPath, requests := writeTestConfig(t, time.Now().Add(time.Hour))
	daemon := openTestApp(t, cfgPath)
	require.NoError(t, daemon.Settings.SetAPIKey(ctx, "abc123"))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- daemon.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool {
		_, err := daemon.Alarms.Get(ctx, daemon.Config.Poller.AlarmName)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond, "initial fetch")
	// Let the settings watcher register.
	time.Sleep(200 * time.Millisecond)
	before := requests.Load()

	// The options command re-saves the stored key with a new preference.
	cli := openTestApp(t, cfgPath)
	st, err := cli.Options.SaveOptions(ctx, options.Form{APIKey: "abc123", Notifications: settings.NotificationsOn})
	require.NoError(t, err)
	require.True(t, st.KeySaved)

	// One request validates the key in the CLI, the next is the daemon refetching.
	require.Eventually(t, func() bool {
		if requests.Load() < before+2 {
			return false
		}
		if _, err := daemon.Alarms.Get(ctx, daemon.Config.Poller.AlarmName); err != nil {
			return false
		}
		cached, err := daemon.Local.Load(ctx)
		return err == nil && cached.ReviewsAvailable == 4
	}, 5*time.Second, 20*time.Millisecond, "daemon did not refetch after the key was re-saved")
}
