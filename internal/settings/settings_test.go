package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewbadge/internal/eventbus"
	logx "reviewbadge/pkg/logx"
)

func newStore(t *testing.T) (*Store, eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	return New(filepath.Join(t.TempDir(), "settings.yaml"), bus, logx.Nop()), bus
}

func collect(ch <-chan eventbus.Event, n int, timeout time.Duration) []Change {
	var out []Change
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case ev := <-ch:
			if c, ok := ev.Data.(Change); ok && ev.Topic == eventbus.TopicSettingsChanged {
				out = append(out, c)
			}
		case <-deadline:
			return out
		}
	}
	return out
}

func TestGetMissingFile(t *testing.T) {
	s, _ := newStore(t)
	assert.False(t, s.Exists())

	v, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Values{}, v)
}

func TestUpdatePublishesChanges(t *testing.T) {
	s, bus := newStore(t)
	ch, unsub := bus.Subscribe(8)
	defer unsub()
	ctx := context.Background()

	require.NoError(t, s.SetAPIKey(ctx, "  abc  "))
	require.True(t, s.Exists())

	got := collect(ch, 1, time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, Change{Key: KeyAPIKey, Old: "", New: "abc"}, got[0])

	require.NoError(t, s.SetNotifications(ctx, NotificationsOn))
	got = collect(ch, 1, time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, KeyNotifications, got[0].Key)

	v, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Values{APIKey: "abc", Notifications: NotificationsOn}, v)

	require.NoError(t, s.RemoveAPIKey(ctx))
	key, err := s.APIKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestUpdateWithoutChangePublishesNothing(t *testing.T) {
	s, bus := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetAPIKey(ctx, "abc"))

	ch, unsub := bus.Subscribe(8)
	defer unsub()
	require.NoError(t, s.SetAPIKey(ctx, "abc"))
	assert.Empty(t, collect(ch, 1, 100*time.Millisecond))
}

func TestSetNotificationsRejectsUnknown(t *testing.T) {
	s, _ := newStore(t)
	err := s.SetNotifications(context.Background(), Notifications("maybe"))
	require.Error(t, err)
	assert.False(t, s.Exists())
}

func TestSettingsFileIsPrivate(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.SetAPIKey(context.Background(), "secret"))
	fi, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestReadsJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"api_key":"k","notifications":"off"}`), 0o600))

	v, err := New(path, nil, logx.Nop()).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k", v.APIKey)
	assert.Equal(t, NotificationsOff, v.Notifications)
	assert.False(t, v.Notifications.Enabled())
}

func TestDiff(t *testing.T) {
	assert.Empty(t, Diff(Values{APIKey: "a"}, Values{APIKey: "a"}))

	got := Diff(Values{APIKey: "a"}, Values{Notifications: NotificationsOn})
	assert.Equal(t, []Change{
		{Key: KeyAPIKey, Old: "a", New: ""},
		{Key: KeyNotifications, Old: "", New: "on"},
	}, got)
}

func TestWatchSeesExternalWrite(t *testing.T) {
	s, bus := newStore(t)
	require.NoError(t, s.SetNotifications(context.Background(), NotificationsOff))

	ch, unsub := bus.Subscribe(8)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)

	// Another process (a second store on the same file) changes the key.
	other := New(s.Path(), nil, logx.Nop())
	require.NoError(t, other.SetAPIKey(context.Background(), "from-elsewhere"))

	got := collect(ch, 1, 5*time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, Change{Key: KeyAPIKey, Old: "", New: "from-elsewhere"}, got[0])
}

func TestDiffDocumentsSeesRewrittenKey(t *testing.T) {
	a := document{Values: Values{APIKey: "abc"}, KeyRev: 3}
	assert.Empty(t, diffDocuments(a, a))

	b := document{Values: Values{APIKey: "abc", Notifications: NotificationsOn}, KeyRev: 5}
	assert.Equal(t, []Change{
		{Key: KeyAPIKey, Old: "abc", New: "abc"},
		{Key: KeyNotifications, Old: "", New: "on"},
	}, diffDocuments(a, b))
}

func TestKeyWritesBumpRevision(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetAPIKey(ctx, "abc"))
	require.NoError(t, s.SetNotifications(ctx, NotificationsOn))
	require.NoError(t, s.RemoveAPIKey(ctx))
	require.NoError(t, s.SetAPIKey(ctx, "abc"))

	d, err := s.read()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), d.KeyRev)
	assert.Equal(t, Values{APIKey: "abc", Notifications: NotificationsOn}, d.Values)
}

func TestWatchSeesExternalRemoveThenSet(t *testing.T) {
	s, bus := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetAPIKey(ctx, "abc"))

	ch, unsub := bus.Subscribe(8)
	defer unsub()

	wctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.Watch(wctx) }()
	defer func() {
		cancel()
		<-done
	}()
	time.Sleep(200 * time.Millisecond)

	// Another process re-saves the same key well inside the debounce window.
	other := New(s.Path(), nil, logx.Nop())
	require.NoError(t, other.RemoveAPIKey(ctx))
	require.NoError(t, other.SetAPIKey(ctx, "abc"))

	// A slow disk may split the two writes into separate reloads; either way
	// the last api_key change carries the key.
	deadline := time.Now().Add(5 * time.Second)
	var last Change
	for last.New != "abc" && time.Now().Before(deadline) {
		got := collect(ch, 1, time.Until(deadline))
		require.NotEmpty(t, got, "no change published")
		last = got[0]
		assert.Equal(t, KeyAPIKey, last.Key)
	}
	assert.Equal(t, "abc", last.New)
}
