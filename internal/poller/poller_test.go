package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

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

var fixedNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

type memSettings struct {
	mu sync.Mutex
	v  settings.Values
}

func (m *memSettings) Get(context.Context) (settings.Values, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v, nil
}

type memLocal struct {
	mu sync.Mutex
	st storage.State
}

func (m *memLocal) Load(context.Context) (storage.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st, nil
}

func (m *memLocal) Save(_ context.Context, st storage.State) error {
	m.mu.Lock()
	m.st = st
	m.mu.Unlock()
	return nil
}

func (m *memLocal) SetReviewCount(_ context.Context, n int) error {
	m.mu.Lock()
	m.st.ReviewsAvailable = n
	m.mu.Unlock()
	return nil
}

func (m *memLocal) SetNextReview(_ context.Context, at time.Time) error {
	m.mu.Lock()
	m.st.NextReview = at
	m.mu.Unlock()
	return nil
}

// unreadableLocal accepts writes but cannot read the cached state back.
type unreadableLocal struct{ memLocal }

func (u *unreadableLocal) Load(context.Context) (storage.State, error) {
	return storage.State{}, errors.New("disk i/o error")
}

type apiFunc func(ctx context.Context, key string) (*studyqueue.StudyQueue, error)

func (f apiFunc) StudyQueue(ctx context.Context, key string) (*studyqueue.StudyQueue, error) {
	return f(ctx, key)
}

type memAlarms struct {
	mu      sync.Mutex
	created []alarm.Info
}

func (m *memAlarms) Create(_ context.Context, name string, info alarm.Info) (alarm.Alarm, error) {
	m.mu.Lock()
	m.created = append(m.created, info)
	m.mu.Unlock()
	return alarm.Alarm{Name: name, ScheduledTime: info.When, Period: info.Period}, nil
}

type recordSink struct {
	mu      sync.Mutex
	shown   int
	cleared []string
}

func (r *recordSink) Name() string { return "record" }
func (r *recordSink) Show(context.Context, notifier.Notification) error {
	r.mu.Lock()
	r.shown++
	r.mu.Unlock()
	return nil
}
func (r *recordSink) Clear(_ context.Context, id string) error {
	r.mu.Lock()
	r.cleared = append(r.cleared, id)
	r.mu.Unlock()
	return nil
}
func (r *recordSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shown
}

func testConfig() Config {
	return Config{
		AlarmName:           "refresh",
		RepeatInterval:      time.Minute,
		StudyURL:            "https://www.bunpro.jp/study",
		NotificationTitle:   "Bunpro",
		NotificationMessage: "You have new reviews on Bunpro!",
		Now:                 func() time.Time { return fixedNow },
	}
}

func queue(n int, next time.Time) *studyqueue.StudyQueue {
	return &studyqueue.StudyQueue{RequestedInformation: &studyqueue.RequestedInformation{
		ReviewsAvailable: n,
		NextReviewDate:   studyqueue.Epoch(next.Unix()),
	}}
}

// harness wires a poller to the real file store, alarm service and a fake
// study queue server.
type harness struct {
	p        *Poller
	settings *settings.Store
	local    storage.Store
	alarms   *alarm.Service
	badge    *badge.Badge
	sink     *recordSink
	requests *atomic.Int32
	opened   *[]string
	body     *atomic.Value
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{requests: &atomic.Int32{}, body: &atomic.Value{}, opened: &[]string{}}
	h.body.Store(`{}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = fmt.Fprint(w, h.body.Load().(string))
	}))
	t.Cleanup(srv.Close)

	local, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "local.json")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	var mu sync.Mutex
	h.settings = settings.New(filepath.Join(dir, "settings.yaml"), nil, logx.Nop())
	h.local = local
	h.alarms = alarm.New(alarm.Config{Now: func() time.Time { return fixedNow }}, local, nil, logx.Nop())
	h.badge = badge.New("", logx.Nop())
	h.sink = &recordSink{}
	h.p = New(testConfig(), Deps{
		Settings: h.settings,
		Local:    local,
		API:      studyqueue.New(studyqueue.Config{BaseURL: srv.URL}, logx.Nop()),
		Alarms:   h.alarms,
		Badge:    h.badge,
		Notifier: notifier.New(notifier.Config{}, logx.Nop(), h.sink),
		Opener: browser.OpenerFunc(func(_ context.Context, url string) error {
			mu.Lock()
			*h.opened = append(*h.opened, url)
			mu.Unlock()
			return nil
		}),
		Log: logx.Nop(),
	})
	return h
}

func TestFetchWithoutKeySetsErrorBadge(t *testing.T) {
	h := newHarness(t)
	err := h.p.FetchReviews(context.Background())
	assert.ErrorIs(t, err, settings.ErrNoAPIKey)
	assert.Equal(t, "!", h.badge.Text())
	assert.Zero(t, h.requests.Load(), "no request without a key")
}

func TestFetchFutureReviewSchedulesOneShot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.settings.SetAPIKey(ctx, "abc123"))
	next := fixedNow.Add(2 * time.Hour)
	h.body.Store(fmt.Sprintf(`{"requested_information":{"reviews_available":5,"next_review_date":%d}}`, next.Unix()))

	require.NoError(t, h.p.FetchReviews(ctx))
	assert.Equal(t, "5", h.badge.Text())

	st, err := h.local.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, st.ReviewsAvailable)
	assert.True(t, next.Equal(st.NextReview))

	all, err := h.alarms.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "refresh", all[0].Name)
	assert.False(t, all[0].Repeating())
	assert.True(t, next.Equal(all[0].ScheduledTime))
}

func TestFetchDueReviewSchedulesRepeating(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.settings.SetAPIKey(ctx, "abc123"))
	h.body.Store(fmt.Sprintf(`{"requested_information":{"reviews_available":3,"next_review_date":%d}}`, fixedNow.Add(-time.Hour).Unix()))

	require.NoError(t, h.p.FetchReviews(ctx))

	all, err := h.alarms.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Repeating())
	assert.Equal(t, time.Minute, all[0].Period)
}

func TestFetchUnreadableBodyChangesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.settings.SetAPIKey(ctx, "abc123"))
	require.NoError(t, h.badge.SetText("4"))
	h.body.Store(`<html>Unauthorized</html>`)

	err := h.p.FetchReviews(ctx)
	assert.ErrorIs(t, err, studyqueue.ErrPayload)
	assert.Equal(t, "4", h.badge.Text())

	all, err := h.alarms.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFetchWithoutRequestedInformationIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.settings.SetAPIKey(ctx, "abc123"))
	h.body.Store(`{"user_information":{"username":"neko"}}`)

	require.NoError(t, h.p.FetchReviews(ctx))
	assert.Empty(t, h.badge.Text())
	assert.Equal(t, int32(1), h.requests.Load())
}

func TestNotifyOnIncrease(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		pref settings.Notifications
		want int
	}{
		{settings.NotificationsOn, 1},
		{settings.NotificationsOff, 0},
	} {
		t.Run(string(tc.pref), func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.settings.SetAPIKey(ctx, "abc123"))
			require.NoError(t, h.settings.SetNotifications(ctx, tc.pref))
			require.NoError(t, h.local.SetReviewCount(ctx, 5))
			h.body.Store(fmt.Sprintf(`{"requested_information":{"reviews_available":8,"next_review_date":%d}}`, fixedNow.Add(time.Hour).Unix()))

			require.NoError(t, h.p.FetchReviews(ctx))
			assert.Equal(t, "8", h.badge.Text())
			assert.Equal(t, tc.want, h.sink.count())
		})
	}
}

func TestNotificationOnlyOnIncreaseProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n1 := rapid.IntRange(0, 1000).Draw(t, "n1")
		n2 := rapid.IntRange(0, 1000).Draw(t, "n2")
		pref := rapid.SampledFrom([]settings.Notifications{settings.NotificationsOn, settings.NotificationsOff, ""}).Draw(t, "pref")

		sink := &recordSink{}
		local := &memLocal{st: storage.State{ReviewsAvailable: n1}}
		p := New(testConfig(), Deps{
			Settings: &memSettings{v: settings.Values{APIKey: "k", Notifications: pref}},
			Local:    local,
			API: apiFunc(func(context.Context, string) (*studyqueue.StudyQueue, error) {
				return queue(n2, fixedNow.Add(time.Hour)), nil
			}),
			Alarms:   &memAlarms{},
			Badge:    badge.New("", logx.Nop()),
			Notifier: notifier.New(notifier.Config{}, logx.Nop(), sink),
		})
		if err := p.FetchReviews(context.Background()); err != nil {
			t.Fatal(err)
		}

		want := 0
		if n2 > n1 && pref == settings.NotificationsOn {
			want = 1
		}
		if got := sink.count(); got != want {
			t.Fatalf("n1=%d n2=%d pref=%q: %d notifications, want %d", n1, n2, pref, got, want)
		}
		if got, _ := local.Load(context.Background()); got.ReviewsAvailable != n2 {
			t.Fatalf("cached %d, want %d", got.ReviewsAvailable, n2)
		}
	})
}

func TestAlarmKindFollowsTimestampProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		offset := time.Duration(rapid.Int64Range(-30*24*3600, 30*24*3600).Draw(t, "offset_s")) * time.Second
		at := fixedNow.Add(offset)

		alarms := &memAlarms{}
		p := New(testConfig(), Deps{Local: &memLocal{}, Alarms: alarms})
		if err := p.SetNextReview(context.Background(), at.Unix()); err != nil {
			t.Fatal(err)
		}
		if len(alarms.created) != 1 {
			t.Fatalf("%d alarms created, want 1", len(alarms.created))
		}
		info := alarms.created[0]
		if at.After(fixedNow) {
			if info.Period != 0 || !info.When.Equal(at) {
				t.Fatalf("future %s: got %+v, want one-shot", at, info)
			}
		} else if info.Period != time.Minute || !info.When.IsZero() {
			t.Fatalf("due %s: got %+v, want repeating", at, info)
		}
	})
}

func TestSetReviewCount(t *testing.T) {
	ctx := context.Background()
	sink := &recordSink{}
	local := &memLocal{st: storage.State{ReviewsAvailable: 2}}
	b := badge.New("", logx.Nop())
	p := New(testConfig(), Deps{
		Settings: &memSettings{v: settings.Values{Notifications: settings.NotificationsOn}},
		Local:    local,
		Badge:    b,
		Notifier: notifier.New(notifier.Config{}, logx.Nop(), sink),
	})

	require.NoError(t, p.SetReviewCount(ctx, 1))
	assert.Equal(t, "1", b.Text())
	assert.Zero(t, sink.count())

	require.NoError(t, p.SetReviewCount(ctx, 3))
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 3, local.st.ReviewsAvailable)
}

func TestUnreadableCacheNeverNotifies(t *testing.T) {
	ctx := context.Background()
	sink := &recordSink{}
	local := &unreadableLocal{memLocal{st: storage.State{ReviewsAvailable: 10}}}
	p := New(testConfig(), Deps{
		Settings: &memSettings{v: settings.Values{APIKey: "k", Notifications: settings.NotificationsOn}},
		Local:    local,
		API: apiFunc(func(context.Context, string) (*studyqueue.StudyQueue, error) {
			return queue(3, fixedNow.Add(time.Hour)), nil
		}),
		Alarms:   &memAlarms{},
		Badge:    badge.New("", logx.Nop()),
		Notifier: notifier.New(notifier.Config{}, logx.Nop(), sink),
	})

	require.NoError(t, p.FetchReviews(ctx))
	require.NoError(t, p.SetReviewCount(ctx, 12))
	assert.Zero(t, sink.count())
	assert.Equal(t, 12, local.st.ReviewsAvailable)
}

func TestIconClicked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	onboarded := 0
	h.p.d.Onboard = func(context.Context) error { onboarded++; return nil }

	require.NoError(t, h.p.IconClicked(ctx))
	assert.Equal(t, 1, onboarded)
	assert.Empty(t, *h.opened)
	assert.Zero(t, h.requests.Load())

	require.NoError(t, h.settings.SetAPIKey(ctx, "abc123"))
	h.body.Store(fmt.Sprintf(`{"requested_information":{"reviews_available":1,"next_review_date":%d}}`, fixedNow.Add(time.Hour).Unix()))
	require.NoError(t, h.p.IconClicked(ctx))
	assert.Equal(t, []string{"https://www.bunpro.jp/study"}, *h.opened)
	assert.Equal(t, int32(1), h.requests.Load())
	assert.Equal(t, "1", h.badge.Text())
}

func TestNotificationClicked(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.p.NotificationClicked(context.Background(), "other"))
	assert.Empty(t, *h.opened)

	require.NoError(t, h.p.NotificationClicked(context.Background(), NotificationID))
	assert.Equal(t, []string{"https://www.bunpro.jp/study"}, *h.opened)
	assert.Equal(t, []string{NotificationID}, h.sink.cleared)
}

func TestOnInstalled(t *testing.T) {
	h := newHarness(t)
	onboarded := 0
	h.p.d.Onboard = func(context.Context) error { onboarded++; return nil }

	require.NoError(t, h.p.OnInstalled(context.Background(), false))
	require.NoError(t, h.p.OnInstalled(context.Background(), true))
	assert.Equal(t, 1, onboarded)
	assert.Zero(t, h.requests.Load(), "install does not fetch")
}

func TestRouterMessages(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := eventbus.NewRouter()
	h.p.Register(r)

	require.NoError(t, r.Send(ctx, eventbus.Message{Type: eventbus.MessageSetBadge, Text: "!"}))
	assert.Equal(t, "!", h.badge.Text())

	require.NoError(t, r.Send(ctx, eventbus.Message{Type: eventbus.MessageShowNotification}))
	assert.Zero(t, h.sink.count(), "notifications are off by default")

	require.NoError(t, h.settings.SetNotifications(ctx, settings.NotificationsOn))
	require.NoError(t, r.Send(ctx, eventbus.Message{Type: eventbus.MessageShowNotification}))
	assert.Equal(t, 1, h.sink.count())
}

func TestRunReactsToTriggers(t *testing.T) {
	var calls atomic.Int32
	p := New(testConfig(), Deps{
		Settings: &memSettings{v: settings.Values{APIKey: "k"}},
		Local:    &memLocal{},
		API: apiFunc(func(context.Context, string) (*studyqueue.StudyQueue, error) {
			calls.Add(1)
			return nil, &studyqueue.TransportError{URL: "x", Err: errors.New("offline")}
		}),
		Alarms: &memAlarms{},
		Badge:  badge.New("", logx.Nop()),
	})

	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	triggers := p.Subscribe(bus)
	go func() { done <- p.Run(ctx, triggers) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond, "initial fetch")

	bus.Publish(eventbus.Event{Topic: eventbus.TopicAlarmFired, Data: alarm.Alarm{Name: "refresh"}})
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond, "alarm fetch")

	bus.Publish(eventbus.Event{Topic: eventbus.TopicAlarmFired, Data: alarm.Alarm{Name: "other"}})
	bus.Publish(eventbus.Event{Topic: eventbus.TopicSettingsChanged, Data: settings.Change{Key: settings.KeyNotifications, New: "on"}})
	bus.Publish(eventbus.Event{Topic: eventbus.TopicSettingsChanged, Data: settings.Change{Key: settings.KeyAPIKey, New: "k2"}})
	require.Eventually(t, func() bool { return calls.Load() == 3 }, 2*time.Second, 10*time.Millisecond, "api key fetch")

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRunHandlesTriggersQueuedBeforeStart(t *testing.T) {
	var calls atomic.Int32
	p := New(testConfig(), Deps{
		Settings: &memSettings{v: settings.Values{APIKey: "k"}},
		Local:    &memLocal{},
		API: apiFunc(func(context.Context, string) (*studyqueue.StudyQueue, error) {
			calls.Add(1)
			return nil, &studyqueue.TransportError{URL: "x", Err: errors.New("offline")}
		}),
		Alarms: &memAlarms{},
		Badge:  badge.New("", logx.Nop()),
	})

	bus := eventbus.New()
	triggers := p.Subscribe(bus)
	// An overdue alarm fires while the daemon is still starting up.
	bus.Publish(eventbus.Event{Topic: eventbus.TopicAlarmFired, Data: alarm.Alarm{Name: "refresh"}})
	assert.Zero(t, eventbus.Dropped(bus))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, triggers) }()

	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
