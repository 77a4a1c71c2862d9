// Package app wires the components together from a config file, for both
// the long-running daemon and the one-shot CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reviewbadge/internal/alarm"
	"reviewbadge/internal/badge"
	"reviewbadge/internal/browser"
	"reviewbadge/internal/config"
	"reviewbadge/internal/debugserver"
	"reviewbadge/internal/eventbus"
	"reviewbadge/internal/notifier"
	"reviewbadge/internal/options"
	"reviewbadge/internal/poller"
	"reviewbadge/internal/runtime/supervisor"
	"reviewbadge/internal/settings"
	"reviewbadge/internal/storage"
	"reviewbadge/internal/studyqueue"
	logx "reviewbadge/pkg/logx"
	"reviewbadge/pkg/systemdmanager"
)

// UnitName is the systemd user unit expected to run the daemon.
const UnitName = "reviewbadge"

const onboardID = "onboard"

// Params are the command-line inputs to New.
type Params struct {
	ConfigPath string
	// LogLevel overrides logging.level when set.
	LogLevel string
	// Opener opens URLs; defaults to the system browser.
	Opener browser.Opener
	// Onboard replaces the default onboarding (a log line plus a desktop
	// notification pointing at the options command).
	Onboard func(ctx context.Context) error
}

type App struct {
	Config *config.Config
	Log    logx.Logger

	Bus      eventbus.Bus
	Router   *eventbus.Router
	Settings *settings.Store
	Local    storage.Store
	Alarms   *alarm.Service
	API      *studyqueue.Client
	Badge    *badge.Badge
	Notifier *notifier.Service
	Poller   *poller.Poller
	Options  *options.Controller

	logs     *logx.Service
	desktop  *notifier.Desktop
	firstRun bool
}

// New loads the config and builds every component. Nothing runs until Run.
func New(p Params) (*App, error) {
	cfg, err := config.Load(p.ConfigPath)
	if err != nil {
		return nil, err
	}
	if p.LogLevel != "" {
		cfg.Logging.Level = p.LogLevel
	}
	if cfg.Debug.Addr != "" {
		if err := debugserver.CheckAddr(cfg.Debug.Addr, cfg.Debug.Token); err != nil {
			return nil, err
		}
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	a := &App{Config: cfg, Log: log.With(logx.String("comp", "app")), logs: logs}

	timeout, _ := cfg.APITimeout()
	repeat, _ := cfg.RepeatInterval()
	syncEvery, _ := cfg.SyncInterval()
	busy, _ := cfg.BusyTimeout()

	a.Bus = eventbus.New()
	a.Router = eventbus.NewRouter()
	a.Settings = settings.New(cfg.Settings.Path, a.Bus, log.With(logx.String("comp", "settings")))
	a.firstRun = !a.Settings.Exists()

	a.Local, err = storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open local storage: %w", err)
	}

	a.Alarms = alarm.New(alarm.Config{SyncInterval: syncEvery}, a.Local, a.Bus, log.With(logx.String("comp", "alarm")))
	a.API = studyqueue.New(studyqueue.Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    timeout,
		RatePerSec: cfg.API.RatePerSec,
		Burst:      cfg.API.Burst,
	}, log.With(logx.String("comp", "studyqueue")))
	a.Badge = badge.New(cfg.Badge.Path, log.With(logx.String("comp", "badge")))
	a.Notifier = notifier.New(notifier.Config{RatePerSec: float64(cfg.Notifier.RatePerSec)},
		log.With(logx.String("comp", "notifier")), a.sinks()...)

	opener := p.Opener
	if opener == nil {
		opener = browser.System{}
	}
	onboard := p.Onboard
	if onboard == nil {
		onboard = a.onboard
	}
	a.Poller = poller.New(poller.Config{
		AlarmName:           cfg.Poller.AlarmName,
		RepeatInterval:      repeat,
		StudyURL:            cfg.API.StudyURL,
		NotificationTitle:   cfg.Notifier.Title,
		NotificationMessage: cfg.Notifier.Message,
		NotificationIcon:    cfg.Notifier.Icon,
	}, poller.Deps{
		Settings: a.Settings,
		Local:    a.Local,
		API:      a.API,
		Alarms:   a.Alarms,
		Badge:    a.Badge,
		Notifier: a.Notifier,
		Opener:   opener,
		Onboard:  onboard,
		Log:      log,
	})
	a.Poller.Register(a.Router)

	a.Options = options.New(options.Deps{
		Settings:  a.Settings,
		Local:     a.Local,
		Alarms:    a.Alarms,
		API:       a.API,
		Sender:    a.Router,
		AlarmName: cfg.Poller.AlarmName,
		Log:       log,
	})
	return a, nil
}

func (a *App) sinks() []notifier.Sink {
	var sinks []notifier.Sink
	log := a.Log.With(logx.String("comp", "notifier"))
	if a.Config.DesktopEnabled() {
		d, err := notifier.NewDesktop(a.Config.Notifier.Desktop.AppName, a.Local, log)
		if err != nil {
			log.Warn("desktop notifications unavailable", logx.Err(err))
		} else {
			a.desktop = d
			sinks = append(sinks, d)
		}
	}
	if tc := a.Config.Notifier.Telegram; tc.Enabled {
		t, err := notifier.NewTelegram(notifier.TelegramConfig{Token: tc.Token, ChatID: tc.ChatID}, log)
		if err != nil {
			log.Warn("telegram notifications unavailable", logx.Err(err))
		} else {
			sinks = append(sinks, t)
		}
	}
	return sinks
}

// FirstRun reports whether no settings file existed when the app was built.
func (a *App) FirstRun() bool { return a.firstRun }

// onboard points a user without an API key at the options command.
func (a *App) onboard(ctx context.Context) error {
	a.Log.Info("no api key configured; run `reviewbadge options` to set one")
	err := a.Notifier.Show(ctx, notifier.Notification{
		ID:      onboardID,
		Title:   a.Config.Notifier.Title,
		Message: "Run `reviewbadge options` to add your API key.",
		Icon:    a.Config.Notifier.Icon,
	})
	if errors.Is(err, notifier.ErrNoSinks) {
		return nil
	}
	return err
}

// Run is the daemon: it arms the stored alarms, follows the settings file and
// notification clicks, and polls until ctx is done.
func (a *App) Run(ctx context.Context) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.Log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	triggers := a.Poller.Subscribe(a.Bus)
	if err := a.Alarms.Start(sup.Context()); err != nil {
		triggers.Close()
		return err
	}
	sup.GoRestart("settings.watch", a.Settings.Watch, 250*time.Millisecond, 5*time.Second)
	if a.desktop != nil {
		sup.GoRestart("notifier.clicks", func(ctx context.Context) error {
			return a.desktop.Listen(ctx, a.Bus)
		}, time.Second, 30*time.Second)
	}
	sup.Go("poller", func(ctx context.Context) error { return a.Poller.Run(ctx, triggers) })
	if addr := a.Config.Debug.Addr; addr != "" {
		dbg := debugserver.New(debugserver.Config{Addr: addr, Token: a.Config.Debug.Token},
			a.Log.With(logx.String("comp", "debug")),
			func(ctx context.Context) any { return a.health(ctx, sup) })
		sup.GoRestart("debug.http", dbg.Run, 500*time.Millisecond, 10*time.Second)
	}

	if err := a.Poller.OnInstalled(sup.Context(), a.firstRun); err != nil {
		a.Log.Warn("onboarding failed", logx.Err(err))
	}
	if ok, err := systemdmanager.NotifyReady(); err != nil {
		a.Log.Warn("sd_notify failed", logx.Err(err))
	} else if ok {
		a.Log.Debug("notified systemd: ready")
	}
	a.Log.Info("running",
		logx.String("settings", a.Settings.Path()),
		logx.String("storage", a.Config.Storage.Path),
		logx.Any("sinks", a.Notifier.Sinks()),
	)

	<-sup.Done()
	_, _ = systemdmanager.NotifyStopping()
	a.Log.Info("stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Alarms.Stop(stopCtx)
	err := sup.Wait(stopCtx)
	for _, st := range sup.Snapshot() {
		a.Log.Debug("loop summary", logx.String("name", st.Name), logx.Int("restarts", st.Restarts), logx.Int("panics", st.Panics))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		a.Log.Warn("shutdown timed out")
		return nil
	}
	return err
}

// Close releases storage, the session bus and log files.
func (a *App) Close() error {
	var errs []error
	if a.desktop != nil {
		errs = append(errs, a.desktop.Close())
	}
	if a.Local != nil {
		errs = append(errs, a.Local.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
