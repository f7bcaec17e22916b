// Package app wires the daemon together: config, logging, storage, the
// alarm scheduler, the pomodoro engine, notification delivery and the
// local API surface.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"studymate/internal/alarms"
	"studymate/internal/config"
	"studymate/internal/eventbus"
	"studymate/internal/notify"
	"studymate/internal/server"
	"studymate/internal/storage"
	"studymate/internal/timer"
	logx "studymate/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	bus    *eventbus.Bus
	store  *storage.Store
	driver *alarms.TimerDriver
	alarms *alarms.Service
	timer  *timer.Engine
	notes  *notify.Service
	api    *server.Server

	cancel context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(validateConfig)

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout, 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	bus := eventbus.New()

	notes, err := notify.New(notify.Config{
		RatePerSec: cfg.Notify.RatePerSec,
		Telegram: notify.TelegramConfig{
			Enabled: cfg.Notify.Telegram.Enabled,
			Token:   cfg.Notify.Telegram.Token,
			ChatID:  cfg.Notify.Telegram.ChatID,
		},
	}, log.With(logx.String("comp", "notify")))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("notify: %w", err)
	}

	driver := alarms.NewTimerDriver(notes.Deliver, log.With(logx.String("comp", "alarms.driver")))

	taskLead, err := config.ParseDurationField("alarms.task_lead", cfg.Alarms.TaskLead, time.Hour)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	alarmSvc := alarms.New(alarms.Config{
		DefaultLeadMinutes: cfg.Alarms.DefaultLeadMinutes,
		TaskLead:           taskLead,
		ReconcileSpec:      cfg.Alarms.ReconcileSpec,
	}, store, driver, log.With(logx.String("comp", "alarms")))

	engine := timer.New(store, alarmSvc, bus, log.With(logx.String("comp", "timer")))

	var api *server.Server
	if cfg.Server.Enabled {
		api = server.New(server.Config{Addr: cfg.Server.Addr},
			store, alarmSvc, engine, notes, bus,
			log.With(logx.String("comp", "api")))
	}

	return &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		bus:    bus,
		store:  store,
		driver: driver,
		alarms: alarmSvc,
		timer:  engine,
		notes:  notes,
		api:    api,
	}, nil
}

func validateConfig(ctx context.Context, cfg *config.Config) error {
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout, 0); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("alarms.task_lead", cfg.Alarms.TaskLead, 0); err != nil {
		return err
	}
	if cfg.Alarms.DefaultLeadMinutes < 0 {
		return fmt.Errorf("alarms.default_lead_minutes must be >= 0")
	}
	if cfg.Notify.RatePerSec < 0 {
		return fmt.Errorf("notify.rate_per_sec must be >= 0")
	}
	p := cfg.Pomodoro
	if p.FocusMinutes < 0 || p.ShortBreakMinutes < 0 || p.LongBreakMinutes < 0 {
		return fmt.Errorf("pomodoro durations must be >= 0")
	}
	return nil
}

// Start brings every service up, runs the boot recovery pass that rebuilds
// alarm registrations from the store, and resumes a persisted countdown.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.alarms.Start(runCtx); err != nil {
		cancel()
		return err
	}

	// Registrations live in process memory only; rebuild them before
	// anything else so a restart never silently loses a wake-up.
	rep := a.alarms.Recover(runCtx)
	a.log.Info("alarm recovery done",
		logx.Int("classes", rep.Classes),
		logx.Int("tasks", rep.Tasks),
		logx.Int("skipped", rep.Skipped),
		logx.Int("failed", rep.Failed))

	if err := a.timer.Restore(runCtx); err != nil {
		a.log.Warn("timer restore failed, starting fresh", logx.Err(err))
	}
	if p := a.cfgm.Get().Pomodoro; !p.IsZero() {
		a.applyPomodoro(runCtx, p)
	}

	if a.api != nil {
		if err := a.api.Start(runCtx); err != nil {
			cancel()
			return err
		}
	}

	go a.watchConfig(runCtx)
	go a.reloadLoop(runCtx)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("studymate started")
	return nil
}

// Stop tears services down in reverse dependency order. The timer engine
// leaves its persisted record untouched so the next boot resumes it.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.cancel != nil {
		a.cancel()
	}
	if a.api != nil {
		a.api.Stop(ctx)
	}
	a.timer.Stop()
	a.alarms.Stop(ctx)
	a.driver.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
	a.log.Info("studymate stopped")
	return a.logs.Close()
}

func (a *App) watchConfig(ctx context.Context) {
	if err := a.cfgm.Watch(ctx); err != nil {
		a.log.Warn("config watch stopped", logx.Err(err))
	}
}

// reloadLoop applies hot-reloadable config sections. Storage and server
// changes need a restart; logging, pomodoro durations and the alarm leads
// apply live.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			if !cfg.Pomodoro.IsZero() {
				a.applyPomodoro(ctx, cfg.Pomodoro)
			}
			a.log.Info("config reloaded")
		}
	}
}

func (a *App) applyPomodoro(ctx context.Context, p config.PomodoroConfig) {
	st := a.timer.Snapshot()
	focus, short, long := st.FocusMinutes, st.ShortBreakMinutes, st.LongBreakMinutes
	if p.FocusMinutes > 0 {
		focus = p.FocusMinutes
	}
	if p.ShortBreakMinutes > 0 {
		short = p.ShortBreakMinutes
	}
	if p.LongBreakMinutes > 0 {
		long = p.LongBreakMinutes
	}
	if focus == st.FocusMinutes && short == st.ShortBreakMinutes && long == st.LongBreakMinutes {
		return
	}
	if err := a.timer.UpdateDurations(ctx, focus, short, long); err != nil {
		a.log.Warn("applying pomodoro durations failed", logx.Err(err))
	}
}
