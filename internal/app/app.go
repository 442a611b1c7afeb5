// Package app wires configuration, logging, storage, the Telegram adapter,
// and the scheduling/dispatch services into one runnable unit.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/redteam-region722/TG-bot/internal/config"
	"github.com/redteam-region722/TG-bot/internal/services/dispatch"
	"github.com/redteam-region722/TG-bot/internal/services/notify"
	"github.com/redteam-region722/TG-bot/internal/services/schedule"
	"github.com/redteam-region722/TG-bot/internal/storage"
	kit "github.com/redteam-region722/TG-bot/internal/transport"
	"github.com/redteam-region722/TG-bot/internal/transport/telegram/adapter"
	"github.com/redteam-region722/TG-bot/internal/transport/telegram/router"
	"github.com/redteam-region722/TG-bot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	adapter *adapter.Adapter
	store   storage.Store

	sched  *schedule.Service
	disp   *dispatch.Service
	notif  *notify.Service
	router *router.Router

	updates chan kit.Update

	cancel context.CancelFunc
	wg     sync.WaitGroup
	sub    chan *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
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

	loc := time.UTC
	if tz := cfg.DisplayTimezone; tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("display_timezone: %w", err)
		}
	}

	pollTimeout, err := config.DurationOr("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := adapter.New(adapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.DurationOr("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	interval, err := config.DurationOr("dispatch.interval", cfg.Dispatch.Interval, time.Minute)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	notifSvc := notify.New(notify.Config{
		RatePerSec: cfg.Notify.RatePerSec,
		QueueSize:  cfg.Notify.QueueSize,
	}, ad, log.With(logx.String("comp", "notifier")))

	schedSvc := schedule.New(store, schedule.NewResolver(loc), log.With(logx.String("comp", "schedule")))

	dispSvc := dispatch.New(dispatch.Config{
		Interval:  interval,
		DisplayTZ: loc,
	}, store, ad, notifSvc, log.With(logx.String("comp", "dispatch")))

	rt := router.New(router.Config{
		OperatorUserIDs: cfg.Telegram.OperatorUserIDs,
	}, ad, schedSvc, store, dispSvc, log.With(logx.String("comp", "router")))

	return &App{
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		adapter: ad,
		store:   store,
		sched:   schedSvc,
		disp:    dispSvc,
		notif:   notifSvc,
		router:  rt,
		updates: make(chan kit.Update, 256),
	}, nil
}

func validate(cfg *config.Config) error {
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if len(cfg.Telegram.OperatorUserIDs) == 0 {
		return fmt.Errorf("telegram.operator_user_ids must list at least one operator")
	}
	seen := map[string]bool{}
	for i, d := range cfg.Destinations {
		if d.ID == "" || d.ChatID == 0 {
			return fmt.Errorf("destinations[%d]: id and chat_id are required", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("destinations[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Seed destinations before anything can reference them.
	for _, d := range a.cfgm.Get().Destinations {
		name := d.Name
		if name == "" {
			name = d.ID
		}
		if err := a.store.SeedDestination(runCtx, d.ID, name, d.ChatID); err != nil {
			cancel()
			return fmt.Errorf("seeding destination %q: %w", d.ID, err)
		}
	}

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}

	a.notif.Start(runCtx)
	if err := a.disp.Start(runCtx); err != nil {
		cancel()
		a.notif.Stop(ctx)
		if serr := a.adapter.Stop(ctx); serr != nil {
			a.log.Warn("adapter stop", logx.Err(serr))
		}
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.router.Run(runCtx, a.updates)
	}()

	// Hot-reload: only logging changes apply live; the rest needs a restart.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := validate(cfg); err != nil {
			return err
		}
		if tz := cfg.DisplayTimezone; tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("display_timezone: %w", err)
			}
		}
		_, err := config.DurationOr("dispatch.interval", cfg.Dispatch.Interval, time.Minute)
		return err
	})
	a.sub = a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-a.sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.log.Info("config reloaded; logging settings applied")
			}
		}
	}()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watcher exited", logx.Err(err))
		}
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify: ready")
	}

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	if a.cancel != nil {
		a.cancel()
	}

	a.disp.Stop(ctx)
	a.notif.Stop(ctx)
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("stop timed out waiting for background loops")
	}

	if a.sub != nil {
		a.cfgm.Unsubscribe(a.sub)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
	_ = a.logs.Close()
	a.log.Info("stopped")
}
