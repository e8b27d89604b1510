package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"tickwheel/internal/config"
	"tickwheel/internal/eventbus"
	"tickwheel/internal/executor"
	"tickwheel/internal/journal"
	"tickwheel/internal/runtime/supervisor"
	"tickwheel/internal/timewheel"
	logx "tickwheel/pkg/logx"
)

// App wires config, logging, the worker pool, the wheel scheduler, and the
// run journal into one daemon lifecycle.
type App struct {
	mgr    *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus   eventbus.Bus
	exec  *executor.Service
	sched *timewheel.Scheduler
	store journal.Store
	sup   *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(loggingConfig(cfg.Logging))
	mgr.SetLogger(log)

	return &App{mgr: mgr, logSvc: logSvc, log: log}, nil
}

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Start(ctx context.Context) error {
	cfg := a.mgr.Get()
	if cfg == nil {
		return errors.New("app: no config loaded")
	}

	a.bus = eventbus.New()

	store, err := journal.Open(journalConfig(cfg.Journal), a.log.With(logx.String("svc", "journal")))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	a.store = store

	a.exec = executor.New(executorConfig(cfg.Executor), a.log.With(logx.String("svc", "executor")), a.bus)
	a.exec.Start(ctx)

	tick, _ := config.ParseDurationOrDefault("scheduler.tick", cfg.Scheduler.Tick, timewheel.DefaultTick)
	sched, err := timewheel.New(timewheel.Config{Tick: tick}, a.exec, a.log.With(logx.String("svc", "scheduler")))
	if err != nil {
		return err
	}
	a.sched = sched

	for i, lvl := range cfg.Scheduler.Levels {
		span, err := config.ParseDurationField(fmt.Sprintf("scheduler.levels[%d].span", i), lvl.Span)
		if err != nil {
			return err
		}
		if err := sched.AppendLevel(lvl.Buckets, span, lvl.Name); err != nil {
			return err
		}
	}

	if err := a.registerSchedules(cfg); err != nil {
		return err
	}

	if !sched.Start() {
		return errors.New("app: scheduler refused to start (no levels configured?)")
	}

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))
	a.sup.Go("config-watch", a.mgr.Watch)
	a.sup.Go("config-apply", a.applyLoop)
	if a.store != nil {
		w := journal.NewWriter(a.store, a.bus, a.log)
		a.sup.Go("journal-writer", w.Run)
	}

	a.log.Info("app started",
		logx.Int("levels", len(cfg.Scheduler.Levels)),
		logx.Int("schedules", len(cfg.Schedules)),
		logx.Duration("tick", tick))
	return nil
}

// Stop tears the daemon down in reverse order: no new fires, then workers,
// then background loops, then sinks.
func (a *App) Stop(ctx context.Context) error {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.exec != nil {
		a.exec.Stop(ctx)
	}
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.logSvc != nil {
		_ = a.logSvc.Close()
	}
	return err
}

// applyLoop re-applies hot-reloadable config. Only logging is live today;
// pool sizing and wheel topology require a restart.
func (a *App) applyLoop(ctx context.Context) error {
	sub := a.mgr.Subscribe(1)
	defer a.mgr.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cfg, ok := <-sub:
			if !ok {
				return nil
			}
			a.logSvc.Apply(loggingConfig(cfg.Logging))
			a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
		}
	}
}

func (a *App) registerSchedules(cfg *config.Config) error {
	for _, sc := range cfg.Schedules {
		spec, err := config.ParseSchedule(sc.Spec)
		if err != nil {
			return fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		switch spec.Kind {
		case config.SpecInterval:
			id := a.sched.CreateTimerEvery(spec.Every, a.scheduleJob(sc.Name))
			if id == 0 {
				return fmt.Errorf("schedule %q: timer not created", sc.Name)
			}
			a.log.Info("schedule registered",
				logx.String("schedule", sc.Name),
				logx.Duration("every", spec.Every),
				logx.Uint64("timer", id))
		case config.SpecCron:
			if !a.armCron(sc.Name, spec.Schedule) {
				return fmt.Errorf("schedule %q: timer not created", sc.Name)
			}
			a.log.Info("schedule registered",
				logx.String("schedule", sc.Name),
				logx.String("cron", spec.Cron))
		}
	}
	return nil
}

func (a *App) scheduleJob(name string) timewheel.Callback {
	return func() {
		a.log.Info("schedule fired", logx.String("schedule", name))
	}
}

// armCron registers the schedule's next activation as a one-shot timer.
// The callback re-arms the following activation from inside the executor,
// which is safe: the driver lock is long released by then.
func (a *App) armCron(name string, sched cron.Schedule) bool {
	next := sched.Next(time.Now())
	if next.IsZero() {
		a.log.Warn("schedule has no next activation", logx.String("schedule", name))
		return false
	}
	id := a.sched.CreateTimerAt(next, func() {
		a.log.Info("schedule fired", logx.String("schedule", name))
		a.armCron(name, sched)
	})
	if id == 0 {
		return false
	}
	a.log.Debug("schedule armed",
		logx.String("schedule", name),
		logx.Time("next", next),
		logx.Uint64("timer", id))
	return true
}

func loggingConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

func executorConfig(c config.ExecutorConfig) executor.Config {
	timeout, _ := config.ParseDurationField("executor.default_timeout", c.DefaultTimeout)
	return executor.Config{
		Workers:        c.Workers,
		QueueSize:      c.QueueSize,
		HistorySize:    c.HistorySize,
		DefaultTimeout: timeout,
	}
}

func journalConfig(c config.JournalConfig) journal.Config {
	busy, _ := config.ParseDurationField("journal.busy_timeout", c.BusyTimeout)
	retention, _ := config.ParseDurationField("journal.retention", c.Retention)
	return journal.Config{
		Driver:      c.Driver,
		Path:        c.Path,
		BusyTimeout: busy,
		Retention:   retention,
	}
}
