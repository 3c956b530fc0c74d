// Package app wires config, logging and the run components together and
// runs them once or as a scheduled daemon.
package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"catalogwatch/internal/config"
	"catalogwatch/internal/pipeline"
	"catalogwatch/internal/runtime/supervisor"
	"catalogwatch/internal/schedule"
	"catalogwatch/pkg/logx"
	"catalogwatch/pkg/systemd"
)

const stopTimeout = 30 * time.Second

type App struct {
	cfgm      *config.Manager
	logs      *logx.Service
	log       logx.Logger
	sd        *systemd.Notifier
	newLoader loaderFactory

	// runMu serializes pipeline runs and component swaps.
	runMu sync.Mutex
	comp  *components
}

// New loads the config at path (with getenv overrides; os.Getenv when nil)
// and builds the run components.
func New(path string, getenv func(string) string) (*App, error) {
	return newApp(path, getenv, defaultLoader)
}

func newApp(path string, getenv func(string) string, newLoader loaderFactory) (*App, error) {
	cfgm := config.NewManager(path, getenv, logx.NewConsole("info"))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, root := logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(root)
	log := root.With(logx.String("comp", "app"))

	comp, err := buildComponents(cfg, newLoader, root)
	if err != nil {
		_ = logs.Close()
		return nil, errors.Wrap(err, "build components")
	}
	log.Info("config loaded",
		logx.String("path", path),
		logx.String("collection_url", cfg.Catalog.CollectionURL),
		logx.String("backend", cfg.Fetch.Backend),
		logx.String("snapshot", cfg.Snapshot.Driver),
	)
	return &App{
		cfgm:      cfgm,
		logs:      logs,
		log:       log,
		sd:        &systemd.Notifier{Log: log},
		newLoader: newLoader,
		comp:      comp,
	}, nil
}

// RunOnce executes a single pipeline run with the current components.
func (a *App) RunOnce(ctx context.Context) (pipeline.Report, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.comp.pipeline.Run(ctx)
}

// Serve runs the pipeline on the configured schedule and hot-reloads the
// config until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// A reload is only committed if its transports can be built.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := buildNotifier(cfg, logx.Nop())
		return err
	})

	sub := a.cfgm.Subscribe(4)
	restart := make(chan struct{}, 1)

	sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)
	sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub, restart)
		return nil
	})
	sup.Go("scheduler", func(c context.Context) error {
		return a.scheduleLoop(c, restart)
	})
	sup.Go("systemd.watchdog", a.sd.Watchdog)

	if a.sd.Ready() {
		a.log.Debug("notified systemd: ready")
	}
	a.log.Info("daemon started")

	<-sup.Context().Done()
	a.sd.Stopping()
	a.log.Info("daemon stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := sup.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// scheduleLoop runs a schedule.Runner for the current config and replaces
// it whenever restart fires.
func (a *App) scheduleLoop(ctx context.Context, restart <-chan struct{}) error {
	first := true
	for {
		sc := a.cfgm.Get().Schedule
		runner, err := schedule.NewRunner(schedule.Config{
			Spec:       sc.Spec,
			Timezone:   sc.Timezone,
			RunOnStart: first && sc.RunOnStart,
		}, func(context.Context) { a.runScheduled(ctx) }, a.log)
		if err != nil {
			return err
		}
		first = false

		rctx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- runner.Run(rctx) }()

		select {
		case <-ctx.Done():
			cancel()
			<-done
			return nil
		case <-restart:
			cancel()
			<-done
			a.log.Info("schedule changed; scheduler restarted", logx.String("schedule", sc.Spec))
		}
	}
}

func (a *App) runScheduled(ctx context.Context) {
	rep, err := a.RunOnce(ctx)
	if err != nil {
		// The next trigger retries; the daemon keeps running.
		a.log.Error("scheduled run failed", logx.String("run_id", rep.RunID), logx.Err(err))
		a.sd.Status("last run failed: " + err.Error())
		return
	}
	a.sd.Status("last run " + rep.Started.Format(time.RFC3339) + ": " + summary(rep))
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config, restart chan<- struct{}) {
	applied := a.cfgm.Get()
	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub:
			if !ok {
				return
			}
			next = c
		}
		// Coalesce bursts: keep only the latest.
	drain:
		for {
			select {
			case c := <-sub:
				if c != nil {
					next = c
				}
			default:
				break drain
			}
		}
		a.apply(applied, next, restart)
		applied = next
	}
}

func (a *App) apply(prev, next *config.Config, restart chan<- struct{}) {
	sections, fields := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Info("config changed", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)...)

	if slices.Contains(sections, "logging") {
		a.logs.Apply(mapLogConfig(next))
	}
	if slices.Contains(sections, "schedule") {
		select {
		case restart <- struct{}{}:
		default:
		}
	}
	if !slices.ContainsFunc(sections, func(s string) bool { return s != "logging" && s != "schedule" }) {
		return
	}

	a.sd.Reloading()
	defer a.sd.Ready()
	comp, err := buildComponents(next, a.newLoader, a.logs.Logger())
	if err != nil {
		a.log.Warn("rebuild after reload failed; keeping previous components", logx.Err(err))
		return
	}
	a.runMu.Lock()
	old := a.comp
	a.comp = comp
	a.runMu.Unlock()
	if err := old.Close(); err != nil {
		a.log.Warn("closing previous components failed", logx.Err(err))
	}
	a.log.Info("run components rebuilt")
}

// Close releases the components and log sinks.
func (a *App) Close() error {
	a.runMu.Lock()
	err := a.comp.Close()
	a.comp = nil
	a.runMu.Unlock()
	return errors.Join(err, a.logs.Close())
}

func summary(rep pipeline.Report) string {
	return fmt.Sprintf("items=%d messages=%d delivered=%d failed=%d", rep.Current, rep.Messages, rep.Delivery.Delivered, rep.Delivery.Failed)
}
