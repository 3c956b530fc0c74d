package app

import (
	"time"

	"github.com/go-faster/errors"

	"catalogwatch/internal/catalog"
	"catalogwatch/internal/config"
	"catalogwatch/internal/diff"
	"catalogwatch/internal/fetch"
	"catalogwatch/internal/notify"
	"catalogwatch/internal/pipeline"
	"catalogwatch/internal/snapshot"
	"catalogwatch/internal/transport/discord"
	"catalogwatch/internal/transport/telegram"
	"catalogwatch/pkg/logx"
)

// components are the run-scoped objects built from one config. They are
// replaced as a whole on reload.
type components struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	store    snapshot.Store
	loader   fetch.Loader
}

func (c *components) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.loader != nil {
		errs = append(errs, c.loader.Close())
	}
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	return errors.Join(errs...)
}

// loaderFactory is swapped in tests to avoid launching a browser.
type loaderFactory func(cfg *config.Config, log logx.Logger) (fetch.Loader, error)

func defaultLoader(cfg *config.Config, log logx.Logger) (fetch.Loader, error) {
	if cfg.Fetch.Backend == "http" {
		return fetch.NewHTTPLoader(fetch.HTTPConfig{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.FetchTimeout(),
		}, log), nil
	}
	return fetch.NewBrowserLoader(fetch.BrowserConfig{
		Headless:  config.BoolValue(cfg.Fetch.Headless, true),
		UserAgent: cfg.Fetch.UserAgent,
		ExecPath:  cfg.Fetch.ChromePath,
		Timeout:   cfg.FetchTimeout(),
	}, log)
}

func buildComponents(cfg *config.Config, newLoader loaderFactory, log logx.Logger) (*components, error) {
	policy, err := catalog.ParseStockPolicy(cfg.Stock.Policy)
	if err != nil {
		return nil, err
	}
	keys := catalog.KeyResolver{Marker: cfg.Catalog.DetailMarker, DisplayBase: cfg.Catalog.DisplayBase}

	n, err := buildNotifier(cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := snapshot.Open(mapSnapshotConfig(cfg), log)
	if err != nil {
		return nil, err
	}
	loader, err := newLoader(cfg, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	delayMin, delayMax := cfg.DelayRange()
	retryMin, retryMax := cfg.RetryDelayRange()
	crawler, err := fetch.NewCrawler(fetch.Options{
		CollectionURL: cfg.Catalog.CollectionURL,
		PageParam:     cfg.Catalog.PageParam,
		LinkSelector:  cfg.Catalog.LinkSelector,
		LinkContains:  cfg.Catalog.LinkContains,
		SameHost:      config.BoolValue(cfg.Catalog.SameHost, true),
		MaxPages:      cfg.Catalog.MaxPages,
		MaxEmptyPages: cfg.Catalog.MaxEmptyPages,
		Attempts:      cfg.Fetch.Attempts,
		DelayMin:      delayMin,
		DelayMax:      delayMax,
		RetryDelayMin: retryMin,
		RetryDelayMax: retryMax,
		Keyword:       cfg.Catalog.Keyword,
		Policy:        policy,
		Keys:          keys,
	}, loader, log)
	if err != nil {
		_ = loader.Close()
		_ = store.Close()
		return nil, err
	}

	guard := diff.Guard{
		Enabled:     config.BoolValue(cfg.Guard.Enabled, true),
		MinTotal:    cfg.Guard.MinTotal,
		MaxNewRatio: cfg.Guard.MaxNewRatio,
	}
	p := pipeline.New(pipeline.Options{
		Policy:       policy,
		Guard:        guard,
		SummaryLimit: cfg.Stock.SummaryLimit,
		Keys:         keys,
	}, crawler, store, notify.NewDispatcher(n, cfg.NotifyInterval(), log), log)

	return &components{cfg: cfg, pipeline: p, store: store, loader: loader}, nil
}

// buildNotifier returns nil when no transport is configured.
func buildNotifier(cfg *config.Config, log logx.Logger) (notify.Notifier, error) {
	var ns []notify.Notifier
	if d := cfg.Notify.Discord; d.WebhookURL != "" {
		n, err := discord.New(discord.Config{
			WebhookURL: d.WebhookURL,
			Title:      d.Title,
			Footer:     d.Footer,
			Color:      d.Color,
			UserAgent:  cfg.Fetch.UserAgent,
			Timeout:    durationOr(d.Timeout, 0),
		}, log)
		if err != nil {
			return nil, err
		}
		ns = append(ns, n)
	}
	if tg := cfg.Notify.Telegram; tg.Token != "" {
		n, err := telegram.New(telegram.Config{
			Token:    tg.Token,
			ChatID:   tg.ChatID,
			ThreadID: tg.ThreadID,
			APIURL:   tg.APIURL,
			Timeout:  durationOr(tg.Timeout, 0),
		}, log)
		if err != nil {
			return nil, err
		}
		ns = append(ns, n)
	}
	return notify.Multi(ns...), nil
}

func mapSnapshotConfig(cfg *config.Config) snapshot.Config {
	return snapshot.Config{
		Driver:      cfg.Snapshot.Driver,
		Path:        cfg.Snapshot.Path,
		DSN:         cfg.Snapshot.DSN,
		BusyTimeout: durationOr(cfg.Snapshot.BusyTimeout, time.Second),
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func durationOr(raw string, def time.Duration) time.Duration {
	d, err := config.ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}
