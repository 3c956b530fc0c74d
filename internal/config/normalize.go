package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"catalogwatch/internal/catalog"
	"catalogwatch/internal/schedule"
)

const (
	DefaultSnapshotPath   = "snapshot.json"
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultNotifyInterval = 100 * time.Millisecond
	DefaultSchedule       = "every:1h"
)

func boolPtr(v bool) *bool { return &v }

// BoolValue dereferences p, returning def when unset.
func BoolValue(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Normalize fills defaults in place. It never fails; Validate reports
// values that are present but wrong.
func (c *Config) Normalize() {
	cc := &c.Catalog
	cc.CollectionURL = strings.TrimSpace(cc.CollectionURL)
	if strings.TrimSpace(cc.DetailMarker) == "" {
		cc.DetailMarker = catalog.DefaultDetailMarker
	}
	if strings.TrimSpace(cc.LinkSelector) == "" {
		cc.LinkSelector = "a[href]"
	}
	if cc.SameHost == nil {
		cc.SameHost = boolPtr(true)
	}
	if strings.TrimSpace(cc.PageParam) == "" {
		cc.PageParam = "page"
	}
	if cc.MaxEmptyPages <= 0 {
		cc.MaxEmptyPages = 2
	}
	if cc.DisplayBase == "" {
		if u, err := url.Parse(cc.CollectionURL); err == nil && u.Host != "" {
			cc.DisplayBase = u.Scheme + "://" + u.Host
		}
	}

	f := &c.Fetch
	f.Backend = strings.ToLower(strings.TrimSpace(f.Backend))
	if f.Backend == "" {
		f.Backend = "browser"
	}
	if f.Headless == nil {
		f.Headless = boolPtr(true)
	}
	if strings.TrimSpace(f.UserAgent) == "" {
		f.UserAgent = DefaultUserAgent
	}
	if f.Timeout == "" {
		f.Timeout = "8s"
	}
	if f.Attempts <= 0 {
		f.Attempts = 2
	}
	if f.DelayMin == "" && f.DelayMax == "" {
		f.DelayMin, f.DelayMax = "80ms", "220ms"
	}
	if f.RetryDelayMin == "" && f.RetryDelayMax == "" {
		f.RetryDelayMin, f.RetryDelayMax = "200ms", "400ms"
	}

	if c.Stock.Policy == "" {
		c.Stock.Policy = string(catalog.StockQuantity)
	}
	if c.Stock.SummaryLimit <= 0 {
		c.Stock.SummaryLimit = 8
	}

	s := &c.Snapshot
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	if s.Driver == "" {
		s.Driver = "file"
	}
	if s.Driver != "postgres" && strings.TrimSpace(s.Path) == "" {
		s.Path = DefaultSnapshotPath
	}

	g := &c.Guard
	if g.Enabled == nil {
		g.Enabled = boolPtr(true)
	}
	if g.MinTotal <= 0 {
		g.MinTotal = 20
	}
	if g.MaxNewRatio <= 0 {
		g.MaxNewRatio = 0.70
	}

	if c.Notify.Interval == "" {
		c.Notify.Interval = DefaultNotifyInterval.String()
	}

	if strings.TrimSpace(c.Schedule.Spec) == "" {
		c.Schedule.Spec = DefaultSchedule
	}

	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Catalog.CollectionURL)
	if c.Catalog.CollectionURL == "" || err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.Errorf("catalog.collection_url: must be an absolute http(s) URL, got %q", c.Catalog.CollectionURL)
	}
	if c.Catalog.MaxPages < 0 {
		return errors.New("catalog.max_pages: must be >= 0")
	}

	switch c.Fetch.Backend {
	case "browser", "http":
	default:
		return errors.Errorf("fetch.backend: unknown backend %q", c.Fetch.Backend)
	}
	for path, raw := range map[string]string{
		"fetch.timeout":           c.Fetch.Timeout,
		"fetch.delay_min":         c.Fetch.DelayMin,
		"fetch.delay_max":         c.Fetch.DelayMax,
		"fetch.retry_delay_min":   c.Fetch.RetryDelayMin,
		"fetch.retry_delay_max":   c.Fetch.RetryDelayMax,
		"snapshot.busy_timeout":   c.Snapshot.BusyTimeout,
		"notify.interval":         c.Notify.Interval,
		"notify.discord.timeout":  c.Notify.Discord.Timeout,
		"notify.telegram.timeout": c.Notify.Telegram.Timeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if mustDuration(c.Fetch.DelayMin, 0) > mustDuration(c.Fetch.DelayMax, 0) {
		return errors.New("fetch.delay_min: must not exceed delay_max")
	}
	if mustDuration(c.Fetch.RetryDelayMin, 0) > mustDuration(c.Fetch.RetryDelayMax, 0) {
		return errors.New("fetch.retry_delay_min: must not exceed retry_delay_max")
	}

	if _, err := catalog.ParseStockPolicy(c.Stock.Policy); err != nil {
		return errors.Wrap(err, "stock.policy")
	}

	switch c.Snapshot.Driver {
	case "file", "json", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Snapshot.Path) == "" {
			return errors.New("snapshot.path: required")
		}
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(c.Snapshot.DSN) == "" {
			return errors.New("snapshot.dsn: required for postgres")
		}
	default:
		return errors.Errorf("snapshot.driver: unknown driver %q", c.Snapshot.Driver)
	}

	if c.Guard.MaxNewRatio > 1 {
		return errors.New("guard.max_new_ratio: must be within (0, 1]")
	}

	if c.Notify.Telegram.Token != "" && c.Notify.Telegram.ChatID == 0 {
		return errors.New("notify.telegram.chat_id: required when a token is set")
	}

	if _, err := schedule.ParseSchedule(c.Schedule.Spec); err != nil {
		return errors.Wrap(err, "schedule.spec")
	}
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return errors.Wrapf(err, "schedule.timezone: %q", tz)
		}
	}
	return nil
}

// Durations resolved from a validated config.
func (c *Config) FetchTimeout() time.Duration   { return mustDuration(c.Fetch.Timeout, 8*time.Second) }
func (c *Config) NotifyInterval() time.Duration { return mustDuration(c.Notify.Interval, 0) }

func (c *Config) DelayRange() (time.Duration, time.Duration) {
	return mustDuration(c.Fetch.DelayMin, 0), mustDuration(c.Fetch.DelayMax, 0)
}

func (c *Config) RetryDelayRange() (time.Duration, time.Duration) {
	return mustDuration(c.Fetch.RetryDelayMin, 0), mustDuration(c.Fetch.RetryDelayMax, 0)
}
