package config

// Config is the on-disk configuration (JSON, or YAML with a .yaml/.yml
// extension). Unknown fields are rejected.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Catalog  CatalogConfig  `json:"catalog"`
	Fetch    FetchConfig    `json:"fetch"`
	Stock    StockConfig    `json:"stock"`
	Snapshot SnapshotConfig `json:"snapshot"`
	Guard    GuardConfig    `json:"guard"`
	Notify   NotifyConfig   `json:"notify"`
	Schedule ScheduleConfig `json:"schedule"`
	Logging  LoggingConfig  `json:"logging"`
}

// CatalogConfig describes where the catalog lives and how PDP links and
// keys look.
type CatalogConfig struct {
	CollectionURL string `json:"collection_url"`
	// DisplayBase rebuilds canonical URLs ("https://www.als.com").
	DisplayBase  string `json:"display_base,omitempty"`
	DetailMarker string `json:"detail_marker,omitempty"` // default "p"

	LinkSelector string   `json:"link_selector,omitempty"` // default "a[href]"
	LinkContains []string `json:"link_contains,omitempty"`
	// SameHost defaults to true.
	SameHost  *bool  `json:"same_host,omitempty"`
	PageParam string `json:"page_param,omitempty"` // default "page"

	MaxPages      int `json:"max_pages,omitempty"`
	MaxEmptyPages int `json:"max_empty_pages,omitempty"` // default 2

	// Keyword keeps only products whose title contains it (case-insensitive).
	Keyword string `json:"keyword,omitempty"`
}

// FetchConfig selects the page loader.
//
// Defaults:
//   - backend: "browser"
//   - headless: true
//   - timeout: "8s"
//   - attempts: 2
//   - delay_min/delay_max: "80ms"/"220ms"
//   - retry_delay_min/retry_delay_max: "200ms"/"400ms"
type FetchConfig struct {
	Backend    string `json:"backend,omitempty"` // "browser" | "http"
	Headless   *bool  `json:"headless,omitempty"`
	ChromePath string `json:"chrome_path,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`

	DelayMin      string `json:"delay_min,omitempty"`
	DelayMax      string `json:"delay_max,omitempty"`
	RetryDelayMin string `json:"retry_delay_min,omitempty"`
	RetryDelayMax string `json:"retry_delay_max,omitempty"`
}

type StockConfig struct {
	Policy       string `json:"policy,omitempty"` // "quantity" | "boolean"
	SummaryLimit int    `json:"summary_limit,omitempty"`
}

// SnapshotConfig configures persistence.
//
// Example:
//
//	"snapshot": { "driver": "sqlite", "path": "./state/snapshot.db" }
type SnapshotConfig struct {
	Driver      string `json:"driver,omitempty"` // "file" | "sqlite" | "postgres"
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres; do not log
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// GuardConfig configures new-listing storm suppression. Enabled defaults to
// true.
type GuardConfig struct {
	Enabled     *bool   `json:"enabled,omitempty"`
	MinTotal    int     `json:"min_total,omitempty"`
	MaxNewRatio float64 `json:"max_new_ratio,omitempty"`
}

type NotifyConfig struct {
	// Interval is the minimum spacing between two notifications.
	Interval string         `json:"interval,omitempty"`
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
}

type DiscordConfig struct {
	WebhookURL string `json:"webhook_url,omitempty"` // do not log
	Title      string `json:"title,omitempty"`
	Footer     string `json:"footer,omitempty"`
	Color      int    `json:"color,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"` // do not log
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// ScheduleConfig controls daemon mode.
//
// Spec accepts a cron expression (5 or 6 fields, or a descriptor such as
// "@hourly"), "cron:<expr>", "every:<duration>", a bare Go duration, or an
// "HH:MM" interval.
type ScheduleConfig struct {
	Spec       string `json:"spec,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	RunOnStart bool   `json:"run_on_start,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
