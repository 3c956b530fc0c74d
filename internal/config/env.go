package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// ApplyEnv overlays environment overrides on c. getenv is os.Getenv outside
// tests. Empty variables are ignored.
//
//	DISCORD_WEBHOOK_URL   notify.discord.webhook_url
//	TELEGRAM_BOT_TOKEN    notify.telegram.token
//	TELEGRAM_CHAT_ID      notify.telegram.chat_id
//	HEADLESS              fetch.headless ("0" disables)
//	KEYWORD_FILTER        catalog.keyword
//	BASELINE_PROTECT      guard.enabled ("0" disables)
//	NOTIFY_INTERVAL_SEC   notify.interval, in (fractional) seconds
//	SNAPSHOT_PATH         snapshot.path
//	LOG_LEVEL             logging.level
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if v := get("DISCORD_WEBHOOK_URL"); v != "" {
		c.Notify.Discord.WebhookURL = v
	}
	if v := get("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notify.Telegram.Token = v
	}
	if v := get("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "TELEGRAM_CHAT_ID: invalid value %q", v)
		}
		c.Notify.Telegram.ChatID = id
	}
	if v := get("HEADLESS"); v != "" {
		c.Fetch.Headless = boolPtr(v != "0")
	}
	if v := get("KEYWORD_FILTER"); v != "" {
		c.Catalog.Keyword = v
	}
	if v := get("BASELINE_PROTECT"); v != "" {
		c.Guard.Enabled = boolPtr(v != "0")
	}
	if v := get("NOTIFY_INTERVAL_SEC"); v != "" {
		sec, err := strconv.ParseFloat(v, 64)
		if err != nil || sec < 0 {
			return errors.Errorf("NOTIFY_INTERVAL_SEC: invalid value %q", v)
		}
		c.Notify.Interval = time.Duration(sec * float64(time.Second)).String()
	}
	if v := get("SNAPSHOT_PATH"); v != "" {
		c.Snapshot.Path = v
	}
	if v := get("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	return nil
}
