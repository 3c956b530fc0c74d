package config

import (
	"reflect"
	"strings"

	"catalogwatch/pkg/logx"
)

// SummarizeChange lists the config sections that differ and safe fields to
// log alongside. Secrets (webhook URL, bot token, DSN) are reported only as
// set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)

	if !reflect.DeepEqual(oldCfg.Catalog, newCfg.Catalog) {
		changed = append(changed, "catalog")
		fields = append(fields,
			logx.String("catalog.collection_url", newCfg.Catalog.CollectionURL),
			logx.String("catalog.keyword", newCfg.Catalog.Keyword),
			logx.Int("catalog.max_pages", newCfg.Catalog.MaxPages),
		)
	}
	if !reflect.DeepEqual(oldCfg.Fetch, newCfg.Fetch) {
		changed = append(changed, "fetch")
		fields = append(fields,
			logx.String("fetch.backend", newCfg.Fetch.Backend),
			logx.Bool("fetch.headless", BoolValue(newCfg.Fetch.Headless, true)),
			logx.String("fetch.timeout", newCfg.Fetch.Timeout),
		)
	}
	if oldCfg.Stock != newCfg.Stock {
		changed = append(changed, "stock")
		fields = append(fields, logx.String("stock.policy", newCfg.Stock.Policy))
	}
	if oldCfg.Snapshot != newCfg.Snapshot {
		changed = append(changed, "snapshot")
		fields = append(fields,
			logx.String("snapshot.driver", newCfg.Snapshot.Driver),
			logx.String("snapshot.path", newCfg.Snapshot.Path),
			logx.Bool("snapshot.dsn_set", strings.TrimSpace(newCfg.Snapshot.DSN) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Guard, newCfg.Guard) {
		changed = append(changed, "guard")
		fields = append(fields,
			logx.Bool("guard.enabled", BoolValue(newCfg.Guard.Enabled, true)),
			logx.Int("guard.min_total", newCfg.Guard.MinTotal),
			logx.Float64("guard.max_new_ratio", newCfg.Guard.MaxNewRatio),
		)
	}
	if oldCfg.Notify != newCfg.Notify {
		changed = append(changed, "notify")
		fields = append(fields,
			logx.String("notify.interval", newCfg.Notify.Interval),
			logx.Bool("notify.discord_set", newCfg.Notify.Discord.WebhookURL != ""),
			logx.Bool("notify.telegram_set", newCfg.Notify.Telegram.Token != ""),
		)
	}
	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		fields = append(fields,
			logx.String("schedule.spec", newCfg.Schedule.Spec),
			logx.String("schedule.timezone", newCfg.Schedule.Timezone),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	return changed, fields
}
