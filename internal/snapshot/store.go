package snapshot

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"catalogwatch/internal/catalog"
	logx "catalogwatch/pkg/logx"
)

// ErrCorrupt marks a stored snapshot that exists but cannot be decoded.
var ErrCorrupt = errors.New("snapshot corrupt")

// Store is the persistence API used by the pipeline.
type Store interface {
	// Load returns the stored snapshot, or an empty one when it is missing
	// or unreadable. It never returns nil.
	Load(ctx context.Context) catalog.Snapshot
	// Save fully replaces the stored snapshot.
	Save(ctx context.Context, s catalog.Snapshot) error
	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver      string
	Path        string        // file and sqlite
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store. An empty driver means "file".
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "snapshot"))

	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql", "pg":
		return openPostgres(cfg, log)
	default:
		return nil, errors.Errorf("unknown snapshot driver: %s", driver)
	}
}

// decodeRecord decodes one stored record, filling the key from its index
// when the payload omits it.
func decodeRecord(key string, raw []byte) (catalog.Record, error) {
	var r catalog.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return catalog.Record{}, errors.Wrapf(ErrCorrupt, "record %q: %v", key, err)
	}
	if r.Key == "" {
		r.Key = key
	}
	return r, nil
}
