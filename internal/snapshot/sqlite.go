package snapshot

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	_ "modernc.org/sqlite"

	"catalogwatch/internal/catalog"
	logx "catalogwatch/pkg/logx"
)

//go:embed schema.sql
var sqliteSchema string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("snapshot.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create snapshot dir")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// One writer; runs never overlap.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate sqlite")
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) catalog.Snapshot {
	snap, err := s.load(ctx)
	if err != nil {
		s.log.Warn("snapshot load failed; starting from empty baseline", logx.String("driver", "sqlite"), logx.Err(err))
		return catalog.Snapshot{}
	}
	return snap
}

func (s *sqliteStore) load(ctx context.Context) (catalog.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, record FROM catalog_snapshot`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := catalog.Snapshot{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		r, err := decodeRecord(key, []byte(raw))
		if err != nil {
			return nil, err
		}
		snap[key] = r
	}
	return snap, rows.Err()
}

// Save replaces every row inside one transaction.
func (s *sqliteStore) Save(ctx context.Context, snap catalog.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_snapshot`); err != nil {
		return errors.Wrap(err, "clear snapshot")
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO catalog_snapshot(key, record, updated_at) VALUES(?,?,?)`)
	if err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, key := range snap.Keys() {
		b, err := json.Marshal(snap[key])
		if err != nil {
			return errors.Wrapf(err, "encode %q", key)
		}
		if _, err := stmt.ExecContext(ctx, key, string(b), now); err != nil {
			return errors.Wrapf(err, "insert %q", key)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	s.log.Debug("snapshot saved", logx.String("driver", "sqlite"), logx.Int("records", len(snap)))
	return nil
}
