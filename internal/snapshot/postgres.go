package snapshot

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"catalogwatch/internal/catalog"
	logx "catalogwatch/pkg/logx"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS catalog_snapshot (
  key        TEXT PRIMARY KEY,
  record     JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("snapshot.dsn is required for postgres driver")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse dsn")
	}
	pcfg.MaxConns = 2

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "migrate postgres")
	}
	return &postgresStore{pool: pool, log: log}, nil
}

func (s *postgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *postgresStore) Load(ctx context.Context) catalog.Snapshot {
	snap, err := s.load(ctx)
	if err != nil {
		s.log.Warn("snapshot load failed; starting from empty baseline", logx.String("driver", "postgres"), logx.Err(err))
		return catalog.Snapshot{}
	}
	return snap
}

func (s *postgresStore) load(ctx context.Context) (catalog.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, record FROM catalog_snapshot`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := catalog.Snapshot{}
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		r, err := decodeRecord(key, raw)
		if err != nil {
			return nil, err
		}
		snap[key] = r
	}
	return snap, rows.Err()
}

// replaceBatch clears the table and inserts every record, in key order.
func replaceBatch(snap catalog.Snapshot, now time.Time) (*pgx.Batch, error) {
	b := &pgx.Batch{}
	b.Queue(`DELETE FROM catalog_snapshot`)
	for _, key := range snap.Keys() {
		raw, err := json.Marshal(snap[key])
		if err != nil {
			return nil, errors.Wrapf(err, "encode %q", key)
		}
		b.Queue(`INSERT INTO catalog_snapshot(key, record, updated_at) VALUES ($1, $2, $3)`, key, raw, now)
	}
	return b, nil
}

// Save queues the delete and every insert in one batch inside a transaction.
func (s *postgresStore) Save(ctx context.Context, snap catalog.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := replaceBatch(snap, time.Now().UTC())
	if err != nil {
		return err
	}
	br := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return errors.Wrap(err, "write snapshot")
		}
	}
	if err := br.Close(); err != nil {
		return errors.Wrap(err, "close batch")
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	s.log.Debug("snapshot saved", logx.String("driver", "postgres"), logx.Int("records", len(snap)))
	return nil
}
