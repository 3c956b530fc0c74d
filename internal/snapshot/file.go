package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"

	"catalogwatch/internal/catalog"
	logx "catalogwatch/pkg/logx"
)

// fileStore keeps the snapshot as a single JSON object: key -> record.
type fileStore struct {
	path string
	log  logx.Logger

	// rename is os.Rename; tests swap it to simulate a crash before the
	// temp file replaces the destination.
	rename func(oldpath, newpath string) error
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("snapshot.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create snapshot dir")
	}
	return &fileStore{path: path, log: log, rename: os.Rename}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Load(ctx context.Context) catalog.Snapshot {
	_ = ctx
	snap, err := s.read()
	switch {
	case err == nil:
		return snap
	case errors.Is(err, fs.ErrNotExist):
		s.log.Info("no snapshot yet; starting from empty baseline", logx.String("path", s.path))
	case errors.Is(err, ErrCorrupt):
		s.log.Warn("snapshot unreadable; starting from empty baseline", logx.String("path", s.path), logx.Err(err))
	default:
		s.log.Warn("snapshot load failed; starting from empty baseline", logx.String("path", s.path), logx.Err(err))
	}
	return catalog.Snapshot{}
}

func (s *fileStore) read() (catalog.Snapshot, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, errors.Wrap(ErrCorrupt, "empty file")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "%v", err)
	}
	snap := make(catalog.Snapshot, len(raw))
	for k, v := range raw {
		r, err := decodeRecord(k, v)
		if err != nil {
			return nil, err
		}
		snap[k] = r
	}
	return snap, nil
}

// Save writes the snapshot next to the destination and renames it into
// place. On any failure before the rename the temp file is removed and the
// previous snapshot stays untouched.
func (s *fileStore) Save(ctx context.Context, snap catalog.Snapshot) error {
	_ = ctx
	if snap == nil {
		snap = catalog.Snapshot{}
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	b = append(b, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp.*")
	if err != nil {
		return errors.Wrap(err, "create temp snapshot")
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp snapshot")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync temp snapshot")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp snapshot")
	}
	if err := s.rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "replace snapshot")
	}
	committed = true

	if err := syncDir(dir); err != nil {
		s.log.Debug("snapshot dir sync failed", logx.Err(err))
	}
	s.log.Debug("snapshot saved", logx.String("path", s.path), logx.Int("records", len(snap)))
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
