package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"

	"catalogwatch/internal/catalog"
	logx "catalogwatch/pkg/logx"
)

func sample() catalog.Snapshot {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return catalog.Snapshot{
		"atom-hoody": {
			Key: "atom-hoody", Title: "Atom Hoody", SKU: "X000007487", Currency: "CA$",
			Price: catalog.MustPrice("360.00"), Sizes: map[string]int{"M": 2, "L": 0},
			InStock: true, URL: "https://shop.test/atom-hoody/p", LastSeen: at,
		},
		"beta-jacket": catalog.Placeholder("beta-jacket", "https://shop.test/beta-jacket/p", at),
	}
}

func assertSame(t *testing.T, got, want catalog.Snapshot) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for k, w := range want {
		g, ok := got[k]
		if !ok {
			t.Fatalf("missing key %q", k)
		}
		if g.Title != w.Title || g.SKU != w.SKU || g.InStock != w.InStock || g.Note != w.Note || g.URL != w.URL {
			t.Fatalf("record %q = %+v, want %+v", k, g, w)
		}
		if !g.Price.Equal(w.Price) {
			t.Fatalf("record %q price = %v, want %v", k, g.Price, w.Price)
		}
		if !g.LastSeen.Equal(w.LastSeen) {
			t.Fatalf("record %q last_seen = %v, want %v", k, g.LastSeen, w.LastSeen)
		}
		if len(g.Sizes) != len(w.Sizes) {
			t.Fatalf("record %q sizes = %v, want %v", k, g.Sizes, w.Sizes)
		}
	}
}

func TestFileMissingIsEmpty(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "state", "snapshot.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if got := st.Load(context.Background()); got == nil || len(got) != 0 {
		t.Fatalf("Load = %v, want empty", got)
	}
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := st.Save(ctx, sample()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	assertSame(t, st.Load(ctx), sample())

	// Full replacement, never a merge.
	next := catalog.Snapshot{"only": {Key: "only", Title: "Only"}}
	if err := st.Save(ctx, next); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := st.Load(ctx); len(got) != 1 {
		t.Fatalf("Load after replace = %d records, want 1", len(got))
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), `"price": null`) {
		t.Fatalf("undefined price not stored as null:\n%s", b)
	}
}

func TestFileCorruptIsEmpty(t *testing.T) {
	t.Parallel()
	for name, body := range map[string]string{
		"garbage":   "{not json",
		"empty":     "",
		"nan price": `{"a": {"key": "a", "price": NaN}}`,
		"bad price": `{"a": {"key": "a", "price": -5}}`,
		"array":     `[1, 2]`,
	} {
		path := filepath.Join(t.TempDir(), "snapshot.json")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		fs := &fileStore{path: path, log: logx.Nop(), rename: os.Rename}
		if _, err := fs.read(); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("%s: read err = %v, want ErrCorrupt", name, err)
		}
		if got := fs.Load(context.Background()); len(got) != 0 {
			t.Fatalf("%s: Load = %v, want empty", name, got)
		}
	}
}

func TestFileSaveFailureKeepsPrevious(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	st := &fileStore{path: path, log: logx.Nop(), rename: os.Rename}
	ctx := context.Background()
	if err := st.Save(ctx, sample()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	st.rename = func(string, string) error { return errors.New("power loss") }
	err := st.Save(ctx, catalog.Snapshot{"other": {Key: "other"}})
	if err == nil {
		t.Fatal("Save: expected error")
	}

	assertSame(t, st.Load(ctx), sample())
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("dir entries = %v, want only snapshot.json", names)
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "snapshot.db"), BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if got := st.Load(ctx); len(got) != 0 {
		t.Fatalf("Load on fresh db = %v, want empty", got)
	}
	if err := st.Save(ctx, sample()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	assertSame(t, st.Load(ctx), sample())

	if err := st.Save(ctx, catalog.Snapshot{}); err != nil {
		t.Fatalf("Save empty: %v", err)
	}
	if got := st.Load(ctx); len(got) != 0 {
		t.Fatalf("Load after empty save = %d records, want 0", len(got))
	}
}

func TestPostgresReplaceBatch(t *testing.T) {
	t.Parallel()
	now := time.Unix(1700000000, 0).UTC()
	b, err := replaceBatch(sample(), now)
	if err != nil {
		t.Fatalf("replaceBatch: %v", err)
	}
	qs := b.QueuedQueries
	if len(qs) != len(sample())+1 {
		t.Fatalf("queued = %d, want %d", len(qs), len(sample())+1)
	}
	if !strings.HasPrefix(qs[0].SQL, "DELETE FROM catalog_snapshot") {
		t.Fatalf("first query = %q, want the table cleared first", qs[0].SQL)
	}

	got := catalog.Snapshot{}
	var keys []string
	for _, q := range qs[1:] {
		if len(q.Arguments) != 3 {
			t.Fatalf("arguments = %v", q.Arguments)
		}
		key, _ := q.Arguments[0].(string)
		raw, _ := q.Arguments[1].([]byte)
		if at, _ := q.Arguments[2].(time.Time); !at.Equal(now) {
			t.Fatalf("updated_at = %v, want %v", q.Arguments[2], now)
		}
		r, err := decodeRecord(key, raw)
		if err != nil {
			t.Fatalf("decodeRecord(%q): %v", key, err)
		}
		keys = append(keys, key)
		got[key] = r
	}
	if want := sample().Keys(); !reflect.DeepEqual(keys, want) {
		t.Fatalf("insert order = %v, want %v", keys, want)
	}
	assertSame(t, got, sample())

	b, err = replaceBatch(catalog.Snapshot{}, now)
	if err != nil || b.Len() != 1 {
		t.Fatalf("empty snapshot batch = %d queries, err %v, want only the delete", b.Len(), err)
	}
}

func TestOpenPostgresRejectsBadDSN(t *testing.T) {
	t.Parallel()
	for _, dsn := range []string{"", "   ", "postgres://u@localhost:notaport/db"} {
		if _, err := Open(Config{Driver: "postgres", DSN: dsn}, logx.Nop()); err == nil {
			t.Fatalf("Open(dsn=%q) = nil error", dsn)
		}
	}
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("CATALOGWATCH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CATALOGWATCH_TEST_PG_DSN not set")
	}
	st, err := Open(Config{Driver: "postgres", DSN: dsn}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.Save(ctx, sample()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	assertSame(t, st.Load(ctx), sample())
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing path")
	}
}
