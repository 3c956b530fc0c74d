package logx

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-faster/errors"
)

func readEvents(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev map[string]any
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, ev)
	}
	return out
}

func TestServiceFileSink(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "run.log")
	svc, log := New(Config{Level: "warn", File: FileConfig{Enabled: true, Path: path}})
	defer svc.Close()

	lg := log.With(String("component", "crawler"))
	lg.Info("filtered")
	lg.Warn("collection page failed", Int("page", 2), Err(errors.New("boom")))

	evs := readEvents(t, path)
	if len(evs) != 1 {
		t.Fatalf("events = %d, want 1", len(evs))
	}
	ev := evs[0]
	if ev["message"] != "collection page failed" || ev["component"] != "crawler" || ev["err"] != "boom" {
		t.Fatalf("event = %v", ev)
	}
	if ev["page"] != float64(2) {
		t.Fatalf("page = %v, want 2", ev["page"])
	}
	if c, _ := ev["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q", c)
	}
}

func TestServiceApplySwapsLevel(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "run.log")
	cfg := Config{Level: "error", File: FileConfig{Enabled: true, Path: path}}
	svc, log := New(cfg)
	defer svc.Close()

	log.Debug("before")
	cfg.Level = "debug"
	svc.Apply(cfg)
	log.Debug("after")

	evs := readEvents(t, path)
	if len(evs) != 1 || evs[0]["message"] != "after" {
		t.Fatalf("events = %v, want only %q", evs, "after")
	}
}

func TestWithDoesNotAlias(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "run.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	defer svc.Close()

	base := log.With(String("a", "1"))
	_ = base.With(String("b", "2"))
	base.Info("x")

	evs := readEvents(t, path)
	if len(evs) != 1 {
		t.Fatalf("events = %d, want 1", len(evs))
	}
	if _, ok := evs[0]["b"]; ok {
		t.Fatalf("derived field leaked into parent: %v", evs[0])
	}
}

func TestZeroAndNopLoggers(t *testing.T) {
	t.Parallel()
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero Logger IsZero = false, want true")
	}
	zero.Info("dropped")
	nop := Nop()
	if nop.IsZero() {
		t.Fatal("Nop IsZero = true, want false")
	}
	nop.With(Any("k", []int{1})).Error("dropped", Err(nil))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"trace":   "debug",
		" WARN ":  "warn",
		"warning": "warn",
		"error":   "error",
		"":        "info",
		"loud":    "info",
	}
	for in, want := range tests {
		if got := parseLevel(in, 1).String(); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
