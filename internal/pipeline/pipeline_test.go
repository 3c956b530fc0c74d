package pipeline

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"

	"catalogwatch/internal/catalog"
	"catalogwatch/internal/diff"
	"catalogwatch/internal/notify"
	"catalogwatch/internal/snapshot"
	"catalogwatch/pkg/logx"
)

type fakeFetcher struct {
	records []catalog.Record
	err     error
}

func (f fakeFetcher) Fetch(context.Context) ([]catalog.Record, error) {
	out := make([]catalog.Record, len(f.records))
	copy(out, f.records)
	return out, f.err
}

type memStore struct {
	mu      sync.Mutex
	snap    catalog.Snapshot
	saves   int
	saveErr error
}

func (s *memStore) Load(context.Context) catalog.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := catalog.Snapshot{}
	for k, v := range s.snap {
		out[k] = v
	}
	return out
}

func (s *memStore) Save(_ context.Context, snap catalog.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snap = snap
	return nil
}

func (s *memStore) Close() error { return nil }

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
	fail map[string]bool
}

func (r *recorder) Notify(_ context.Context, m notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[m.Key] {
		return errors.New("webhook down")
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func rec(slug, price string, inStock bool) catalog.Record {
	p := catalog.UndefinedPrice()
	if price != "" {
		p = catalog.MustPrice(price)
	}
	return catalog.Record{
		Title:   slug,
		Price:   p,
		InStock: inStock,
		URL:     "https://shop.test/" + slug + "/p?utm=feed",
	}
}

func newPipeline(f Fetcher, store snapshot.Store, n notify.Notifier) *Pipeline {
	opts := Options{Policy: catalog.StockBoolean, Guard: diff.DefaultGuard(), SummaryLimit: notify.DefaultSummaryLimit}
	return New(opts, f, store, notify.NewDispatcher(n, 0, logx.Nop()), logx.Nop())
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()
	prev := rec("a", "100", false)
	prev.Key = "a"
	store := &memStore{snap: catalog.Snapshot{"a": prev}}
	r := &recorder{}
	p := newPipeline(fakeFetcher{records: []catalog.Record{rec("a", "90", true), rec("b", "50", true)}}, store, r)

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.RunID == "" {
		t.Fatal("missing run id")
	}
	if rep.NewItems != 1 || rep.PriceChanges != 1 || rep.Restocks != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if !rep.Saved || rep.Messages != 2 || rep.Delivery.Delivered != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if got := store.snap.Keys(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("saved keys = %v", got)
	}

	want := map[string][]notify.Reason{
		"a": {notify.ReasonPriceChange, notify.ReasonRestock},
		"b": {notify.ReasonNew},
	}
	if len(r.msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(r.msgs))
	}
	for _, m := range r.msgs {
		if !reflect.DeepEqual(m.Reasons, want[m.Key]) {
			t.Fatalf("reasons for %s = %v, want %v", m.Key, m.Reasons, want[m.Key])
		}
	}
}

func TestRunWithoutNotifierStillSaves(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store, err := snapshot.Open(snapshot.Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	p := newPipeline(fakeFetcher{records: []catalog.Record{rec("b", "50", true)}}, store, nil)
	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Delivery.Skipped || !errors.Is(rep.Delivery.Err, notify.ErrNoNotifier) {
		t.Fatalf("delivery = %+v, want skipped", rep.Delivery)
	}
	if !rep.Saved {
		t.Fatal("snapshot not saved")
	}
	if got := store.Load(context.Background()); len(got) != 1 || got["b"].Price.String() != "50.00" {
		t.Fatalf("reloaded snapshot = %+v", got)
	}
}

func TestRunFetchErrorKeepsBaseline(t *testing.T) {
	t.Parallel()
	prev := rec("a", "100", true)
	prev.Key = "a"
	store := &memStore{snap: catalog.Snapshot{"a": prev}}
	r := &recorder{}
	boom := errors.New("browser did not start")
	p := newPipeline(fakeFetcher{err: boom}, store, r)

	_, err := p.Run(context.Background())
	if !errors.Is(err, ErrFetch) || !errors.Is(err, boom) {
		t.Fatalf("Run err = %v, want ErrFetch wrapping cause", err)
	}
	if store.saves != 0 {
		t.Fatalf("saves = %d, want 0", store.saves)
	}
	if len(r.msgs) != 0 {
		t.Fatalf("delivered %d messages after fetch failure", len(r.msgs))
	}
}

func TestRunSaveErrorStillDelivers(t *testing.T) {
	t.Parallel()
	store := &memStore{saveErr: errors.New("disk full")}
	r := &recorder{}
	p := newPipeline(fakeFetcher{records: []catalog.Record{rec("b", "50", true)}}, store, r)

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Saved || rep.SaveErr == nil {
		t.Fatalf("report = %+v, want save error", rep)
	}
	if len(r.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(r.msgs))
	}
}

func TestRunDeliveryFailureContinues(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	r := &recorder{fail: map[string]bool{"a": true}}
	p := newPipeline(fakeFetcher{records: []catalog.Record{rec("a", "1", true), rec("b", "2", true)}}, store, r)

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Delivery.Failed != 1 || rep.Delivery.Delivered != 1 {
		t.Fatalf("delivery = %+v", rep.Delivery)
	}
	if len(r.msgs) != 1 || r.msgs[0].Key != "b" {
		t.Fatalf("delivered = %+v", r.msgs)
	}
}

func TestRunGuardSuppressesStorm(t *testing.T) {
	t.Parallel()
	var records []catalog.Record
	for i := 0; i < 30; i++ {
		records = append(records, rec("item-"+string(rune('a'+i%26))+string(rune('a'+i/26)), "10", true))
	}
	store := &memStore{}
	r := &recorder{}
	p := newPipeline(fakeFetcher{records: records}, store, r)

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Guard.Suppressed || rep.NewItems != 0 {
		t.Fatalf("guard = %+v, new = %d", rep.Guard, rep.NewItems)
	}
	if len(r.msgs) != 0 {
		t.Fatalf("messages = %d, want 0", len(r.msgs))
	}
	if len(store.snap) != 30 {
		t.Fatalf("saved %d records, want 30", len(store.snap))
	}
}

func TestRunCountsPlaceholders(t *testing.T) {
	t.Parallel()
	ph := catalog.Placeholder("", "https://shop.test/c/p", time.Unix(0, 0))
	store := &memStore{}
	p := newPipeline(fakeFetcher{records: []catalog.Record{ph, rec("d", "5", true)}}, store, &recorder{})

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Placeholders != 1 || rep.Current != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if got := store.snap["c"].Note; got != catalog.NoteParseFailed {
		t.Fatalf("placeholder note = %q", got)
	}
}
