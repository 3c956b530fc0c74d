// Package pipeline runs one monitoring cycle: load the prior snapshot,
// fetch the catalog, diff, guard, save, aggregate and deliver.
package pipeline

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"catalogwatch/internal/catalog"
	"catalogwatch/internal/diff"
	"catalogwatch/internal/notify"
	"catalogwatch/internal/snapshot"
	"catalogwatch/pkg/logx"
)

// ErrFetch wraps a run-level fetch failure. The run is aborted before the
// snapshot is saved so the previous baseline survives.
var ErrFetch = errors.New("catalog fetch failed")

// Fetcher produces the current catalog as raw records.
type Fetcher interface {
	Fetch(ctx context.Context) ([]catalog.Record, error)
}

// Deliverer sends the aggregated messages of one run.
type Deliverer interface {
	Deliver(ctx context.Context, msgs []notify.Message) notify.Report
}

type Options struct {
	Policy       catalog.StockPolicy
	Guard        diff.Guard
	SummaryLimit int
	Keys         catalog.KeyResolver
}

type Pipeline struct {
	opts    Options
	fetcher Fetcher
	store   snapshot.Store
	deliver Deliverer
	log     logx.Logger
	now     func() time.Time
}

func New(opts Options, f Fetcher, store snapshot.Store, d Deliverer, log logx.Logger) *Pipeline {
	return &Pipeline{
		opts:    opts,
		fetcher: f,
		store:   store,
		deliver: d,
		log:     log.With(logx.String("comp", "pipeline")),
		now:     time.Now,
	}
}

// Report describes one run.
type Report struct {
	RunID    string
	Started  time.Time
	Duration time.Duration

	Prior        int
	Current      int
	Placeholders int

	NewItems       int
	PriceChanges   int
	Restocks       int
	StockIncreases int
	Guard          diff.Verdict

	Messages int
	Delivery notify.Report

	Saved   bool
	SaveErr error
}

// Run executes one cycle. Only a run-level fetch failure or cancellation
// during fetch is returned; save and delivery problems are reported.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	rep := Report{RunID: uuid.NewString(), Started: p.now()}
	log := p.log.With(logx.String("run_id", rep.RunID))

	prior := p.store.Load(ctx)
	rep.Prior = len(prior)
	log.Info("run started", logx.Int("prior", rep.Prior))

	records, err := p.fetcher.Fetch(ctx)
	if err != nil {
		log.Error("fetch failed; keeping previous snapshot", logx.Err(err))
		rep.Duration = p.now().Sub(rep.Started)
		return rep, errors.Wrapf(errors.Join(ErrFetch, err), "run %s", rep.RunID)
	}

	current := p.index(records)
	rep.Current = len(current)
	for _, r := range current {
		if r.Note == catalog.NoteParseFailed {
			rep.Placeholders++
		}
	}

	res := diff.Compute(prior, current, diff.Options{Policy: p.opts.Policy})
	res, verdict := p.opts.Guard.Apply(res, len(current))
	rep.Guard = verdict
	rep.NewItems = len(res.NewItems)
	rep.PriceChanges = len(res.PriceChanges)
	rep.Restocks = len(res.Restocks)
	rep.StockIncreases = len(res.StockIncreases)
	if verdict.Suppressed {
		log.Warn("new listings suppressed by baseline guard",
			logx.Int("new", verdict.New),
			logx.Int("total", verdict.Total),
			logx.Float64("ratio", verdict.Ratio),
		)
	}

	// The baseline is updated whatever happens to delivery.
	if err := p.store.Save(ctx, current); err != nil {
		rep.SaveErr = err
		log.Error("snapshot save failed", logx.Err(err))
	} else {
		rep.Saved = true
	}

	msgs := notify.Aggregate(res, current, notify.Options{Policy: p.opts.Policy, SummaryLimit: p.opts.SummaryLimit})
	rep.Messages = len(msgs)
	if len(msgs) > 0 {
		rep.Delivery = p.deliver.Deliver(ctx, msgs)
	}

	rep.Duration = p.now().Sub(rep.Started)
	log.Info("run finished",
		logx.Int("current", rep.Current),
		logx.Int("placeholders", rep.Placeholders),
		logx.Int("new", rep.NewItems),
		logx.Int("price_changes", rep.PriceChanges),
		logx.Int("restocks", rep.Restocks),
		logx.Int("stock_increases", rep.StockIncreases),
		logx.Int("messages", rep.Messages),
		logx.Int("delivered", rep.Delivery.Delivered),
		logx.Int("failed", rep.Delivery.Failed),
		logx.Bool("saved", rep.Saved),
		logx.Duration("took", rep.Duration),
	)
	return rep, nil
}

// index keys every record through the resolver so identity never depends
// on how the fetcher spelled the URL.
func (p *Pipeline) index(records []catalog.Record) catalog.Snapshot {
	for i := range records {
		if u := records[i].URL; u != "" {
			records[i].Key = p.opts.Keys.Key(u)
		}
	}
	return catalog.FromRecords(records)
}
