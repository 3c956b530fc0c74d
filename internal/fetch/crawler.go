package fetch

import (
	"context"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-faster/errors"

	"catalogwatch/internal/catalog"
	logx "catalogwatch/pkg/logx"
)

// ErrCollectionUnreachable is returned when no collection page could be
// loaded at all, so an empty result would be indistinguishable from an
// empty catalog.
var ErrCollectionUnreachable = errors.New("collection unreachable")

// Options configures a Crawler.
type Options struct {
	CollectionURL string
	// PageParam is the query parameter used for pages 2..N.
	PageParam string
	// LinkSelector selects candidate PDP anchors on a collection page.
	LinkSelector string
	// LinkContains must all be substrings of a PDP href.
	LinkContains []string
	// SameHost keeps only links on the collection's host.
	SameHost bool

	// MaxPages stops pagination; 0 means until MaxEmptyPages is hit.
	MaxPages      int
	MaxEmptyPages int

	// Attempts per PDP before a placeholder is recorded.
	Attempts int
	DelayMin time.Duration
	DelayMax time.Duration
	// RetryDelayMin/Max is the extra pause after a failed attempt.
	RetryDelayMin time.Duration
	RetryDelayMax time.Duration

	// Keyword keeps only products whose title contains it (case-insensitive).
	Keyword string
	Policy  catalog.StockPolicy
	Keys    catalog.KeyResolver
}

func (o *Options) applyDefaults() {
	if o.PageParam == "" {
		o.PageParam = "page"
	}
	if o.LinkSelector == "" {
		o.LinkSelector = "a[href]"
	}
	if o.MaxEmptyPages <= 0 {
		o.MaxEmptyPages = 2
	}
	if o.Attempts <= 0 {
		o.Attempts = 2
	}
	if o.DelayMax < o.DelayMin {
		o.DelayMax = o.DelayMin
	}
	if o.RetryDelayMax < o.RetryDelayMin {
		o.RetryDelayMax = o.RetryDelayMin
	}
	o.Keyword = strings.ToLower(strings.TrimSpace(o.Keyword))
}

// Crawler walks the collection and parses every linked PDP.
type Crawler struct {
	opts   Options
	loader Loader
	log    logx.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewCrawler(opts Options, loader Loader, log logx.Logger) (*Crawler, error) {
	opts.applyDefaults()
	u, err := url.Parse(strings.TrimSpace(opts.CollectionURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid collection url %q", opts.CollectionURL)
	}
	if loader == nil {
		return nil, errors.New("fetch: nil loader")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Crawler{
		opts:   opts,
		loader: loader,
		log:    log.With(logx.String("comp", "fetch")),
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

// Fetch returns one record per discovered PDP (minus keyword-filtered ones).
func (c *Crawler) Fetch(ctx context.Context) ([]catalog.Record, error) {
	var (
		records []catalog.Record
		seen    = map[string]bool{}
		empty   int
		loaded  int
		failed  int
	)
	for idx := 1; ; idx++ {
		if c.opts.MaxPages > 0 && idx > c.opts.MaxPages {
			break
		}
		pageURL := c.pageURL(idx)
		page, err := c.loader.Load(ctx, pageURL)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
			if errors.Is(err, ErrLoaderUnavailable) {
				return nil, err
			}
			c.log.Warn("collection page failed", logx.String("url", pageURL), logx.Err(err))
			if empty++; empty >= c.opts.MaxEmptyPages {
				break
			}
			continue
		}
		loaded++

		links := c.extractLinks(page)
		c.log.Info("collection page", logx.Int("page", idx), logx.Int("links", len(links)))
		if len(links) == 0 {
			if empty++; empty >= c.opts.MaxEmptyPages {
				break
			}
			continue
		}
		empty = 0

		for _, href := range links {
			if seen[href] {
				continue
			}
			seen[href] = true
			rec, keep, err := c.fetchItem(ctx, href)
			if err != nil {
				return nil, err
			}
			if !keep {
				continue
			}
			if rec.Note == catalog.NoteParseFailed {
				failed++
			}
			records = append(records, rec)
		}
	}
	if loaded == 0 {
		return nil, errors.Wrapf(ErrCollectionUnreachable, "%s", c.opts.CollectionURL)
	}
	c.log.Info("crawl finished", logx.Int("records", len(records)), logx.Int("placeholders", failed), logx.Int("links", len(seen)))
	return records, nil
}

func (c *Crawler) pageURL(idx int) string {
	if idx <= 1 {
		return c.opts.CollectionURL
	}
	u, err := url.Parse(c.opts.CollectionURL)
	if err != nil {
		return c.opts.CollectionURL
	}
	q := u.Query()
	q.Set(c.opts.PageParam, strconv.Itoa(idx))
	u.RawQuery = q.Encode()
	return u.String()
}

func hostKey(h string) string {
	return strings.TrimPrefix(strings.ToLower(h), "www.")
}

// extractLinks returns absolute, fragment-free PDP links in discovery order.
func (c *Crawler) extractLinks(page Page) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil
	}
	base, err := url.Parse(page.URL)
	if err != nil || page.URL == "" {
		base, _ = url.Parse(c.opts.CollectionURL)
	}
	home, _ := url.Parse(c.opts.CollectionURL)

	var out []string
	dup := map[string]bool{}
	doc.Find(c.opts.LinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		u, err := base.Parse(strings.TrimSpace(href))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		u.Fragment = ""
		u.RawFragment = ""
		if c.opts.SameHost && hostKey(u.Host) != hostKey(home.Host) {
			return
		}
		abs := u.String()
		for _, tok := range c.opts.LinkContains {
			if !strings.Contains(abs, tok) {
				return
			}
		}
		if !dup[abs] {
			dup[abs] = true
			out = append(out, abs)
		}
	})
	return out
}

// fetchItem loads and parses one PDP. keep is false when the keyword filter
// rejects it; err is only set for run-level failures.
func (c *Crawler) fetchItem(ctx context.Context, href string) (rec catalog.Record, keep bool, err error) {
	finalURL := href
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		if err := c.sleep(ctx, jitter(c.opts.DelayMin, c.opts.DelayMax)); err != nil {
			return catalog.Record{}, false, err
		}
		page, err := c.loader.Load(ctx, href)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return catalog.Record{}, false, cerr
			}
			if errors.Is(err, ErrLoaderUnavailable) {
				return catalog.Record{}, false, err
			}
			c.log.Warn("detail load failed", logx.String("url", href), logx.Int("attempt", attempt), logx.Err(err))
			if err := c.sleep(ctx, jitter(c.opts.RetryDelayMin, c.opts.RetryDelayMax)); err != nil {
				return catalog.Record{}, false, err
			}
			continue
		}
		if page.URL != "" {
			finalURL = page.URL
		}
		d, err := ParseDetail(page.HTML, c.opts.Policy)
		if err != nil {
			c.log.Warn("detail parse failed", logx.String("url", finalURL), logx.Int("attempt", attempt), logx.Err(err))
			continue
		}
		if c.opts.Keyword != "" && !strings.Contains(strings.ToLower(d.Title), c.opts.Keyword) {
			return catalog.Record{}, false, nil
		}
		if d.Title == "" {
			c.log.Warn("detail has no title", logx.String("url", finalURL), logx.Int("attempt", attempt))
			continue
		}
		return c.record(finalURL, d), true, nil
	}
	c.log.Warn("detail failed; recording placeholder", logx.String("url", finalURL))
	return catalog.Placeholder(c.opts.Keys.Key(finalURL), c.opts.Keys.DisplayURL(finalURL), c.now()), true, nil
}

func (c *Crawler) record(finalURL string, d Detail) catalog.Record {
	r := catalog.Record{
		Key:            c.opts.Keys.Key(finalURL),
		Title:          d.Title,
		SKU:            d.SKU,
		Color:          d.Color,
		Currency:       d.Currency,
		Price:          d.Price,
		Sizes:          d.Sizes,
		AvailableSizes: d.AvailableSizes,
		URL:            c.opts.Keys.DisplayURL(finalURL),
		LastSeen:       c.now(),
	}
	r.DeriveStock(c.opts.Policy)
	return r
}
