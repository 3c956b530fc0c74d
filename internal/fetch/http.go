package fetch

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/gocolly/colly/v2"

	logx "catalogwatch/pkg/logx"
)

// HTTPConfig configures HTTPLoader.
type HTTPConfig struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
}

// HTTPLoader fetches pages with a colly collector. Each Load runs on a
// clone of the base collector so callbacks never leak between pages.
type HTTPLoader struct {
	base *colly.Collector
	cfg  HTTPConfig
	log  logx.Logger
}

func NewHTTPLoader(cfg HTTPConfig, log logx.Logger) *HTTPLoader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = "en-US,en;q=0.9"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	opts := []colly.CollectorOption{colly.AllowURLRevisit()}
	if ua := strings.TrimSpace(cfg.UserAgent); ua != "" {
		opts = append(opts, colly.UserAgent(ua))
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(cfg.Timeout)
	return &HTTPLoader{base: c, cfg: cfg, log: log.With(logx.String("comp", "fetch.http"))}
}

func (l *HTTPLoader) Close() error { return nil }

func (l *HTTPLoader) Load(ctx context.Context, url string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	c := l.base.Clone()

	var (
		page    Page
		got     bool
		loadErr error
	)
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
		r.Headers.Set("Accept-Language", l.cfg.AcceptLanguage)
	})
	c.OnResponse(func(r *colly.Response) {
		got = true
		page = Page{URL: r.Request.URL.String(), HTML: string(r.Body), Status: r.StatusCode}
	})
	c.OnError(func(r *colly.Response, err error) {
		loadErr = err
		if r != nil && r.StatusCode != 0 {
			loadErr = errors.Wrapf(err, "http=%d", r.StatusCode)
		}
	})

	err := c.Visit(url)
	if err == nil {
		err = loadErr
	}
	if cerr := ctx.Err(); cerr != nil {
		return Page{}, cerr
	}
	if err != nil {
		return Page{}, errors.Wrapf(err, "load %s", url)
	}
	if !got {
		return Page{}, errors.Errorf("load %s: no response", url)
	}
	l.log.Debug("page loaded", logx.String("url", page.URL), logx.Int("status", page.Status), logx.Int("bytes", len(page.HTML)))
	return page, nil
}
