package fetch

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-faster/errors"

	logx "catalogwatch/pkg/logx"
)

// BrowserConfig configures BrowserLoader.
type BrowserConfig struct {
	Headless  bool
	UserAgent string
	// ExecPath overrides the Chrome binary; empty lets chromedp find one.
	ExecPath string
	Timeout  time.Duration
}

// BrowserLoader renders pages in one long-lived headless Chrome, one tab per
// Load.
type BrowserLoader struct {
	cfg BrowserConfig
	log logx.Logger

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// NewBrowserLoader starts the browser. A browser that cannot start is
// reported as ErrLoaderUnavailable.
func NewBrowserLoader(cfg BrowserConfig, log logx.Logger) (*BrowserLoader, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-http-cache", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("lang", "en-US"),
	)
	if ua := strings.TrimSpace(cfg.UserAgent); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	if p := strings.TrimSpace(cfg.ExecPath); p != "" {
		opts = append(opts, chromedp.ExecPath(p))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, errors.Wrapf(ErrLoaderUnavailable, "start browser: %v", err)
	}
	log = log.With(logx.String("comp", "fetch.browser"))
	log.Info("browser started", logx.Bool("headless", cfg.Headless))
	return &BrowserLoader{
		cfg:           cfg,
		log:           log,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

func (b *BrowserLoader) Close() error {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}

func (b *BrowserLoader) Load(ctx context.Context, url string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if b.browserCtx.Err() != nil {
		return Page{}, errors.Wrap(ErrLoaderUnavailable, "browser closed")
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	timeoutCtx, cancel := context.WithTimeout(tabCtx, b.cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var loc, html string
	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&loc),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if cerr := ctx.Err(); cerr != nil {
		return Page{}, cerr
	}
	if b.browserCtx.Err() != nil {
		return Page{}, errors.Wrap(ErrLoaderUnavailable, "browser exited")
	}
	if err != nil {
		return Page{}, errors.Wrapf(err, "render %s", url)
	}
	if loc == "" {
		loc = url
	}
	b.log.Debug("page rendered", logx.String("url", loc), logx.Int("bytes", len(html)))
	return Page{URL: loc, HTML: html, Status: 200}, nil
}
