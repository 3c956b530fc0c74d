// Package fetch walks a collection listing and parses every product detail
// page (PDP) it links to into catalog records.
//
// Pages are retrieved through a Loader: HTTPLoader (colly) for server
// rendered shops, BrowserLoader (headless Chrome via chromedp) for shops
// that render listings client side. Parsing is done with goquery; every
// field has its own chain of fallbacks so a partial page still yields a
// usable record.
//
// Per-item failures never abort a crawl. After the configured number of
// attempts an item is recorded as a placeholder (catalog.NoteParseFailed)
// so it does not look delisted. Only run-level failures, such as a browser
// that cannot start, are returned as errors.
package fetch
