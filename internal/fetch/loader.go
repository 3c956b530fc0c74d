package fetch

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrLoaderUnavailable marks a loader failure that affects every page, such
// as a browser that cannot be started. Crawls abort on it.
var ErrLoaderUnavailable = errors.New("page loader unavailable")

// Page is a loaded document.
type Page struct {
	// URL is the final URL after redirects.
	URL    string
	HTML   string
	Status int
}

// Loader retrieves one page. Implementations are used sequentially.
type Loader interface {
	Load(ctx context.Context, url string) (Page, error)
	Close() error
}
