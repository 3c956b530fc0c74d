package catalog

import (
	"net/url"
	"strings"
)

// DefaultDetailMarker is the path segment that follows a PDP slug
// ("/arcteryx-beta-jacket/p").
const DefaultDetailMarker = "p"

// KeyResolver derives stable product keys from detail page URLs.
// It is a pure function of the URL; the zero value uses DefaultDetailMarker.
type KeyResolver struct {
	// Marker is the detail-page marker segment.
	Marker string
	// DisplayBase, when set, is used to rebuild canonical display URLs
	// (e.g. "https://www.als.com").
	DisplayBase string
}

func (r KeyResolver) marker() string {
	m := strings.ToLower(strings.Trim(strings.TrimSpace(r.Marker), "/"))
	if m == "" {
		return DefaultDetailMarker
	}
	return m
}

// Slug extracts the lowercase slug of a PDP URL. marked reports whether the
// slug came from the segment preceding the detail marker; otherwise it is
// the final non-empty path segment. An unparsable URL yields "".
func (r KeyResolver) Slug(raw string) (slug string, marked bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	segs := strings.Split(strings.ToLower(u.Path), "/")
	m := r.marker()
	for i := 1; i < len(segs); i++ {
		if segs[i] == m && segs[i-1] != "" {
			return segs[i-1], true
		}
	}
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] != "" {
			return segs[i], false
		}
	}
	return "", false
}

// Key returns the stable key for raw. Query strings and fragments never
// influence the result.
func (r KeyResolver) Key(raw string) string {
	if slug, _ := r.Slug(raw); slug != "" {
		return slug
	}
	return strings.ToLower(stripQueryFragment(raw))
}

// DisplayURL returns the canonical URL shown in notifications.
func (r KeyResolver) DisplayURL(raw string) string {
	slug, marked := r.Slug(raw)
	base := strings.TrimRight(strings.TrimSpace(r.DisplayBase), "/")
	if marked && base != "" {
		return base + "/" + slug + "/" + r.marker()
	}
	return stripQueryFragment(raw)
}

func stripQueryFragment(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return s
}
