package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// NoteParseFailed marks a placeholder recorded after every fetch attempt failed.
const NoteParseFailed = "parse_failed"

// StockPolicy selects the stock granularity of a catalog.
type StockPolicy string

const (
	StockQuantity StockPolicy = "quantity"
	StockBoolean  StockPolicy = "boolean"
)

// ParseStockPolicy maps a config value to a policy. Empty means quantity.
func ParseStockPolicy(s string) (StockPolicy, error) {
	switch StockPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StockQuantity:
		return StockQuantity, nil
	case StockBoolean:
		return StockBoolean, nil
	default:
		return "", errors.Errorf("unknown stock policy %q (use quantity or boolean)", s)
	}
}

// Record is the last observed state of one product detail page.
type Record struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	SKU      string `json:"sku"`
	Color    string `json:"color"`
	Currency string `json:"currency"`
	Price    Price  `json:"price"`

	// Sizes is populated under the quantity policy: size -> units.
	Sizes map[string]int `json:"sizes,omitempty"`
	// AvailableSizes is populated under the boolean policy.
	AvailableSizes []string `json:"available_sizes,omitempty"`
	InStock        bool     `json:"in_stock"`

	URL      string    `json:"url"`
	LastSeen time.Time `json:"last_seen"`
	Note     string    `json:"note,omitempty"`
}

// DeriveStock sets InStock from the representation used by policy.
func (r *Record) DeriveStock(policy StockPolicy) {
	switch policy {
	case StockBoolean:
		r.InStock = len(r.AvailableSizes) > 0
	default:
		r.InStock = false
		for _, q := range r.Sizes {
			if q > 0 {
				r.InStock = true
				break
			}
		}
	}
}

// PositiveSizes returns sizes holding a positive quantity, in size order.
func (r Record) PositiveSizes() []string {
	out := make([]string, 0, len(r.Sizes))
	for size, q := range r.Sizes {
		if q > 0 {
			out = append(out, size)
		}
	}
	return SortSizes(out)
}

// Placeholder is recorded for a page whose every fetch attempt failed, so
// the product does not look deleted now and new again on the next run.
func Placeholder(key, url string, at time.Time) Record {
	return Record{
		Key:      key,
		Price:    UndefinedPrice(),
		URL:      url,
		LastSeen: at,
		Note:     NoteParseFailed,
	}
}

// Snapshot maps stable key -> record for the whole catalog.
type Snapshot map[string]Record

// Keys returns the snapshot keys in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromRecords indexes records by key. Later records win on duplicate keys.
func FromRecords(records []Record) Snapshot {
	s := make(Snapshot, len(records))
	for _, r := range records {
		if r.Key == "" {
			continue
		}
		s[r.Key] = r
	}
	return s
}
