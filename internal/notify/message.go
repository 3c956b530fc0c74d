package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"catalogwatch/internal/catalog"
	"catalogwatch/internal/diff"
)

// Reason is why a product is being reported.
type Reason string

const (
	ReasonNew           Reason = "new"
	ReasonPriceChange   Reason = "price_change"
	ReasonRestock       Reason = "restock"
	ReasonStockIncrease Reason = "stock_increase"
)

// Label is the human readable form used in message headers.
func (r Reason) Label() string {
	switch r {
	case ReasonNew:
		return "New listing"
	case ReasonPriceChange:
		return "Price change"
	case ReasonRestock:
		return "Back in stock"
	case ReasonStockIncrease:
		return "Stock increase"
	default:
		return string(r)
	}
}

// NoStock is the stock summary when nothing is available.
const NoStock = "none"

// DefaultSummaryLimit bounds the quantity-policy stock summary.
const DefaultSummaryLimit = 8

// Message is one notification about one product.
type Message struct {
	Key     string
	Reasons []Reason

	Title    string
	SKU      string
	Color    string
	Price    string // formatted, catalog.NotAvailable when undefined
	OldPrice string // set for price changes
	Stock    string
	URL      string

	ObservedAt time.Time
}

// Has reports whether r is among the message reasons.
func (m Message) Has(r Reason) bool {
	for _, x := range m.Reasons {
		if x == r {
			return true
		}
	}
	return false
}

// Header joins the reason labels: "Price change, Back in stock".
func (m Message) Header() string {
	labels := make([]string, 0, len(m.Reasons))
	for _, r := range m.Reasons {
		labels = append(labels, r.Label())
	}
	return strings.Join(labels, ", ")
}

// Lines renders the message body, one field per line, without the header.
// Transports add their own markup around it.
func (m Message) Lines() []string {
	price := m.Price
	if m.OldPrice != "" && m.OldPrice != m.Price {
		price = fmt.Sprintf("%s (was %s)", m.Price, m.OldPrice)
	}
	return []string{
		"• Name: " + orDash(m.Title),
		"• SKU: " + orDash(m.SKU),
		"• Color: " + orDash(m.Color),
		"• Price: " + price,
		"• Stock: " + m.Stock,
		m.URL,
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// Options controls how messages are built.
type Options struct {
	Policy catalog.StockPolicy
	// SummaryLimit bounds the quantity-policy summary; <= 0 means default.
	SummaryLimit int
}

type pending struct {
	reasons  []Reason
	oldPrice *catalog.Price
	inc      map[string]int
}

// Aggregate groups res by key into one message per changed product. current
// supplies the record each message describes.
func Aggregate(res diff.Result, current catalog.Snapshot, opts Options) []Message {
	if opts.SummaryLimit <= 0 {
		opts.SummaryLimit = DefaultSummaryLimit
	}
	byKey := map[string]*pending{}
	get := func(k string) *pending {
		p := byKey[k]
		if p == nil {
			p = &pending{}
			byKey[k] = p
		}
		return p
	}

	// Category order fixes the reason order within a message.
	for _, n := range res.NewItems {
		p := get(n.Key)
		p.reasons = append(p.reasons, ReasonNew)
	}
	for _, c := range res.PriceChanges {
		p := get(c.Key)
		p.reasons = append(p.reasons, ReasonPriceChange)
		old := c.Old.Price
		p.oldPrice = &old
	}
	for _, c := range res.Restocks {
		p := get(c.Key)
		p.reasons = append(p.reasons, ReasonRestock)
	}
	for _, s := range res.StockIncreases {
		p := get(s.Key)
		p.reasons = append(p.reasons, ReasonStockIncrease)
		p.inc = s.Increased
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Message, 0, len(keys))
	for _, k := range keys {
		p := byKey[k]
		rec, ok := current[k]
		if !ok {
			rec = catalog.Record{Key: k}
		}
		m := Message{
			Key:        k,
			Reasons:    p.reasons,
			Title:      rec.Title,
			SKU:        rec.SKU,
			Color:      rec.Color,
			Price:      rec.Price.Format(rec.Currency),
			Stock:      StockSummary(rec, p.inc, opts),
			URL:        rec.URL,
			ObservedAt: rec.LastSeen,
		}
		if p.oldPrice != nil {
			m.OldPrice = p.oldPrice.Format(rec.Currency)
		}
		out = append(out, m)
	}
	return out
}

// StockSummary renders the stock line of a message. When increased is
// non-empty only those sizes are listed; otherwise the policy decides.
func StockSummary(rec catalog.Record, increased map[string]int, opts Options) string {
	var items []string
	switch {
	case len(increased) > 0:
		sizes := make([]string, 0, len(increased))
		for s := range increased {
			sizes = append(sizes, s)
		}
		for _, s := range catalog.SortSizes(sizes) {
			items = append(items, fmt.Sprintf("%s:%d", s, increased[s]))
		}
	case opts.Policy == catalog.StockBoolean:
		items = catalog.SortSizes(append([]string(nil), rec.AvailableSizes...))
	default:
		limit := opts.SummaryLimit
		if limit <= 0 {
			limit = DefaultSummaryLimit
		}
		for _, s := range rec.PositiveSizes() {
			if len(items) >= limit {
				break
			}
			items = append(items, fmt.Sprintf("%s:%d", s, rec.Sizes[s]))
		}
	}
	if len(items) == 0 {
		return NoStock
	}
	return strings.Join(items, ", ")
}
