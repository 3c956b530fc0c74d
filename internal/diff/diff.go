// Package diff compares two catalog snapshots and classifies what changed.
//
// Compute is pure: it never mutates its inputs and the same inputs always
// produce the same, deterministically ordered Result.
package diff

import (
	"github.com/shopspring/decimal"

	"catalogwatch/internal/catalog"
)

// PriceThreshold is the minimum absolute price delta reported as a change.
// It is an absolute amount in the catalog's currency, not a percentage.
var PriceThreshold = decimal.New(1, -2)

// NewItem is a key present in the current snapshot only.
type NewItem struct {
	Key    string
	Record catalog.Record
}

// Change is a key present in both snapshots (price change or restock).
type Change struct {
	Key string
	Old catalog.Record
	New catalog.Record
}

// StockIncrease lists the sizes whose quantity went up, with the new quantity.
type StockIncrease struct {
	Key       string
	Old       catalog.Record
	New       catalog.Record
	Increased map[string]int
}

// Result holds every event of one run, each category sorted by key.
type Result struct {
	NewItems       []NewItem
	PriceChanges   []Change
	Restocks       []Change
	StockIncreases []StockIncrease
}

// Total is the number of events across all categories.
func (r Result) Total() int {
	return len(r.NewItems) + len(r.PriceChanges) + len(r.Restocks) + len(r.StockIncreases)
}

func (r Result) Empty() bool { return r.Total() == 0 }

// Options selects the stock granularity. Stock increases are only computed
// under the quantity policy.
type Options struct {
	Policy catalog.StockPolicy
}

// Compute returns the events that turn prior into current.
func Compute(prior, current catalog.Snapshot, opts Options) Result {
	var res Result
	for _, k := range current.Keys() {
		n := current[k]
		o, seen := prior[k]
		if !seen {
			res.NewItems = append(res.NewItems, NewItem{Key: k, Record: n})
			continue
		}
		if priceChanged(o.Price, n.Price) {
			res.PriceChanges = append(res.PriceChanges, Change{Key: k, Old: o, New: n})
		}
		// Availability gained only; losing stock is never reported.
		if !o.InStock && n.InStock {
			res.Restocks = append(res.Restocks, Change{Key: k, Old: o, New: n})
		}
		if opts.Policy == catalog.StockBoolean {
			continue
		}
		if inc := increasedSizes(o.Sizes, n.Sizes); len(inc) > 0 {
			res.StockIncreases = append(res.StockIncreases, StockIncrease{Key: k, Old: o, New: n, Increased: inc})
		}
	}
	return res
}

func priceChanged(old, cur catalog.Price) bool {
	if !old.Defined() || !cur.Defined() {
		return false
	}
	return old.Amount().Sub(cur.Amount()).Abs().GreaterThanOrEqual(PriceThreshold)
}

func increasedSizes(old, cur map[string]int) map[string]int {
	var inc map[string]int
	for size, q := range cur {
		if q > old[size] {
			if inc == nil {
				inc = map[string]int{}
			}
			inc[size] = q
		}
	}
	return inc
}
