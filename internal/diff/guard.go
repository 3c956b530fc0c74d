package diff

// Guard suppresses new-listing events when their share of the catalog is
// implausibly high, which usually means the fetcher broke (site redesign,
// selector change, identity scheme change) rather than that the catalog
// really turned over.
//
// The guard keeps no state: every run is evaluated on its own.
type Guard struct {
	Enabled bool
	// MinTotal is the catalog size below which the guard never trips.
	MinTotal int
	// MaxNewRatio is the highest tolerated new/total ratio (exclusive).
	MaxNewRatio float64
}

func DefaultGuard() Guard {
	return Guard{Enabled: true, MinTotal: 20, MaxNewRatio: 0.70}
}

// Verdict describes one guard evaluation.
type Verdict struct {
	New        int
	Total      int
	Ratio      float64
	Suppressed bool
}

// Evaluate computes the verdict for newCount new items in a catalog of total.
func (g Guard) Evaluate(newCount, total int) Verdict {
	v := Verdict{New: newCount, Total: total}
	if total > 0 {
		v.Ratio = float64(newCount) / float64(total)
	}
	v.Suppressed = g.Enabled && total >= g.MinTotal && v.Ratio > g.MaxNewRatio
	return v
}

// Apply drops the NewItem events of res when the guard trips. Other event
// kinds for the same products are left untouched.
func (g Guard) Apply(res Result, total int) (Result, Verdict) {
	v := g.Evaluate(len(res.NewItems), total)
	if v.Suppressed {
		res.NewItems = nil
	}
	return res, v
}
