package diff

import (
	"reflect"
	"testing"

	"catalogwatch/internal/catalog"
)

func rec(key, price string, inStock bool, sizes map[string]int) catalog.Record {
	p := catalog.UndefinedPrice()
	if price != "" {
		p = catalog.MustPrice(price)
	}
	return catalog.Record{Key: key, Title: key, Price: p, InStock: inStock, Sizes: sizes}
}

func TestComputeSameSnapshotIsEmpty(t *testing.T) {
	t.Parallel()
	s := catalog.Snapshot{
		"a": rec("a", "10", true, map[string]int{"M": 2}),
		"b": rec("b", "", false, nil),
	}
	if got := Compute(s, s, Options{}); !got.Empty() {
		t.Fatalf("Compute(S, S) = %+v, want no events", got)
	}
}

func TestPriceThreshold(t *testing.T) {
	t.Parallel()
	tests := []struct {
		old, cur string
		want     bool
	}{
		{"100.00", "100.009", false},
		{"100.00", "100.01", true},
		{"100.01", "100.00", true},
		{"100", "90", true},
		{"0", "0", false},
		{"", "90", false},
		{"90", "", false},
	}
	for _, tt := range tests {
		prior := catalog.Snapshot{"a": rec("a", tt.old, true, nil)}
		cur := catalog.Snapshot{"a": rec("a", tt.cur, true, nil)}
		got := len(Compute(prior, cur, Options{}).PriceChanges) == 1
		if got != tt.want {
			t.Fatalf("price %q -> %q fired = %v, want %v", tt.old, tt.cur, got, tt.want)
		}
	}
}

func TestRestockOnlyFalseToTrue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		old, cur bool
		want     int
	}{
		{false, true, 1},
		{true, false, 0},
		{true, true, 0},
		{false, false, 0},
	}
	for _, tt := range tests {
		prior := catalog.Snapshot{"a": rec("a", "1", tt.old, nil)}
		cur := catalog.Snapshot{"a": rec("a", "1", tt.cur, nil)}
		if got := len(Compute(prior, cur, Options{Policy: catalog.StockBoolean}).Restocks); got != tt.want {
			t.Fatalf("restock %v -> %v = %d, want %d", tt.old, tt.cur, got, tt.want)
		}
	}
}

func TestStockIncrease(t *testing.T) {
	t.Parallel()
	prior := catalog.Snapshot{"a": rec("a", "1", true, map[string]int{"S": 1, "M": 3})}
	cur := catalog.Snapshot{"a": rec("a", "1", true, map[string]int{"S": 2, "M": 1, "L": 4})}

	res := Compute(prior, cur, Options{Policy: catalog.StockQuantity})
	if len(res.StockIncreases) != 1 {
		t.Fatalf("StockIncreases = %d, want 1", len(res.StockIncreases))
	}
	want := map[string]int{"S": 2, "L": 4}
	if got := res.StockIncreases[0].Increased; !reflect.DeepEqual(got, want) {
		t.Fatalf("Increased = %v, want %v", got, want)
	}

	if res := Compute(prior, cur, Options{Policy: catalog.StockBoolean}); len(res.StockIncreases) != 0 {
		t.Fatalf("boolean policy StockIncreases = %d, want 0", len(res.StockIncreases))
	}
}

func TestComputeEndToEnd(t *testing.T) {
	t.Parallel()
	prior := catalog.Snapshot{"a": rec("a", "100", false, nil)}
	cur := catalog.Snapshot{
		"b": rec("b", "50", true, nil),
		"a": rec("a", "90", true, nil),
	}
	res := Compute(prior, cur, Options{})
	if len(res.NewItems) != 1 || res.NewItems[0].Key != "b" {
		t.Fatalf("NewItems = %+v", res.NewItems)
	}
	if len(res.PriceChanges) != 1 || res.PriceChanges[0].Key != "a" {
		t.Fatalf("PriceChanges = %+v", res.PriceChanges)
	}
	if len(res.Restocks) != 1 || res.Restocks[0].Key != "a" {
		t.Fatalf("Restocks = %+v", res.Restocks)
	}
	if res.Total() != 3 {
		t.Fatalf("Total = %d, want 3", res.Total())
	}
}

func TestComputeSortedAndDisappearedIgnored(t *testing.T) {
	t.Parallel()
	prior := catalog.Snapshot{"gone": rec("gone", "1", true, nil)}
	cur := catalog.Snapshot{}
	for _, k := range []string{"d", "b", "c", "a"} {
		cur[k] = rec(k, "1", true, nil)
	}
	res := Compute(prior, cur, Options{})
	var keys []string
	for _, n := range res.NewItems {
		keys = append(keys, n.Key)
	}
	if want := []string{"a", "b", "c", "d"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("NewItems keys = %v, want %v", keys, want)
	}
}

func TestGuard(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		guard    Guard
		newCount int
		total    int
		want     bool
	}{
		{name: "storm", guard: DefaultGuard(), newCount: 25, total: 30, want: true},
		{name: "small catalog", guard: DefaultGuard(), newCount: 9, total: 10, want: false},
		{name: "at ratio", guard: DefaultGuard(), newCount: 14, total: 20, want: false},
		{name: "disabled", guard: Guard{MinTotal: 20, MaxNewRatio: 0.7}, newCount: 30, total: 30, want: false},
		{name: "empty", guard: DefaultGuard(), newCount: 0, total: 0, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.guard.Evaluate(tt.newCount, tt.total).Suppressed; got != tt.want {
				t.Fatalf("Suppressed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGuardKeepsOtherReasons(t *testing.T) {
	t.Parallel()
	res := Result{
		NewItems: make([]NewItem, 25),
		Restocks: []Change{{Key: "a"}},
	}
	out, v := DefaultGuard().Apply(res, 30)
	if !v.Suppressed {
		t.Fatal("expected suppression")
	}
	if len(out.NewItems) != 0 || len(out.Restocks) != 1 {
		t.Fatalf("Apply = %+v", out)
	}
	if len(res.NewItems) != 25 {
		t.Fatal("Apply mutated its input")
	}
}
