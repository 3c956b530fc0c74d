package catalog

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestKeyIgnoresQueryAndFragment(t *testing.T) {
	t.Parallel()
	var r KeyResolver
	base := "https://www.als.com/arcteryx-beta-jacket-mens/p"
	variants := []string{
		base,
		base + "?utm_source=news&color=black",
		base + "#reviews",
		base + "?a=1#b",
		"https://www.als.com/Arcteryx-Beta-Jacket-Mens/p/",
	}
	for _, v := range variants {
		if got := r.Key(v); got != "arcteryx-beta-jacket-mens" {
			t.Fatalf("Key(%q) = %q, want %q", v, got, "arcteryx-beta-jacket-mens")
		}
	}
}

func TestKeyVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		marker string
		raw    string
		want   string
	}{
		{name: "marker", raw: "https://shop.test/women/atom-hoody/p?x=1", want: "atom-hoody"},
		{name: "marker mid path", raw: "https://shop.test/atom-hoody/p/reviews", want: "atom-hoody"},
		{name: "no marker falls back to last segment", raw: "https://shop.test/products/atom-hoody?x=1", want: "atom-hoody"},
		{name: "trailing slash", raw: "https://shop.test/products/atom-hoody/", want: "atom-hoody"},
		{name: "custom marker", marker: "dp", raw: "https://shop.test/beta-ar/dp/123", want: "beta-ar"},
		{name: "root path", raw: "https://shop.test/?page=2#top", want: "https://shop.test/"},
		{name: "unparsable", raw: "https://Shop.test/%zz/p?q=1#f", want: "https://shop.test/%zz/p"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := KeyResolver{Marker: tt.marker}
			if got := r.Key(tt.raw); got != tt.want {
				t.Fatalf("Key(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDisplayURL(t *testing.T) {
	t.Parallel()
	r := KeyResolver{DisplayBase: "https://www.als.com/"}
	if got := r.DisplayURL("https://www.als.com/Atom-Hoody/p?utm=1"); got != "https://www.als.com/atom-hoody/p" {
		t.Fatalf("DisplayURL = %q", got)
	}
	if got := r.DisplayURL("https://www.als.com/sale/atom?utm=1#x"); got != "https://www.als.com/sale/atom" {
		t.Fatalf("DisplayURL without marker = %q", got)
	}
}

func TestPriceJSON(t *testing.T) {
	t.Parallel()
	type doc struct {
		Price Price `json:"price"`
	}
	b, err := json.Marshal(doc{Price: MustPrice("360.50")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"price":360.5}` {
		t.Fatalf("marshal = %s", b)
	}
	b, _ = json.Marshal(doc{})
	if string(b) != `{"price":null}` {
		t.Fatalf("undefined marshal = %s", b)
	}

	for raw, want := range map[string]Price{
		`{"price":null}`:     UndefinedPrice(),
		`{"price":"99.90"}`:  MustPrice("99.9"),
		`{"price":0}`:        MustPrice("0"),
		`{"price":""}`:       UndefinedPrice(),
		`{"price":120.0100}`: MustPrice("120.01"),
	} {
		var d doc
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if !d.Price.Equal(want) {
			t.Fatalf("unmarshal %s = %v, want %v", raw, d.Price, want)
		}
	}
}

func TestPriceZeroIsNotUndefined(t *testing.T) {
	t.Parallel()
	zero := MustPrice("0")
	if !zero.Defined() {
		t.Fatal("zero price must be defined")
	}
	if zero.Equal(UndefinedPrice()) {
		t.Fatal("zero price must differ from undefined")
	}
	if got := UndefinedPrice().Format("$"); got != NotAvailable {
		t.Fatalf("Format = %q, want %q", got, NotAvailable)
	}
	if got := MustPrice("360").Format("CA$"); got != "CA$ 360.00" {
		t.Fatalf("Format = %q", got)
	}
}

func TestDeriveStock(t *testing.T) {
	t.Parallel()
	r := Record{Sizes: map[string]int{"S": 0, "M": 2}}
	r.DeriveStock(StockQuantity)
	if !r.InStock {
		t.Fatal("quantity policy: expected in stock")
	}
	r = Record{Sizes: map[string]int{"S": 0}}
	r.DeriveStock(StockQuantity)
	if r.InStock {
		t.Fatal("quantity policy: expected out of stock")
	}
	r = Record{AvailableSizes: []string{"M"}}
	r.DeriveStock(StockBoolean)
	if !r.InStock {
		t.Fatal("boolean policy: expected in stock")
	}
	r = Record{}
	r.DeriveStock(StockBoolean)
	if r.InStock {
		t.Fatal("boolean policy: expected out of stock")
	}
}

func TestSortSizes(t *testing.T) {
	t.Parallel()
	got := SortSizes([]string{"XL", "10", "S", "ONE SIZE", "8", "XXS", "M"})
	want := []string{"XXS", "S", "M", "XL", "8", "10", "ONE SIZE"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SortSizes = %v, want %v", got, want)
	}
}

func TestPlaceholderAndSnapshotKeys(t *testing.T) {
	t.Parallel()
	at := time.Unix(100, 0).UTC()
	p := Placeholder("b", "https://shop.test/b/p", at)
	if p.Note != NoteParseFailed || p.Price.Defined() || p.InStock {
		t.Fatalf("unexpected placeholder: %+v", p)
	}
	s := FromRecords([]Record{{Key: "c"}, p, {Key: "a"}, {Key: ""}})
	if got := s.Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("Keys = %v", got)
	}
}
