package catalog

import (
	"sort"
	"strconv"
	"strings"
)

var apparelRank = map[string]int{
	"XXS": 0, "XS": 1, "S": 2, "M": 3, "L": 4, "XL": 5, "XXL": 6, "XXXL": 7,
}

// SortSizes orders sizes for display: apparel letters first (XXS..XXXL),
// then numeric sizes ascending, then anything else lexicographically.
// The input slice is sorted in place and returned.
func SortSizes(sizes []string) []string {
	sort.SliceStable(sizes, func(i, j int) bool {
		return sizeLess(sizes[i], sizes[j])
	})
	return sizes
}

func sizeLess(a, b string) bool {
	ca, ra := sizeClass(a)
	cb, rb := sizeClass(b)
	if ca != cb {
		return ca < cb
	}
	if ca == 2 || ra == rb {
		return a < b
	}
	return ra < rb
}

// sizeClass returns (class, rank): 0 apparel, 1 numeric, 2 other.
func sizeClass(s string) (int, float64) {
	u := strings.ToUpper(strings.TrimSpace(s))
	if r, ok := apparelRank[u]; ok {
		return 0, float64(r)
	}
	if n, err := strconv.ParseFloat(u, 64); err == nil {
		return 1, n
	}
	return 2, 0
}
