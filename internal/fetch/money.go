package fetch

import (
	"regexp"
	"strings"

	"catalogwatch/internal/catalog"
)

var (
	// Two-letter prefixed dollars (CA$, US$, AU$) are tried before bare $.
	moneyRe  = regexp.MustCompile(`([A-Z]{2}\$|C\$|\$|€|£|¥)\s*([0-9]+(?:\.[0-9]{1,2})?)`)
	amountRe = regexp.MustCompile(`([0-9]+(?:\.[0-9]{2})?)`)
)

// ParseMoney extracts a currency symbol and amount from free text such as
// "CA$ 1,360.00". When bare is set, a number without a symbol is accepted
// with an empty currency.
func ParseMoney(text string, bare bool) (currency string, price catalog.Price, ok bool) {
	t := strings.ReplaceAll(text, ",", "")
	if m := moneyRe.FindStringSubmatch(t); m != nil {
		if p, err := catalog.PriceFromString(m[2]); err == nil {
			return m[1], p, true
		}
	}
	if !bare {
		return "", catalog.UndefinedPrice(), false
	}
	if m := amountRe.FindStringSubmatch(t); m != nil {
		if p, err := catalog.PriceFromString(m[1]); err == nil {
			return "", p, true
		}
	}
	return "", catalog.UndefinedPrice(), false
}
