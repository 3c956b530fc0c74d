package catalog

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// NotAvailable is rendered in place of an undefined price.
const NotAvailable = "N/A"

// Price is a non-negative amount or an explicit "undefined" sentinel.
// The zero value is undefined, so a missing price is never read as 0.
type Price struct {
	amount  decimal.Decimal
	defined bool
}

func NewPrice(amount decimal.Decimal) Price { return Price{amount: amount, defined: true} }

func UndefinedPrice() Price { return Price{} }

// PriceFromString parses a plain decimal amount such as "360.00".
func PriceFromString(s string) (Price, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Price{}, errors.Wrapf(err, "parse price %q", s)
	}
	if d.IsNegative() {
		return Price{}, errors.Errorf("negative price %q", s)
	}
	return NewPrice(d), nil
}

// MustPrice is PriceFromString for literals.
func MustPrice(s string) Price {
	p, err := PriceFromString(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Price) Defined() bool { return p.defined }

func (p Price) Amount() decimal.Decimal { return p.amount }

// Equal reports whether both prices are undefined or hold the same amount.
func (p Price) Equal(o Price) bool {
	if p.defined != o.defined {
		return false
	}
	return !p.defined || p.amount.Equal(o.amount)
}

// Format renders "CA$ 360.00", "360.00" without a currency, or N/A.
func (p Price) Format(currency string) string {
	if !p.defined {
		return NotAvailable
	}
	v := p.amount.StringFixed(2)
	if cur := strings.TrimSpace(currency); cur != "" {
		return cur + " " + v
	}
	return v
}

func (p Price) String() string { return p.Format("") }

// MarshalJSON writes a JSON number, or null when undefined.
func (p Price) MarshalJSON() ([]byte, error) {
	if !p.defined {
		return []byte("null"), nil
	}
	return []byte(p.amount.String()), nil
}

// UnmarshalJSON accepts null, a JSON number, or a quoted decimal.
func (p *Price) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*p = UndefinedPrice()
		return nil
	}
	raw := string(b)
	if raw[0] == '"' {
		s, err := strconv.Unquote(raw)
		if err != nil {
			return errors.Wrap(err, "price")
		}
		if strings.TrimSpace(s) == "" {
			*p = UndefinedPrice()
			return nil
		}
		raw = s
	}
	v, err := PriceFromString(raw)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
