package fetch

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-faster/errors"
	"golang.org/x/net/html"

	"catalogwatch/internal/catalog"
)

// Detail is what a PDP yields before it is keyed.
type Detail struct {
	Title          string
	SKU            string
	Color          string
	Currency       string
	Price          catalog.Price
	Sizes          map[string]int
	AvailableSizes []string
}

var (
	spaceRe     = regexp.MustCompile(`\s+`)
	skuXRe      = regexp.MustCompile(`X\d{9,12}`)
	skuLabelRe  = regexp.MustCompile(`(?i)(?:SKU|Style|Model)\s*[:#]\s*([A-Za-z0-9\-]+)`)
	colorLineRe = regexp.MustCompile(`(?i)colou?r\s*:\s*([^\n]+)`)
	titleParen  = regexp.MustCompile(`\(([^()]+)\)$`)
	cartRe      = regexp.MustCompile(`(?i)add to (cart|bag)`)
	sizeLabelRe = regexp.MustCompile(`(?i)^(XXS|XS|S|M|L|XL|XXL|XXXL|\d{1,2})$`)
	intRe       = regexp.MustCompile(`^-?\d+$`)
	scriptQtyRe = regexp.MustCompile(`(?is)"size"\s*:\s*"([^"]+?)"[^}]*?"inventory[^"]*?"\s*:\s*(-?\d+)`)
)

// Element budgets, so a pathological page cannot stall parsing.
const (
	maxSizeCandidates = 150
	maxInventoryJS    = 12
	maxLDJSON         = 8
	maxSelected       = 8
	maxColorLen       = 40
)

var qtyAttrs = []string{"data-available-qty", "data-inventory", "data-qty", "data-stock", "data-quantity"}

const sizeCandidates = "button, [role='option'], [data-size]"

// ParseDetail parses a PDP. It fails only when the document cannot be read;
// missing fields are left empty.
func ParseDetail(doc string, policy catalog.StockPolicy) (Detail, error) {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return Detail{}, errors.Wrap(err, "parse html")
	}
	out := Detail{
		Title: extractTitle(d),
		SKU:   extractSKU(d),
		Color: extractColor(d),
	}
	out.Currency, out.Price = extractPrice(d)
	if policy == catalog.StockBoolean {
		out.AvailableSizes = extractAvailableSizes(d)
	} else {
		out.Sizes = extractSizeQuantities(d)
	}
	return out, nil
}

func normSpaces(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// firstOf returns the first non-empty result of the chain.
func firstOf(d *goquery.Document, chain ...func(*goquery.Document) (string, bool)) string {
	for _, f := range chain {
		if v, ok := f(d); ok {
			return v
		}
	}
	return ""
}

func extractTitle(d *goquery.Document) string {
	return firstOf(d,
		func(d *goquery.Document) (string, bool) { return nonEmpty(normSpaces(d.Find("h1").First().Text())) },
		func(d *goquery.Document) (string, bool) { return nonEmpty(normSpaces(d.Find("title").First().Text())) },
	)
}

func extractSKU(d *goquery.Document) string {
	return firstOf(d,
		func(d *goquery.Document) (string, bool) {
			return nonEmpty(skuXRe.FindString(bodyText(d)))
		},
		func(d *goquery.Document) (string, bool) {
			if m := skuLabelRe.FindStringSubmatch(bodyText(d)); m != nil {
				return nonEmpty(m[1])
			}
			return "", false
		},
		skuFromLDJSON,
	)
}

func skuFromLDJSON(d *goquery.Document) (string, bool) {
	var sku string
	d.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxLDJSON {
			return false
		}
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return true
		}
		switch t := v.(type) {
		case map[string]any:
			sku = skuValue(t["sku"])
		case []any:
			for _, it := range t {
				if m, ok := it.(map[string]any); ok {
					if sku = skuValue(m["sku"]); sku != "" {
						break
					}
				}
			}
		}
		return sku == ""
	})
	return nonEmpty(sku)
}

func skuValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func extractColor(d *goquery.Document) string {
	return firstOf(d,
		func(d *goquery.Document) (string, bool) {
			if m := colorLineRe.FindStringSubmatch(bodyText(d)); m != nil {
				return nonEmpty(normSpaces(m[1]))
			}
			return "", false
		},
		func(d *goquery.Document) (string, bool) {
			var color string
			d.Find(`[aria-pressed="true"], [aria-selected="true"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
				if i >= maxSelected {
					return false
				}
				t := normSpaces(s.Text())
				if t != "" && len([]rune(t)) <= maxColorLen && !cartRe.MatchString(t) {
					color = t
					return false
				}
				return true
			})
			return nonEmpty(color)
		},
		func(d *goquery.Document) (string, bool) {
			if m := titleParen.FindStringSubmatch(normSpaces(d.Find("h1").First().Text())); m != nil {
				return nonEmpty(normSpaces(m[1]))
			}
			return "", false
		},
	)
}

func extractPrice(d *goquery.Document) (string, catalog.Price) {
	for _, sel := range []string{`[class*="price"]`, `[data-test*="price"]`} {
		s := d.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if cur, p, ok := ParseMoney(normSpaces(s.Text()), true); ok {
			return cur, p
		}
	}
	// The whole body only counts with a currency symbol; a bare number there
	// is more likely a review count than a price.
	if cur, p, ok := ParseMoney(bodyText(d), false); ok {
		return cur, p
	}
	return "", catalog.UndefinedPrice()
}

// sizeLabel returns the normalized size label of a candidate element.
func sizeLabel(s *goquery.Selection) (string, bool) {
	label := strings.ToUpper(normSpaces(s.Text()))
	if label == "" {
		label = strings.ToUpper(strings.TrimSpace(s.AttrOr("data-size", "")))
	}
	if label == "" || len(label) > 10 || !sizeLabelRe.MatchString(label) {
		return "", false
	}
	return label, true
}

func disabled(s *goquery.Selection) bool {
	if _, ok := s.Attr("disabled"); ok {
		return true
	}
	switch strings.ToLower(s.AttrOr("aria-disabled", "")) {
	case "true", "disabled":
		return true
	}
	return strings.Contains(s.AttrOr("class", ""), "disabled")
}

func extractSizeQuantities(d *goquery.Document) map[string]int {
	for _, f := range []func(*goquery.Document) map[string]int{sizesFromAttrs, sizesFromScripts, sizesFromButtons} {
		if m := f(d); len(m) > 0 {
			return m
		}
	}
	return map[string]int{}
}

func sizesFromAttrs(d *goquery.Document) map[string]int {
	out := map[string]int{}
	d.Find(sizeCandidates).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxSizeCandidates {
			return false
		}
		label, ok := sizeLabel(s)
		if !ok {
			return true
		}
		for _, a := range qtyAttrs {
			v := strings.TrimSpace(s.AttrOr(a, ""))
			if !intRe.MatchString(v) {
				continue
			}
			q, err := strconv.Atoi(v)
			if err != nil {
				continue
			}
			out[label] = max(0, q)
			break
		}
		return true
	})
	return out
}

func sizesFromScripts(d *goquery.Document) map[string]int {
	out := map[string]int{}
	d.Find("script").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxInventoryJS {
			return false
		}
		raw := s.Text()
		low := strings.ToLower(raw)
		if !strings.Contains(low, "variant") && !strings.Contains(low, "inventory") {
			return true
		}
		for _, m := range scriptQtyRe.FindAllStringSubmatch(raw, -1) {
			q, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			out[strings.ToUpper(strings.TrimSpace(m[1]))] = max(0, q)
		}
		return true
	})
	return out
}

// sizesFromButtons is the last resort: a clickable size counts as 1 unit and
// a disabled one as 0, since the real quantity is unknown.
func sizesFromButtons(d *goquery.Document) map[string]int {
	out := map[string]int{}
	d.Find("button").Each(func(_ int, s *goquery.Selection) {
		label, ok := sizeLabel(s)
		if !ok {
			return
		}
		if disabled(s) {
			if _, seen := out[label]; !seen {
				out[label] = 0
			}
			return
		}
		out[label] = 1
	})
	return out
}

func extractAvailableSizes(d *goquery.Document) []string {
	seen := map[string]bool{}
	var out []string
	d.Find(sizeCandidates).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxSizeCandidates {
			return false
		}
		label, ok := sizeLabel(s)
		if !ok || disabled(s) || seen[label] {
			return true
		}
		seen[label] = true
		out = append(out, label)
		return true
	})
	return catalog.SortSizes(out)
}

func nonEmpty(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "section": true, "table": true,
	"td": true, "th": true, "tr": true, "ul": true, "button": true, "option": true,
}

// bodyText approximates the rendered text of <body>: one line per block
// element, scripts and styles dropped.
func bodyText(d *goquery.Document) string {
	body := d.Find("body").First()
	if body.Length() == 0 {
		return ""
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		block := n.Type == html.ElementNode && blockTags[n.Data]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	for _, n := range body.Nodes {
		walk(n)
	}
	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = normSpaces(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
