package tabular

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// DefaultDateLayouts covers the formats seen across ledger and custody
// exports. Profiles may extend the list.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"01/02/2006",
	"20060102",
	"2006-01-02T15:04:05Z07:00",
}

// CoerceDecimal parses a monetary or numeric value. Thousands separators
// and surrounding whitespace are tolerated; "(123.45)" is read as a
// bookkeeping negative.
func CoerceDecimal(value string) (decimal.Decimal, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		negative = true
		v = v[1 : len(v)-1]
	}
	v = strings.ReplaceAll(v, ",", "")
	v = strings.ReplaceAll(v, " ", "")

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// CoerceDate parses a date value against the given layouts, falling back
// to DefaultDateLayouts when none are supplied. Results are normalized
// to UTC midnight so comparisons ignore time-of-day noise.
func CoerceDate(value string, layouts []string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, false
	}
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// CoerceCurrency validates an ISO 4217 currency code and returns its
// canonical upper-case form.
func CoerceCurrency(value string) (string, bool) {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "" {
		return "", false
	}
	unit, err := currency.ParseISO(v)
	if err != nil {
		return "", false
	}
	return unit.String(), true
}
