// Package money holds the naira helpers shared by invoices, receipts and
// the gateway boundary.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	CurrencyNGN = "NGN"
	nairaSign   = "₦"
)

var hundred = decimal.NewFromInt(100)

// Round rounds to kobo, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// HasKoboPrecision reports whether d has at most two decimal places.
func HasKoboPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// ToKobo converts a naira amount to the integer minor unit gateways expect.
func ToKobo(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromKobo converts a gateway minor-unit amount back to naira.
func FromKobo(kobo int64) decimal.Decimal {
	return decimal.NewFromInt(kobo).Div(hundred)
}

// Format renders d as "₦12,345.00".
func Format(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + nairaSign + b.String() + "." + frac
}
