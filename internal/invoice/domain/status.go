package domain

import "github.com/shopspring/decimal"

// DeriveStatus computes an invoice status from its totals. Waived and
// cancelled are admin overrides and are returned unchanged.
func DeriveStatus(current InvoiceStatus, total, paid decimal.Decimal) InvoiceStatus {
	if current.Closed() {
		return current
	}
	switch {
	case !paid.IsPositive():
		return StatusUnpaid
	case !total.IsPositive():
		return StatusPaid
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	default:
		return StatusPartial
	}
}

var hundred = decimal.NewFromInt(100)

// Discount is subtotal × percent / 100 rounded half-up to kobo.
func Discount(subtotal, percent decimal.Decimal) decimal.Decimal {
	if !percent.IsPositive() || !subtotal.IsPositive() {
		return decimal.Zero
	}
	return subtotal.Mul(percent).Div(hundred).Round(2)
}

// Total is subtotal − discount + arrears + late fee.
func Total(subtotal, discount, arrears, lateFee decimal.Decimal) decimal.Decimal {
	return subtotal.Sub(discount).Add(arrears).Add(lateFee).Round(2)
}
