package service

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateDiscount applies a percentage discount to amount. A non-zero max caps the
// discount; the result is rounded half away from zero to cents.
func CalculateDiscount(amount, percentage decimal.Decimal, maxDiscount decimal.NullDecimal) (discount, final decimal.Decimal) {
	discount = amount.Mul(percentage).Div(hundred)
	if maxDiscount.Valid && !maxDiscount.Decimal.IsZero() && discount.GreaterThan(maxDiscount.Decimal) {
		discount = maxDiscount.Decimal
	}
	discount = discount.Round(2)
	return discount, amount.Sub(discount)
}
