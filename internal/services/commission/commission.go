// Package commission resolves the commission rate for a purchase and
// computes commission amounts in fixed-point decimal.
package commission

import (
	"github.com/promoledger/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places stored in money columns
const Scale = 8

// ResolveRate returns the product's own rate when set, otherwise the brand default
func ResolveRate(product models.Product, brand models.Brand) decimal.Decimal {
	if product.CommissionRate != nil {
		return *product.CommissionRate
	}
	return brand.DefaultCommissionRate
}

// Amount returns amount*rate rounded half-up to Scale places
func Amount(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(Scale)
}

// Sum adds amounts without intermediate rounding
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Tolerance is the payout matching tolerance of one cent
var Tolerance = decimal.New(1, -2)

// WithinTolerance reports whether |a-b| <= one cent
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}
