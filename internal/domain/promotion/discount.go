package promotion

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Subtotal returns the sum of unit price times quantity across all lines.
func Subtotal(lines []CartLine) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return sum
}

// Discount computes the discount amount for a promotion over the applicable
// cart lines. It is a pure function of its inputs.
//
// The clamps apply in a fixed order: the per-mode cap first (maximum
// discount amount for percentage, applicable subtotal for fixed), then the
// applicable subtotal, then the overall cart subtotal, then rounding to two
// places. This guarantees discount <= applicable subtotal <= subtotal even
// when the rule's configuration is inconsistent with the order.
func Discount(promo *Promotion, applicable []CartLine, subtotal decimal.Decimal) decimal.Decimal {
	applicableSubtotal := Subtotal(applicable)

	var amount decimal.Decimal
	switch promo.DiscountType {
	case DiscountPercentage:
		amount = applicableSubtotal.Mul(promo.DiscountValue).Div(hundred)
		if promo.MaxDiscountAmount.IsPositive() && amount.GreaterThan(promo.MaxDiscountAmount) {
			amount = promo.MaxDiscountAmount
		}
	case DiscountFixedAmount:
		amount = promo.DiscountValue
	default:
		return decimal.Zero
	}

	amount = decimal.Min(amount, applicableSubtotal, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}
