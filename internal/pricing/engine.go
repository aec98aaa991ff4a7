package pricing

import "math"

// Business constants for the storefront. These are fixed rules, not runtime
// configuration.
const (
	// FreeShippingThreshold is the subtotal above which shipping is free.
	FreeShippingThreshold = 999
	// FlatShippingFee is charged when the subtotal does not clear the threshold.
	FlatShippingFee = 49
	// TaxRate is the flat GST rate applied to the subtotal.
	TaxRate = 0.18
)

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice float64
}

// Summary aggregates computed pricing components. Tax is rounded to the
// nearest whole rupee while Discount keeps two decimal places; the two
// conventions are intentionally different and must not be unified.
type Summary struct {
	Subtotal      float64
	Shipping      float64
	Tax           float64
	OriginalTotal float64
	Discount      float64
	Total         float64
}

// Compute calculates order totals for the provided line items and discount.
func Compute(items []Item, discount float64) Summary {
	var subtotal float64
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal += float64(it.Qty) * it.UnitPrice
	}
	shipping := float64(FlatShippingFee)
	if subtotal > FreeShippingThreshold {
		shipping = 0
	}
	tax := math.Round(subtotal * TaxRate)
	original := subtotal + shipping + tax
	if discount < 0 {
		discount = 0
	}
	if discount > original {
		discount = original
	}
	return Summary{
		Subtotal:      subtotal,
		Shipping:      shipping,
		Tax:           tax,
		OriginalTotal: original,
		Discount:      discount,
		Total:         original - discount,
	}
}

// Round2 rounds a monetary value to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
