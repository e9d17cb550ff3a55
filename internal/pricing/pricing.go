// Package pricing derives the subtotal, shipping, tax and total for a set of
// cart lines. It performs no I/O.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

var (
	// FreeShippingThreshold is the subtotal that must be exceeded for free shipping.
	FreeShippingThreshold = decimal.NewFromInt(50)
	// FlatShipping is charged when the subtotal does not exceed the threshold.
	FlatShipping = decimal.RequireFromString("5.00")
	// TaxRate applies to the subtotal only.
	TaxRate = decimal.RequireFromString("0.10")
)

// ErrInvalidLine reports a line with a negative price or quantity.
var ErrInvalidLine = errors.New("invalid cart line")

// ComputeBreakdown returns the unrounded breakdown for lines. Callers round
// for display with PriceBreakdown.Rounded.
func ComputeBreakdown(lines []types.CartLine) (types.PriceBreakdown, error) {
	subtotal := decimal.Zero
	for _, line := range lines {
		if line.UnitPrice.IsNegative() {
			return types.PriceBreakdown{}, fmt.Errorf("%w: product %s has negative price", ErrInvalidLine, line.ProductID)
		}
		if line.Quantity < 0 {
			return types.PriceBreakdown{}, fmt.Errorf("%w: product %s has negative quantity", ErrInvalidLine, line.ProductID)
		}
		subtotal = subtotal.Add(line.LineTotal())
	}

	shipping := FlatShipping
	if subtotal.GreaterThan(FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := subtotal.Mul(TaxRate)

	return types.PriceBreakdown{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax),
	}, nil
}
