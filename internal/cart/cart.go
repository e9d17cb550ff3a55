package cart

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Cart is the session's intended purchase. Items keep insertion order and
// hold at most one line per product.
type Cart struct {
	SessionID string           `json:"-"`
	Items     []types.CartLine `json:"items"`
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// ItemCount sums quantities across lines.
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Breakdown recomputes pricing from the current lines.
func (c *Cart) Breakdown() (types.PriceBreakdown, error) {
	if c == nil {
		return pricing.ComputeBreakdown(nil)
	}
	return pricing.ComputeBreakdown(c.Items)
}

// Snapshot returns a copy of the lines that later cart mutations cannot affect.
func (c *Cart) Snapshot() []types.CartLine {
	if c == nil {
		return nil
	}
	out := make([]types.CartLine, len(c.Items))
	copy(out, c.Items)
	return out
}

func (c *Cart) indexOf(productID uuid.UUID) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) add(line types.CartLine) {
	if idx := c.indexOf(line.ProductID); idx >= 0 {
		c.Items[idx].Quantity += line.Quantity
		return
	}
	c.Items = append(c.Items, line)
}

func (c *Cart) remove(productID uuid.UUID) bool {
	idx := c.indexOf(productID)
	if idx < 0 {
		return false
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return true
}

func (c *Cart) setQuantity(productID uuid.UUID, quantity int) bool {
	if quantity <= 0 {
		return c.remove(productID)
	}
	idx := c.indexOf(productID)
	if idx < 0 {
		return false
	}
	c.Items[idx].Quantity = quantity
	return true
}
