package cart

import (
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type cartResponse struct {
	Items     []types.CartLine     `json:"items"`
	ItemCount int                  `json:"itemCount"`
	Breakdown types.PriceBreakdown `json:"breakdown"`
}

func newCartResponse(c *cartsvc.Cart) (cartResponse, error) {
	breakdown, err := c.Breakdown()
	if err != nil {
		return cartResponse{}, err
	}
	items := c.Snapshot()
	if items == nil {
		items = []types.CartLine{}
	}
	return cartResponse{
		Items:     items,
		ItemCount: c.ItemCount(),
		Breakdown: breakdown.Rounded(),
	}, nil
}
