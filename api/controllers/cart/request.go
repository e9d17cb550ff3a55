package cart

import "github.com/google/uuid"

// addItemRequest is the body of POST /cart/items. Name and price come from
// the catalog, never from the client.
type addItemRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"omitempty,min=1,max=999"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0,max=999"`
}
