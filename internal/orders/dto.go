package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// ItemInput is one requested (product, quantity) pair. Prices are never
// accepted from the caller.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateOrderInput carries everything the order service needs to price and
// persist a new order.
type CreateOrderInput struct {
	UserID         uuid.UUID
	Shipping       types.ShippingInfo
	Items          []ItemInput
	Currency       enums.Currency
	IdempotencyKey string
}

// CreateOrderRequest is the wire body of POST /orders/user/{userId}.
type CreateOrderRequest struct {
	FirstName       string             `json:"firstName" validate:"required"`
	LastName        string             `json:"lastName" validate:"required"`
	Email           string             `json:"email" validate:"required,email"`
	Phone           string             `json:"phone" validate:"required"`
	ShippingAddress string             `json:"shippingAddress" validate:"required"`
	ShippingCity    string             `json:"shippingCity" validate:"required"`
	ShippingState   string             `json:"shippingState" validate:"required"`
	ShippingZipCode string             `json:"shippingZipCode" validate:"required"`
	Currency        string             `json:"currency,omitempty" validate:"omitempty,currency"`
	OrderItems      []OrderItemRequest `json:"orderItems" validate:"required,min=1,dive"`
}

// OrderItemRequest is one entry of CreateOrderRequest.OrderItems.
type OrderItemRequest struct {
	Product  ProductRef `json:"product"`
	Quantity int        `json:"quantity" validate:"min=1"`
}

// ProductRef identifies a catalog product on the wire.
type ProductRef struct {
	ID uuid.UUID `json:"id" validate:"required"`
}

// NewCreateOrderRequest builds the wire body from shipping info and items.
func NewCreateOrderRequest(shipping types.ShippingInfo, items []ItemInput, currency enums.Currency) CreateOrderRequest {
	req := CreateOrderRequest{
		FirstName:       shipping.FirstName,
		LastName:        shipping.LastName,
		Email:           shipping.Email,
		Phone:           shipping.Phone,
		ShippingAddress: shipping.Address,
		ShippingCity:    shipping.City,
		ShippingState:   shipping.State,
		ShippingZipCode: shipping.ZipCode,
		Currency:        currency.String(),
		OrderItems:      make([]OrderItemRequest, 0, len(items)),
	}
	for _, item := range items {
		req.OrderItems = append(req.OrderItems, OrderItemRequest{
			Product:  ProductRef{ID: item.ProductID},
			Quantity: item.Quantity,
		})
	}
	return req
}

// ToInput maps the wire body to a service input.
func (r CreateOrderRequest) ToInput(userID uuid.UUID, idempotencyKey string) (CreateOrderInput, error) {
	currency, err := enums.ParseCurrency(r.Currency)
	if err != nil {
		return CreateOrderInput{}, err
	}
	items := make([]ItemInput, 0, len(r.OrderItems))
	for _, item := range r.OrderItems {
		items = append(items, ItemInput{ProductID: item.Product.ID, Quantity: item.Quantity})
	}
	return CreateOrderInput{
		UserID: userID,
		Shipping: types.ShippingInfo{
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Email:     r.Email,
			Phone:     r.Phone,
			Address:   r.ShippingAddress,
			City:      r.ShippingCity,
			State:     r.ShippingState,
			ZipCode:   r.ShippingZipCode,
		},
		Items:          items,
		Currency:       currency,
		IdempotencyKey: idempotencyKey,
	}, nil
}

// CancelOrderRequest is the wire body of POST /orders/{orderId}/cancel.
type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=200"`
}

// UpdateStatusRequest is the wire body of PATCH /orders/{orderId}/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// OrderDTO is the order shape returned to clients.
type OrderDTO struct {
	ID              uuid.UUID          `json:"id"`
	UserID          uuid.UUID          `json:"userId"`
	Status          enums.OrderStatus  `json:"status"`
	Shipping        types.ShippingInfo `json:"shipping"`
	Items           []OrderItemDTO     `json:"orderItems"`
	Subtotal        decimal.Decimal    `json:"subtotal"`
	ShippingCost    decimal.Decimal    `json:"shippingCost"`
	Tax             decimal.Decimal    `json:"tax"`
	TotalAmount     decimal.Decimal    `json:"totalAmount"`
	Currency        enums.Currency     `json:"currency"`
	PaymentIntentID *string            `json:"paymentIntentId,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
	ConfirmedAt     *time.Time         `json:"confirmedAt,omitempty"`
	CancelledAt     *time.Time         `json:"cancelledAt,omitempty"`
}

// OrderItemDTO is one captured order line.
type OrderItemDTO struct {
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// OrderList is a page of a user's order history.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// FromModel maps an order row (with items preloaded) to its DTO.
func FromModel(o *models.Order) *OrderDTO {
	if o == nil {
		return nil
	}
	dto := &OrderDTO{
		ID:     o.ID,
		UserID: o.UserID,
		Status: o.Status,
		Shipping: types.ShippingInfo{
			FirstName: o.FirstName,
			LastName:  o.LastName,
			Email:     o.Email,
			Phone:     o.Phone,
			Address:   o.Address,
			City:      o.City,
			State:     o.State,
			ZipCode:   o.ZipCode,
		},
		Items:           make([]OrderItemDTO, 0, len(o.Items)),
		Subtotal:        o.Subtotal,
		ShippingCost:    o.ShippingCost,
		Tax:             o.Tax,
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		PaymentIntentID: o.PaymentIntentID,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		ConfirmedAt:     o.ConfirmedAt,
		CancelledAt:     o.CancelledAt,
	}
	for _, item := range o.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}
	return dto
}
