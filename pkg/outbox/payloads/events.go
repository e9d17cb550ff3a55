package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedEvent announces a newly persisted PENDING order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	UserID      uuid.UUID       `json:"user_id"`
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    enums.Currency  `json:"currency"`
}

// OrderConfirmedEvent is emitted once payment for an order succeeded.
type OrderConfirmedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	UserID          uuid.UUID `json:"user_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
}

// OrderCancelledEvent is emitted when an order is cancelled and stock released.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderStatusChangedEvent covers fulfillment transitions (shipped, delivered).
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// CheckoutSettledEvent marks a checkout attempt that completed payment.
type CheckoutSettledEvent struct {
	AttemptID       uuid.UUID       `json:"attempt_id"`
	OrderID         uuid.UUID       `json:"order_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        enums.Currency  `json:"currency"`
}

// CheckoutFailedEvent marks a checkout attempt that stopped in failed.
type CheckoutFailedEvent struct {
	AttemptID uuid.UUID                 `json:"attempt_id"`
	OrderID   *uuid.UUID                `json:"order_id,omitempty"`
	Kind      enums.CheckoutFailureKind `json:"kind"`
	Message   string                    `json:"message"`
}
