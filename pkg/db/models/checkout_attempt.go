package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// CheckoutAttempt records one run of the checkout state machine. The cart
// snapshot is taken when shipping info is submitted and never changes after.
// Version increases on every save; a save against an older version is refused.
type CheckoutAttempt struct {
	ID               uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionID        string                     `gorm:"column:session_id;not null"`
	UserID           *uuid.UUID                 `gorm:"column:user_id;type:uuid"`
	State            enums.CheckoutState        `gorm:"column:state;type:text;not null"`
	IdempotencyToken *string                    `gorm:"column:idempotency_token"`
	CartSnapshot     []types.CartLine           `gorm:"column:cart_snapshot;type:jsonb;serializer:json"`
	ClientBreakdown  *types.PriceBreakdown      `gorm:"column:client_breakdown;type:jsonb;serializer:json"`
	Shipping         *types.ShippingInfo        `gorm:"column:shipping;type:jsonb;serializer:json"`
	Currency         enums.Currency             `gorm:"column:currency;type:text;not null;default:'usd'"`
	OrderID          *uuid.UUID                 `gorm:"column:order_id;type:uuid"`
	PaymentIntentID  *string                    `gorm:"column:payment_intent_id"`
	PaymentMethodID  *string                    `gorm:"column:payment_method_id"`
	ChargedAmount    *decimal.Decimal           `gorm:"column:charged_amount;type:numeric(12,2)"`
	FailureKind      *enums.CheckoutFailureKind `gorm:"column:failure_kind"`
	FailureMessage   *string                    `gorm:"column:failure_message"`
	Retries          int                        `gorm:"column:retries;not null;default:0"`
	Version          int                        `gorm:"column:version;not null;default:0"`
	SettledAt        *time.Time                 `gorm:"column:settled_at"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *CheckoutAttempt) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
