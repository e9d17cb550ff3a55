package payments

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// CreatePaymentIntentRequest is the body of POST /payments/create-payment-intent.
type CreatePaymentIntentRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty" validate:"omitempty,currency"`
}

// CreatePaymentIntentResponse carries the client secret used by the browser
// to collect payment details.
type CreatePaymentIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

// ProcessPaymentRequest is the body of POST /payments/process.
type ProcessPaymentRequest struct {
	PaymentMethodID string          `json:"paymentMethodId" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	OrderID         uuid.UUID       `json:"orderId" validate:"required"`
}

// ProcessPaymentResponse reports the outcome of a create-and-confirm call.
type ProcessPaymentResponse struct {
	Success       bool      `json:"success"`
	PaymentIntent IntentDTO `json:"paymentIntent"`
	OrderID       uuid.UUID `json:"orderId"`
}

// IntentDTO is the client-facing intent shape. Amounts are in major units.
type IntentDTO struct {
	ID            string                    `json:"id"`
	Status        enums.PaymentIntentStatus `json:"status"`
	Amount        decimal.Decimal           `json:"amount"`
	Currency      enums.Currency            `json:"currency"`
	FailureReason string                    `json:"failureReason,omitempty"`
}

// VerifyPaymentResponse is the body of GET /payments/verify/{paymentIntentId}.
type VerifyPaymentResponse struct {
	Status   enums.PaymentIntentStatus `json:"status"`
	Amount   decimal.Decimal           `json:"amount"`
	Currency enums.Currency            `json:"currency"`
	OrderID  *uuid.UUID                `json:"orderId,omitempty"`
}

func intentDTO(i *Intent) IntentDTO {
	if i == nil {
		return IntentDTO{}
	}
	return IntentDTO{
		ID:            i.ID,
		Status:        i.Status,
		Amount:        i.Amount(),
		Currency:      i.Currency,
		FailureReason: i.FailureReason,
	}
}
