package checkout

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// SubmitInput is the shipping form plus the selected payment method.
type SubmitInput struct {
	Shipping        types.ShippingInfo
	PaymentMethodID string
	Currency        string
}

// SubmitRequest is the body of POST /checkout/{attemptId}/submit.
type SubmitRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	City            string `json:"city"`
	State           string `json:"state"`
	ZipCode         string `json:"zipCode"`
	PaymentMethodID string `json:"paymentMethodId" validate:"required"`
	Currency        string `json:"currency,omitempty" validate:"omitempty,currency"`
}

// ToInput maps the wire body to a SubmitInput. Shipping fields are validated
// by the orchestrator so missing ones are reported together.
func (r SubmitRequest) ToInput() SubmitInput {
	return SubmitInput{
		Shipping: types.ShippingInfo{
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Email:     r.Email,
			Phone:     r.Phone,
			Address:   r.Address,
			City:      r.City,
			State:     r.State,
			ZipCode:   r.ZipCode,
		},
		PaymentMethodID: r.PaymentMethodID,
		Currency:        r.Currency,
	}
}

// Failure describes why an attempt stopped in failed.
type Failure struct {
	Kind    enums.CheckoutFailureKind `json:"kind"`
	Message string                    `json:"message"`
}

// AttemptDTO is the client view of a checkout attempt. Items and Breakdown
// come from the snapshot once taken, otherwise from the live cart.
type AttemptDTO struct {
	ID              uuid.UUID            `json:"id"`
	State           enums.CheckoutState  `json:"state"`
	Items           []types.CartLine     `json:"items"`
	Breakdown       types.PriceBreakdown `json:"breakdown"`
	OrderID         *uuid.UUID           `json:"orderId,omitempty"`
	PaymentIntentID *string              `json:"paymentIntentId,omitempty"`
	ChargedAmount   *decimal.Decimal     `json:"chargedAmount,omitempty"`
	Currency        enums.Currency       `json:"currency"`
	Failure         *Failure             `json:"failure,omitempty"`
	Retries         int                  `json:"retries"`
	SettledAt       *time.Time           `json:"settledAt,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

func toDTO(a *models.CheckoutAttempt, items []types.CartLine, breakdown types.PriceBreakdown) *AttemptDTO {
	dto := &AttemptDTO{
		ID:              a.ID,
		State:           a.State,
		Items:           items,
		Breakdown:       breakdown,
		OrderID:         a.OrderID,
		PaymentIntentID: a.PaymentIntentID,
		ChargedAmount:   a.ChargedAmount,
		Currency:        a.Currency,
		Retries:         a.Retries,
		SettledAt:       a.SettledAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if dto.Items == nil {
		dto.Items = []types.CartLine{}
	}
	if a.FailureKind != nil {
		f := &Failure{Kind: *a.FailureKind}
		if a.FailureMessage != nil {
			f.Message = *a.FailureMessage
		}
		dto.Failure = f
	}
	return dto
}
