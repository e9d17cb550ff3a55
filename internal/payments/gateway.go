package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Metadata keys written on every intent created for a checkout.
const (
	MetadataOrderID           = "order_id"
	MetadataUserID            = "user_id"
	MetadataCheckoutAttemptID = "checkout_attempt_id"
)

// Intent is the gateway-neutral view of a payment intent.
type Intent struct {
	ID            string
	AmountMinor   int64
	Currency      enums.Currency
	Status        enums.PaymentIntentStatus
	ClientSecret  string
	FailureReason string
	DeclineCode   string
	Metadata      map[string]string
}

// Amount converts the intent amount back to major units.
func (i *Intent) Amount() decimal.Decimal {
	if i == nil {
		return decimal.Zero
	}
	return FromMinorUnits(i.AmountMinor)
}

// CreateIntentParams describes an unconfirmed intent.
type CreateIntentParams struct {
	Amount         decimal.Decimal
	Currency       enums.Currency
	IdempotencyKey string
	Metadata       map[string]string
}

// ConfirmIntentParams confirms IntentID, or creates and confirms a new
// intent when IntentID is empty.
type ConfirmIntentParams struct {
	IntentID        string
	Amount          decimal.Decimal
	Currency        enums.Currency
	PaymentMethodID string
	IdempotencyKey  string
	Metadata        map[string]string
}

// Gateway is the payment processor surface used by checkout and the
// payment endpoints.
type Gateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	ConfirmIntent(ctx context.Context, params ConfirmIntentParams) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) (*Intent, error)
}

// MinorUnits converts a major-unit amount to the gateway's integer minor
// units, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts gateway minor units to major units.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Error is a payment processor failure. It is never retried locally.
type Error struct {
	Op          string
	Reason      string
	DeclineCode string
	Cause       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("payment %s failed", e.Op)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.DeclineCode != "" {
		msg += " (" + e.DeclineCode + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// AsAPIError wraps a gateway error as a PAYMENT_FAILED API error.
func AsAPIError(err error) error {
	if err == nil {
		return nil
	}
	var perr *Error
	if !errors.As(err, &perr) {
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
	}
	reason := "payment failed"
	var details map[string]any
	if perr != nil {
		if strings.TrimSpace(perr.Reason) != "" {
			reason = perr.Reason
		}
		if perr.DeclineCode != "" {
			details = map[string]any{"declineCode": perr.DeclineCode}
		}
	}
	wrapped := pkgerrors.Wrap(pkgerrors.CodePayment, err, reason)
	if details != nil {
		wrapped = wrapped.WithDetails(details)
	}
	return wrapped
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if MinorUnits(amount) <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount is below the smallest chargeable unit")
	}
	return nil
}
