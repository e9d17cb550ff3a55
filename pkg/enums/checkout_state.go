package enums

import "fmt"

// CheckoutState is the position of a checkout attempt in its run.
type CheckoutState string

const (
	CheckoutStateIdle                   CheckoutState = "idle"
	CheckoutStateCollectingShippingInfo CheckoutState = "collecting_shipping_info"
	CheckoutStateSubmittingOrder        CheckoutState = "submitting_order"
	CheckoutStateCreatingPayment        CheckoutState = "creating_payment"
	CheckoutStateConfirmingPayment      CheckoutState = "confirming_payment"
	CheckoutStateSettled                CheckoutState = "settled"
	CheckoutStateFailed                 CheckoutState = "failed"
	CheckoutStateRefused                CheckoutState = "refused"
)

var validCheckoutStates = []CheckoutState{
	CheckoutStateIdle,
	CheckoutStateCollectingShippingInfo,
	CheckoutStateSubmittingOrder,
	CheckoutStateCreatingPayment,
	CheckoutStateConfirmingPayment,
	CheckoutStateSettled,
	CheckoutStateFailed,
	CheckoutStateRefused,
}

// String implements fmt.Stringer.
func (s CheckoutState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CheckoutState.
func (s CheckoutState) IsValid() bool {
	for _, candidate := range validCheckoutStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition happens without a retry.
func (s CheckoutState) IsTerminal() bool {
	switch s {
	case CheckoutStateSettled, CheckoutStateFailed, CheckoutStateRefused:
		return true
	default:
		return false
	}
}

// ParseCheckoutState converts raw input into a CheckoutState.
func ParseCheckoutState(value string) (CheckoutState, error) {
	for _, candidate := range validCheckoutStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout state %q", value)
}

// CheckoutFailureKind classifies why a checkout attempt failed.
type CheckoutFailureKind string

const (
	CheckoutFailureOrderSubmission CheckoutFailureKind = "order_submission"
	CheckoutFailurePayment         CheckoutFailureKind = "payment"
)

// String implements fmt.Stringer.
func (k CheckoutFailureKind) String() string {
	return string(k)
}
