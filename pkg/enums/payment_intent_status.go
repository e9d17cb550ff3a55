package enums

// PaymentIntentStatus mirrors the gateway's payment intent lifecycle.
type PaymentIntentStatus string

const (
	PaymentIntentRequiresPaymentMethod PaymentIntentStatus = "requires_payment_method"
	PaymentIntentRequiresConfirmation  PaymentIntentStatus = "requires_confirmation"
	PaymentIntentRequiresAction        PaymentIntentStatus = "requires_action"
	PaymentIntentProcessing            PaymentIntentStatus = "processing"
	PaymentIntentRequiresCapture       PaymentIntentStatus = "requires_capture"
	PaymentIntentCanceled              PaymentIntentStatus = "canceled"
	PaymentIntentSucceeded             PaymentIntentStatus = "succeeded"
)

// String implements fmt.Stringer.
func (s PaymentIntentStatus) String() string {
	return string(s)
}

// IsSuccess reports whether funds are secured.
func (s PaymentIntentStatus) IsSuccess() bool {
	return s == PaymentIntentSucceeded
}

// IsPending reports whether the outcome is still being decided by the gateway.
func (s PaymentIntentStatus) IsPending() bool {
	return s == PaymentIntentProcessing
}
