package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const allowRedirectsNever = "never"

// StripeIntentClient exposes the subset of Stripe payment intent calls the
// gateway needs, so it can be stubbed in tests.
type StripeIntentClient interface {
	New(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Cancel(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// NewStripeIntentClient returns the live Stripe client as an intent client.
func NewStripeIntentClient(api *pkgstripe.Client) StripeIntentClient {
	if api == nil {
		return nil
	}
	return api
}

// StripeGateway implements Gateway on Stripe payment intents.
type StripeGateway struct {
	client StripeIntentClient
}

// NewStripeGateway builds a gateway over the provided intent client.
func NewStripeGateway(client StripeIntentClient) (*StripeGateway, error) {
	if client == nil {
		return nil, errors.New("stripe intent client required")
	}
	return &StripeGateway{client: client}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (*Intent, error) {
	if err := validateAmount(p.Amount); err != nil {
		return nil, err
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(MinorUnits(p.Amount)),
		Currency: stripe.String(currencyOrDefault(p.Currency).String()),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String(allowRedirectsNever),
		},
	}
	applyCommon(&params.Params, p.IdempotencyKey)
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.client.New(ctx, params)
	if err != nil {
		return nil, gatewayError("create", err)
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) ConfirmIntent(ctx context.Context, p ConfirmIntentParams) (*Intent, error) {
	if strings.TrimSpace(p.PaymentMethodID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}

	if strings.TrimSpace(p.IntentID) == "" {
		if err := validateAmount(p.Amount); err != nil {
			return nil, err
		}
		params := &stripe.PaymentIntentParams{
			Amount:        stripe.Int64(MinorUnits(p.Amount)),
			Currency:      stripe.String(currencyOrDefault(p.Currency).String()),
			PaymentMethod: stripe.String(p.PaymentMethodID),
			Confirm:       stripe.Bool(true),
			AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
				Enabled:        stripe.Bool(true),
				AllowRedirects: stripe.String(allowRedirectsNever),
			},
		}
		applyCommon(&params.Params, p.IdempotencyKey)
		for k, v := range p.Metadata {
			params.AddMetadata(k, v)
		}
		pi, err := g.client.New(ctx, params)
		if err != nil {
			return nil, gatewayError("confirm", err)
		}
		return fromStripe(pi), nil
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(p.PaymentMethodID),
	}
	applyCommon(&params.Params, p.IdempotencyKey)
	pi, err := g.client.Confirm(ctx, p.IntentID, params)
	if err != nil {
		return nil, gatewayError("confirm", err)
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	pi, err := g.client.Get(ctx, intentID, nil)
	if err != nil {
		return nil, gatewayError("retrieve", err)
	}
	return fromStripe(pi), nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) (*Intent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	pi, err := g.client.Cancel(ctx, intentID, nil)
	if err != nil {
		return nil, gatewayError("cancel", err)
	}
	return fromStripe(pi), nil
}

func applyCommon(params *stripe.Params, idempotencyKey string) {
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
}

func currencyOrDefault(c enums.Currency) enums.Currency {
	if c == "" {
		return enums.CurrencyUSD
	}
	return c
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	if pi == nil {
		return nil
	}
	intent := &Intent{
		ID:           pi.ID,
		AmountMinor:  pi.Amount,
		Currency:     enums.Currency(strings.ToLower(string(pi.Currency))),
		Status:       enums.PaymentIntentStatus(pi.Status),
		ClientSecret: pi.ClientSecret,
		Metadata:     pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		intent.FailureReason = pi.LastPaymentError.Msg
		intent.DeclineCode = string(pi.LastPaymentError.DeclineCode)
	}
	return intent
}

func gatewayError(op string, err error) error {
	out := &Error{Op: op, Cause: err, Reason: err.Error()}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		out.Reason = stripeErr.Msg
		out.DeclineCode = string(stripeErr.DeclineCode)
	}
	return out
}
