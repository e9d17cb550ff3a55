package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestMinorUnits(t *testing.T) {
	t.Parallel()
	cases := []struct {
		amount string
		want   int64
	}{
		{"60.50", 6050},
		{"17.10", 1710},
		{"0.005", 1},
		{"19.994", 1999},
		{"100", 10000},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MinorUnits(decimal.RequireFromString(tc.amount)), tc.amount)
	}
	assert.True(t, FromMinorUnits(6050).Equal(decimal.RequireFromString("60.50")))
}

type stubIntentClient struct {
	created   []*stripe.PaymentIntentParams
	confirmed []*stripe.PaymentIntentConfirmParams
	cancelled []string
	result    *stripe.PaymentIntent
	err       error
}

func (s *stubIntentClient) New(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.created = append(s.created, params)
	return s.result, s.err
}

func (s *stubIntentClient) Get(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.result, s.err
}

func (s *stubIntentClient) Confirm(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	s.confirmed = append(s.confirmed, params)
	return s.result, s.err
}

func (s *stubIntentClient) Cancel(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	s.cancelled = append(s.cancelled, id)
	return s.result, s.err
}

func TestStripeGatewayCreateIntentConvertsToMinorUnits(t *testing.T) {
	t.Parallel()
	client := &stubIntentClient{result: &stripe.PaymentIntent{
		ID:           "pi_1",
		Amount:       6050,
		Currency:     stripe.Currency("usd"),
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
		ClientSecret: "pi_1_secret",
	}}
	gw, err := NewStripeGateway(client)
	require.NoError(t, err)

	intent, err := gw.CreateIntent(context.Background(), CreateIntentParams{
		Amount:         decimal.RequireFromString("60.50"),
		IdempotencyKey: "tok:intent",
		Metadata:       map[string]string{MetadataOrderID: "order-1"},
	})
	require.NoError(t, err)

	require.Len(t, client.created, 1)
	params := client.created[0]
	assert.Equal(t, int64(6050), *params.Amount)
	assert.Equal(t, "usd", *params.Currency)
	assert.Equal(t, "never", *params.AutomaticPaymentMethods.AllowRedirects)
	assert.Equal(t, "tok:intent", *params.IdempotencyKey)
	assert.Equal(t, "order-1", params.Metadata[MetadataOrderID])

	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, enums.CurrencyUSD, intent.Currency)
	assert.True(t, intent.Amount().Equal(decimal.RequireFromString("60.50")))
}

func TestStripeGatewayConfirmWithoutIntentCreatesAndConfirms(t *testing.T) {
	t.Parallel()
	client := &stubIntentClient{result: &stripe.PaymentIntent{ID: "pi_2", Status: stripe.PaymentIntentStatusSucceeded}}
	gw, err := NewStripeGateway(client)
	require.NoError(t, err)

	intent, err := gw.ConfirmIntent(context.Background(), ConfirmIntentParams{
		Amount:          decimal.RequireFromString("17.10"),
		Currency:        enums.CurrencyUSD,
		PaymentMethodID: "pm_card_visa",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentIntentSucceeded, intent.Status)

	require.Len(t, client.created, 1)
	assert.True(t, *client.created[0].Confirm)
	assert.Equal(t, "pm_card_visa", *client.created[0].PaymentMethod)
	assert.Empty(t, client.confirmed)
}

func TestStripeGatewayConfirmExistingIntent(t *testing.T) {
	t.Parallel()
	client := &stubIntentClient{result: &stripe.PaymentIntent{ID: "pi_3", Status: stripe.PaymentIntentStatusProcessing}}
	gw, err := NewStripeGateway(client)
	require.NoError(t, err)

	intent, err := gw.ConfirmIntent(context.Background(), ConfirmIntentParams{IntentID: "pi_3", PaymentMethodID: "pm_1", IdempotencyKey: "tok:confirm"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentIntentProcessing, intent.Status)
	require.Len(t, client.confirmed, 1)
	assert.Equal(t, "tok:confirm", *client.confirmed[0].IdempotencyKey)
	assert.Empty(t, client.created)
}

func TestStripeGatewayMapsDeclines(t *testing.T) {
	t.Parallel()
	client := &stubIntentClient{err: &stripe.Error{Msg: "Your card was declined.", DeclineCode: "insufficient_funds"}}
	gw, err := NewStripeGateway(client)
	require.NoError(t, err)

	_, err = gw.ConfirmIntent(context.Background(), ConfirmIntentParams{Amount: decimal.NewFromInt(10), PaymentMethodID: "pm_1"})
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "confirm", perr.Op)
	assert.Equal(t, "Your card was declined.", perr.Reason)
	assert.Equal(t, "insufficient_funds", perr.DeclineCode)

	apiErr := pkgerrors.As(AsAPIError(err))
	require.NotNil(t, apiErr)
	assert.Equal(t, pkgerrors.CodePayment, apiErr.Code())
	assert.Equal(t, "Your card was declined.", apiErr.Message())
	assert.Equal(t, map[string]any{"declineCode": "insufficient_funds"}, apiErr.Details())
}

func TestStripeGatewayRejectsBadInput(t *testing.T) {
	t.Parallel()
	gw, err := NewStripeGateway(&stubIntentClient{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = gw.CreateIntent(ctx, CreateIntentParams{Amount: decimal.Zero})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	_, err = gw.ConfirmIntent(ctx, ConfirmIntentParams{Amount: decimal.NewFromInt(1)})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	_, err = gw.RetrieveIntent(ctx, " ")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = NewStripeGateway(nil)
	assert.Error(t, err)
}
