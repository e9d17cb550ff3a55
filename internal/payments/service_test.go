package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubLinker struct {
	orders   map[uuid.UUID]*orders.OrderDTO
	attached map[uuid.UUID]string
	paid     map[uuid.UUID]string
}

func newStubLinker(list ...*orders.OrderDTO) *stubLinker {
	s := &stubLinker{orders: map[uuid.UUID]*orders.OrderDTO{}, attached: map[uuid.UUID]string{}, paid: map[uuid.UUID]string{}}
	for _, o := range list {
		s.orders[o.ID] = o
	}
	return s
}

func (s *stubLinker) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*orders.OrderDTO, error) {
	o, ok := s.orders[orderID]
	if !ok || o.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return o, nil
}

func (s *stubLinker) AttachPaymentIntent(ctx context.Context, userID, orderID uuid.UUID, intentID string) error {
	s.attached[orderID] = intentID
	return nil
}

func (s *stubLinker) MarkPaid(ctx context.Context, userID, orderID uuid.UUID, intentID string) (*orders.OrderDTO, error) {
	s.paid[orderID] = intentID
	o := s.orders[orderID]
	if o != nil {
		o.Status = enums.OrderStatusConfirmed
	}
	return o, nil
}

func pendingOrder(userID uuid.UUID, total string) *orders.OrderDTO {
	return &orders.OrderDTO{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      enums.OrderStatusPending,
		TotalAmount: decimal.RequireFromString(total),
		Currency:    enums.CurrencyUSD,
	}
}

func TestCreatePaymentIntent(t *testing.T) {
	t.Parallel()
	gw := newFakeGateway()
	svc, err := NewService(gw, newStubLinker(), nil)
	require.NoError(t, err)

	resp, err := svc.CreatePaymentIntent(context.Background(), uuid.New(), CreatePaymentIntentRequest{Amount: decimal.RequireFromString("25.00")}, "")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", resp.PaymentIntentID)
	assert.Equal(t, "pi_1_secret", resp.ClientSecret)
	assert.Equal(t, int64(2500), gw.intents["pi_1"].AmountMinor)
	assert.Equal(t, enums.CurrencyUSD, gw.intents["pi_1"].Currency)

	_, err = svc.CreatePaymentIntent(context.Background(), uuid.New(), CreatePaymentIntentRequest{Amount: decimal.NewFromInt(-1)}, "")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = svc.CreatePaymentIntent(context.Background(), uuid.New(), CreatePaymentIntentRequest{Amount: decimal.NewFromInt(1), Currency: "xyz"}, "")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestProcessPaymentSettlesLinkedOrder(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	order := pendingOrder(userID, "60.50")
	linker := newStubLinker(order)
	gw := newFakeGateway()
	svc, err := NewService(gw, linker, nil)
	require.NoError(t, err)

	resp, err := svc.ProcessPayment(context.Background(), userID, ProcessPaymentRequest{
		PaymentMethodID: "pm_card_visa",
		Amount:          decimal.RequireFromString("60.5"),
		OrderID:         order.ID,
	}, "key-1")
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, order.ID, resp.OrderID)
	assert.True(t, resp.PaymentIntent.Amount.Equal(decimal.RequireFromString("60.50")))
	assert.Equal(t, resp.PaymentIntent.ID, linker.attached[order.ID])
	assert.Equal(t, resp.PaymentIntent.ID, linker.paid[order.ID])
	assert.Equal(t, order.ID.String(), gw.intents[resp.PaymentIntent.ID].Metadata[MetadataOrderID])
}

func TestProcessPaymentEnforcesLinkage(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	order := pendingOrder(userID, "60.50")
	confirmed := pendingOrder(userID, "10.00")
	confirmed.Status = enums.OrderStatusConfirmed
	gw := newFakeGateway()
	svc, err := NewService(gw, newStubLinker(order, confirmed), nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.ProcessPayment(ctx, userID, ProcessPaymentRequest{PaymentMethodID: "pm_1", Amount: decimal.RequireFromString("1.00"), OrderID: order.ID}, "")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = svc.ProcessPayment(ctx, uuid.New(), ProcessPaymentRequest{PaymentMethodID: "pm_1", Amount: decimal.RequireFromString("60.50"), OrderID: order.ID}, "")
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	_, err = svc.ProcessPayment(ctx, userID, ProcessPaymentRequest{PaymentMethodID: "pm_1", Amount: decimal.RequireFromString("10.00"), OrderID: confirmed.ID}, "")
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	assert.Zero(t, gw.confirms)
}

func TestProcessPaymentDeclineIsNotSuccess(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	order := pendingOrder(userID, "17.10")
	linker := newStubLinker(order)
	gw := newFakeGateway()
	gw.status = func(p ConfirmIntentParams) *Intent {
		return &Intent{AmountMinor: MinorUnits(p.Amount), Status: enums.PaymentIntentRequiresPaymentMethod, FailureReason: "Your card was declined."}
	}
	svc, err := NewService(gw, linker, nil)
	require.NoError(t, err)

	resp, err := svc.ProcessPayment(context.Background(), userID, ProcessPaymentRequest{PaymentMethodID: "pm_1", Amount: decimal.RequireFromString("17.10"), OrderID: order.ID}, "")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Your card was declined.", resp.PaymentIntent.FailureReason)
	assert.Empty(t, linker.paid)
	assert.NotEmpty(t, linker.attached[order.ID])
}

func TestProcessPaymentGatewayErrorIsPaymentFailed(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	order := pendingOrder(userID, "17.10")
	gw := newFakeGateway()
	gw.err = &Error{Op: "confirm", Reason: "card declined", DeclineCode: "generic_decline"}
	svc, err := NewService(gw, newStubLinker(order), nil)
	require.NoError(t, err)

	_, err = svc.ProcessPayment(context.Background(), userID, ProcessPaymentRequest{PaymentMethodID: "pm_1", Amount: decimal.RequireFromString("17.10"), OrderID: order.ID}, "")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodePayment, typed.Code())
	assert.Equal(t, "card declined", typed.Message())
}

func TestVerifyPayment(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	order := pendingOrder(userID, "60.50")
	linker := newStubLinker(order)
	gw := newFakeGateway()
	gw.intents["pi_linked"] = &Intent{
		ID:          "pi_linked",
		AmountMinor: 6050,
		Currency:    enums.CurrencyUSD,
		Status:      enums.PaymentIntentSucceeded,
		Metadata:    map[string]string{MetadataOrderID: order.ID.String(), MetadataUserID: userID.String()},
	}
	gw.intents["pi_loose"] = &Intent{ID: "pi_loose", AmountMinor: 2500, Currency: enums.CurrencyUSD, Status: enums.PaymentIntentProcessing}
	svc, err := NewService(gw, linker, nil)
	require.NoError(t, err)
	ctx := context.Background()

	resp, err := svc.VerifyPayment(ctx, userID, "pi_linked")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentIntentSucceeded, resp.Status)
	assert.True(t, resp.Amount.Equal(decimal.RequireFromString("60.50")))
	require.NotNil(t, resp.OrderID)
	assert.Equal(t, order.ID, *resp.OrderID)
	assert.Equal(t, "pi_linked", linker.paid[order.ID])

	resp, err = svc.VerifyPayment(ctx, userID, "pi_loose")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentIntentProcessing, resp.Status)
	assert.Nil(t, resp.OrderID)

	_, err = svc.VerifyPayment(ctx, uuid.New(), "pi_linked")
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	_, err = svc.VerifyPayment(ctx, userID, "pi_missing")
	assert.Equal(t, pkgerrors.CodePayment, pkgerrors.As(err).Code())
}

func TestCreatePaymentIntentReplayReturnsSameIntentToOwnerOnly(t *testing.T) {
	t.Parallel()
	gw, inner, mr := newIdempotentGateway(t)
	svc, err := NewService(gw, newStubLinker(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	req := CreatePaymentIntentRequest{Amount: decimal.RequireFromString("26.60")}
	owner, other := uuid.New(), uuid.New()

	first, err := svc.CreatePaymentIntent(ctx, owner, req, "k1")
	require.NoError(t, err)
	replay, err := svc.CreatePaymentIntent(ctx, owner, req, "k1")
	require.NoError(t, err)
	assert.Equal(t, first.PaymentIntentID, replay.PaymentIntentID)
	assert.Equal(t, first.ClientSecret, replay.ClientSecret)
	assert.Equal(t, 1, inner.creates)

	theirs, err := svc.CreatePaymentIntent(ctx, other, req, "k1")
	require.NoError(t, err)
	assert.NotEqual(t, first.PaymentIntentID, theirs.PaymentIntentID)
	assert.Equal(t, []string{owner.String() + ":k1", other.String() + ":k1"}, inner.keys)

	for _, key := range mr.Keys() {
		stored, err := mr.Get(key)
		require.NoError(t, err)
		assert.NotContains(t, stored, "secret")
	}
}
