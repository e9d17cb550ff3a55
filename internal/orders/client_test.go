package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestHTTPClient(t *testing.T, rt roundTripFunc) *HTTPClient {
	t.Helper()
	client, err := NewHTTPClient("http://orders.test/api/", time.Second,
		WithHTTPClient(&http.Client{Transport: rt}),
		WithBearerToken(func(context.Context) string { return "tok" }),
	)
	require.NoError(t, err)
	return client
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	t.Parallel()
	_, err := NewHTTPClient("  ", time.Second)
	require.ErrorIs(t, err, errBaseURLRequired)
}

func TestHTTPClientSubmitOrder(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	productID := uuid.New()
	orderID := uuid.New()

	var captured *http.Request
	var body CreateOrderRequest
	client := newTestHTTPClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		raw, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))
		return jsonResponse(http.StatusCreated, `{"data":{"id":"`+orderID.String()+`","status":"PENDING","totalAmount":"60.5"}}`), nil
	})

	order, err := client.SubmitOrder(context.Background(), CreateOrderInput{
		UserID:         userID,
		Shipping:       types.ShippingInfo{FirstName: "Ada", City: "London", ZipCode: "00001"},
		Items:          []ItemInput{{ProductID: productID, Quantity: 2}},
		Currency:       enums.CurrencyUSD,
		IdempotencyKey: "attempt-1:order",
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "http://orders.test/api/orders/user/"+userID.String(), captured.URL.String())
	assert.Equal(t, "Bearer tok", captured.Header.Get("Authorization"))
	assert.Equal(t, "attempt-1:order", captured.Header.Get("Idempotency-Key"))
	assert.Equal(t, "London", body.ShippingCity)
	assert.Equal(t, "00001", body.ShippingZipCode)
	require.Len(t, body.OrderItems, 1)
	assert.Equal(t, productID, body.OrderItems[0].Product.ID)
	assert.Equal(t, 2, body.OrderItems[0].Quantity)

	assert.Equal(t, orderID, order.ID)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, "60.5", order.TotalAmount.String())
}

func TestHTTPClientSubmitOrderSurfacesServerMessage(t *testing.T) {
	t.Parallel()
	client := newTestHTTPClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"error":{"code":"VALIDATION_ERROR","message":"insufficient stock for product Rug"}}`), nil
	})

	_, err := client.SubmitOrder(context.Background(), CreateOrderInput{UserID: uuid.New()})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeOrderSubmission, typed.Code())
	assert.Equal(t, "insufficient stock for product Rug", typed.Message())
}

func TestHTTPClientTransportFailure(t *testing.T) {
	t.Parallel()
	client := newTestHTTPClient(t, func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	err := client.CancelOrder(context.Background(), uuid.New(), uuid.New(), "")
	require.Equal(t, pkgerrors.CodeOrderSubmission, pkgerrors.As(err).Code())
}

func TestHTTPClientCancelOrder(t *testing.T) {
	t.Parallel()
	orderID := uuid.New()
	var captured *http.Request
	var body CancelOrderRequest
	client := newTestHTTPClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		return jsonResponse(http.StatusOK, `{"data":{}}`), nil
	})

	require.NoError(t, client.CancelOrder(context.Background(), uuid.New(), orderID, "declined"))
	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "/api/orders/"+orderID.String()+"/cancel", captured.URL.Path)
	assert.Equal(t, "declined", body.Reason)
}

func TestHTTPClientConfirmOrder(t *testing.T) {
	t.Parallel()
	orderID := uuid.New()

	cases := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "succeeded", body: `{"data":{"status":"succeeded","orderId":"` + orderID.String() + `"}}`},
		{name: "processing", body: `{"data":{"status":"processing","orderId":"` + orderID.String() + `"}}`, wantErr: true},
		{name: "other order", body: `{"data":{"status":"succeeded","orderId":"` + uuid.NewString() + `"}}`, wantErr: true},
		{name: "unlinked", body: `{"data":{"status":"succeeded"}}`, wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client := newTestHTTPClient(t, func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, "/api/payments/verify/pi_1", req.URL.Path)
				return jsonResponse(http.StatusOK, tc.body), nil
			})
			err := client.ConfirmOrder(context.Background(), uuid.New(), orderID, "pi_1")
			if tc.wantErr {
				require.Equal(t, pkgerrors.CodeOrderSubmission, pkgerrors.As(err).Code())
				return
			}
			require.NoError(t, err)
		})
	}
}

type stubService struct {
	createErr error
	cancelled []uuid.UUID
	paid      map[uuid.UUID]string
}

func (s *stubService) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDTO, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &OrderDTO{ID: uuid.New(), UserID: input.UserID, Status: enums.OrderStatusPending}, nil
}

func (s *stubService) ListByUser(context.Context, uuid.UUID, pagination.Params) (*OrderList, error) {
	return &OrderList{}, nil
}

func (s *stubService) GetForUser(context.Context, uuid.UUID, uuid.UUID) (*OrderDTO, error) {
	return &OrderDTO{}, nil
}

func (s *stubService) Cancel(_ context.Context, _, orderID uuid.UUID, _ string) (*OrderDTO, error) {
	s.cancelled = append(s.cancelled, orderID)
	return &OrderDTO{ID: orderID, Status: enums.OrderStatusCancelled}, nil
}

func (s *stubService) MarkPaid(_ context.Context, _, orderID uuid.UUID, intentID string) (*OrderDTO, error) {
	if s.paid == nil {
		s.paid = map[uuid.UUID]string{}
	}
	s.paid[orderID] = intentID
	return &OrderDTO{ID: orderID, Status: enums.OrderStatusConfirmed}, nil
}

func (s *stubService) AttachPaymentIntent(context.Context, uuid.UUID, uuid.UUID, string) error {
	return nil
}

func (s *stubService) UpdateStatus(context.Context, uuid.UUID, uuid.UUID, enums.OrderStatus) (*OrderDTO, error) {
	return &OrderDTO{}, nil
}

func TestLocalClientDelegates(t *testing.T) {
	t.Parallel()
	svc := &stubService{}
	client := NewLocalClient(svc)
	ctx := context.Background()
	orderID := uuid.New()

	order, err := client.SubmitOrder(ctx, CreateOrderInput{UserID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)

	require.NoError(t, client.CancelOrder(ctx, uuid.New(), orderID, "declined"))
	assert.Equal(t, []uuid.UUID{orderID}, svc.cancelled)

	require.NoError(t, client.ConfirmOrder(ctx, uuid.New(), orderID, "pi_9"))
	assert.Equal(t, "pi_9", svc.paid[orderID])
}

func TestLocalClientReclassifiesErrors(t *testing.T) {
	t.Parallel()
	svc := &stubService{createErr: pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock for product Rug")}
	client := NewLocalClient(svc)

	_, err := client.SubmitOrder(context.Background(), CreateOrderInput{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeOrderSubmission, typed.Code())
	assert.Equal(t, "insufficient stock for product Rug", typed.Message())
}
