package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubPaymentService struct {
	create  *payments.CreatePaymentIntentResponse
	process *payments.ProcessPaymentResponse
	verify  *payments.VerifyPaymentResponse
	err     error

	lastUser   uuid.UUID
	lastKey    string
	lastIntent string
	lastAmount decimal.Decimal
}

func (s *stubPaymentService) CreatePaymentIntent(ctx context.Context, userID uuid.UUID, req payments.CreatePaymentIntentRequest, key string) (*payments.CreatePaymentIntentResponse, error) {
	s.lastUser, s.lastKey, s.lastAmount = userID, key, req.Amount
	return s.create, s.err
}

func (s *stubPaymentService) ProcessPayment(ctx context.Context, userID uuid.UUID, req payments.ProcessPaymentRequest, key string) (*payments.ProcessPaymentResponse, error) {
	s.lastUser, s.lastKey, s.lastAmount = userID, key, req.Amount
	return s.process, s.err
}

func (s *stubPaymentService) VerifyPayment(ctx context.Context, userID uuid.UUID, intentID string) (*payments.VerifyPaymentResponse, error) {
	s.lastUser, s.lastIntent = userID, intentID
	return s.verify, s.err
}

func TestCreatePaymentIntentForwardsKey(t *testing.T) {
	t.Parallel()

	sess := testSession()
	svc := &stubPaymentService{create: &payments.CreatePaymentIntentResponse{ClientSecret: "pi_1_secret", PaymentIntentID: "pi_1"}}
	req := buildRequest(http.MethodPost, "/api/v1/payments/create-payment-intent", `{"amount":"26.60","currency":"usd"}`, sess, nil)
	req.Header.Set("Idempotency-Key", "key-1")
	resp := httptest.NewRecorder()
	CreatePaymentIntent(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastUser != sess.UserID || svc.lastKey != "key-1" {
		t.Fatalf("unexpected call user=%s key=%q", svc.lastUser, svc.lastKey)
	}
	if !svc.lastAmount.Equal(decimal.RequireFromString("26.60")) {
		t.Fatalf("unexpected amount %s", svc.lastAmount)
	}
	var got payments.CreatePaymentIntentResponse
	decodeData(t, resp, &got)
	if got.ClientSecret != "pi_1_secret" {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestProcessPaymentDeclined(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentService{err: pkgerrors.New(pkgerrors.CodePayment, "Your card was declined.")}
	body := `{"paymentMethodId":"pm_card_chargeDeclined","amount":26.6,"orderId":"` + uuid.NewString() + `"}`
	resp := httptest.NewRecorder()
	ProcessPayment(svc, nil).ServeHTTP(resp, buildRequest(http.MethodPost, "/api/v1/payments/process", body, testSession(), nil))

	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodePayment) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestProcessPaymentRequiresOrder(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentService{}
	resp := httptest.NewRecorder()
	ProcessPayment(svc, nil).ServeHTTP(resp, buildRequest(http.MethodPost, "/api/v1/payments/process",
		`{"paymentMethodId":"pm_card_visa","amount":"10.00"}`, testSession(), nil))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.lastUser != uuid.Nil {
		t.Fatal("service should not be called")
	}
}

func TestVerifyPayment(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentService{verify: &payments.VerifyPaymentResponse{
		Status:   enums.PaymentIntentSucceeded,
		Amount:   decimal.RequireFromString("26.60"),
		Currency: enums.CurrencyUSD,
	}}
	resp := httptest.NewRecorder()
	VerifyPayment(svc, nil).ServeHTTP(resp, buildRequest(http.MethodGet, "/api/v1/payments/verify/pi_123", "", testSession(),
		map[string]string{"paymentIntentId": "pi_123"}))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastIntent != "pi_123" {
		t.Fatalf("unexpected intent %q", svc.lastIntent)
	}
	var got payments.VerifyPaymentResponse
	decodeData(t, resp, &got)
	if got.Status != enums.PaymentIntentSucceeded || !got.Amount.Equal(decimal.RequireFromString("26.6")) {
		t.Fatalf("unexpected body %+v", got)
	}
}
