package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubOrderService struct {
	order      *internalorders.OrderDTO
	list       *internalorders.OrderList
	err        error
	lastInput  internalorders.CreateOrderInput
	lastParams pagination.Params
	lastStatus enums.OrderStatus
	lastUser   uuid.UUID
	lastReason string
	statusSets int
}

func (s *stubOrderService) CreateOrder(ctx context.Context, input internalorders.CreateOrderInput) (*internalorders.OrderDTO, error) {
	s.lastInput = input
	return s.order, s.err
}

func (s *stubOrderService) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	s.lastUser = userID
	s.lastParams = params
	return s.list, s.err
}

func (s *stubOrderService) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	s.lastUser = userID
	return s.order, s.err
}

func (s *stubOrderService) Cancel(ctx context.Context, userID, orderID uuid.UUID, reason string) (*internalorders.OrderDTO, error) {
	s.lastUser = userID
	s.lastReason = reason
	return s.order, s.err
}

func (s *stubOrderService) MarkPaid(ctx context.Context, userID, orderID uuid.UUID, paymentIntentID string) (*internalorders.OrderDTO, error) {
	return s.order, s.err
}

func (s *stubOrderService) AttachPaymentIntent(ctx context.Context, userID, orderID uuid.UUID, paymentIntentID string) error {
	return s.err
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, actorID, orderID uuid.UUID, status enums.OrderStatus) (*internalorders.OrderDTO, error) {
	s.lastUser = actorID
	s.lastStatus = status
	s.statusSets++
	return s.order, s.err
}

func newRequest(method, target, body string, userID uuid.UUID, params map[string]string) *http.Request {
	return newRequestAs(method, target, body, userID, enums.UserRoleCustomer, params)
}

func newRequestAs(method, target, body string, userID uuid.UUID, role enums.UserRole, params map[string]string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	now := time.Now().UTC()
	ctx := middleware.WithSession(req.Context(), &session.Session{ID: "sess", UserID: userID, Role: role, CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
}

const createBody = `{
	"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","phone":"555-0100",
	"shippingAddress":"1 Main St","shippingCity":"Springfield","shippingState":"IL","shippingZipCode":"62701",
	"orderItems":[{"product":{"id":"%s"},"quantity":2}]
}`

func TestCreateOrderPassesIdempotencyKey(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	productID := uuid.New()
	svc := &stubOrderService{order: &internalorders.OrderDTO{
		ID:          uuid.New(),
		UserID:      userID,
		Status:      enums.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("26.60"),
	}}
	req := newRequest(http.MethodPost, "/api/v1/orders/user/"+userID.String(),
		strings.Replace(createBody, "%s", productID.String(), 1), userID, map[string]string{"userId": userID.String()})
	req.Header.Set("Idempotency-Key", "attempt-1")

	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastInput.IdempotencyKey != "attempt-1" {
		t.Fatalf("expected idempotency key forwarded, got %q", svc.lastInput.IdempotencyKey)
	}
	if svc.lastInput.UserID != userID || len(svc.lastInput.Items) != 1 || svc.lastInput.Items[0].ProductID != productID {
		t.Fatalf("unexpected input %+v", svc.lastInput)
	}
	if svc.lastInput.Currency != enums.CurrencyUSD {
		t.Fatalf("expected default currency, got %s", svc.lastInput.Currency)
	}

	var envelope struct {
		Data internalorders.OrderDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Status != enums.OrderStatusPending {
		t.Fatalf("expected PENDING got %s", envelope.Data.Status)
	}
}

func TestCreateOrderRejectsOtherUser(t *testing.T) {
	t.Parallel()

	caller := uuid.New()
	other := uuid.New()
	svc := &stubOrderService{}
	req := newRequest(http.MethodPost, "/api/v1/orders/user/"+other.String(),
		strings.Replace(createBody, "%s", uuid.NewString(), 1), caller, map[string]string{"userId": other.String()})

	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if svc.lastInput.UserID != uuid.Nil {
		t.Fatal("service should not be called for another user")
	}
}

func TestCreateOrderRequiresItems(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	body := `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","phone":"1",
		"shippingAddress":"a","shippingCity":"b","shippingState":"c","shippingZipCode":"d","orderItems":[]}`
	req := newRequest(http.MethodPost, "/api/v1/orders/user/"+userID.String(), body, userID, map[string]string{"userId": userID.String()})

	resp := httptest.NewRecorder()
	Create(&stubOrderService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListOrdersPagination(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	svc := &stubOrderService{list: &internalorders.OrderList{Orders: []internalorders.OrderDTO{}, NextCursor: "next"}}
	req := newRequest(http.MethodGet, "/api/v1/orders/user/"+userID.String()+"?limit=5&cursor=abc", "", userID, map[string]string{"userId": userID.String()})

	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastParams.Limit != 5 || svc.lastParams.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", svc.lastParams)
	}
}

func TestListOrdersRejectsLimitOutOfRange(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	req := newRequest(http.MethodGet, "/api/v1/orders/user/"+userID.String()+"?limit=0", "", userID, map[string]string{"userId": userID.String()})

	resp := httptest.NewRecorder()
	List(&stubOrderService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDetailNotFound(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	orderID := uuid.New()
	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	req := newRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), "", userID, map[string]string{"orderId": orderID.String()})

	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if svc.lastUser != userID {
		t.Fatalf("expected lookup scoped to caller")
	}
}

func TestUpdateStatusNormalizesCase(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	orderID := uuid.New()
	svc := &stubOrderService{order: &internalorders.OrderDTO{ID: orderID, Status: enums.OrderStatusCancelled}}
	req := newRequest(http.MethodPatch, "/api/v1/orders/"+orderID.String()+"/status", `{"status":"cancelled"}`, userID, map[string]string{"orderId": orderID.String()})

	resp := httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastStatus != enums.OrderStatusCancelled {
		t.Fatalf("expected CANCELLED got %s", svc.lastStatus)
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	orderID := uuid.New()
	req := newRequest(http.MethodPatch, "/api/v1/orders/"+orderID.String()+"/status", `{"status":"LOST"}`, userID, map[string]string{"orderId": orderID.String()})

	resp := httptest.NewRecorder()
	UpdateStatus(&stubOrderService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestUpdateStatusConflict(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	orderID := uuid.New()
	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "cannot move order from DELIVERED to SHIPPED")}
	req := newRequest(http.MethodPatch, "/api/v1/orders/"+orderID.String()+"/status", `{"status":"SHIPPED"}`, userID, map[string]string{"orderId": orderID.String()})

	resp := httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestUpdateStatusRequiresFulfillmentRole(t *testing.T) {
	t.Parallel()

	orderID := uuid.New()
	params := map[string]string{"orderId": orderID.String()}
	svc := &stubOrderService{order: &internalorders.OrderDTO{ID: orderID, Status: enums.OrderStatusShipped}}
	handler := middleware.RequireRole(enums.UserRoleFulfillment, nil)(UpdateStatus(svc, nil))

	customer := httptest.NewRecorder()
	handler.ServeHTTP(customer, newRequest(http.MethodPatch, "/api/v1/orders/"+orderID.String()+"/status", `{"status":"SHIPPED"}`, uuid.New(), params))
	if customer.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a customer got %d", customer.Code)
	}
	if svc.statusSets != 0 {
		t.Fatal("expected the service not to be called")
	}

	operator := uuid.New()
	staff := httptest.NewRecorder()
	handler.ServeHTTP(staff, newRequestAs(http.MethodPatch, "/api/v1/orders/"+orderID.String()+"/status", `{"status":"SHIPPED"}`, operator, enums.UserRoleFulfillment, params))
	if staff.Code != http.StatusOK {
		t.Fatalf("expected 200 for fulfillment got %d: %s", staff.Code, staff.Body.String())
	}
	if svc.lastUser != operator || svc.lastStatus != enums.OrderStatusShipped {
		t.Fatalf("expected operator %s to ship, got %s %s", operator, svc.lastUser, svc.lastStatus)
	}
}

func TestCancelForwardsCallerAndReason(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	orderID := uuid.New()
	svc := &stubOrderService{order: &internalorders.OrderDTO{ID: orderID, Status: enums.OrderStatusCancelled}}
	req := newRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel", `{"reason":" payment declined "}`, userID, map[string]string{"orderId": orderID.String()})

	resp := httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastUser != userID || svc.lastReason != "payment declined" {
		t.Fatalf("unexpected cancel call user=%s reason=%q", svc.lastUser, svc.lastReason)
	}

	paid := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders are cancelled by fulfillment")}
	conflict := httptest.NewRecorder()
	Cancel(paid, nil).ServeHTTP(conflict, newRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel", `{}`, userID, map[string]string{"orderId": orderID.String()}))
	if conflict.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", conflict.Code)
	}
}
