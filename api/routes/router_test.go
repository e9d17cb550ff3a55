package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgauth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubAuthService struct{}

func (stubAuthService) Register(ctx context.Context, req auth.RegisterRequest) (*users.UserDTO, error) {
	return &users.UserDTO{ID: uuid.New(), Email: req.Email}, nil
}

func (stubAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	return &auth.LoginResponse{AccessToken: "token"}, nil
}

func (stubAuthService) Logout(ctx context.Context, sess *session.Session) error { return nil }

type stubCatalog struct{}

func (stubCatalog) GetActive(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return &models.Product{ID: id, Name: "Tea", IsActive: true}, nil
}

func (stubCatalog) List(ctx context.Context, category string) ([]models.Product, error) {
	return []models.Product{}, nil
}

type stubCartService struct{ lastSession string }

func (s *stubCartService) Current(ctx context.Context, sessionID string) (*cart.Cart, error) {
	s.lastSession = sessionID
	return &cart.Cart{SessionID: sessionID}, nil
}

func (s *stubCartService) Add(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) (*cart.Cart, error) {
	return &cart.Cart{SessionID: sessionID}, nil
}

func (s *stubCartService) Remove(ctx context.Context, sessionID string, productID uuid.UUID) (*cart.Cart, error) {
	return &cart.Cart{SessionID: sessionID}, nil
}

func (s *stubCartService) SetQuantity(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) (*cart.Cart, error) {
	return &cart.Cart{SessionID: sessionID}, nil
}

func (s *stubCartService) Clear(ctx context.Context, sessionID string) error   { return nil }
func (s *stubCartService) Discard(ctx context.Context, sessionID string) error { return nil }

type stubCheckoutService struct{ submits int }

func (s *stubCheckoutService) attempt(id uuid.UUID, state enums.CheckoutState) *checkout.AttemptDTO {
	return &checkout.AttemptDTO{ID: id, State: state}
}

func (s *stubCheckoutService) Begin(ctx context.Context, sess *session.Session) (*checkout.AttemptDTO, error) {
	return s.attempt(uuid.New(), enums.CheckoutStateCollectingShippingInfo), nil
}

func (s *stubCheckoutService) Get(ctx context.Context, sess *session.Session, id uuid.UUID) (*checkout.AttemptDTO, error) {
	return s.attempt(id, enums.CheckoutStateCollectingShippingInfo), nil
}

func (s *stubCheckoutService) Submit(ctx context.Context, sess *session.Session, id uuid.UUID, input checkout.SubmitInput) (*checkout.AttemptDTO, error) {
	s.submits++
	return s.attempt(id, enums.CheckoutStateSettled), nil
}

func (s *stubCheckoutService) Retry(ctx context.Context, sess *session.Session, id uuid.UUID) (*checkout.AttemptDTO, error) {
	return s.attempt(id, enums.CheckoutStateCollectingShippingInfo), nil
}

func (s *stubCheckoutService) Resync(ctx context.Context, sess *session.Session, id uuid.UUID) (*checkout.AttemptDTO, error) {
	return s.attempt(id, enums.CheckoutStateSettled), nil
}

type stubOrdersService struct{ orders.Service }

func (stubOrdersService) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*orders.OrderList, error) {
	return &orders.OrderList{Orders: []orders.OrderDTO{}}, nil
}

func (stubOrdersService) UpdateStatus(ctx context.Context, actorID, orderID uuid.UUID, status enums.OrderStatus) (*orders.OrderDTO, error) {
	return &orders.OrderDTO{ID: orderID, Status: status}, nil
}

type stubPaymentsService struct{ payments.Service }

type routerFixture struct {
	handler  http.Handler
	cfg      *config.Config
	sessions *session.Manager
	checkout *stubCheckoutService
	carts    *stubCartService
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = redisClient.Close() })

	cfg := &config.Config{
		App: config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "storefront", ExpirationMinutes: 30},
		AuthRateLimit: config.AuthRateLimitConfig{
			LoginWindow:        time.Minute,
			LoginEmailLimit:    2,
			LoginIPLimit:       10,
			RegisterWindow:     time.Minute,
			RegisterIPLimit:    10,
			RegisterEmailLimit: 3,
		},
	}
	sessions, err := session.NewManager(redisClient, cfg.JWT)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics.NewCheckoutMetrics(reg)

	fx := &routerFixture{
		cfg:      cfg,
		sessions: sessions,
		checkout: &stubCheckoutService{},
		carts:    &stubCartService{},
	}
	fx.handler = NewRouter(cfg, nil, stubPinger{}, redisClient, reg, sessions,
		stubAuthService{}, stubCatalog{}, fx.carts, fx.checkout, stubOrdersService{}, stubPaymentsService{})
	return fx
}

func (fx *routerFixture) login(t *testing.T) (string, *session.Session) {
	t.Helper()
	return fx.loginAs(t, enums.UserRoleCustomer)
}

func (fx *routerFixture) loginAs(t *testing.T, role enums.UserRole) (string, *session.Session) {
	t.Helper()
	userID := uuid.New()
	sess, err := fx.sessions.Create(context.Background(), userID, "shopper@example.com", role, time.Now())
	require.NoError(t, err)
	token, _, err := pkgauth.MintAccessToken(fx.cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID: userID, Email: sess.Email, JTI: sess.ID,
	})
	require.NoError(t, err)
	return token, sess
}

func (fx *routerFixture) do(method, path, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	fx.handler.ServeHTTP(resp, req)
	return resp
}

func TestRouterHealthAndMetrics(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)

	require.Equal(t, http.StatusOK, fx.do(http.MethodGet, "/health/live", "", "", nil).Code)
	require.Equal(t, http.StatusOK, fx.do(http.MethodGet, "/health/ready", "", "", nil).Code)

	resp := fx.do(http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "checkout_price_divergence_total")
}

func TestRouterRequiresLoginForCart(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)

	resp := fx.do(http.MethodGet, "/api/v1/cart", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRouterCartUsesSessionID(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)
	token, sess := fx.login(t)

	resp := fx.do(http.MethodGet, "/api/v1/cart", token, "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, sess.ID, fx.carts.lastSession)
}

func TestRouterRevokedSessionIsRejected(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)
	token, sess := fx.login(t)

	require.NoError(t, fx.sessions.Revoke(context.Background(), sess.ID))
	resp := fx.do(http.MethodGet, "/api/v1/cart", token, "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRouterCheckoutSubmitIsIdempotent(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)
	token, _ := fx.login(t)

	begin := fx.do(http.MethodPost, "/api/v1/checkout", token, "", nil)
	require.Equal(t, http.StatusCreated, begin.Code)
	var envelope struct {
		Data checkout.AttemptDTO `json:"data"`
	}
	require.NoError(t, json.NewDecoder(begin.Body).Decode(&envelope))

	path := "/api/v1/checkout/" + envelope.Data.ID.String() + "/submit"
	body := `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","phone":"555",
		"address":"1 Main St","city":"Springfield","state":"IL","zipCode":"62701","paymentMethodId":"pm_card_visa"}`

	missingKey := fx.do(http.MethodPost, path, token, body, nil)
	require.Equal(t, http.StatusBadRequest, missingKey.Code)

	headers := map[string]string{"Idempotency-Key": "submit-1"}
	first := fx.do(http.MethodPost, path, token, body, headers)
	require.Equal(t, http.StatusOK, first.Code)
	second := fx.do(http.MethodPost, path, token, body, headers)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, fx.checkout.submits)
}

func TestRouterOrdersHistory(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)
	token, sess := fx.login(t)

	resp := fx.do(http.MethodGet, "/api/v1/orders/user/"+sess.UserID.String(), token, "", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	other := fx.do(http.MethodGet, "/api/v1/orders/user/"+uuid.NewString(), token, "", nil)
	require.Equal(t, http.StatusNotFound, other.Code)
}

func TestRouterOrderStatusRequiresFulfillment(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)
	path := "/api/v1/orders/" + uuid.NewString() + "/status"

	customer, _ := fx.login(t)
	resp := fx.do(http.MethodPatch, path, customer, `{"status":"SHIPPED"}`, nil)
	require.Equal(t, http.StatusForbidden, resp.Code)

	staff, _ := fx.loginAs(t, enums.UserRoleFulfillment)
	resp = fx.do(http.MethodPatch, path, staff, `{"status":"SHIPPED"}`, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}

func TestRouterLoginRateLimited(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)

	body := `{"email":"shopper@example.com","password":"secret"}`
	for i := 0; i < 2; i++ {
		resp := fx.do(http.MethodPost, "/api/v1/auth/login", "", body, nil)
		require.Equal(t, http.StatusOK, resp.Code)
	}
	resp := fx.do(http.MethodPost, "/api/v1/auth/login", "", body, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
}
