package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// staleRunAfter is how long an attempt may sit in a running state before
// Resync treats the request that drove it as gone.
const staleRunAfter = 2 * time.Minute

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartStore interface {
	Current(ctx context.Context, sessionID string) (*cart.Cart, error)
	Clear(ctx context.Context, sessionID string) error
}

// Service drives checkout attempts through the checkout state machine.
type Service interface {
	Begin(ctx context.Context, sess *session.Session) (*AttemptDTO, error)
	Get(ctx context.Context, sess *session.Session, attemptID uuid.UUID) (*AttemptDTO, error)
	Submit(ctx context.Context, sess *session.Session, attemptID uuid.UUID, input SubmitInput) (*AttemptDTO, error)
	Retry(ctx context.Context, sess *session.Session, attemptID uuid.UUID) (*AttemptDTO, error)
	Resync(ctx context.Context, sess *session.Session, attemptID uuid.UUID) (*AttemptDTO, error)
}

// ServiceParams wires the orchestrator's collaborators.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Carts   cartStore
	Orders  orders.Submitter
	Gateway payments.Gateway
	Outbox  outbox.Emitter
	Metrics *metrics.CheckoutMetrics
	Logger  *logger.Logger
	Config  config.CheckoutConfig
}

type service struct {
	repo            Repository
	tx              txRunner
	carts           cartStore
	orders          orders.Submitter
	gateway         payments.Gateway
	outbox          outbox.Emitter
	metrics         *metrics.CheckoutMetrics
	logg            *logger.Logger
	stepTimeout     time.Duration
	resumeAfter     time.Duration
	defaultCurrency enums.Currency
	steps           map[enums.CheckoutState]stepFunc
	now             func() time.Time
}

// NewService builds the checkout orchestrator.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("checkout repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart store required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order submitter required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	currency, err := enums.ParseCurrency(params.Config.DefaultCurrency)
	if err != nil {
		return nil, err
	}
	s := &service{
		repo:            params.Repo,
		tx:              params.Tx,
		carts:           params.Carts,
		orders:          params.Orders,
		gateway:         params.Gateway,
		outbox:          params.Outbox,
		metrics:         params.Metrics,
		logg:            params.Logger,
		stepTimeout:     params.Config.StepTimeout,
		resumeAfter:     max(staleRunAfter, 3*params.Config.StepTimeout),
		defaultCurrency: currency,
		now:             func() time.Time { return time.Now().UTC() },
	}
	s.steps = map[enums.CheckoutState]stepFunc{
		enums.CheckoutStateSubmittingOrder:   s.submitOrder,
		enums.CheckoutStateCreatingPayment:   s.createPayment,
		enums.CheckoutStateConfirmingPayment: s.confirmPayment,
	}
	return s, nil
}

func (s *service) Begin(ctx context.Context, sess *session.Session) (*AttemptDTO, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	live, err := s.carts.Current(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	userID := sess.UserID
	attempt := &models.CheckoutAttempt{
		SessionID: sess.ID,
		UserID:    &userID,
		State:     enums.CheckoutStateCollectingShippingInfo,
		Currency:  s.defaultCurrency,
	}
	if live.IsEmpty() {
		attempt.State = enums.CheckoutStateRefused
	}
	if err := s.repo.Create(ctx, attempt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create checkout attempt")
	}
	if attempt.State == enums.CheckoutStateRefused {
		s.metrics.IncOutcome(attempt.State.String(), "")
	}
	return s.view(attempt, live)
}

func (s *service) Get(ctx context.Context, sess *session.Session, attemptID uuid.UUID) (*AttemptDTO, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	attempt, err := s.loadOwned(ctx, sess, attemptID)
	if err != nil {
		return nil, err
	}
	var live *cart.Cart
	if len(attempt.CartSnapshot) == 0 {
		if live, err = s.carts.Current(ctx, sess.ID); err != nil {
			return nil, err
		}
	}
	return s.view(attempt, live)
}

func (s *service) Submit(ctx context.Context, sess *session.Session, attemptID uuid.UUID, input SubmitInput) (*AttemptDTO, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	attempt, err := s.loadOwned(ctx, sess, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.State != enums.CheckoutStateCollectingShippingInfo {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("checkout attempt is %s, not collecting shipping info", attempt.State))
	}

	if err := input.Shipping.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "shipping information incomplete").
			WithDetails(map[string]any{"fields": types.MissingFields(err)})
	}
	paymentMethodID := strings.TrimSpace(input.PaymentMethodID)
	if paymentMethodID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}
	currency := attempt.Currency
	if strings.TrimSpace(input.Currency) != "" {
		if currency, err = enums.ParseCurrency(input.Currency); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency")
		}
	}

	live, err := s.carts.Current(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if live.IsEmpty() {
		attempt.State = enums.CheckoutStateRefused
		if err := s.persist(ctx, sess, attempt); err != nil {
			return nil, err
		}
		return s.view(attempt, live)
	}
	breakdown, err := live.Breakdown()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cart contains an invalid line")
	}

	rounded := breakdown.Rounded()
	shipping := input.Shipping.Normalize()
	token := uuid.NewString()
	attempt.CartSnapshot = live.Snapshot()
	attempt.ClientBreakdown = &rounded
	attempt.Shipping = &shipping
	attempt.PaymentMethodID = &paymentMethodID
	attempt.IdempotencyToken = &token
	attempt.Currency = currency
	attempt.State = enums.CheckoutStateSubmittingOrder
	if err := s.save(ctx, attempt); err != nil {
		return nil, err
	}

	if err := s.run(ctx, sess, attempt); err != nil {
		return nil, err
	}
	return s.view(attempt, nil)
}

func (s *service) Retry(ctx context.Context, sess *session.Session, attemptID uuid.UUID) (*AttemptDTO, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	attempt, err := s.loadOwned(ctx, sess, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.State != enums.CheckoutStateFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only failed checkout attempts can be retried")
	}

	attempt.State = enums.CheckoutStateCollectingShippingInfo
	attempt.CartSnapshot = nil
	attempt.ClientBreakdown = nil
	attempt.IdempotencyToken = nil
	attempt.OrderID = nil
	attempt.PaymentIntentID = nil
	attempt.ChargedAmount = nil
	attempt.FailureKind = nil
	attempt.FailureMessage = nil
	attempt.Retries++
	if err := s.save(ctx, attempt); err != nil {
		return nil, err
	}

	live, err := s.carts.Current(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	return s.view(attempt, live)
}

func (s *service) Resync(ctx context.Context, sess *session.Session, attemptID uuid.UUID) (*AttemptDTO, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	attempt, err := s.loadOwned(ctx, sess, attemptID)
	if err != nil {
		return nil, err
	}
	switch {
	case attempt.State == enums.CheckoutStateSubmittingOrder, attempt.State == enums.CheckoutStateCreatingPayment:
		return s.resume(ctx, sess, attempt)
	case attempt.State != enums.CheckoutStateConfirmingPayment, attempt.PaymentIntentID == nil:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout attempt is not awaiting payment confirmation")
	}

	ctx = s.logContext(ctx, attempt)
	stepCtx, cancel := s.stepContext(ctx)
	intent, err := s.gateway.RetrieveIntent(stepCtx, *attempt.PaymentIntentID)
	cancel()
	if err != nil {
		return nil, payments.AsAPIError(err)
	}

	if _, err := s.applyIntent(ctx, sess, attempt, intent); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, sess, attempt); err != nil {
		return nil, err
	}
	return s.view(attempt, nil)
}

// resume continues an attempt whose run stopped before reaching a waiting or
// terminal state. The claiming save keeps two resumes apart, and the
// attempt's idempotency keys hand back the order and intent an earlier run
// already created.
func (s *service) resume(ctx context.Context, sess *session.Session, attempt *models.CheckoutAttempt) (*AttemptDTO, error) {
	if s.now().Sub(attempt.UpdatedAt) < s.resumeAfter {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout attempt is still in progress")
	}
	if err := s.save(ctx, attempt); err != nil {
		return nil, err
	}
	s.logg.Warn(s.logg.WithField(s.logContext(ctx, attempt), "state", attempt.State.String()), "resuming interrupted checkout attempt")
	if err := s.run(ctx, sess, attempt); err != nil {
		return nil, err
	}
	return s.view(attempt, nil)
}

// save stores a non-terminal attempt. Losing a race with another request is a
// state conflict, not an internal error.
func (s *service) save(ctx context.Context, attempt *models.CheckoutAttempt) error {
	if err := s.repo.Save(ctx, attempt); err != nil {
		return saveError(err)
	}
	return nil
}

func saveError(err error) error {
	if errors.Is(err, ErrStaleAttempt) {
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "checkout attempt was updated by another request")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save checkout attempt")
}

func (s *service) loadOwned(ctx context.Context, sess *session.Session, attemptID uuid.UUID) (*models.CheckoutAttempt, error) {
	attempt, err := s.repo.FindByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout attempt not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout attempt")
	}
	if attempt.UserID == nil || *attempt.UserID != sess.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout attempt not found")
	}
	return attempt, nil
}

func (s *service) view(attempt *models.CheckoutAttempt, live *cart.Cart) (*AttemptDTO, error) {
	lines := attempt.CartSnapshot
	if len(lines) == 0 && live != nil {
		lines = live.Snapshot()
	}
	breakdown, err := pricing.ComputeBreakdown(lines)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cart contains an invalid line")
	}
	return toDTO(attempt, lines, breakdown.Rounded()), nil
}

func (s *service) logContext(ctx context.Context, attempt *models.CheckoutAttempt) context.Context {
	ctx = s.logg.WithCheckoutAttemptID(ctx, attempt.ID.String())
	if attempt.OrderID != nil {
		ctx = s.logg.WithOrderID(ctx, attempt.OrderID.String())
	}
	return ctx
}

func (s *service) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.stepTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.stepTimeout)
}

func requireSession(sess *session.Session) error {
	if sess == nil || sess.UserID == uuid.Nil || strings.TrimSpace(sess.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "login required")
	}
	return nil
}
