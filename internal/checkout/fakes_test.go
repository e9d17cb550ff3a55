package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type fakeCarts struct {
	mu    sync.Mutex
	lines map[string][]types.CartLine
	err   error
	// rendezvous, when set before callers start, holds each Current call
	// until all expected callers have arrived.
	rendezvous *sync.WaitGroup
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{lines: map[string][]types.CartLine{}}
}

func (f *fakeCarts) put(sessionID string, lines ...types.CartLine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines[sessionID] = append([]types.CartLine(nil), lines...)
}

func (f *fakeCarts) Current(ctx context.Context, sessionID string) (*cart.Cart, error) {
	if f.rendezvous != nil {
		f.rendezvous.Done()
		f.rendezvous.Wait()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &cart.Cart{SessionID: sessionID, Items: append([]types.CartLine(nil), f.lines[sessionID]...)}, nil
}

func (f *fakeCarts) Clear(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines[sessionID] = nil
	return nil
}

type fakeOrders struct {
	mu         sync.Mutex
	submitted  []orders.CreateOrderInput
	byKey      map[string]*orders.OrderDTO
	cancelled  []uuid.UUID
	confirmed  map[uuid.UUID]string
	total      decimal.Decimal
	submitErr  error
	confirmErr error
}

func newFakeOrders(total string) *fakeOrders {
	return &fakeOrders{
		confirmed: map[uuid.UUID]string{},
		byKey:     map[string]*orders.OrderDTO{},
		total:     decimal.RequireFromString(total),
	}
}

func (f *fakeOrders) SubmitOrder(ctx context.Context, input orders.CreateOrderInput) (*orders.OrderDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, input)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if existing, ok := f.byKey[input.IdempotencyKey]; ok {
		return existing, nil
	}
	order := &orders.OrderDTO{
		ID:          uuid.New(),
		UserID:      input.UserID,
		Status:      enums.OrderStatusPending,
		TotalAmount: f.total,
		Currency:    input.Currency,
	}
	f.byKey[input.IdempotencyKey] = order
	return order, nil
}

func (f *fakeOrders) CancelOrder(ctx context.Context, userID, orderID uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeOrders) ConfirmOrder(ctx context.Context, userID, orderID uuid.UUID, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.confirmed[orderID] = intentID
	return nil
}

type fakeGateway struct {
	mu            sync.Mutex
	seq           int
	intents       map[string]*payments.Intent
	confirmStatus enums.PaymentIntentStatus
	failReason    string
	createErr     error
	confirmErr    error
	creates       []payments.CreateIntentParams
	confirms      []payments.ConfirmIntentParams
	cancelled     []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]*payments.Intent{}, confirmStatus: enums.PaymentIntentSucceeded}
}

func (f *fakeGateway) CreateIntent(ctx context.Context, p payments.CreateIntentParams) (*payments.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, p)
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	intent := &payments.Intent{
		ID:          fmt.Sprintf("pi_%d", f.seq),
		AmountMinor: payments.MinorUnits(p.Amount),
		Currency:    p.Currency,
		Status:      enums.PaymentIntentRequiresPaymentMethod,
		Metadata:    p.Metadata,
	}
	f.intents[intent.ID] = intent
	return intent, nil
}

func (f *fakeGateway) ConfirmIntent(ctx context.Context, p payments.ConfirmIntentParams) (*payments.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms = append(f.confirms, p)
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	intent, ok := f.intents[p.IntentID]
	if !ok {
		return nil, &payments.Error{Op: "confirm", Reason: "no such payment_intent"}
	}
	intent.Status = f.confirmStatus
	intent.FailureReason = f.failReason
	return intent, nil
}

func (f *fakeGateway) RetrieveIntent(ctx context.Context, id string) (*payments.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[id]
	if !ok {
		return nil, &payments.Error{Op: "retrieve", Reason: "no such payment_intent"}
	}
	return intent, nil
}

func (f *fakeGateway) CancelIntent(ctx context.Context, id string) (*payments.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	intent, ok := f.intents[id]
	if !ok {
		return nil, errors.New("no such payment_intent")
	}
	intent.Status = enums.PaymentIntentCanceled
	return intent, nil
}

func (f *fakeGateway) setStatus(id string, status enums.PaymentIntentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id].Status = status
}

// failingSaves fails the listed Save calls (1-based) and passes the rest
// through.
type failingSaves struct {
	Repository
	mu    sync.Mutex
	calls int
	fail  map[int]bool
}

func (r *failingSaves) Save(ctx context.Context, attempt *models.CheckoutAttempt) error {
	r.mu.Lock()
	r.calls++
	fail := r.fail[r.calls]
	r.mu.Unlock()
	if fail {
		return errors.New("database connection reset")
	}
	return r.Repository.Save(ctx, attempt)
}

var errOrderServiceDown = pkgerrors.New(pkgerrors.CodeOrderSubmission, "order service unreachable")
