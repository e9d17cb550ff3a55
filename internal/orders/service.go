package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the order service: server-side pricing, stock and status.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDTO, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID, reason string) (*OrderDTO, error)
	MarkPaid(ctx context.Context, userID, orderID uuid.UUID, paymentIntentID string) (*OrderDTO, error)
	AttachPaymentIntent(ctx context.Context, userID, orderID uuid.UUID, paymentIntentID string) error
	UpdateStatus(ctx context.Context, actorID, orderID uuid.UUID, status enums.OrderStatus) (*OrderDTO, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outbox.Emitter
	inventory Inventory
	now       func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, inventory Inventory) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		outbox:    emitter,
		inventory: inventory,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDTO, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	items, err := mergeItems(input.Items)
	if err != nil {
		return nil, err
	}
	if err := input.Shipping.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "shipping information incomplete").
			WithDetails(map[string]any{"fields": types.MissingFields(err)})
	}
	shipping := input.Shipping.Normalize()
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}
	key := strings.TrimSpace(input.IdempotencyKey)

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if key != "" {
			existing, err := repo.FindByIdempotencyKey(ctx, input.UserID, key)
			if err == nil {
				created = existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		order, err := s.buildOrder(ctx, tx, input.UserID, shipping, items, currency)
		if err != nil {
			return err
		}
		if key != "" {
			order.IdempotencyKey = &key
		}
		if err := repo.Create(ctx, order); err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := s.inventory.Reserve(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "stock changed while ordering")
			}
		}

		created = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID},
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				UserID:      order.UserID,
				ItemCount:   len(order.Items),
				TotalAmount: order.TotalAmount,
				Currency:    order.Currency,
			},
		})
	})
	if err != nil {
		if key != "" && db.IsUniqueViolation(err, "") {
			existing, findErr := s.repo.FindByIdempotencyKey(ctx, input.UserID, key)
			if findErr == nil {
				return FromModel(existing), nil
			}
		}
		return nil, asServiceError(err, "create order")
	}
	return FromModel(created), nil
}

func (s *service) buildOrder(ctx context.Context, tx *gorm.DB, userID uuid.UUID, shipping types.ShippingInfo, items []ItemInput, currency enums.Currency) (*models.Order, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.inventory.Lock(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	checks := make([]checkout.StockValidationInput, 0, len(items))
	lines := make([]types.CartLine, 0, len(items))
	orderItems := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("product %s is not available", item.ProductID))
		}
		checks = append(checks, checkout.StockValidationInput{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   product.StockQuantity,
			Quantity:    item.Quantity,
		})
		line := types.CartLine{ProductID: product.ID, Name: product.Name, UnitPrice: product.Price, Quantity: item.Quantity}
		lines = append(lines, line)
		orderItems = append(orderItems, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
			Subtotal:    line.LineTotal().Round(2),
		})
	}
	if err := checkout.ValidateStock(checks); err != nil {
		return nil, err
	}

	breakdown, err := pricing.ComputeBreakdown(lines)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order line")
	}
	rounded := breakdown.Rounded()

	return &models.Order{
		UserID:       userID,
		Status:       enums.OrderStatusPending,
		FirstName:    shipping.FirstName,
		LastName:     shipping.LastName,
		Email:        shipping.Email,
		Phone:        shipping.Phone,
		Address:      shipping.Address,
		City:         shipping.City,
		State:        shipping.State,
		ZipCode:      shipping.ZipCode,
		Subtotal:     rounded.Subtotal,
		ShippingCost: rounded.Shipping,
		Tax:          rounded.Tax,
		TotalAmount:  rounded.Total,
		Currency:     currency,
		Items:        orderItems,
	}, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	out := &OrderList{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		out.Orders = append(out.Orders, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, asServiceError(err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return FromModel(order), nil
}

// Cancel is the owner's cancel. Only an unpaid order can be cancelled this
// way; a paid order is cancelled by fulfillment through UpdateStatus.
func (s *service) Cancel(ctx context.Context, userID, orderID uuid.UUID, reason string) (*OrderDTO, error) {
	return s.cancel(ctx, userID, reason, func(repo Repository) (*models.Order, error) {
		order, err := s.loadOwned(ctx, repo, userID, orderID)
		if err != nil {
			return nil, err
		}
		if order.Status == enums.OrderStatusConfirmed {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders are cancelled by fulfillment")
		}
		return order, nil
	})
}

// cancel releases the order's stock and emits the cancellation. An order
// already cancelled is returned unchanged.
func (s *service) cancel(ctx context.Context, actorID uuid.UUID, reason string, load func(Repository) (*models.Order, error)) (*OrderDTO, error) {
	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := load(repo)
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusCancelled {
			result = order
			return nil
		}
		if !order.Status.CanTransitionTo(enums.OrderStatusCancelled) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order in status %s cannot be cancelled", order.Status))
		}

		now := s.now()
		if err := repo.TransitionStatus(ctx, order.ID, order.Status, enums.OrderStatusCancelled, map[string]any{"cancelled_at": now}); err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := s.inventory.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		result = order

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actorID},
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				UserID:      order.UserID,
				CancelledAt: now,
				Reason:      reason,
			},
		})
	})
	if err != nil {
		return nil, asServiceError(err, "cancel order")
	}
	return FromModel(result), nil
}

func (s *service) MarkPaid(ctx context.Context, userID, orderID uuid.UUID, paymentIntentID string) (*OrderDTO, error) {
	intentID := strings.TrimSpace(paymentIntentID)
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwned(ctx, repo, userID, orderID)
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusConfirmed && order.PaymentIntentID != nil && *order.PaymentIntentID == intentID {
			result = order
			return nil
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order in status %s cannot be confirmed", order.Status))
		}

		now := s.now()
		updates := map[string]any{"confirmed_at": now, "payment_intent_id": intentID}
		if err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusConfirmed, updates); err != nil {
			return err
		}
		order.Status = enums.OrderStatusConfirmed
		order.ConfirmedAt = &now
		order.PaymentIntentID = &intentID
		result = order

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: userID},
			Data: payloads.OrderConfirmedEvent{
				OrderID:         order.ID,
				UserID:          order.UserID,
				PaymentIntentID: intentID,
				ConfirmedAt:     now,
			},
		})
	})
	if err != nil {
		return nil, asServiceError(err, "confirm order")
	}
	return FromModel(result), nil
}

func (s *service) AttachPaymentIntent(ctx context.Context, userID, orderID uuid.UUID, paymentIntentID string) error {
	intentID := strings.TrimSpace(paymentIntentID)
	if intentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.loadOwned(ctx, repo, userID, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment can only be attached to a pending order")
		}
		return repo.SetPaymentIntent(ctx, order.ID, intentID)
	})
	if err != nil {
		return asServiceError(err, "attach payment intent")
	}
	return nil
}

// UpdateStatus is the fulfillment path: it acts on any order, so callers
// gate it by role. actorID is recorded on the emitted event.
func (s *service) UpdateStatus(ctx context.Context, actorID, orderID uuid.UUID, status enums.OrderStatus) (*OrderDTO, error) {
	switch status {
	case enums.OrderStatusCancelled:
		return s.cancel(ctx, actorID, "cancelled by fulfillment", func(repo Repository) (*models.Order, error) {
			return repo.FindByIDForUpdate(ctx, orderID)
		})
	case enums.OrderStatusConfirmed:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "orders are confirmed by payment")
	case enums.OrderStatusShipped, enums.OrderStatusDelivered:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported order status")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from := order.Status
		if !from.CanTransitionTo(status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, status))
		}
		if err := repo.TransitionStatus(ctx, order.ID, from, status, nil); err != nil {
			return err
		}
		order.Status = status
		result = order

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actorID},
			Data:          payloads.OrderStatusChangedEvent{OrderID: order.ID, From: from, To: status},
		})
	})
	if err != nil {
		return nil, asServiceError(err, "update order status")
	}
	return FromModel(result), nil
}

func (s *service) loadOwned(ctx context.Context, repo Repository, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func mergeItems(items []ItemInput) ([]ItemInput, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	merged := make([]ItemInput, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func asServiceError(err error, op string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	case errors.Is(err, ErrStaleStatus):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order changed concurrently")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
	}
}
