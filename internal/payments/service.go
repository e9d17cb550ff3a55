package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// OrderLinker is the slice of the order service the payment endpoints use
// to link and settle orders.
type OrderLinker interface {
	GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*orders.OrderDTO, error)
	AttachPaymentIntent(ctx context.Context, userID, orderID uuid.UUID, paymentIntentID string) error
	MarkPaid(ctx context.Context, userID, orderID uuid.UUID, paymentIntentID string) (*orders.OrderDTO, error)
}

// Service backs the /payments endpoints.
type Service interface {
	CreatePaymentIntent(ctx context.Context, userID uuid.UUID, req CreatePaymentIntentRequest, idempotencyKey string) (*CreatePaymentIntentResponse, error)
	ProcessPayment(ctx context.Context, userID uuid.UUID, req ProcessPaymentRequest, idempotencyKey string) (*ProcessPaymentResponse, error)
	VerifyPayment(ctx context.Context, userID uuid.UUID, intentID string) (*VerifyPaymentResponse, error)
}

type service struct {
	gateway Gateway
	orders  OrderLinker
	logg    *logger.Logger
}

// NewService builds the payment endpoint service.
func NewService(gateway Gateway, linker OrderLinker, logg *logger.Logger) (Service, error) {
	if gateway == nil {
		return nil, errors.New("payment gateway required")
	}
	if linker == nil {
		return nil, errors.New("order linker required")
	}
	return &service{gateway: gateway, orders: linker, logg: logg}, nil
}

func (s *service) CreatePaymentIntent(ctx context.Context, userID uuid.UUID, req CreatePaymentIntentRequest, idempotencyKey string) (*CreatePaymentIntentResponse, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	currency, err := enums.ParseCurrency(req.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency")
	}

	metadata := map[string]string{}
	if userID != uuid.Nil {
		metadata[MetadataUserID] = userID.String()
	}
	intent, err := s.gateway.CreateIntent(ctx, CreateIntentParams{
		Amount:         req.Amount,
		Currency:       currency,
		IdempotencyKey: callerKey(userID, idempotencyKey),
		Metadata:       metadata,
	})
	if err != nil {
		return nil, AsAPIError(err)
	}
	return &CreatePaymentIntentResponse{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID}, nil
}

func (s *service) ProcessPayment(ctx context.Context, userID uuid.UUID, req ProcessPaymentRequest, idempotencyKey string) (*ProcessPaymentResponse, error) {
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}
	if req.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	order, err := s.orders.GetForUser(ctx, userID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order in status %s cannot be paid", order.Status))
	}
	if !req.Amount.Round(2).Equal(order.TotalAmount.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match order total").
			WithDetails(map[string]any{"orderTotal": order.TotalAmount.StringFixed(2)})
	}

	intent, err := s.gateway.ConfirmIntent(ctx, ConfirmIntentParams{
		Amount:          order.TotalAmount,
		Currency:        order.Currency,
		PaymentMethodID: req.PaymentMethodID,
		IdempotencyKey:  callerKey(userID, idempotencyKey),
		Metadata: map[string]string{
			MetadataOrderID: order.ID.String(),
			MetadataUserID:  userID.String(),
		},
	})
	if err != nil {
		return nil, AsAPIError(err)
	}

	if err := s.orders.AttachPaymentIntent(ctx, userID, order.ID, intent.ID); err != nil {
		return nil, err
	}
	if intent.Status.IsSuccess() {
		if _, err := s.orders.MarkPaid(ctx, userID, order.ID, intent.ID); err != nil {
			return nil, err
		}
	}

	return &ProcessPaymentResponse{
		Success:       intent.Status.IsSuccess(),
		PaymentIntent: intentDTO(intent),
		OrderID:       order.ID,
	}, nil
}

func (s *service) VerifyPayment(ctx context.Context, userID uuid.UUID, intentID string) (*VerifyPaymentResponse, error) {
	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, AsAPIError(err)
	}
	if owner, ok := intent.Metadata[MetadataUserID]; ok && owner != userID.String() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}

	resp := &VerifyPaymentResponse{
		Status:   intent.Status,
		Amount:   intent.Amount(),
		Currency: intent.Currency,
	}

	raw, ok := intent.Metadata[MetadataOrderID]
	if !ok {
		return resp, nil
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return resp, nil
	}
	resp.OrderID = &orderID

	if intent.Status.IsSuccess() {
		if _, err := s.orders.MarkPaid(ctx, userID, orderID, intent.ID); err != nil {
			if s.logg != nil {
				logCtx := s.logg.WithOrderID(ctx, orderID.String())
				s.logg.Error(s.logg.WithField(logCtx, "payment_intent_id", intent.ID), "settle order after verified payment", err)
			}
			return nil, err
		}
	}
	return resp, nil
}

// callerKey scopes a client Idempotency-Key to the caller, so a replayed
// create returns the intent, and its client secret, only to its owner.
func callerKey(userID uuid.UUID, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return userID.String() + ":" + key
}
