package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// paymentCall resolves the caller and, when body is non-nil, binds the JSON
// request into it.
func paymentCall(svc payments.Service, r *http.Request, body any) (uuid.UUID, error) {
	if svc == nil {
		return uuid.Nil, unavailable("payment service")
	}
	sess, err := requireSession(r)
	if err != nil {
		return uuid.Nil, err
	}
	if body != nil {
		if err := validators.DecodeJSONBody(r, body); err != nil {
			return uuid.Nil, err
		}
	}
	return sess.UserID, nil
}

// CreatePaymentIntent opens an unconfirmed gateway intent for client-side collection.
func CreatePaymentIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handler(logg, http.StatusCreated, func(r *http.Request) (*payments.CreatePaymentIntentResponse, error) {
		var body payments.CreatePaymentIntentRequest
		userID, err := paymentCall(svc, r, &body)
		if err != nil {
			return nil, err
		}
		return svc.CreatePaymentIntent(r.Context(), userID, body, idempotencyKey(r))
	})
}

// ProcessPayment creates and confirms an intent for one of the caller's orders.
func ProcessPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handler(logg, http.StatusOK, func(r *http.Request) (*payments.ProcessPaymentResponse, error) {
		var body payments.ProcessPaymentRequest
		userID, err := paymentCall(svc, r, &body)
		if err != nil {
			return nil, err
		}
		if body.OrderID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
		}
		return svc.ProcessPayment(r.Context(), userID, body, idempotencyKey(r))
	})
}

func VerifyPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handler(logg, http.StatusOK, func(r *http.Request) (*payments.VerifyPaymentResponse, error) {
		userID, err := paymentCall(svc, r, nil)
		if err != nil {
			return nil, err
		}
		intentID := strings.TrimSpace(chi.URLParam(r, "paymentIntentId"))
		if intentID == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
		}
		return svc.VerifyPayment(r.Context(), userID, intentID)
	})
}
