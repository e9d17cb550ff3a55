package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// CheckoutBegin opens a checkout attempt over the session's cart.
func CheckoutBegin(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handler(logg, http.StatusCreated, func(r *http.Request) (*checkoutsvc.AttemptDTO, error) {
		if svc == nil {
			return nil, unavailable("checkout service")
		}
		sess, err := requireSession(r)
		if err != nil {
			return nil, err
		}
		return svc.Begin(r.Context(), sess)
	})
}

func CheckoutGet(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return attemptAction(svc, logg, fromMethod(checkoutsvc.Service.Get))
}

// CheckoutSubmit places the order and charges the payment method. A failed
// attempt is returned as data, not as an error, so the client can render the
// failure kind and offer retry.
func CheckoutSubmit(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return attemptAction(svc, logg, func(svc checkoutsvc.Service, r *http.Request, sess *session.Session, id uuid.UUID) (*checkoutsvc.AttemptDTO, error) {
		var body checkoutsvc.SubmitRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.Submit(r.Context(), sess, id, body.ToInput())
	})
}

func CheckoutRetry(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return attemptAction(svc, logg, fromMethod(checkoutsvc.Service.Retry))
}

// CheckoutResync re-checks the gateway for an attempt stuck in confirming_payment.
func CheckoutResync(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return attemptAction(svc, logg, fromMethod(checkoutsvc.Service.Resync))
}

type attemptCall func(checkoutsvc.Service, *http.Request, *session.Session, uuid.UUID) (*checkoutsvc.AttemptDTO, error)

// fromMethod adapts a service method expression that only needs the request context.
func fromMethod(m func(checkoutsvc.Service, context.Context, *session.Session, uuid.UUID) (*checkoutsvc.AttemptDTO, error)) attemptCall {
	return func(svc checkoutsvc.Service, r *http.Request, sess *session.Session, id uuid.UUID) (*checkoutsvc.AttemptDTO, error) {
		return m(svc, r.Context(), sess, id)
	}
}

func attemptAction(svc checkoutsvc.Service, logg *logger.Logger, call attemptCall) http.HandlerFunc {
	return responses.Handler(logg, http.StatusOK, func(r *http.Request) (*checkoutsvc.AttemptDTO, error) {
		if svc == nil {
			return nil, unavailable("checkout service")
		}
		sess, err := requireSession(r)
		if err != nil {
			return nil, err
		}
		attemptID, err := uuidParam(r, "attemptId", "checkout attempt id")
		if err != nil {
			return nil, err
		}
		return call(svc, r, sess, attemptID)
	})
}
