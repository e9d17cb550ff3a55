package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

func unavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable")
}

// Create prices and persists an order for the path user. Prices come from
// the catalog; a repeated Idempotency-Key returns the original order.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handler(logg, http.StatusCreated, func(r *http.Request) (*internalorders.OrderDTO, error) {
		if svc == nil {
			return nil, unavailable()
		}
		userID, err := pathUserID(r)
		if err != nil {
			return nil, err
		}
		var payload internalorders.CreateOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		input, err := payload.ToInput(userID, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
		}
		return svc.CreateOrder(r.Context(), input)
	})
}

// List returns the path user's order history, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handler(logg, http.StatusOK, func(r *http.Request) (*internalorders.OrderList, error) {
		if svc == nil {
			return nil, unavailable()
		}
		userID, err := pathUserID(r)
		if err != nil {
			return nil, err
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			return nil, err
		}
		return svc.ListByUser(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
	})
}

// ownedOrder resolves the caller and the {orderId} path parameter. The
// service decides whether the caller may act on the order.
func ownedOrder(svc internalorders.Service, r *http.Request) (userID, orderID uuid.UUID, err error) {
	if svc == nil {
		return uuid.Nil, uuid.Nil, unavailable()
	}
	if userID, err = callerID(r); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if orderID, err = orderIDParam(r); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, orderID, nil
}

// Detail returns one of the caller's orders.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handler(logg, http.StatusOK, func(r *http.Request) (*internalorders.OrderDTO, error) {
		userID, orderID, err := ownedOrder(svc, r)
		if err != nil {
			return nil, err
		}
		return svc.GetForUser(r.Context(), userID, orderID)
	})
}

// Cancel cancels one of the caller's unpaid orders and releases its stock.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handler(logg, http.StatusOK, func(r *http.Request) (*internalorders.OrderDTO, error) {
		userID, orderID, err := ownedOrder(svc, r)
		if err != nil {
			return nil, err
		}
		var payload internalorders.CancelOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.Cancel(r.Context(), userID, orderID, strings.TrimSpace(payload.Reason))
	})
}

// UpdateStatus moves any order along the status graph. It is mounted behind
// the fulfillment role; the caller is recorded as the actor.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handler(logg, http.StatusOK, func(r *http.Request) (*internalorders.OrderDTO, error) {
		actorID, orderID, err := ownedOrder(svc, r)
		if err != nil {
			return nil, err
		}
		var payload internalorders.UpdateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		status, err := enums.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(payload.Status)))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status")
		}
		return svc.UpdateStatus(r.Context(), actorID, orderID, status)
	})
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "login required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user context")
	}
	return id, nil
}

// pathUserID resolves {userId} and requires it to be the caller. Another
// user's orders are reported as missing rather than forbidden.
func pathUserID(r *http.Request) (uuid.UUID, error) {
	caller, err := callerID(r)
	if err != nil {
		return uuid.Nil, err
	}
	raw := strings.TrimSpace(chi.URLParam(r, "userId"))
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	if userID != caller {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return userID, nil
}

func orderIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
