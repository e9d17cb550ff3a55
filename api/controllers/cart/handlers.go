package cart

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// cartOp runs against the caller's session cart and yields the cart to render.
type cartOp func(r *http.Request, svc cartsvc.Service, sessionID string) (*cartsvc.Cart, error)

// cartHandler resolves the session, runs op and prices the resulting cart.
func cartHandler(svc cartsvc.Service, logg *logger.Logger, op cartOp) http.HandlerFunc {
	return responses.Handler(logg, http.StatusOK, func(r *http.Request) (cartResponse, error) {
		if svc == nil {
			return cartResponse{}, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable")
		}
		sess := middleware.SessionFromContext(r.Context())
		if sess == nil || sess.ID == "" {
			return cartResponse{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "login required")
		}
		c, err := op(r, svc, sess.ID)
		if err != nil {
			return cartResponse{}, err
		}
		resp, err := newCartResponse(c)
		if err != nil {
			return cartResponse{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "price cart")
		}
		return resp, nil
	})
}

// CartFetch returns the session's cart with its price breakdown.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(r *http.Request, svc cartsvc.Service, sessionID string) (*cartsvc.Cart, error) {
		return svc.Current(r.Context(), sessionID)
	})
}

// CartAddItem adds a catalog product to the cart, merging with an existing line.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(r *http.Request, svc cartsvc.Service, sessionID string) (*cartsvc.Cart, error) {
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.Add(r.Context(), sessionID, payload.ProductID, payload.Quantity)
	})
}

// CartSetQuantity replaces a line's quantity; zero removes the line.
func CartSetQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(r *http.Request, svc cartsvc.Service, sessionID string) (*cartsvc.Cart, error) {
		productID, err := productIDParam(r)
		if err != nil {
			return nil, err
		}
		var payload setQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.SetQuantity(r.Context(), sessionID, productID, *payload.Quantity)
	})
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(r *http.Request, svc cartsvc.Service, sessionID string) (*cartsvc.Cart, error) {
		productID, err := productIDParam(r)
		if err != nil {
			return nil, err
		}
		return svc.Remove(r.Context(), sessionID, productID)
	})
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartHandler(svc, logg, func(r *http.Request, svc cartsvc.Service, sessionID string) (*cartsvc.Cart, error) {
		if err := svc.Clear(r.Context(), sessionID); err != nil {
			return nil, err
		}
		return &cartsvc.Cart{SessionID: sessionID}, nil
	})
}

func productIDParam(r *http.Request) (uuid.UUID, error) {
	productID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "productId")))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
	}
	return productID, nil
}
