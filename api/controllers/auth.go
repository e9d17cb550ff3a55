package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const tokenHeader = "X-Storefront-Token"

// AuthLogin returns the access token in the body and mirrors it in a header
// for clients that cannot read JSON before redirecting.
func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := decodeAndCall(r, svc, auth.Service.Login)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set(tokenHeader, result.AccessToken)
		responses.WriteSuccess(w, result)
	}
}

func AuthRegister(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handler(logg, http.StatusCreated, func(r *http.Request) (*users.UserDTO, error) {
		return decodeAndCall(r, svc, auth.Service.Register)
	})
}

// decodeAndCall binds the JSON body and hands it to one of the service's
// request-shaped methods.
func decodeAndCall[Req, Res any](r *http.Request, svc auth.Service, call func(auth.Service, context.Context, Req) (Res, error)) (Res, error) {
	var (
		body Req
		zero Res
	)
	if svc == nil {
		return zero, unavailable("auth service")
	}
	if err := validators.DecodeJSONBody(r, &body); err != nil {
		return zero, err
	}
	return call(svc, r.Context(), body)
}

// AuthLogout revokes the caller's session and discards its cart.
func AuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := func() error {
			if svc == nil {
				return unavailable("auth service")
			}
			sess, err := requireSession(r)
			if err != nil {
				return err
			}
			return svc.Logout(r.Context(), sess)
		}()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
