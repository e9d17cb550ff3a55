package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS applies the browser allow list. Preflights are answered here and never
// reach auth or idempotency handling.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, replayedHeader, "Retry-After"},
		// Sessions travel as bearer tokens, not cookies.
		AllowCredentials: false,
		MaxAge:           600,
	})
}
