package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

var defaultCORSOrigins = []string{"http://localhost:3000"}

// CORS allows the storefront web clients in origins to call the API with
// credentials. An empty list falls back to the local dev frontend.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader, RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Idempotent-Replay"},
		AllowCredentials: true,
		MaxAge:           600,
	})
}
