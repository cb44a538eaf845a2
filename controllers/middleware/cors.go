package middleware

import (
	"github.com/rs/cors"
)

// CorsSettings allows the JSON endpoints to be called from the given
// origins. Credentials are only allowed for explicit origins.
func CorsSettings(origins []string, debug bool) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}
	return cors.New(cors.Options{
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedOrigins:   origins,
		AllowCredentials: !wildcard,
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposedHeaders:   []string{"Authorization"},
		Debug:            debug,
	})
}
