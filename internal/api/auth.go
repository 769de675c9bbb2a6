package api

import (
	"net/http"
	"strings"

	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/joshhsoj1902/deck-achievements/internal/rpc"
)

// RequireToken validates the bearer token on every request. An empty secret
// disables the check.
func RequireToken(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w, "invalid authorization header format, use: Bearer <token>")
				return
			}

			if _, err := rpc.ValidateToken(secret, parts[1]); err != nil {
				logger.Log.WithError(err).Warn("Rejected bearer token")
				unauthorized(w, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, rpc.Envelope{Error: message, Code: rpc.CodeUnauthorized})
}
