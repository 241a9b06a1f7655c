// Package auth guards mutating routes with the static bearer token the
// collectors are provisioned with. An empty token disables the check,
// which keeps local development friction-free.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/pulsewatch/pulsewatch/internal/api/utils"
)

// Service validates collector credentials.
type Service struct {
	token string
}

// NewService creates an auth service for the given token.
func NewService(token string) *Service {
	return &Service{token: token}
}

// Enabled reports whether a token is configured at all.
func (s *Service) Enabled() bool {
	return s.token != ""
}

// Middleware rejects requests that do not carry the expected
// "Authorization: Bearer <token>" header.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			utils.SendErrorResponse(w, utils.NewAPIError("authorization header is required", http.StatusUnauthorized))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			utils.SendErrorResponse(w, utils.NewAPIError("authorization header must be in format 'Bearer <token>'", http.StatusUnauthorized))
			return
		}

		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(s.token)) != 1 {
			utils.SendErrorResponse(w, utils.NewAPIError("invalid token", http.StatusUnauthorized))
			return
		}

		next.ServeHTTP(w, r)
	})
}
