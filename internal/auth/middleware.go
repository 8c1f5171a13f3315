// Package auth guards the mock's API behind a single static bearer key.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/payment-mock/internal/common"
)

// Middleware enforces the configured API key.
type Middleware struct {
	APIKey string
}

// RequireAuth rejects requests whose Authorization header does not carry
// "Bearer <APIKey>" with 401 {"error":"unauthorized"}.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" || m.APIKey == "" || subtle.ConstantTimeCompare([]byte(token), []byte(m.APIKey)) != 1 {
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const bearerPrefix = "Bearer "

// extractToken only accepts the exact "Bearer <key>" form: the scheme is case
// sensitive and no extra whitespace is stripped.
func extractToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
	if !ok {
		return ""
	}
	return token
}
