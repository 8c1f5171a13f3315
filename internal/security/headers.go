package security

import (
	"net/http"
)

// Headers configures common security headers for HTTP responses.
type Headers struct {
	Enable bool
}

// Middleware attaches standard security headers to each response. The mock
// only serves JSON so responses are also marked uncacheable.
func (h Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Enable {
			next.ServeHTTP(w, r)
			return
		}
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
