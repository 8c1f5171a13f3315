// Package ratelimit throttles API callers using ulule/limiter with an
// in-process or Redis-backed store.
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/payment-mock/internal/common"
)

const defaultPrefix = "paymock:ratelimit"

// NewStore returns a Redis store when client is set and an in-process store otherwise.
func NewStore(client *redis.Client, prefix string) (limiter.Store, error) {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultPrefix
	}
	opts := limiter.StoreOptions{Prefix: prefix, CleanUpInterval: time.Minute}
	if client == nil {
		return memory.NewStoreWithOptions(opts), nil
	}
	store, err := limiterredis.NewStoreWithOptions(client, opts)
	if err != nil {
		return nil, fmt.Errorf("ratelimit redis store: %w", err)
	}
	return store, nil
}

// New parses a formatted rate such as "100-M" and binds it to store.
func New(formatted string, store limiter.Store) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(strings.TrimSpace(formatted))
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", formatted, err)
	}
	return limiter.New(store, rate), nil
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter *limiter.Limiter
	Key     func(*http.Request) string
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface. Store failures
// let the request through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil {
		return next
	}
	keyFn := h.Key
	if keyFn == nil {
		keyFn = ClientKey
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lctx, err := h.Limiter.Get(r.Context(), keyFn(r))
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			retryAfter := lctx.Reset - time.Now().Unix()
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			common.JSONError(w, http.StatusTooManyRequests, common.CodeRateLimited)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientKey keys callers by remote IP, which chi's RealIP middleware has
// already resolved from forwarding headers.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
