package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	limiter "github.com/ulule/limiter/v3"
)

func newCounted(t *testing.T, store limiter.Store, rate string) http.Handler {
	t.Helper()
	l, err := New(rate, store)
	require.NoError(t, err)
	handler := Handler{Limiter: l, Key: func(*http.Request) string { return "static" }}
	return handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestHandlerMiddlewareEnforcesLimitInMemory(t *testing.T) {
	store, err := NewStore(nil, "")
	require.NoError(t, err)
	counted := newCounted(t, store, "1-M")

	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, httptest.NewRequest(http.MethodGet, "/payment_intents/pi_1", nil))
	require.Equal(t, http.StatusOK, rr1.Code)
	require.Equal(t, "1", rr1.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rr1.Header().Get("X-RateLimit-Remaining"))

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, httptest.NewRequest(http.MethodGet, "/payment_intents/pi_1", nil))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.JSONEq(t, `{"error":"rate_limited"}`, rr2.Body.String())
	require.NotEmpty(t, rr2.Header().Get("Retry-After"))
}

func TestHandlerMiddlewareEnforcesLimitWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewStore(client, "test")
	require.NoError(t, err)
	counted := newCounted(t, store, "2-M")

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		counted.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/refunds", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := httptest.NewRecorder()
	counted.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/refunds", nil))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestNewRejectsMalformedRate(t *testing.T) {
	store, err := NewStore(nil, "")
	require.NoError(t, err)
	_, err = New("lots", store)
	require.Error(t, err)
}

type brokenStore struct{ limiter.Store }

func (brokenStore) Get(context.Context, string, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errors.New("store down")
}

func TestHandlerMiddlewareFailsOpen(t *testing.T) {
	rate, err := limiter.NewRateFromFormatted("1-S")
	require.NoError(t, err)

	var reported error
	handler := Handler{Limiter: limiter.New(brokenStore{}, rate), OnError: func(err error) { reported = err }}
	rr := httptest.NewRecorder()
	handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualError(t, reported, "store down")
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	require.Equal(t, "10.1.2.3", ClientKey(req))
	req.RemoteAddr = "10.1.2.3"
	require.Equal(t, "10.1.2.3", ClientKey(req))
}
