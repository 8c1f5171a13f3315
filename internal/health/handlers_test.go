package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-mock/internal/health"
)

type stubChecker struct {
	redisErr error
}

func (s stubChecker) PingRedis(_ context.Context, _ time.Duration) error {
	return s.redisErr
}

func TestHealth(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	handler := health.Handler{Now: func() time.Time { return fixed }}
	rr := httptest.NewRecorder()
	handler.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"ok":true,"ts":"2025-01-02T03:04:05.006Z"}`, rr.Body.String())
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadyWithoutDependencies(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"server":"ok"}`, rr.Body.String())
}

func TestReadyRedisFailure(t *testing.T) {
	handler := health.Handler{Checker: stubChecker{redisErr: errors.New("redis down")}, RedisTimeout: 10 * time.Millisecond}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.Equal(t, "redis down", status["redis"])
}

func TestReadyWithMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	handler := health.Handler{Checker: health.RedisChecker{Client: client}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	mr.Close()
	rr = httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestReadinessAfterShutdown(t *testing.T) {
	handler := health.Handler{Checker: stubChecker{}}
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)

	health.SetReady(false)
	t.Cleanup(func() { health.SetReady(true) })

	rr := httptest.NewRecorder()
	handler.Ready(rr, req)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	health.SetReady(true)
	rr = httptest.NewRecorder()
	handler.Ready(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}
