package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/payment-mock/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles the readiness probe. Shutdown flips it to false before draining.
func SetReady(v bool) { ready.Store(v) }

// IsReady reports the current readiness flag.
func IsReady() bool { return ready.Load() }

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler exposes HTTP handlers for health endpoints. A nil Checker means the
// mock runs without external dependencies.
type Handler struct {
	Checker      Checker
	RedisTimeout time.Duration
	Now          func() time.Time
}

type healthResp struct {
	OK bool   `json:"ok"`
	TS string `json:"ts"`
}

// Health answers GET /health with {ok:true, ts}.
func (h Handler) Health(w http.ResponseWriter, _ *http.Request) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	common.JSON(w, http.StatusOK, healthResp{OK: true, TS: now().UTC().Format("2006-01-02T15:04:05.000Z07:00")})
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on the shutdown flag and dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"server": "ok"}
	healthy := true
	if !IsReady() {
		status["server"] = "shutting_down"
		healthy = false
	}
	if h.Checker != nil {
		status["redis"] = "ok"
		if err := h.Checker.PingRedis(r.Context(), h.redisTimeout()); err != nil {
			status["redis"] = err.Error()
			healthy = false
		}
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
