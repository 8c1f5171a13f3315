// Package resilience retries HTTP calls that are safe to repeat against the
// payment API.
package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// IdempotencyHeader marks a mutating request as safe to replay.
const IdempotencyHeader = "Idempotency-Key"

// Backoff returns an exponential backoff duration for the provided attempt.
// Jitter is expressed as a fraction (e.g. 0.2 == 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	jitter := float64(d) * jitterPct
	delta := (rand.Float64()*2 - 1) * jitter
	return d + time.Duration(delta)
}

// Replayable reports whether req may be sent more than once: reads always,
// writes only when they carry an idempotency key.
func Replayable(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return strings.TrimSpace(req.Header.Get(IdempotencyHeader)) != ""
}

// Retrier sends requests through Client and retries transport errors, 429 and
// 5xx answers with exponential backoff. Requests that are not Replayable are
// sent exactly once.
type Retrier struct {
	Client      *http.Client
	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      float64
}

// Do executes req. The body is buffered so every attempt sends the same bytes.
// When attempts run out the last response is returned as is so callers can
// decode its error body.
func (r Retrier) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	attempts := r.MaxAttempts
	if attempts <= 0 || !Replayable(req) {
		attempts = 1
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptReq := req.Clone(ctx)
		if body != nil {
			attemptReq.Body = io.NopCloser(bytes.NewReader(body))
		}
		resp, err := client.Do(attemptReq)
		switch {
		case err != nil:
			lastErr = err
		case !retryableStatus(resp.StatusCode) || attempt == attempts:
			return resp, nil
		default:
			lastErr = fmt.Errorf("resilience: %s", resp.Status)
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(Backoff(r.BaseBackoff, attempt, r.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if lastErr == nil {
		lastErr = errors.New("resilience: no attempt made")
	}
	return nil, lastErr
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("resilience: buffer body: %w", err)
	}
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return data, nil
}
