// Package client is a typed Go client for the payment mock's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/payment-mock/internal/payment"
	"github.com/noah-isme/payment-mock/internal/resilience"
)

// DefaultAPIKey is the key the mock accepts unless configured otherwise.
const DefaultAPIKey = "test_key"

type (
	Intent       = payment.Intent
	IntentStatus = payment.IntentStatus
	Job          = payment.Job
	Payment      = payment.Payment
	Refund       = payment.Refund
)

// APIError is returned for non-2xx answers.
type APIError struct {
	StatusCode int
	Code       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment mock: %d %s", e.StatusCode, e.Code)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Response carries a decoded body together with the raw answer.
type Response[T any] struct {
	Value      T
	StatusCode int
	Raw        []byte
}

// Client talks to one mock instance.
type Client struct {
	baseURL string
	apiKey  string
	retrier resilience.Retrier
}

// Option customises a Client.
type Option func(*Client)

// WithAPIKey overrides DefaultAPIKey.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the traced default transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.retrier.Client = hc }
}

// WithRetries retries reads and keyed writes up to attempts times.
func WithRetries(attempts int, base time.Duration) Option {
	return func(c *Client) {
		c.retrier.MaxAttempts = attempts
		c.retrier.BaseBackoff = base
	}
}

// New returns a client for baseURL, e.g. http://localhost:3001.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  DefaultAPIKey,
		retrier: resilience.Retrier{
			Client: &http.Client{
				Timeout:   10 * time.Second,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
			MaxAttempts: 1,
			Jitter:      0.2,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateIntentRequest is the body of POST /payment_intents.
type CreateIntentRequest struct {
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	CustomerID      string         `json:"customer_id,omitempty"`
	PaymentMethodID string         `json:"payment_method_id"`
	CaptureMethod   string         `json:"capture_method,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	OK bool   `json:"ok"`
	TS string `json:"ts"`
}

// JobList is the body of GET /payment_intents/{id}/jobs.
type JobList struct {
	IntentID string `json:"intent_id"`
	Jobs     []Job  `json:"jobs"`
}

// RefundList is the body of GET /payments/{intentId}/refunds.
type RefundList struct {
	PaymentIntentID string   `json:"payment_intent_id"`
	Refunds         []Refund `json:"refunds"`
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	res, err := do[HealthStatus](ctx, c, http.MethodGet, "/health", nil, "")
	return res.Value, err
}

// CreateIntent calls POST /payment_intents. StatusCode is 201 for a new intent
// and 200 for an idempotent replay.
func (c *Client) CreateIntent(ctx context.Context, req CreateIntentRequest, idempotencyKey string) (Response[Intent], error) {
	return do[Intent](ctx, c, http.MethodPost, "/payment_intents", req, idempotencyKey)
}

// ConfirmIntent calls PATCH /payment_intents/{id}/confirm. StatusCode is 202
// when processing started and 200 otherwise.
func (c *Client) ConfirmIntent(ctx context.Context, id, paymentMethodID, idempotencyKey string) (Response[Intent], error) {
	body := map[string]string{}
	if paymentMethodID != "" {
		body["payment_method_id"] = paymentMethodID
	}
	return do[Intent](ctx, c, http.MethodPatch, "/payment_intents/"+url.PathEscape(id)+"/confirm", body, idempotencyKey)
}

// GetIntent calls GET /payment_intents/{id}.
func (c *Client) GetIntent(ctx context.Context, id string) (Intent, error) {
	res, err := do[Intent](ctx, c, http.MethodGet, "/payment_intents/"+url.PathEscape(id), nil, "")
	return res.Value, err
}

// ListJobs calls GET /payment_intents/{id}/jobs.
func (c *Client) ListJobs(ctx context.Context, id string) ([]Job, error) {
	res, err := do[JobList](ctx, c, http.MethodGet, "/payment_intents/"+url.PathEscape(id)+"/jobs", nil, "")
	return res.Value.Jobs, err
}

// GetPayment calls GET /payments/{intentId}.
func (c *Client) GetPayment(ctx context.Context, intentID string) (Payment, error) {
	res, err := do[Payment](ctx, c, http.MethodGet, "/payments/"+url.PathEscape(intentID), nil, "")
	return res.Value, err
}

// ListRefunds calls GET /payments/{intentId}/refunds.
func (c *Client) ListRefunds(ctx context.Context, intentID string) ([]Refund, error) {
	res, err := do[RefundList](ctx, c, http.MethodGet, "/payments/"+url.PathEscape(intentID)+"/refunds", nil, "")
	return res.Value.Refunds, err
}

// CreateRefund calls POST /refunds. Refunds carry no idempotency key and are
// never retried.
func (c *Client) CreateRefund(ctx context.Context, intentID string, amount int64) (Refund, error) {
	body := map[string]any{"payment_intent_id": intentID, "amount": amount}
	res, err := do[Refund](ctx, c, http.MethodPost, "/refunds", body, "")
	return res.Value, err
}

// PollUntilStatus polls the intent every interval until its status is one of
// terminal (succeeded or failed when empty), the timeout elapses or ctx ends.
func (c *Client) PollUntilStatus(ctx context.Context, id string, interval, timeout time.Duration, terminal ...IntentStatus) (Intent, error) {
	if len(terminal) == 0 {
		terminal = []IntentStatus{payment.StatusSucceeded, payment.StatusFailed}
	}
	if interval <= 0 {
		interval = 300 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var last Intent
	for {
		intent, err := c.GetIntent(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return last, fmt.Errorf("poll %s: timeout waiting status, last=%s", id, last.Status)
			}
			return last, err
		}
		last = intent
		for _, s := range terminal {
			if intent.Status == s {
				return intent, nil
			}
		}
		select {
		case <-ctx.Done():
			return last, fmt.Errorf("poll %s: timeout waiting status, last=%s", id, last.Status)
		case <-ticker.C:
		}
	}
}

func do[T any](ctx context.Context, c *Client, method, path string, body any, idempotencyKey string) (Response[T], error) {
	var out Response[T]
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return out, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return out, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(resilience.IdempotencyHeader, idempotencyKey)
	}

	resp, err := c.retrier.Do(ctx, req)
	if err != nil {
		return out, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("read response: %w", err)
	}
	out.StatusCode = resp.StatusCode
	out.Raw = raw
	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		return out, &APIError{StatusCode: resp.StatusCode, Code: e.Error}
	}
	if err := json.Unmarshal(raw, &out.Value); err != nil {
		return out, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return out, nil
}
