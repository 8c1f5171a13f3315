package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-mock/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("paymock", []float64{1, 10}, registry)
	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Patch("/payment_intents/{id}/confirm", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/payment_intents/pi_1/confirm", nil))

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodPatch, "/payment_intents/{id}/confirm", "202")))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))
}

func TestHTTPMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("paymock", nil, registry)
	second := obs.NewHTTPMetrics("paymock", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
}

func TestHTTPMetricsUsesChiPatternAfterRouting(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("paymock", nil, registry)

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/payments/{intentId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payments/pi_x", nil))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/payments/{intentId}", "404")))
}

func TestParseBucketsCSV(t *testing.T) {
	require.Nil(t, obs.ParseBucketsCSV("  "))
	require.Equal(t, []float64{5, 10.5, 80}, obs.ParseBucketsCSV("5, 10.5,,abc,-1,80"))
}

func TestRequestLoggerWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json", "debug")
	handler := obs.RequestLogger{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"idempotency_conflict"}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/payment_intents", nil)
	req.Header.Set("Idempotency-Key", "k-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "http_request", line["message"])
	require.Equal(t, float64(http.StatusConflict), line["status"])
	require.Equal(t, "k-1", line["idempotency_key"])
	require.Equal(t, "/payment_intents", line["route"])
}

func TestRequestLoggerUsesMatchedPattern(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(obs.RequestLogger{Logger: obs.NewLoggerTo(&buf, "json", "info")}.Middleware)
	r.Get("/payment_intents/{id}/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/payment_intents/pi_9/jobs", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "/payment_intents/{id}/jobs", line["route"])
	require.Equal(t, "/payment_intents/pi_9/jobs", line["path"])
}

func TestHTTPMetricsUnmatchedRoute(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("paymock", nil, registry)

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "unmatched", "404")))
}

func TestRegisterGaugeFunc(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.RegisterGaugeFunc("paymock", "pipelines_in_flight", "test gauge", func() float64 { return 3 }, registry)

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "paymock_pipelines_in_flight", families[0].GetName())
	require.Equal(t, 3.0, families[0].GetMetric()[0].GetGauge().GetValue())
}
