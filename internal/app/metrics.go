package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/payment-mock/internal/obs"
	"github.com/noah-isme/payment-mock/internal/payment"
)

// RegisterStoreGauges exposes store occupancy sampled on every scrape.
func RegisterStoreGauges(namespace string, store *payment.Store, reg prometheus.Registerer) {
	obs.RegisterGaugeFunc(namespace, "payment_intents_stored", "Payment intents held by the mock.", func() float64 {
		return float64(store.Stats().Intents)
	}, reg)
	obs.RegisterGaugeFunc(namespace, "payment_pipelines_in_flight", "Confirmed intents whose job pipeline is still running.", func() float64 {
		return float64(store.Stats().InFlight)
	}, reg)
	obs.RegisterGaugeFunc(namespace, "refunds_stored", "Refunds recorded across all payments.", func() float64 {
		return float64(store.Stats().Refunds)
	}, reg)
}
