package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// IntentsTotal counts create-intent outcomes (created, replayed, rejected).
	IntentsTotal *prometheus.CounterVec
	// ConfirmationsTotal counts confirm outcomes (accepted, replayed, already_confirmed, rejected).
	ConfirmationsTotal *prometheus.CounterVec
	// JobStagesTotal counts completed pipeline stages by job type.
	JobStagesTotal *prometheus.CounterVec
	// PaymentsCapturedTotal counts payments materialised after the capture stage.
	PaymentsCapturedTotal prometheus.Counter
	// RefundsTotal counts refund outcomes (created, exceeds_remaining, rejected).
	RefundsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers the engine's Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		IntentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intents_total",
			Help:      "Count of create payment intent outcomes.",
		}, []string{"result"})
		ConfirmationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_confirmations_total",
			Help:      "Count of confirm payment intent outcomes.",
		}, []string{"result"})
		JobStagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_job_stages_completed_total",
			Help:      "Count of completed pipeline stages by job type.",
		}, []string{"stage"})
		PaymentsCapturedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_captured_total",
			Help:      "Number of payments captured after the pipeline finished.",
		})
		RefundsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Count of refund request outcomes.",
		}, []string{"result"})

		mustRegisterCollector(reg, IntentsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				IntentsTotal = v
			}
		})
		mustRegisterCollector(reg, ConfirmationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ConfirmationsTotal = v
			}
		})
		mustRegisterCollector(reg, JobStagesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				JobStagesTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentsCapturedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PaymentsCapturedTotal = v
			}
		})
		mustRegisterCollector(reg, RefundsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RefundsTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
