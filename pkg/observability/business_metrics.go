package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	intakeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_intake_requests_total",
		Help: "Total payin/payout intake requests by outcome",
	}, []string{
		"txn_type", // payin, payout
		"outcome",  // accepted, or the rejecting error code
	})

	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_dispatch_total",
		Help: "Provider dispatch calls by normalized status",
	}, []string{
		"provider",
		"status", // success, pending, failed, error
	})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_dispatch_duration_seconds",
		Help:    "Provider dispatch round-trip time",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{
		"provider",
	})

	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_jobs_total",
		Help: "Job attempts by outcome",
	}, []string{
		"kind",
		"outcome", // completed, retried, failed
	})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_job_duration_seconds",
		Help:    "Time spent in one job attempt",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{
		"kind",
	})

	stalledJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_stalled_jobs_total",
		Help: "Jobs whose heartbeat lapsed",
	}, []string{
		"action", // requeued, failed
	})

	reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_reconciliations_total",
		Help: "Provider callbacks by reconciliation outcome",
	}, []string{
		"provider",
		"outcome", // completed, failed, duplicate, error code
	})

	sweepRepairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_sweep_repairs_total",
		Help: "Mirror mismatches repaired by the reconciliation sweep",
	}, []string{
		"repair", // finalized, dispatched
	})

	webhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_merchant_webhooks_total",
		Help: "Merchant webhook deliveries by final outcome",
	}, []string{
		"status", // success, failed
	})

	webhookDeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_merchant_webhook_duration_seconds",
		Help:    "Time to deliver a merchant webhook including retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{
		"status",
	})

	dbPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_db_pool_connections",
		Help: "Ledger database pool connections by state",
	}, []string{
		"state", // acquired, idle, max
	})

	circuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_provider_circuit_state",
		Help: "Provider circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{
		"provider",
	})
)

// RecordIntake records an intake request outcome
func RecordIntake(txnType, outcome string) {
	intakeRequestsTotal.WithLabelValues(txnType, outcome).Inc()
}

// RecordDispatch records a provider call
func RecordDispatch(provider, status string, duration time.Duration) {
	dispatchTotal.WithLabelValues(provider, status).Inc()
	dispatchDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordJobOutcome records one job attempt
func RecordJobOutcome(kind, outcome string, duration time.Duration) {
	jobsTotal.WithLabelValues(kind, outcome).Inc()
	jobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordStalledJobs records jobs handled by the stall reaper
func RecordStalledJobs(requeued, failed int) {
	stalledJobsTotal.WithLabelValues("requeued").Add(float64(requeued))
	stalledJobsTotal.WithLabelValues("failed").Add(float64(failed))
}

// RecordReconciliation records a provider callback outcome
func RecordReconciliation(provider, outcome string) {
	reconciliationsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordSweepRepairs records mismatches fixed by one sweep
func RecordSweepRepairs(repair string, count int) {
	sweepRepairsTotal.WithLabelValues(repair).Add(float64(count))
}

// RecordWebhookDelivery records a merchant webhook delivery
func RecordWebhookDelivery(status string, duration time.Duration) {
	webhookDeliveriesTotal.WithLabelValues(status).Inc()
	webhookDeliveryDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SetCircuitState publishes a provider circuit breaker state
func SetCircuitState(provider string, state int) {
	circuitState.WithLabelValues(provider).Set(float64(state))
}

// SetDBPoolStats publishes ledger pool usage
func SetDBPoolStats(acquired, idle, max int32) {
	dbPoolConnections.WithLabelValues("acquired").Set(float64(acquired))
	dbPoolConnections.WithLabelValues("idle").Set(float64(idle))
	dbPoolConnections.WithLabelValues("max").Set(float64(max))
}
