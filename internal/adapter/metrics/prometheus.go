// Package metrics provides the Prometheus implementation of
// ports.MetricsSink. The sink is injected into the coordinator; nothing in
// the core packages touches a global registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements ports.MetricsSink.
type PrometheusSink struct {
	payments    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	lockTimeout prometheus.Counter
	deadlocks   prometheus.Counter
	webhooks    *prometheus.CounterVec
	opLatency   *prometheus.HistogramVec
}

// NewPrometheusSink creates the sink and registers its collectors.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_payments_total",
			Help: "Payments reaching a terminal status.",
		}, []string{"status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_transitions_total",
			Help: "Persisted payment state transitions.",
		}, []string{"from", "to"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rate_limited_total",
			Help: "Requests denied by the rate limiter.",
		}, []string{"policy"}),
		lockTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_lock_timeouts_total",
			Help: "Lock acquisitions that timed out.",
		}),
		deadlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_deadlocks_total",
			Help: "Cycles found in the lock wait-for graph.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_webhook_deliveries_total",
			Help: "Webhook delivery attempts by result.",
		}, []string{"result"}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_operation_duration_seconds",
			Help:    "Coordinator operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(s.payments, s.transitions, s.rateLimited, s.lockTimeout, s.deadlocks, s.webhooks, s.opLatency)
	return s
}

func (s *PrometheusSink) IncPayment(terminalStatus string) {
	s.payments.WithLabelValues(terminalStatus).Inc()
}

func (s *PrometheusSink) IncTransition(from, to string) {
	s.transitions.WithLabelValues(from, to).Inc()
}

func (s *PrometheusSink) IncRateLimited(policy string) {
	s.rateLimited.WithLabelValues(policy).Inc()
}

func (s *PrometheusSink) IncLockTimeout() {
	s.lockTimeout.Inc()
}

func (s *PrometheusSink) IncDeadlock() {
	s.deadlocks.Inc()
}

func (s *PrometheusSink) IncWebhook(result string) {
	s.webhooks.WithLabelValues(result).Inc()
}

func (s *PrometheusSink) ObserveOperation(op string, d time.Duration) {
	s.opLatency.WithLabelValues(op).Observe(d.Seconds())
}
