package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "governor"

var (
	ValidationSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_submitted_total",
			Help:      "Total number of governance validations submitted.",
		},
		[]string{"priority"},
	)

	ValidationCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_completed_total",
			Help:      "Total number of validations that reached a terminal state, labeled by final status.",
		},
		[]string{"status"},
	)

	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Total number of per-agent dispatches, labeled by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	DispatchLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_seconds",
			Help:      "Latency of one agent dispatch from fan-out to result (seconds).",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	AgentTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_transitions_total",
			Help:      "Total number of agent lifecycle transitions, labeled by kind and target state.",
		},
		[]string{"kind", "state"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of requests rejected by the rate limiter.",
		},
		[]string{"scope", "operation"},
	)
)

func init() {
	prometheus.MustRegister(
		ValidationSubmittedTotal,
		ValidationCompletedTotal,
		DispatchTotal,
		DispatchLatencySeconds,
		AgentTransitionsTotal,
		RateLimitHitsTotal,
	)
}
