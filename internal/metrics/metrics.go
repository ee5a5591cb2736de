package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks inbound webhook signals by outcome.
	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tv_signals_total",
			Help: "Total number of webhook signals received (by result).",
		},
		[]string{"result"}, // accepted | rejected_auth | rejected_schema | failed_storage
	)

	// Tracks orders handed to the polling EA.
	OrdersClaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tv_orders_claimed_total",
			Help: "Total number of pending orders claimed by the polling consumer.",
		},
	)

	// Tracks execution reports appended to the report log.
	ReportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tv_reports_total",
			Help: "Total number of execution reports appended.",
		},
	)

	// Gauges live fan-out sessions by transport.
	FanoutSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tv_fanout_sessions",
			Help: "Number of currently connected fan-out sessions.",
		},
		[]string{"transport"}, // sse | ws
	)

	// Tracks sessions dropped during publish sweeps.
	FanoutDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tv_fanout_drops_total",
			Help: "Fan-out sessions dropped because a write failed or stalled.",
		},
		[]string{"transport"},
	)

	// Tracks NATS messages published by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages published.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapter_errors_total",
			Help: "Count of adapter-level errors by component.",
		},
		[]string{"component", "reason"},
	)
)

// ObserveDuration records the time taken since start on the given histogram.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// counters are not meant for duration tracking
	}
}

func IncSignal(result string) {
	SignalsTotal.WithLabelValues(result).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func IncFanoutDrop(transport string) {
	FanoutDropsTotal.WithLabelValues(transport).Inc()
}
