// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Monitoring metrics
	DepositsDetected     prometheus.Counter
	NotificationsHandled prometheus.Counter
	MonitoredAccounts    prometheus.Gauge
	RetiredAccounts      prometheus.Gauge
	SubscriptionErrors   *prometheus.CounterVec
	DroppedForCapacity   prometheus.Counter

	// Forwarding metrics
	ForwardsTotal   *prometheus.CounterVec
	ForwardLatency  prometheus.Histogram
	LamportsSwept   prometheus.Counter
	ForwardAttempts prometheus.Counter

	// Notification metrics
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastDepositTimestamp prometheus.Gauge
	LastSweepTimestamp   prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_sweeper"
	}

	return &Metrics{
		// Monitoring metrics
		DepositsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "deposits_detected_total",
			Help:      "Total number of balance increases detected",
		}),
		NotificationsHandled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "account_notifications_total",
			Help:      "Total number of account change notifications processed",
		}),
		MonitoredAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "monitored_accounts",
			Help:      "Current number of accounts with a live subscription",
		}),
		RetiredAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "retired_accounts",
			Help:      "Current number of accounts retired by endpoint health",
		}),
		SubscriptionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "subscription_errors_total",
			Help:      "Total number of subscription errors by endpoint",
		}, []string{"endpoint"}),
		DroppedForCapacity: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "accounts_dropped_total",
			Help:      "Total number of submitted accounts dropped for lack of endpoint capacity",
		}),

		// Forwarding metrics
		ForwardsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forward",
			Name:      "forwards_total",
			Help:      "Total number of forward attempts by outcome",
		}, []string{"outcome"}),
		ForwardLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "forward",
			Name:      "latency_seconds",
			Help:      "Time from deposit detection to forward confirmation in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		LamportsSwept: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forward",
			Name:      "lamports_swept_total",
			Help:      "Total lamports moved to the destination",
		}),
		ForwardAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forward",
			Name:      "submissions_total",
			Help:      "Total number of transaction submissions",
		}),

		// Notification metrics
		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total number of owner notifications delivered by kind",
		}, []string{"kind"}),
		NotificationsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failed_total",
			Help:      "Total number of owner notifications that could not be delivered",
		}, []string{"kind"}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastDepositTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_deposit_timestamp",
			Help:      "Unix timestamp of the last detected deposit",
		}),
		LastSweepTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sweep_timestamp",
			Help:      "Unix timestamp of the last confirmed forward",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordNotification increments the processed account notifications counter.
func RecordNotification() {
	DefaultMetrics.NotificationsHandled.Inc()
}

// RecordDeposit records a detected balance increase.
func RecordDeposit(unixTime int64) {
	DefaultMetrics.DepositsDetected.Inc()
	DefaultMetrics.LastDepositTimestamp.Set(float64(unixTime))
}

// RecordForward records a forward outcome. Outcome is "succeeded" or a failure reason.
func RecordForward(outcome string, lamports uint64, seconds float64, unixTime int64) {
	DefaultMetrics.ForwardsTotal.WithLabelValues(outcome).Inc()
	if outcome == "succeeded" {
		DefaultMetrics.LamportsSwept.Add(float64(lamports))
		DefaultMetrics.ForwardLatency.Observe(seconds)
		DefaultMetrics.LastSweepTimestamp.Set(float64(unixTime))
	}
}

// RecordSubmission increments the transaction submissions counter.
func RecordSubmission() {
	DefaultMetrics.ForwardAttempts.Inc()
}

// RecordSubscriptionError records a subscription error for an endpoint.
func RecordSubscriptionError(endpoint string) {
	DefaultMetrics.SubscriptionErrors.WithLabelValues(endpoint).Inc()
}

// RecordDropped records accounts dropped for capacity.
func RecordDropped(n int) {
	DefaultMetrics.DroppedForCapacity.Add(float64(n))
}

// UpdateAccountGauges updates the monitored and retired gauges.
func UpdateAccountGauges(monitored, retired int) {
	DefaultMetrics.MonitoredAccounts.Set(float64(monitored))
	DefaultMetrics.RetiredAccounts.Set(float64(retired))
}

// RecordNotify records an owner notification delivery.
func RecordNotify(kind string, err error) {
	if err != nil {
		DefaultMetrics.NotificationsFailed.WithLabelValues(kind).Inc()
		return
	}
	DefaultMetrics.NotificationsSent.WithLabelValues(kind).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
