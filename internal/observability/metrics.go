// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Settlement metrics
	TradesExecuted     *prometheus.CounterVec // by side
	TradesRejected     *prometheus.CounterVec // by side, reason
	SettlementDuration *prometheus.HistogramVec
	SettlementVolume   *prometheus.CounterVec // gross value by side
	FeesCollected      prometheus.Counter
	Inconsistencies    prometheus.Counter

	// Curve metrics
	CurvesCreated   prometheus.Counter
	CurvesGraduated prometheus.Counter

	// Graduation metrics
	GraduationAttempts     *prometheus.CounterVec // by outcome
	GraduationDuration     prometheus.Histogram
	GraduationJobsInFlight prometheus.Gauge

	// History sink metrics
	HistoryAppendErrors prometheus.Counter
	HistoryTradesStored prometheus.Counter

	// Feed metrics
	FeedClients prometheus.Gauge
	FeedDropped prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "curvelaunch"
	}

	return &Metrics{
		TradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "trades_executed_total",
			Help:      "Total number of committed trades",
		}, []string{"side"}),
		TradesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "trades_rejected_total",
			Help:      "Total number of rejected trades",
		}, []string{"side", "reason"}),
		SettlementDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "duration_seconds",
			Help:      "Trade settlement duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"side"}),
		SettlementVolume: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "volume_total",
			Help:      "Gross traded value",
		}, []string{"side"}),
		FeesCollected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "fees_collected_total",
			Help:      "Total fees charged on trades",
		}),
		Inconsistencies: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "inconsistencies_total",
			Help:      "Detected violations of the settlement atomicity contract",
		}),

		CurvesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "curves",
			Name:      "created_total",
			Help:      "Total number of curves created",
		}),
		CurvesGraduated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "curves",
			Name:      "graduated_total",
			Help:      "Total number of curves graduated to a DEX pool",
		}),

		GraduationAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graduation",
			Name:      "attempts_total",
			Help:      "Graduation attempts by outcome",
		}, []string{"outcome"}),
		GraduationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graduation",
			Name:      "duration_seconds",
			Help:      "Graduation processing duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		GraduationJobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graduation",
			Name:      "jobs_in_flight",
			Help:      "Graduation jobs queued or running",
		}),

		HistoryAppendErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "append_errors_total",
			Help:      "Failed appends to the trade history sink",
		}),
		HistoryTradesStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "trades_stored_total",
			Help:      "Trades delivered to the history sink",
		}),

		FeedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Connected websocket feed clients",
		}),
		FeedDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "dropped_total",
			Help:      "Feed clients dropped for not keeping up",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
