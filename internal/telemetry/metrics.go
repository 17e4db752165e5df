// Package telemetry exposes the service's own operational counters over the
// standard Prometheus endpoint.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SamplesProcessed counts accepted telemetry samples.
	SamplesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelsight",
		Name:      "samples_processed_total",
		Help:      "Telemetry samples accepted into the pipeline.",
	})

	// SamplesLate counts samples dropped for non-monotonic timestamps.
	SamplesLate = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelsight",
		Name:      "samples_late_total",
		Help:      "Samples dropped because their timestamp was not newer than the last accepted one.",
	})

	// FieldsNulled counts sensor fields nulled by range validation.
	FieldsNulled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelsight",
		Name:      "sample_fields_nulled_total",
		Help:      "Sensor fields nulled for being non-finite or out of the valid range.",
	})

	// AnomaliesDetected counts detector events by type.
	AnomaliesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuelsight",
		Name:      "anomalies_detected_total",
		Help:      "Detector events emitted, by detector type.",
	}, []string{"type"})

	// RefuelsDetected counts refuel events by detection method.
	RefuelsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuelsight",
		Name:      "refuels_detected_total",
		Help:      "Refuel events detected, by method.",
	}, []string{"method"})

	// AlertsSent counts alerts delivered to at least one channel.
	AlertsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelsight",
		Name:      "alerts_sent_total",
		Help:      "Alerts delivered to at least one channel.",
	})

	// AlertsSuppressed counts alerts swallowed by the cooldown.
	AlertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelsight",
		Name:      "alerts_suppressed_total",
		Help:      "Alerts suppressed by the per (truck, type) cooldown.",
	})

	// StoreErrors counts failed persistence operations.
	StoreErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelsight",
		Name:      "store_errors_total",
		Help:      "Failed SQLite operations.",
	})

	// CacheErrors counts failed cache operations.
	CacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelsight",
		Name:      "cache_errors_total",
		Help:      "Failed Redis operations.",
	})

	// PipelineCycleSeconds observes full orchestration cycle latency.
	PipelineCycleSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fuelsight",
		Name:      "pipeline_cycle_seconds",
		Help:      "Wall time of one full per-sample pipeline pass.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
