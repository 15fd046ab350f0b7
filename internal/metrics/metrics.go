// Package metrics exposes the worker's Prometheus collectors. Collectors are
// registered on the default registry at init; the HTTP layer serves them at
// /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeviceBinds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trellis_device_binds_total",
		Help: "Completed device binds by binding mode",
	}, []string{"mode"})

	DeviceBindFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trellis_device_bind_failures_total",
		Help: "Failed device-switch or device-query primitives by binding mode",
	}, []string{"mode"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trellis_sessions_active",
		Help: "Currently open runtime sessions",
	})

	DeserializeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trellis_deserialize_duration_seconds",
		Help:    "Time to deserialize an engine artifact against its bound device",
		Buckets: prometheus.DefBuckets,
	})

	GenerateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trellis_generate_duration_seconds",
		Help:    "Wall time of generation calls",
		Buckets: prometheus.DefBuckets,
	})

	GeneratedTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trellis_generated_tokens_total",
		Help: "Total tokens produced across all sequences",
	})

	WordListNormalizations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trellis_wordlist_normalizations_total",
		Help: "Word-list normalizations by field and input form",
	}, []string{"field", "form"})

	WordListRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trellis_wordlist_rejections_total",
		Help: "Word-list values rejected for an unsupported representation",
	}, []string{"field"})
)

func RecordBind(mode string) {
	DeviceBinds.WithLabelValues(mode).Inc()
}

func RecordBindFailure(mode string) {
	DeviceBindFailures.WithLabelValues(mode).Inc()
}

func RecordDeserialize(d time.Duration) {
	DeserializeDuration.Observe(d.Seconds())
}

func RecordGenerate(tokens int, d time.Duration) {
	GeneratedTokens.Add(float64(tokens))
	GenerateDuration.Observe(d.Seconds())
}

func RecordNormalization(field, form string) {
	WordListNormalizations.WithLabelValues(field, form).Inc()
}

func RecordRejection(field string) {
	WordListRejections.WithLabelValues(field).Inc()
}
