package web

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hoststat/internal/apperr"
)

const metricsNamespace = "hoststat"

// Metrics holds the server's self-metrics on a private registry
type Metrics struct {
	registry       *prometheus.Registry
	snapshots      *prometheus.CounterVec
	samplingErrors *prometheus.CounterVec
	duration       prometheus.Histogram
	sessions       prometheus.Gauge
}

// NewMetrics creates and registers all collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "snapshots_total",
			Help:      "Snapshots taken, by result.",
		}, []string{"result"}),
		samplingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sampling_errors_total",
			Help:      "Failed samples, by source.",
		}, []string{"source"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Time taken to build a snapshot, including the cpu sampling window.",
			Buckets:   []float64{.05, .1, .2, .3, .5, 1, 2, 5},
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "stream_sessions",
			Help:      "Active snapshot stream sessions.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.snapshots,
		m.samplingErrors,
		m.duration,
		m.sessions,
	)

	for _, result := range []string{"ok", "error"} {
		m.snapshots.WithLabelValues(result)
	}
	for _, source := range []string{apperr.SourceMemory, apperr.SourceSwap, apperr.SourceCPU, apperr.SourceGPU} {
		m.samplingErrors.WithLabelValues(source)
	}
	return m
}

// ObserveSnapshot records the outcome of one snapshot
func (m *Metrics) ObserveSnapshot(elapsed time.Duration, err error) {
	m.duration.Observe(elapsed.Seconds())
	if err == nil {
		m.snapshots.WithLabelValues("ok").Inc()
		return
	}
	m.snapshots.WithLabelValues("error").Inc()

	source := apperr.SourceOf(err)
	if source == "" {
		source = "unknown"
	}
	m.samplingErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) sessionOpened() { m.sessions.Inc() }
func (m *Metrics) sessionClosed() { m.sessions.Dec() }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
