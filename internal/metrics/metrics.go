// Package metrics keeps per-run Prometheus collectors and exports them in the node exporter
// textfile format.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/spigell/edital-checker/internal/ai"
	"github.com/spigell/edital-checker/internal/bid"
)

const namespace = "edital_checker"

// Metrics is safe for concurrent use. A nil *Metrics ignores every observation.
type Metrics struct {
	registry *prometheus.Registry

	requirements *prometheus.CounterVec
	documents    *prometheus.CounterVec
	items        *prometheus.CounterVec
	modelCalls   *prometheus.CounterVec
	modelLatency *prometheus.HistogramVec
	degraded     prometheus.Counter
	confidence   prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requirements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requirements_total",
			Help:      "Extracted requirements by producing strategy.",
		}, []string{"source"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Classified documents by category.",
		}, []string{"category"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compliance_items_total",
			Help:      "Compliance items by status.",
		}, []string{"status"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model adapter calls by prompt kind and outcome.",
		}, []string{"kind", "outcome"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Model adapter call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}, []string{"kind"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_runs_total",
			Help:      "Runs that fell back to rules because the model failed.",
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_confidence",
			Help:      "Classification confidence of documents.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
	}

	m.registry.MustRegister(m.requirements, m.documents, m.items, m.modelCalls, m.modelLatency, m.degraded, m.confidence)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveModelCall matches ai.Observer.
func (m *Metrics) ObserveModelCall(kind ai.Kind, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, ai.ErrUnavailable):
		outcome = "unavailable"
	case err != nil:
		outcome = "error"
	}
	m.modelCalls.WithLabelValues(string(kind), outcome).Inc()
	m.modelLatency.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// ObserveReport records the outcome of a finished run.
func (m *Metrics) ObserveReport(r *bid.Report) {
	if m == nil || r == nil {
		return
	}
	for _, req := range r.Requirements {
		m.requirements.WithLabelValues(string(req.Source)).Inc()
	}
	for _, doc := range r.Documents {
		m.documents.WithLabelValues(string(doc.Category)).Inc()
		m.confidence.Observe(doc.ClassificationConfidence)
	}
	for _, item := range r.Items {
		m.items.WithLabelValues(string(item.Status)).Inc()
	}
	if r.Degraded {
		m.degraded.Inc()
	}
}

// WriteToTextfile writes the current values to path for the node exporter textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	if m == nil {
		return errors.New("metrics are not enabled")
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
