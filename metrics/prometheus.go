package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements the Metrics interface with a dedicated prometheus
// registry.
type Prometheus struct {
	registry       *prometheus.Registry
	counters       *prometheus.CounterVec
	measures       *prometheus.HistogramVec
	filterDuration *prometheus.HistogramVec
	filterStatus   *prometheus.CounterVec
}

// NewPrometheus creates the prometheus backend with its own registry.
func NewPrometheus(o Options) *Prometheus {
	registry := prometheus.NewRegistry()

	counters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zuul",
		Name:      "custom_total",
		Help:      "Total number of custom counter events.",
	}, []string{"key"})

	measures := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zuul",
		Name:      "custom_duration_seconds",
		Help:      "Duration of custom measurements.",
	}, []string{"key"})

	filterDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zuul",
		Subsystem: "filter",
		Name:      "duration_seconds",
		Help:      "Duration of filter executions.",
	}, []string{"filter", "filtertype"})

	filterStatus := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zuul",
		Subsystem: "filter",
		Name:      "invocations_total",
		Help:      "Total number of filter invocations by outcome.",
	}, []string{"filter", "filtertype", "status"})

	registry.MustRegister(counters, measures, filterDuration, filterStatus)

	return &Prometheus{
		registry:       registry,
		counters:       counters,
		measures:       measures,
		filterDuration: filterDuration,
		filterStatus:   filterStatus,
	}
}

// Handler returns the exposition handler of the backing registry.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) MeasureSince(key string, start time.Time) {
	p.measures.WithLabelValues(key).Observe(time.Since(start).Seconds())
}

func (p *Prometheus) IncCounter(key string) {
	p.counters.WithLabelValues(key).Inc()
}

func (p *Prometheus) IncCounterBy(key string, value int64) {
	p.counters.WithLabelValues(key).Add(float64(value))
}

func (p *Prometheus) MeasureFilter(kind, name string, start time.Time) {
	p.filterDuration.WithLabelValues(name, kind).Observe(time.Since(start).Seconds())
}

func (p *Prometheus) IncFilterStatus(name, kind, status string) {
	p.filterStatus.WithLabelValues(name, kind, status).Inc()
}
