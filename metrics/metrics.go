// Package metrics collects the gateway's operational measurements behind a
// small interface with Prometheus and CodaHale backends. The request path
// only talks to the Metrics interface, the backend is picked at startup.
package metrics

import (
	"net/http"
	"time"
)

// Metrics is the sink the filter engine reports to.
type Metrics interface {

	// MeasureSince records the elapsed time since start under key.
	MeasureSince(key string, start time.Time)

	// IncCounter increments the counter key by one.
	IncCounter(key string)

	// IncCounterBy increments the counter key by value.
	IncCounterBy(key string, value int64)

	// MeasureFilter records the execution time of one filter invocation.
	MeasureFilter(kind, name string, start time.Time)

	// IncFilterStatus counts one filter invocation outcome, tagged with
	// the filter name, its kind and the invocation status.
	IncFilterStatus(name, kind, status string)
}

// Kind of the metrics backend.
type Kind int

const (
	// UnkownKind is the default, invalid state.
	UnkownKind Kind = iota

	// CodaHaleKind is the rcrowley/go-metrics backend.
	CodaHaleKind

	// PrometheusKind is the prometheus backend.
	PrometheusKind
)

// Options to initialize the metrics backend.
type Options struct {
	// Format of the metrics backend, default CodaHale.
	Format Kind

	// Prefix of all CodaHale keys, default "zuul.". The Prometheus backend
	// ignores it and always uses the "zuul" namespace.
	Prefix string
}

// Default is the process wide metrics instance, a no-op sink until Init is
// called.
var Default Metrics = Void{}

// Init sets up the Default metrics instance and returns it together with
// the backend's exposition handler.
func Init(o Options) (Metrics, http.Handler) {
	switch o.Format {
	case PrometheusKind:
		p := NewPrometheus(o)
		Default = p
		return p, p.Handler()
	default:
		c := NewCodaHale(o)
		Default = c
		return c, c.Handler()
	}
}

// Void is the no-op metrics sink.
type Void struct{}

func (Void) MeasureSince(string, time.Time)          {}
func (Void) IncCounter(string)                       {}
func (Void) IncCounterBy(string, int64)              {}
func (Void) MeasureFilter(string, string, time.Time) {}
func (Void) IncFilterStatus(string, string, string)  {}
