package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// CodaHale implements the Metrics interface on top of rcrowley/go-metrics.
// Keys are dotted, filter outcomes become zuul.filter-<name>.<kind>.<status>.
type CodaHale struct {
	prefix   string
	registry gometrics.Registry
}

// NewCodaHale creates the codahale backend with its own registry.
func NewCodaHale(o Options) *CodaHale {
	prefix := o.Prefix
	if prefix == "" {
		prefix = "zuul."
	}

	return &CodaHale{
		prefix:   prefix,
		registry: gometrics.NewRegistry(),
	}
}

// Handler serves the registry content as a JSON document.
func (c *CodaHale) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(c.registry.GetAll())
	})
}

func (c *CodaHale) MeasureSince(key string, start time.Time) {
	gometrics.GetOrRegisterTimer(c.prefix+key, c.registry).UpdateSince(start)
}

func (c *CodaHale) IncCounter(key string) {
	gometrics.GetOrRegisterCounter(c.prefix+key, c.registry).Inc(1)
}

func (c *CodaHale) IncCounterBy(key string, value int64) {
	gometrics.GetOrRegisterCounter(c.prefix+key, c.registry).Inc(value)
}

func (c *CodaHale) MeasureFilter(kind, name string, start time.Time) {
	c.MeasureSince(fmt.Sprintf("filter-%s.%s", name, kind), start)
}

func (c *CodaHale) IncFilterStatus(name, kind, status string) {
	c.IncCounter(fmt.Sprintf("filter-%s.%s.%s", name, kind, status))
}
