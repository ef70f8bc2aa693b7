package proxy

import (
	"github.com/zuul-go/zuul/filters"
	"github.com/zuul-go/zuul/metrics"
)

// UsageNotifier receives the outcome of every filter invocation. The host
// may plug its own sink, the default counts invocations through the
// metrics backend as zuul.filter-<name> tagged with the kind and status.
type UsageNotifier interface {
	Notify(f filters.Filter, status filters.Status)
}

// MetricsNotifier is the default notifier.
type MetricsNotifier struct {
	Metrics metrics.Metrics
}

func (n *MetricsNotifier) Notify(f filters.Filter, status filters.Status) {
	n.Metrics.IncFilterStatus(f.Name(), f.Kind(), status.String())
}
