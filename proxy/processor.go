// Package proxy implements the filter execution engine: the per-kind
// processor, the request pipeline with its error side-branch, and the
// supplied response and error filters.
package proxy

import (
	"fmt"
	"strings"
	"time"

	"github.com/zuul-go/zuul/filters"
	"github.com/zuul-go/zuul/loader"
	"github.com/zuul-go/zuul/metrics"
)

// Processor executes all filters of a kind against a request context. It
// does not block by itself, it only delegates to the filters.
type Processor struct {
	loader   *loader.Loader
	metrics  metrics.Metrics
	notifier UsageNotifier
}

// NewProcessor creates a processor reading its filter sequences from the
// loader. A nil metrics falls back to metrics.Default, a nil notifier to
// the metrics backed one.
func NewProcessor(l *loader.Loader, m metrics.Metrics, n UsageNotifier) *Processor {
	if m == nil {
		m = metrics.Default
	}
	if n == nil {
		n = &MetricsNotifier{Metrics: m}
	}
	return &Processor{loader: l, metrics: m, notifier: n}
}

// RunFiltersOfKind executes the filters of a kind in ascending
// (order, name) on the sequence snapshot taken at entry. Boolean success
// values are OR-folded into the returned aggregate. The first failing
// filter aborts the run and its error is returned.
func (p *Processor) RunFiltersOfKind(ctx *filters.RequestContext, kind string) (bool, error) {
	seq := p.loader.FiltersByKind(kind)

	ranAny := false
	for _, f := range seq {
		var snapshot map[string]string
		if ctx.DebugRouting() {
			snapshot = debugState(ctx)
			ctx.AddRoutingDebug(fmt.Sprintf("Filter %s %d %s", kind, f.Order(), f.Name()))
		}

		start := time.Now()
		res := filters.RunFilter(f, ctx)

		ctx.AddFilterExecutionSummary(f.Name(), res.Status, res.Elapsed)
		p.notifier.Notify(f, res.Status)
		p.metrics.MeasureFilter(kind, f.Name(), start)

		if ctx.DebugRouting() {
			compareContextState(ctx, f.Name(), snapshot)
		}

		switch res.Status {
		case filters.StatusFailed:
			return ranAny, res.Err
		case filters.StatusSuccess:
			if b, ok := res.Value.(bool); ok {
				ranAny = ranAny || b
			}
		}
	}

	return ranAny, nil
}

// RunStage wraps RunFiltersOfKind for the pipeline stages: gateway errors
// propagate unchanged, anything else is wrapped as an uncaught exception
// with status 500.
func (p *Processor) RunStage(ctx *filters.RequestContext, stage string) error {
	_, err := p.RunFiltersOfKind(ctx, stage)
	if err == nil {
		return nil
	}

	if _, ok := filters.AsGatewayError(err); ok {
		return err
	}

	return &filters.GatewayError{
		StatusCode: 500,
		ErrorCause: fmt.Sprintf("UNCAUGHT_EXCEPTION_IN_%s_FILTER", strings.ToUpper(stage)),
		Message:    err.Error(),
		Err:        err,
	}
}
