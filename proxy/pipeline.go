package proxy

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	log "github.com/sirupsen/logrus"

	"github.com/zuul-go/zuul/filters"
	"github.com/zuul-go/zuul/loader"
	"github.com/zuul-go/zuul/logging"
	"github.com/zuul-go/zuul/metrics"
)

// Params to create a Proxy.
type Params struct {
	// Loader serving the live filter sequences.
	Loader *loader.Loader

	// Metrics sink, default metrics.Default.
	Metrics metrics.Metrics

	// Notifier for filter invocation outcomes, default counts through
	// Metrics.
	Notifier UsageNotifier

	// Tracer for per-stage spans, default noop.
	Tracer opentracing.Tracer

	// AccessLogDisabled suppresses the access log.
	AccessLogDisabled bool
}

// Proxy drives the request pipeline: INIT, PRE, ROUTE, POST and DONE with
// the ERROR side-branch. It owns the request context for the request's
// lifetime and releases it on every exit path.
type Proxy struct {
	processor         *Processor
	metrics           metrics.Metrics
	tracer            opentracing.Tracer
	accessLogDisabled bool
}

// New creates the pipeline handler.
func New(p Params) *Proxy {
	if p.Metrics == nil {
		p.Metrics = metrics.Default
	}
	if p.Tracer == nil {
		p.Tracer = &opentracing.NoopTracer{}
	}

	return &Proxy{
		processor:         NewProcessor(p.Loader, p.Metrics, p.Notifier),
		metrics:           p.Metrics,
		tracer:            p.Tracer,
		accessLogDisabled: p.AccessLogDisabled,
	}
}

// Processor exposes the filter processor, e.g. for native filters running
// sub-chains outside a request.
func (p *Proxy) Processor() *Processor { return p.processor }

// loggingWriter counts the written bytes and remembers the status code for
// the access log.
type loggingWriter struct {
	writer http.ResponseWriter
	code   int
	bytes  int64
}

func (w *loggingWriter) Header() http.Header { return w.writer.Header() }

func (w *loggingWriter) WriteHeader(code int) {
	w.code = code
	w.writer.WriteHeader(code)
}

func (w *loggingWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	n, err := w.writer.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lw := &loggingWriter{writer: w}
	ctx := filters.NewContext()
	defer ctx.Unset()

	span := p.tracer.StartSpan("gateway_pipeline")
	defer span.Finish()

	p.init(ctx, lw, r)
	p.runPipeline(ctx, span)
	p.done(ctx, lw, r, start)
}

// init places the request and response handles in the context and stamps
// the per-request metadata.
func (p *Proxy) init(ctx *filters.RequestContext, w http.ResponseWriter, r *http.Request) {
	ctx.SetRequest(r)
	ctx.SetResponseWriter(w)
	ctx.MarkGatewayEngineRan()
	ctx.SetSubChainRunner(func(kind string) (bool, error) {
		return p.processor.RunFiltersOfKind(ctx, kind)
	})
	ctx.SetEventProperty("flowId", uuid.NewString())

	if segments := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2); segments[0] != "" {
		ctx.SetRoute(segments[0])
	}

	q := r.URL.Query()
	if q.Get("debugRouting") == "true" {
		ctx.SetDebugRouting(true)
	}
	if q.Get("debugRequest") == "true" {
		ctx.SetDebugRequest(true)
	}
}

// runPipeline is the PRE, ROUTE, POST sequence. A gateway error from PRE or
// ROUTE branches to ERROR and still reaches POST. A gateway error from POST
// branches to ERROR without a second POST pass. ERROR runs at most once per
// request, errors raised inside it are logged and suppressed.
func (p *Proxy) runPipeline(ctx *filters.RequestContext, parent opentracing.Span) {
	errorRan := false
	handle := func(err error) {
		ctx.SetThrowable(err)
		if errorRan {
			log.Errorf("gateway error after the error stage already ran: %v", err)
			return
		}
		errorRan = true
		p.runErrorStage(ctx, parent)
	}

	err := p.runStage(ctx, filters.PreKind, parent)
	if err == nil {
		err = p.runStage(ctx, filters.RouteKind, parent)
	}
	if err != nil {
		handle(err)
	}

	if err := p.runStage(ctx, filters.PostKind, parent); err != nil {
		handle(err)
	}
}

func (p *Proxy) runStage(ctx *filters.RequestContext, stage string, parent opentracing.Span) error {
	span := p.tracer.StartSpan(stage+"_filters", opentracing.ChildOf(parent.Context()))
	defer span.Finish()

	return p.processor.RunStage(ctx, stage)
}

func (p *Proxy) runErrorStage(ctx *filters.RequestContext, parent opentracing.Span) {
	span := p.tracer.StartSpan("error_filters", opentracing.ChildOf(parent.Context()))
	defer span.Finish()

	if _, err := p.processor.RunFiltersOfKind(ctx, filters.ErrorKind); err != nil {
		log.Errorf("suppressed failure in error filter: %v", err)
	}
}

// done flushes the context response when no filter did, writes the access
// log entry and reports the request duration.
func (p *Proxy) done(ctx *filters.RequestContext, lw *loggingWriter, r *http.Request, start time.Time) {
	if !ctx.Served() {
		FlushResponse(ctx)
	}

	p.metrics.MeasureSince("request", start)

	if !p.accessLogDisabled {
		logging.LogAccess(&logging.AccessEntry{
			Request:      r,
			StatusCode:   lw.code,
			ResponseSize: lw.bytes,
			RequestTime:  start,
			Duration:     time.Since(start),
		}, map[string]interface{}{"flow-id": ctx.EventProperties()["flowId"]})
	}

	if ctx.DebugRouting() {
		for _, line := range ctx.RoutingDebug() {
			log.Debug(line)
		}
	}
}

// FlushResponse writes the response state accumulated in the context to
// the response writer and marks the context served. Safe to call once per
// request only.
func FlushResponse(ctx *filters.RequestContext) {
	w := ctx.ResponseWriter()
	if w == nil {
		return
	}

	for _, h := range ctx.GatewayResponseHeaders() {
		w.Header().Add(h.Name, h.Value)
	}
	w.WriteHeader(ctx.ResponseStatusCode())
	if body := ctx.ResponseBody(); len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			log.Errorf("failed to write response body: %v", err)
		}
	}
	ctx.MarkServed()
}
