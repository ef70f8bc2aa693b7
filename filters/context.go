package filters

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Well known context keys. Filters are free to use any other key for
// cross-filter communication.
const (
	RequestKey             = "request"
	ResponseWriterKey      = "response"
	RouteHostKey           = "routeHost"
	RouteVIPKey            = "routeVIP"
	RouteKey               = "route"
	RequestURIKey          = "requestURI"
	SendGatewayResponseKey = "sendZuulResponse"
	ResponseBodyKey        = "responseBody"
	ResponseStatusCodeKey  = "responseStatusCode"
	ResponseHeadersKey     = "zuulResponseHeaders"
	ThrowableKey           = "throwable"
	ErrorHandledKey        = "errorHandled"
	DebugRoutingKey        = "debugRouting"
	DebugRequestKey        = "debugRequest"
	ExecutionSummaryKey    = "filterExecutionSummary"
	EventPropertiesKey     = "eventProperties"
	RoutingDebugKey        = "routingDebug"
	EngineRanKey           = "zuulEngineRan"
	ServedKey              = "served"
)

// Header is one response header entry. The context keeps headers as an
// ordered sequence, duplicate names are allowed.
type Header struct {
	Name  string
	Value string
}

// ExecutionRecord is one entry of the per-request filter execution summary.
type ExecutionRecord struct {
	Name    string
	Status  Status
	Elapsed time.Duration
}

// RequestContext is the request scoped mutable state shared by all filters
// of a single request. It is created by the pipeline at request start and
// fully released at request end. The context is request affine: at most one
// pipeline reads and writes a given context, so access is not synchronized.
type RequestContext struct {
	attrs map[string]interface{}
}

// NewContext creates an empty request context.
func NewContext() *RequestContext {
	return &RequestContext{attrs: make(map[string]interface{})}
}

// Set stores an arbitrary value under key.
func (c *RequestContext) Set(key string, value interface{}) { c.attrs[key] = value }

// Get returns the value stored under key, or nil.
func (c *RequestContext) Get(key string) interface{} { return c.attrs[key] }

// Delete removes a single key.
func (c *RequestContext) Delete(key string) { delete(c.attrs, key) }

// Unset releases the whole context. No key set before Unset is observable
// afterwards.
func (c *RequestContext) Unset() { c.attrs = make(map[string]interface{}) }

// Copy returns a shallow copy of the context state, used for debug diffing.
func (c *RequestContext) Copy() map[string]interface{} {
	m := make(map[string]interface{}, len(c.attrs))
	for k, v := range c.attrs {
		m[k] = v
	}
	return m
}

func (c *RequestContext) getBool(key string) bool {
	b, _ := c.attrs[key].(bool)
	return b
}

func (c *RequestContext) getString(key string) string {
	s, _ := c.attrs[key].(string)
	return s
}

// Request returns the HTTP request handle placed by the pipeline.
func (c *RequestContext) Request() *http.Request {
	r, _ := c.attrs[RequestKey].(*http.Request)
	return r
}

func (c *RequestContext) SetRequest(r *http.Request) { c.attrs[RequestKey] = r }

// ResponseWriter returns the HTTP response handle placed by the pipeline.
func (c *RequestContext) ResponseWriter() http.ResponseWriter {
	w, _ := c.attrs[ResponseWriterKey].(http.ResponseWriter)
	return w
}

func (c *RequestContext) SetResponseWriter(w http.ResponseWriter) { c.attrs[ResponseWriterKey] = w }

// RouteHost returns the routing target URL, if a filter set one.
func (c *RequestContext) RouteHost() *url.URL {
	u, _ := c.attrs[RouteHostKey].(*url.URL)
	return u
}

func (c *RequestContext) SetRouteHost(u *url.URL) { c.attrs[RouteHostKey] = u }

// RouteVIP returns the logical backend name, if a filter set one.
func (c *RequestContext) RouteVIP() string { return c.getString(RouteVIPKey) }

func (c *RequestContext) SetRouteVIP(vip string) { c.attrs[RouteVIPKey] = vip }

// Route returns the short routing key, typically the first path segment.
func (c *RequestContext) Route() string { return c.getString(RouteKey) }

func (c *RequestContext) SetRoute(route string) { c.attrs[RouteKey] = route }

// RequestURI returns the URI observed by routing: the override set by a PRE
// filter when present, the request path otherwise.
func (c *RequestContext) RequestURI() string {
	if uri := c.getString(RequestURIKey); uri != "" {
		return uri
	}
	if r := c.Request(); r != nil {
		return r.URL.Path
	}
	return ""
}

func (c *RequestContext) SetRequestURI(uri string) { c.attrs[RequestURIKey] = uri }

// SendGatewayResponse reports whether the gateway should produce the
// response from the context. Defaults to true.
func (c *RequestContext) SendGatewayResponse() bool {
	if v, ok := c.attrs[SendGatewayResponseKey].(bool); ok {
		return v
	}
	return true
}

func (c *RequestContext) SetSendGatewayResponse(send bool) { c.attrs[SendGatewayResponseKey] = send }

// ResponseBody returns the response body accumulated in the context.
func (c *RequestContext) ResponseBody() []byte {
	switch v := c.attrs[ResponseBodyKey].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	}
	return nil
}

func (c *RequestContext) SetResponseBody(body []byte) { c.attrs[ResponseBodyKey] = body }

// ResponseStatusCode returns the status code held by the context, 500 when
// no filter set one.
func (c *RequestContext) ResponseStatusCode() int {
	if v, ok := c.attrs[ResponseStatusCodeKey].(int); ok {
		return v
	}
	return http.StatusInternalServerError
}

func (c *RequestContext) SetResponseStatusCode(code int) { c.attrs[ResponseStatusCodeKey] = code }

// GatewayResponseHeaders returns the ordered response header sequence.
func (c *RequestContext) GatewayResponseHeaders() []Header {
	h, _ := c.attrs[ResponseHeadersKey].([]Header)
	return h
}

// AddGatewayResponseHeader appends a response header to the context.
func (c *RequestContext) AddGatewayResponseHeader(name, value string) {
	h := c.GatewayResponseHeaders()
	c.attrs[ResponseHeadersKey] = append(h, Header{Name: name, Value: value})
}

// Throwable returns the error recorded by the pipeline for the ERROR stage.
func (c *RequestContext) Throwable() error {
	err, _ := c.attrs[ThrowableKey].(error)
	return err
}

func (c *RequestContext) SetThrowable(err error) { c.attrs[ThrowableKey] = err }

// ErrorHandled reports whether an ERROR filter already handled the recorded
// failure.
func (c *RequestContext) ErrorHandled() bool { return c.getBool(ErrorHandledKey) }

// MarkErrorHandled sets the errorHandled sentinel. It is monotonic, there
// is no way to clear it short of Unset.
func (c *RequestContext) MarkErrorHandled() { c.attrs[ErrorHandledKey] = true }

// DebugRouting reports whether the routing debug trail is enabled.
func (c *RequestContext) DebugRouting() bool { return c.getBool(DebugRoutingKey) }

func (c *RequestContext) SetDebugRouting(on bool) { c.attrs[DebugRoutingKey] = on }

// DebugRequest reports whether request debugging is enabled.
func (c *RequestContext) DebugRequest() bool { return c.getBool(DebugRequestKey) }

func (c *RequestContext) SetDebugRequest(on bool) { c.attrs[DebugRequestKey] = on }

// Served reports whether the response was already written out.
func (c *RequestContext) Served() bool { return c.getBool(ServedKey) }

func (c *RequestContext) MarkServed() { c.attrs[ServedKey] = true }

// GatewayEngineRan reports whether the pipeline initialized this context.
func (c *RequestContext) GatewayEngineRan() bool { return c.getBool(EngineRanKey) }

func (c *RequestContext) MarkGatewayEngineRan() { c.attrs[EngineRanKey] = true }

// AddFilterExecutionSummary appends one record to the execution summary.
func (c *RequestContext) AddFilterExecutionSummary(name string, status Status, elapsed time.Duration) {
	s, _ := c.attrs[ExecutionSummaryKey].([]ExecutionRecord)
	c.attrs[ExecutionSummaryKey] = append(s, ExecutionRecord{Name: name, Status: status, Elapsed: elapsed})
}

// FilterExecutionSummary returns the accumulated execution records.
func (c *RequestContext) FilterExecutionSummary() []ExecutionRecord {
	s, _ := c.attrs[ExecutionSummaryKey].([]ExecutionRecord)
	return s
}

// ExecutionSummaryString renders the summary the way it appears in logs:
// name[status][elapsed].
func (c *RequestContext) ExecutionSummaryString() string {
	records := c.FilterExecutionSummary()
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = fmt.Sprintf("%s[%s][%dms]", r.Name, r.Status, r.Elapsed.Milliseconds())
	}
	return strings.Join(parts, ", ")
}

// EventProperties returns the freeform telemetry map, creating it on first
// use.
func (c *RequestContext) EventProperties() map[string]interface{} {
	m, ok := c.attrs[EventPropertiesKey].(map[string]interface{})
	if !ok {
		m = make(map[string]interface{})
		c.attrs[EventPropertiesKey] = m
	}
	return m
}

// SetEventProperty records one telemetry property.
func (c *RequestContext) SetEventProperty(key string, value interface{}) {
	c.EventProperties()[key] = value
}

// SubChainRunner runs all filters of a named sub-kind against the current
// context. The pipeline installs one per request so filters can invoke
// sub-chains recursively through the processor.
type SubChainRunner func(kind string) (bool, error)

// SubChainRunnerKey stores the per-request sub-chain runner.
const SubChainRunnerKey = "runFiltersOfKind"

// SubChainRunner returns the runner installed by the pipeline, or nil.
func (c *RequestContext) SubChainRunner() SubChainRunner {
	fn, _ := c.attrs[SubChainRunnerKey].(SubChainRunner)
	return fn
}

func (c *RequestContext) SetSubChainRunner(fn SubChainRunner) { c.attrs[SubChainRunnerKey] = fn }

// SetGatewayResponseHeader replaces all response header entries of the
// given name with a single one.
func (c *RequestContext) SetGatewayResponseHeader(name, value string) {
	h := c.GatewayResponseHeaders()
	kept := h[:0:0]
	for _, e := range h {
		if !strings.EqualFold(e.Name, name) {
			kept = append(kept, e)
		}
	}
	c.attrs[ResponseHeadersKey] = append(kept, Header{Name: name, Value: value})
}

// AddRoutingDebug appends a line to the routing debug trail.
func (c *RequestContext) AddRoutingDebug(line string) {
	lines, _ := c.attrs[RoutingDebugKey].([]string)
	c.attrs[RoutingDebugKey] = append(lines, line)
}

// RoutingDebug returns the routing debug trail.
func (c *RequestContext) RoutingDebug() []string {
	lines, _ := c.attrs[RoutingDebugKey].([]string)
	return lines
}
