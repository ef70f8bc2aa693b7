package filters

import (
	"fmt"
	"strings"
	"time"
)

// Kinds of the fixed pipeline stages and the conventional sub-kinds invoked
// by filters themselves. Filters may declare arbitrary user kinds; the
// processor runs whatever kind it is asked for.
const (
	PreKind         = "pre"
	RouteKind       = "route"
	PostKind        = "post"
	ErrorKind       = "error"
	StaticKind      = "static"
	HealthcheckKind = "healthcheck"
)

// Filters are created by a Compiler from a source blob, or constructed
// natively, and are immutable once created. Filter instances are shared
// between all requests of the process, so any state stored with a filter is
// shared between all requests and can cause concurrency issues (as in don't
// do that). All cross-filter communication goes through the RequestContext.
type Filter interface {

	// Name identifies the filter in the registry, in counters and in the
	// execution summary. For file backed filters it derives from the
	// source file name.
	Name() string

	// Kind returns the stage or sub-kind the filter belongs to.
	Kind() string

	// Order defines the position within the kind, smaller runs first.
	// Ties break by Name.
	Order() int

	// ShouldRun is the guard checked before every invocation.
	ShouldRun(ctx *RequestContext) bool

	// Run executes the filter. The returned value is optional, boolean
	// values are aggregated by the processor. A returned *GatewayError
	// aborts the current stage.
	Run(ctx *RequestContext) (interface{}, error)
}

// Disableable is implemented by filters that can be switched off without
// removing them from the registry, typically backed by dynamic config.
type Disableable interface {
	Disabled() bool
}

// Status of a single filter invocation.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
	StatusSkipped
	StatusDisabled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	case StatusSkipped:
		return "SKIPPED"
	case StatusDisabled:
		return "DISABLED"
	default:
		return fmt.Sprintf("STATUS(%d)", int(s))
	}
}

// ExecutionResult captures the outcome of one filter invocation.
type ExecutionResult struct {
	Name    string
	Status  Status
	Value   interface{}
	Err     error
	Elapsed time.Duration
}

// RunFilter invokes a filter with the guard and panic handling applied:
// disabled filters and filters whose guard declines report DISABLED and
// SKIPPED without running, panics out of the filter body are translated
// into a failed gateway error carrying the filter name.
func RunFilter(f Filter, ctx *RequestContext) (res ExecutionResult) {
	res.Name = f.Name()

	defer func() {
		if p := recover(); p != nil {
			res.Status = StatusFailed
			res.Err = &GatewayError{
				StatusCode: 500,
				ErrorCause: fmt.Sprintf("UNCAUGHT_EXCEPTION_IN_%s_FILTER_%s", strings.ToUpper(f.Kind()), f.Name()),
				Message:    fmt.Sprint(p),
			}
		}
	}()

	if d, ok := f.(Disableable); ok && d.Disabled() {
		res.Status = StatusDisabled
		return
	}

	if !f.ShouldRun(ctx) {
		res.Status = StatusSkipped
		return
	}

	start := time.Now()
	v, err := f.Run(ctx)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		return
	}

	res.Status = StatusSuccess
	res.Value = v
	return
}
