/*
Package filtertest implements a mock version of the Filter interface used
during tests.
*/
package filtertest

import (
	"sync/atomic"

	"github.com/zuul-go/zuul/filters"
)

// Filter is a configurable noop filter. The zero value is an always-running
// pre filter with order 0 that returns nil.
type Filter struct {
	FilterName string
	FilterKind string
	FilterOrder int
	FDisabled  bool
	SkipRun    bool
	ReturnValue interface{}
	RunErr     error
	OnRun      func(ctx *filters.RequestContext)
	calls      int64
}

func (f *Filter) Name() string { return f.FilterName }

func (f *Filter) Kind() string {
	if f.FilterKind == "" {
		return filters.PreKind
	}
	return f.FilterKind
}

func (f *Filter) Order() int { return f.FilterOrder }

func (f *Filter) Disabled() bool { return f.FDisabled }

func (f *Filter) ShouldRun(ctx *filters.RequestContext) bool { return !f.SkipRun }

func (f *Filter) Run(ctx *filters.RequestContext) (interface{}, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.OnRun != nil {
		f.OnRun(ctx)
	}
	if f.RunErr != nil {
		return nil, f.RunErr
	}
	return f.ReturnValue, nil
}

// Calls reports how many times Run was invoked.
func (f *Filter) Calls() int { return int(atomic.LoadInt64(&f.calls)) }
