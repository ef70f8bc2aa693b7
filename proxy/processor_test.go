package proxy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuul-go/zuul/filters"
	"github.com/zuul-go/zuul/filters/filtertest"
	"github.com/zuul-go/zuul/loader"
	"github.com/zuul-go/zuul/metrics/metricstest"
)

func newTestProcessor(t *testing.T, fs ...filters.Filter) (*Processor, *metricstest.MockMetrics, *loader.Loader) {
	t.Helper()
	l := loader.New(nil, loader.NewRegistry())
	for _, f := range fs {
		l.Register(f)
	}
	m := &metricstest.MockMetrics{}
	return NewProcessor(l, m, nil), m, l
}

func TestProcessorRunsInOrder(t *testing.T) {
	var order []string
	record := func(name string) func(*filters.RequestContext) {
		return func(*filters.RequestContext) { order = append(order, name) }
	}

	p, _, _ := newTestProcessor(t,
		&filtertest.Filter{FilterName: "zeta", FilterKind: "pre", FilterOrder: 1, OnRun: record("zeta")},
		&filtertest.Filter{FilterName: "alpha", FilterKind: "pre", FilterOrder: 1, OnRun: record("alpha")},
		&filtertest.Filter{FilterName: "last", FilterKind: "pre", FilterOrder: 9, OnRun: record("last")},
		&filtertest.Filter{FilterName: "first", FilterKind: "pre", FilterOrder: -3, OnRun: record("first")},
		&filtertest.Filter{FilterName: "other", FilterKind: "route", FilterOrder: 0, OnRun: record("other")},
	)

	_, err := p.RunFiltersOfKind(filters.NewContext(), "pre")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "alpha", "zeta", "last"}, order)
}

func TestProcessorORFoldsBooleans(t *testing.T) {
	p, _, _ := newTestProcessor(t,
		&filtertest.Filter{FilterName: "a", FilterOrder: 1, ReturnValue: false},
		&filtertest.Filter{FilterName: "b", FilterOrder: 2, ReturnValue: "not a bool"},
		&filtertest.Filter{FilterName: "c", FilterOrder: 3, ReturnValue: true},
	)

	ran, err := p.RunFiltersOfKind(filters.NewContext(), "pre")
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestProcessorAggregateFalseWithoutBooleans(t *testing.T) {
	p, _, _ := newTestProcessor(t,
		&filtertest.Filter{FilterName: "a", FilterOrder: 1},
	)

	ran, err := p.RunFiltersOfKind(filters.NewContext(), "pre")
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestProcessorFailureAborts(t *testing.T) {
	gerr := filters.NewGatewayError(502, "origin", "origin down")
	after := &filtertest.Filter{FilterName: "after", FilterOrder: 3}

	p, _, _ := newTestProcessor(t,
		&filtertest.Filter{FilterName: "ok", FilterOrder: 1},
		&filtertest.Filter{FilterName: "failing", FilterOrder: 2, RunErr: gerr},
		after,
	)

	_, err := p.RunFiltersOfKind(filters.NewContext(), "pre")
	assert.Equal(t, gerr, err)
	assert.Zero(t, after.Calls())
}

func TestProcessorSkippedAndDisabledContinue(t *testing.T) {
	last := &filtertest.Filter{FilterName: "last", FilterOrder: 3}
	p, m, _ := newTestProcessor(t,
		&filtertest.Filter{FilterName: "guarded", FilterOrder: 1, SkipRun: true},
		&filtertest.Filter{FilterName: "off", FilterOrder: 2, FDisabled: true},
		last,
	)

	ctx := filters.NewContext()
	_, err := p.RunFiltersOfKind(ctx, "pre")
	require.NoError(t, err)
	assert.Equal(t, 1, last.Calls())

	summary := ctx.FilterExecutionSummary()
	require.Len(t, summary, 3)
	assert.Equal(t, filters.StatusSkipped, summary[0].Status)
	assert.Equal(t, filters.StatusDisabled, summary[1].Status)
	assert.Equal(t, filters.StatusSuccess, summary[2].Status)

	assert.Equal(t, int64(1), m.FilterStatus("guarded", "pre", "SKIPPED"))
	assert.Equal(t, int64(1), m.FilterStatus("off", "pre", "DISABLED"))
	assert.Equal(t, int64(1), m.FilterStatus("last", "pre", "SUCCESS"))
	assert.Equal(t, 3, m.FilterTimings("guarded", "pre")+m.FilterTimings("off", "pre")+m.FilterTimings("last", "pre"))
}

func TestRunStagePropagatesGatewayError(t *testing.T) {
	gerr := filters.NewGatewayError(501, "no-route", "target not defined")
	p, _, _ := newTestProcessor(t,
		&filtertest.Filter{FilterName: "failing", FilterKind: "route", RunErr: gerr},
	)

	err := p.RunStage(filters.NewContext(), "route")
	assert.Equal(t, gerr, err)
}

func TestRunStageWrapsUnexpectedError(t *testing.T) {
	plain := errors.New("nil pointer somewhere")
	p, _, _ := newTestProcessor(t,
		&filtertest.Filter{FilterName: "failing", FilterKind: "route", RunErr: plain},
	)

	err := p.RunStage(filters.NewContext(), "route")
	ge, ok := filters.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, 500, ge.StatusCode)
	assert.Equal(t, "UNCAUGHT_EXCEPTION_IN_ROUTE_FILTER", ge.ErrorCause)
	assert.ErrorIs(t, err, plain)
}

func TestProcessorEmptyKind(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	ran, err := p.RunFiltersOfKind(filters.NewContext(), "nosuch")
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestProcessorDebugTrail(t *testing.T) {
	p, _, _ := newTestProcessor(t,
		&filtertest.Filter{FilterName: "router", FilterKind: "pre", OnRun: func(ctx *filters.RequestContext) {
			ctx.SetRouteVIP("api")
		}},
	)

	ctx := filters.NewContext()
	ctx.SetDebugRouting(true)
	_, err := p.RunFiltersOfKind(ctx, "pre")
	require.NoError(t, err)

	trail := ctx.RoutingDebug()
	require.NotEmpty(t, trail)
	assert.Contains(t, trail[0], "router")

	found := false
	for _, line := range trail {
		if len(line) > 0 && line != trail[0] {
			found = true
		}
	}
	assert.True(t, found, "expected a context change entry in the debug trail")
}
