package proxy

import (
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/zuul-go/zuul/filters"
)

// debugState renders the context into a diffable string map. Handles and
// callbacks are left out, they never change in a way worth tracing.
func debugState(ctx *filters.RequestContext) map[string]string {
	state := make(map[string]string)
	for k, v := range ctx.Copy() {
		switch k {
		case filters.RequestKey, filters.ResponseWriterKey, filters.SubChainRunnerKey, filters.RoutingDebugKey, filters.ExecutionSummaryKey:
			continue
		}
		state[k] = fmt.Sprint(v)
	}
	return state
}

// compareContextState diffs the context against a snapshot taken before a
// filter ran and appends the change to the routing debug trail.
func compareContextState(ctx *filters.RequestContext, name string, snapshot map[string]string) {
	if !ctx.DebugRouting() {
		return
	}

	if diff := cmp.Diff(snapshot, debugState(ctx)); diff != "" {
		ctx.AddRoutingDebug(fmt.Sprintf("Filter %s changed context:\n%s", name, diff))
	}
}
