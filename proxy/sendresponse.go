package proxy

import (
	"github.com/zuul-go/zuul/filters"
)

// sendResponse is the supplied POST filter that writes the response state
// accumulated in the context to the client. It runs at order 1000, after
// the POST filters with lower orders, so those can still enrich headers and
// telemetry before it. POST filters with a higher order run after the
// response was written.
type sendResponse struct{}

// NewSendResponse creates the supplied response writing filter.
func NewSendResponse() filters.Filter { return sendResponse{} }

func (sendResponse) Name() string { return "sendResponse" }
func (sendResponse) Kind() string { return filters.PostKind }
func (sendResponse) Order() int   { return 1000 }

func (sendResponse) ShouldRun(ctx *filters.RequestContext) bool {
	return !ctx.Served() && ctx.ResponseWriter() != nil
}

func (sendResponse) Run(ctx *filters.RequestContext) (interface{}, error) {
	FlushResponse(ctx)
	return true, nil
}
