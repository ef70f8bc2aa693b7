package proxy

import (
	"github.com/zuul-go/zuul/filters"
)

// staticResponse serves a canned response for the static sub-kind.
type staticResponse struct {
	name       string
	order      int
	statusCode int
	body       string
}

// NewStaticResponse creates a static sub-kind filter answering with a
// fixed status and body.
func NewStaticResponse(name string, order, statusCode int, body string) filters.Filter {
	return &staticResponse{name: name, order: order, statusCode: statusCode, body: body}
}

func (s *staticResponse) Name() string { return s.name }
func (s *staticResponse) Kind() string { return filters.StaticKind }
func (s *staticResponse) Order() int   { return s.order }

func (s *staticResponse) ShouldRun(*filters.RequestContext) bool { return true }

func (s *staticResponse) Run(ctx *filters.RequestContext) (interface{}, error) {
	ctx.SetResponseStatusCode(s.statusCode)
	ctx.SetResponseBody([]byte(s.body))
	return true, nil
}
