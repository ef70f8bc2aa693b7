package proxy

import (
	"net/http"

	"github.com/zuul-go/zuul/filters"
)

// healthCheck answers the healthcheck sub-kind with 200 OK. Route filters
// invoke it through the sub-chain runner.
type healthCheck struct{}

// NewHealthCheck creates the healthcheck filter.
func NewHealthCheck() filters.Filter { return healthCheck{} }

func (healthCheck) Name() string { return "healthcheck" }
func (healthCheck) Kind() string { return filters.HealthcheckKind }
func (healthCheck) Order() int   { return 0 }

func (healthCheck) ShouldRun(*filters.RequestContext) bool { return true }

func (healthCheck) Run(ctx *filters.RequestContext) (interface{}, error) {
	ctx.SetResponseStatusCode(http.StatusOK)
	ctx.SetResponseBody([]byte("OK"))
	return true, nil
}
