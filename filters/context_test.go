package filters

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextDefaults(t *testing.T) {
	ctx := NewContext()

	assert.Nil(t, ctx.Request())
	assert.Nil(t, ctx.ResponseWriter())
	assert.Nil(t, ctx.RouteHost())
	assert.Empty(t, ctx.RouteVIP())
	assert.True(t, ctx.SendGatewayResponse())
	assert.Equal(t, http.StatusInternalServerError, ctx.ResponseStatusCode())
	assert.False(t, ctx.ErrorHandled())
	assert.False(t, ctx.Served())
	assert.Empty(t, ctx.FilterExecutionSummary())
}

func TestContextRequestURI(t *testing.T) {
	ctx := NewContext()
	assert.Empty(t, ctx.RequestURI())

	req := httptest.NewRequest("GET", "http://example.org/foo/bar?x=1", nil)
	ctx.SetRequest(req)
	assert.Equal(t, "/foo/bar", ctx.RequestURI())

	ctx.SetRequestURI("/rewritten")
	assert.Equal(t, "/rewritten", ctx.RequestURI())
}

func TestContextResponseState(t *testing.T) {
	ctx := NewContext()

	ctx.SetResponseStatusCode(200)
	ctx.SetResponseBody([]byte("ok"))
	ctx.AddGatewayResponseHeader("X-One", "1")
	ctx.AddGatewayResponseHeader("X-One", "2")

	assert.Equal(t, 200, ctx.ResponseStatusCode())
	assert.Equal(t, []byte("ok"), ctx.ResponseBody())
	require.Len(t, ctx.GatewayResponseHeaders(), 2)
	assert.Equal(t, Header{Name: "X-One", Value: "1"}, ctx.GatewayResponseHeaders()[0])
	assert.Equal(t, Header{Name: "X-One", Value: "2"}, ctx.GatewayResponseHeaders()[1])
}

func TestContextResponseBodyString(t *testing.T) {
	ctx := NewContext()
	ctx.Set(ResponseBodyKey, "stringly")
	assert.Equal(t, []byte("stringly"), ctx.ResponseBody())
}

func TestContextUnsetReleasesEverything(t *testing.T) {
	ctx := NewContext()
	u, _ := url.Parse("http://origin.example.org")
	ctx.SetRouteHost(u)
	ctx.SetRouteVIP("api")
	ctx.Set("custom", 42)
	ctx.MarkErrorHandled()

	ctx.Unset()

	assert.Nil(t, ctx.RouteHost())
	assert.Empty(t, ctx.RouteVIP())
	assert.Nil(t, ctx.Get("custom"))
	assert.False(t, ctx.ErrorHandled())
}

func TestContextErrorHandledMonotonic(t *testing.T) {
	ctx := NewContext()
	ctx.MarkErrorHandled()
	assert.True(t, ctx.ErrorHandled())
	ctx.MarkErrorHandled()
	assert.True(t, ctx.ErrorHandled())
}

func TestContextCopyIsShallowAndDetached(t *testing.T) {
	ctx := NewContext()
	ctx.SetRoute("users")

	snapshot := ctx.Copy()
	ctx.SetRoute("orders")

	assert.Equal(t, "users", snapshot[RouteKey])
	assert.Equal(t, "orders", ctx.Route())
}

func TestContextExecutionSummary(t *testing.T) {
	ctx := NewContext()
	ctx.AddFilterExecutionSummary("a", StatusSuccess, 3*time.Millisecond)
	ctx.AddFilterExecutionSummary("b", StatusSkipped, 0)

	require.Len(t, ctx.FilterExecutionSummary(), 2)
	assert.Equal(t, "a[SUCCESS][3ms], b[SKIPPED][0ms]", ctx.ExecutionSummaryString())
}

func TestContextEventProperties(t *testing.T) {
	ctx := NewContext()
	ctx.SetEventProperty("route", "users")
	assert.Equal(t, "users", ctx.EventProperties()["route"])
}
