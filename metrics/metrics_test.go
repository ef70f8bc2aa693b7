package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDefaultsToCodaHale(t *testing.T) {
	m, h := Init(Options{})
	require.NotNil(t, h)
	_, ok := m.(*CodaHale)
	assert.True(t, ok)
	assert.Same(t, m, Default)
}

func TestCodaHaleCounters(t *testing.T) {
	c := NewCodaHale(Options{})
	c.IncCounter("requests")
	c.IncCounterBy("requests", 2)
	c.IncFilterStatus("auth", "pre", "SUCCESS")
	c.MeasureSince("scan", time.Now())
	c.MeasureFilter("pre", "auth", time.Now())

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(w.Result().Body)

	assert.Contains(t, string(body), "zuul.requests")
	assert.Contains(t, string(body), "zuul.filter-auth.pre.SUCCESS")
}

func TestPrometheusExposition(t *testing.T) {
	p := NewPrometheus(Options{})
	p.IncCounter("requests")
	p.IncFilterStatus("auth", "pre", "SUCCESS")
	p.MeasureFilter("pre", "auth", time.Now())
	p.MeasureSince("scan", time.Now())

	w := httptest.NewRecorder()
	p.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(w.Result().Body)

	text := string(body)
	assert.True(t, strings.Contains(text, "zuul_filter_invocations_total"))
	assert.True(t, strings.Contains(text, `filter="auth"`))
	assert.True(t, strings.Contains(text, `status="SUCCESS"`))
	assert.True(t, strings.Contains(text, "zuul_filter_duration_seconds"))
}
