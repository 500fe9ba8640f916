package metrics

import (
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := New()
	require.NotNil(t, m)

	assert.NotNil(t, m.EvaluationsTotal)
	assert.NotNil(t, m.EvaluationDuration)
	assert.NotNil(t, m.HostCallsTotal)
	assert.NotNil(t, m.HostCallErrors)
	assert.NotNil(t, m.DNSLookupsTotal)
	assert.NotNil(t, m.WildcardLookups)
	assert.NotNil(t, m.WildcardEntries)
	assert.NotNil(t, m.ScriptLoaded)
	assert.NotNil(t, m.ScriptBytes)
	assert.NotNil(t, m.ScriptReloads)
	assert.NotNil(t, m.RequestsTotal)
	assert.NotNil(t, m.Uptime)
	assert.NotNil(t, m.GoRoutines)
	assert.NotNil(t, m.Registry())
}

func TestMetricsHandler(t *testing.T) {
	m := New()
	m.RecordEvaluation("ok", 5*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "pacparser_evaluations_total"))
	assert.True(t, strings.Contains(body, "go_"))
}

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordEvaluation("ok", time.Millisecond)
	m.RecordEvaluation("ok", time.Millisecond)
	m.RecordEvaluation("script_error", time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("script_error")))

	m.RecordHostCall("dnsResolve", false)
	m.RecordHostCall("dnsResolve", true)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HostCallsTotal.WithLabelValues("dnsResolve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HostCallErrors.WithLabelValues("dnsResolve")))

	m.RecordDNSLookup(true)
	m.RecordDNSLookup(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DNSLookupsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DNSLookupsTotal.WithLabelValues("error")))

	m.RecordWildcardLookup(false, 1)
	m.RecordWildcardLookup(true, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WildcardLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WildcardLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WildcardEntries))

	m.RecordRequest("proxy", 200)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("proxy", "OK")))

	m.RecordScript([]byte("function FindProxyForURL(u, h) { return \"DIRECT\"; }"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScriptLoaded))
	assert.Equal(t, 51.0, testutil.ToFloat64(m.ScriptBytes))
	m.RecordScript(nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ScriptLoaded))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ScriptBytes))

	m.RecordReload(true)
	m.RecordReload(false)
	m.RecordReload(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScriptReloads.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScriptReloads.WithLabelValues("error")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	// Should not panic
	m.RecordEvaluation("ok", time.Millisecond)
	m.RecordHostCall("shExpMatch", true)
	m.RecordDNSLookup(true)
	m.RecordWildcardLookup(true, 3)
	m.RecordRequest("decode", 400)
	m.RecordScript([]byte("x"))
	m.RecordReload(false)
}

func TestCollector(t *testing.T) {
	m := New()
	var samples atomic.Int32
	c := NewCollector(m, 10*time.Millisecond, func(m *Metrics) {
		samples.Add(1)
		m.RecordScript([]byte("DIRECT"))
	})

	c.Start()
	c.Start() // idempotent

	assert.Eventually(t, func() bool {
		return samples.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	assert.Greater(t, testutil.ToFloat64(m.GoRoutines), 0.0)
	assert.Equal(t, 6.0, testutil.ToFloat64(m.ScriptBytes))

	c.Stop()
	c.Stop() // idempotent

	// Stopped collectors can be restarted.
	c.Start()
	c.Stop()
}

func TestCollector_NilMetrics(t *testing.T) {
	called := false
	c := NewCollector(nil, 0, func(*Metrics) { called = true })
	assert.Equal(t, 15*time.Second, c.interval)

	c.Start()
	c.collect()
	c.Stop()
	assert.False(t, called)
}
