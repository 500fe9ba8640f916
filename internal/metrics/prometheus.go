// Package metrics provides Prometheus metrics for PAC evaluation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for pacparser.
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Evaluation metrics
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram

	// Host function metrics
	HostCallsTotal  *prometheus.CounterVec
	HostCallErrors  *prometheus.CounterVec
	DNSLookupsTotal *prometheus.CounterVec

	// Wildcard cache metrics
	WildcardLookups *prometheus.CounterVec
	WildcardEntries prometheus.Gauge

	// Script metrics
	ScriptLoaded  prometheus.Gauge
	ScriptBytes   prometheus.Gauge
	ScriptReloads *prometheus.CounterVec

	// API metrics
	RequestsTotal *prometheus.CounterVec

	// System metrics
	Uptime     prometheus.Gauge
	GoRoutines prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacparser_evaluations_total",
			Help: "Total number of FindProxyForURL evaluations",
		},
		[]string{"result"},
	)

	m.EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pacparser_evaluation_duration_seconds",
			Help:    "Duration of FindProxyForURL evaluations including DNS lookups",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
	)

	m.HostCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacparser_host_calls_total",
			Help: "Total number of host function calls made by PAC scripts",
		},
		[]string{"function"},
	)

	m.HostCallErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacparser_host_call_errors_total",
			Help: "Total number of host function calls that raised a script error",
		},
		[]string{"function"},
	)

	m.DNSLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacparser_dns_lookups_total",
			Help: "Total number of DNS lookups performed for PAC scripts",
		},
		[]string{"result"},
	)

	m.WildcardLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacparser_wildcard_cache_lookups_total",
			Help: "Wildcard cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	m.WildcardEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacparser_wildcard_cache_entries",
			Help: "Number of compiled patterns held by the wildcard cache",
		},
	)

	m.ScriptLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacparser_script_loaded",
			Help: "Whether a PAC script is loaded (1) or not (0)",
		},
	)

	m.ScriptBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacparser_script_bytes",
			Help: "Size of the loaded PAC script in bytes",
		},
	)

	m.ScriptReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacparser_script_reloads_total",
			Help: "Total number of PAC script reloads by result",
		},
		[]string{"result"},
	)

	m.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacparser_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "status"},
	)

	m.Uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacparser_uptime_seconds",
			Help: "Process uptime in seconds",
		},
	)

	m.GoRoutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacparser_goroutines",
			Help: "Number of goroutines",
		},
	)

	m.registry.MustRegister(
		m.EvaluationsTotal,
		m.EvaluationDuration,
		m.HostCallsTotal,
		m.HostCallErrors,
		m.DNSLookupsTotal,
		m.WildcardLookups,
		m.WildcardEntries,
		m.ScriptLoaded,
		m.ScriptBytes,
		m.ScriptReloads,
		m.RequestsTotal,
		m.Uptime,
		m.GoRoutines,
	)

	// Register default Go metrics
	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordEvaluation records one FindProxyForURL evaluation.
func (m *Metrics) RecordEvaluation(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(result).Inc()
	m.EvaluationDuration.Observe(d.Seconds())
}

// RecordHostCall records a host function call and whether it failed.
func (m *Metrics) RecordHostCall(function string, failed bool) {
	if m == nil {
		return
	}
	m.HostCallsTotal.WithLabelValues(function).Inc()
	if failed {
		m.HostCallErrors.WithLabelValues(function).Inc()
	}
}

// RecordDNSLookup records a DNS lookup outcome.
func (m *Metrics) RecordDNSLookup(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	m.DNSLookupsTotal.WithLabelValues(result).Inc()
}

// RecordWildcardLookup records a wildcard cache hit or miss and the cache size.
func (m *Metrics) RecordWildcardLookup(hit bool, entries int) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.WildcardLookups.WithLabelValues(outcome).Inc()
	m.WildcardEntries.Set(float64(entries))
}

// RecordScript records the size of the loaded script. A nil source means
// no script is loaded.
func (m *Metrics) RecordScript(source []byte) {
	if m == nil {
		return
	}
	if source == nil {
		m.ScriptLoaded.Set(0)
		m.ScriptBytes.Set(0)
		return
	}
	m.ScriptLoaded.Set(1)
	m.ScriptBytes.Set(float64(len(source)))
}

// RecordReload records a script reload attempt.
func (m *Metrics) RecordReload(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	m.ScriptReloads.WithLabelValues(result).Inc()
}

// RecordRequest records an API request.
func (m *Metrics) RecordRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint, http.StatusText(status)).Inc()
}
