package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jihwankim/mailprobe/pkg/resilience"
)

// Metrics owns the process-wide Prometheus registry and every instrument
// published by the agent. It is the only mutable resource shared by all
// probe workers; the underlying instruments are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	probeResults  *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	breakerState  *prometheus.GaugeVec

	memoryUsageMB    prometheus.Gauge
	threadCount      prometheus.Gauge
	resourceWarnings *prometheus.GaugeVec
}

// New creates a registry with all agent instruments registered
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "email_probe_success_count",
			Help: "Probe executions by probe name, outcome and error category.",
		}, []string{"probe", "success", "error_type"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "email_probe_duration_seconds",
			Help:    "Wall-clock duration of probe checks.",
			Buckets: prometheus.DefBuckets,
		}, []string{"probe"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "email_probe_circuit_breaker_state",
			Help: "Circuit breaker state per probe: 0 closed, 1 half-open, 2 open.",
		}, []string{"probe"}),
		memoryUsageMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "email_probe_memory_usage_mb",
			Help: "Resident memory of the agent process in megabytes.",
		}),
		threadCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "email_probe_thread_count",
			Help: "Number of concurrent workers in the agent process.",
		}),
		resourceWarnings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "email_probe_resource_warnings",
			Help: "Active resource warnings by type: 0 inactive, 1 active.",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		m.probeResults,
		m.probeDuration,
		m.breakerState,
		m.memoryUsageMB,
		m.threadCount,
		m.resourceWarnings,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// The warning label set is fixed; expose both flags from startup
	m.resourceWarnings.WithLabelValues("memory").Set(0)
	m.resourceWarnings.WithLabelValues("threads").Set(0)

	return m
}

// Registry returns the underlying registry for exposition
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// InitProbe pre-creates every label combination a probe can emit, so that a
// restart with identical configuration exposes an identical label set before
// the first check has run.
func (m *Metrics) InitProbe(probe string) {
	m.probeResults.WithLabelValues(probe, "true", string(resilience.CategoryNone))
	for _, cat := range resilience.Categories() {
		m.probeResults.WithLabelValues(probe, "false", string(cat))
	}
	m.probeDuration.WithLabelValues(probe)
	m.breakerState.WithLabelValues(probe).Set(0)
}

// RecordSuccess records one successful probe execution
func (m *Metrics) RecordSuccess(probe string, duration time.Duration) {
	m.probeResults.WithLabelValues(probe, "true", string(resilience.CategoryNone)).Inc()
	m.probeDuration.WithLabelValues(probe).Observe(duration.Seconds())
}

// RecordFailure records one failed probe execution with its category
func (m *Metrics) RecordFailure(probe string, category resilience.Category, duration time.Duration) {
	m.probeResults.WithLabelValues(probe, "false", string(category)).Inc()
	m.probeDuration.WithLabelValues(probe).Observe(duration.Seconds())
}

// SetBreakerState publishes a probe's breaker state
func (m *Metrics) SetBreakerState(probe string, state resilience.BreakerState) {
	var v float64
	switch state {
	case resilience.StateHalfOpen:
		v = 1
	case resilience.StateOpen:
		v = 2
	}
	m.breakerState.WithLabelValues(probe).Set(v)
}

// SetMemoryUsageMB publishes the resident memory gauge
func (m *Metrics) SetMemoryUsageMB(mb float64) {
	m.memoryUsageMB.Set(mb)
}

// SetThreadCount publishes the worker count gauge
func (m *Metrics) SetThreadCount(n int) {
	m.threadCount.Set(float64(n))
}

// SetResourceWarning publishes a warning flag of the given type
func (m *Metrics) SetResourceWarning(warningType string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	m.resourceWarnings.WithLabelValues(warningType).Set(v)
}
