package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/waqasmani/hris-autoclock/internal/shared/errors"
)

// MetricsConfig holds configuration for metrics initialization
type MetricsConfig struct {
	Namespace string
	Subsystem string
	Registry  prometheus.Registerer
	Gatherer  prometheus.Gatherer
}

// DefaultMetricsConfig returns a config using the default Prometheus registry
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "autoclock",
		Subsystem: "",
		Registry:  prometheus.DefaultRegisterer,
		Gatherer:  prometheus.DefaultGatherer,
	}
}

// NewTestMetricsConfig returns a config backed by a fresh registry so tests
// can build Metrics repeatedly without duplicate registration panics.
func NewTestMetricsConfig() MetricsConfig {
	reg := prometheus.NewRegistry()
	return MetricsConfig{
		Namespace: "autoclock_test",
		Registry:  reg,
		Gatherer:  reg,
	}
}

// Metrics holds all Prometheus metrics collectors
type Metrics struct {
	HRISRequestDuration  *prometheus.HistogramVec
	HRISRequestErrors    *prometheus.CounterVec
	LoginAttempts        *prometheus.CounterVec
	ClockOutsTotal       *prometheus.CounterVec
	TicksTotal           *prometheus.CounterVec
	TickDuration         *prometheus.HistogramVec
	CycleDuration        prometheus.Histogram
	CycleErrors          *prometheus.CounterVec
	AgentStates          *prometheus.GaugeVec
	LoginBackoffSkips    prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
	CircuitBreakerEvents *prometheus.CounterVec
	registry             prometheus.Registerer
	gatherer             prometheus.Gatherer
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// NewMetrics returns the process-wide Metrics on the default registry
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetricsWithConfig(DefaultMetricsConfig())
	})
	return metrics
}

// NewMetricsWithConfig creates a new Metrics instance with custom configuration
func NewMetricsWithConfig(cfg MetricsConfig) *Metrics {
	factory := promauto.With(cfg.Registry)
	m := &Metrics{
		registry: cfg.Registry,
		gatherer: cfg.Gatherer,
	}

	// HRIS client
	m.HRISRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "hris_request_duration_seconds",
			Help:      "Duration of HRIS API calls in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status"},
	)
	m.HRISRequestErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "hris_request_errors_total",
			Help:      "Total number of failed HRIS API calls by error type",
		},
		[]string{"endpoint", "error_type"},
	)

	// Agent actions
	m.LoginAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "login_attempts_total",
			Help:      "Total number of HRIS login attempts",
		},
		[]string{"result"},
	)
	m.ClockOutsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "clock_outs_total",
			Help:      "Total number of clock-out submissions",
		},
		[]string{"status"},
	)
	m.TicksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ticks_total",
			Help:      "Total number of agent ticks by resulting action",
		},
		[]string{"action"},
	)
	m.TickDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tick_duration_seconds",
			Help:      "Duration of a single agent tick in seconds",
			Buckets:   []float64{.001, .01, .1, .5, 1, 5, 15, 30, 60},
		},
		[]string{"action"},
	)

	// Poll loop
	m.CycleDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of one poll cycle over all agents",
			Buckets:   []float64{.01, .1, .5, 1, 5, 10, 30, 60, 300},
		},
	)
	m.CycleErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tick_errors_total",
			Help:      "Total number of tick failures by error type",
		},
		[]string{"error_type"},
	)
	m.AgentStates = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "agents",
			Help:      "Number of agents per state after the last cycle",
		},
		[]string{"state"},
	)
	m.LoginBackoffSkips = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "login_backoff_skips_total",
			Help:      "Ticks that skipped a login attempt because the agent was backing off",
		},
	)

	// Circuit Breaker Metrics
	m.CircuitBreakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "circuit_breaker_state",
			Help:      "Current state of circuit breakers (0=closed, 0.5=half_open, 1=open)",
		},
		[]string{"name"},
	)
	m.CircuitBreakerEvents = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "circuit_breaker_events_total",
			Help:      "Total number of circuit breaker events",
		},
		[]string{"name", "event_type", "reason"},
	)

	return m
}

// RecordHRISCall records latency and, on failure, the error class of one
// HRIS API call.
func (m *Metrics) RecordHRISCall(endpoint string, status string, duration time.Duration, err error) {
	m.HRISRequestDuration.WithLabelValues(endpoint, status).Observe(duration.Seconds())
	if err != nil {
		errType := string(errors.ErrorTypeServer)
		if appErr, ok := errors.AsAppError(err); ok {
			errType = string(appErr.ErrorType)
		}
		m.HRISRequestErrors.WithLabelValues(endpoint, errType).Inc()
	}
}

// RecordTick records metrics for one agent tick
func (m *Metrics) RecordTick(action string, duration time.Duration, err error) {
	m.TicksTotal.WithLabelValues(action).Inc()
	m.TickDuration.WithLabelValues(action).Observe(duration.Seconds())
	if err != nil {
		m.CycleErrors.WithLabelValues(string(errors.CodeOf(err))).Inc()
	}
}

// RecordCycle records the duration of a poll cycle and the agent state counts
// observed at its end.
func (m *Metrics) RecordCycle(duration time.Duration, states map[string]int) {
	m.CycleDuration.Observe(duration.Seconds())
	m.AgentStates.Reset()
	for state, count := range states {
		m.AgentStates.WithLabelValues(state).Set(float64(count))
	}
}

// Registry returns the Prometheus registry used by this Metrics instance
func (m *Metrics) Registry() prometheus.Registerer {
	return m.registry
}

// Gatherer returns the Prometheus gatherer used by this Metrics instance
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// Unregister removes all metrics from the registry
// Useful for testing to prevent metric collisions
func (m *Metrics) Unregister() {
	if m.registry == nil {
		return
	}
	collectors := []prometheus.Collector{
		m.HRISRequestDuration,
		m.HRISRequestErrors,
		m.LoginAttempts,
		m.ClockOutsTotal,
		m.TicksTotal,
		m.TickDuration,
		m.CycleDuration,
		m.CycleErrors,
		m.AgentStates,
		m.LoginBackoffSkips,
		m.CircuitBreakerState,
		m.CircuitBreakerEvents,
	}
	for _, collector := range collectors {
		m.registry.Unregister(collector)
	}
}
