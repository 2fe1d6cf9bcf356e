package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the Prometheus vectors ciris-core exports, grounded on
// the teacher's Metrics struct (pkg/observability/metrics.go): one
// registry, one init method per concern, nil-receiver methods that
// are safe to call even when metrics are disabled.
type Metrics struct {
	registry *prometheus.Registry

	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokens       *prometheus.CounterVec
	llmErrors       *prometheus.CounterVec

	breakerState *prometheus.GaugeVec

	resourceUsage   *prometheus.GaugeVec
	resourceAlerts  *prometheus.CounterVec
	thoughtRounds   prometheus.Counter
	activeTasks     prometheus.Gauge
	activeThoughts  prometheus.Gauge
}

const namespace = "ciris"

// NewMetrics builds and registers every gauge/counter/histogram. A nil
// *Metrics is always safe to call methods on (see the nil guards
// below), matching the teacher's "disabled means nil, not a sentinel
// no-op struct" convention.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "calls_total", Help: "Total LLM calls.",
	}, []string{"model"})
	m.llmCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "llm", Name: "call_duration_seconds", Help: "LLM call latency.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"model"})
	m.llmTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "tokens_total", Help: "Total tokens consumed.",
	}, []string{"model", "direction"})
	m.llmErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "llm", Name: "errors_total", Help: "Total LLM call failures.",
	}, []string{"model", "kind"})

	m.breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "registry", Name: "breaker_state",
		Help: "Circuit breaker state (0=closed,1=half_open,2=open) per service.",
	}, []string{"service"})

	m.resourceUsage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "resource", Name: "usage_ratio",
		Help: "Fraction of a resource budget consumed.",
	}, []string{"budget"})
	m.resourceAlerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "resource", Name: "alerts_total",
		Help: "Resource budget breaches by severity.",
	}, []string{"budget", "severity"})

	m.thoughtRounds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "processor", Name: "rounds_total", Help: "Processor rounds executed.",
	})
	m.activeTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "task", Name: "active", Help: "Tasks in ACTIVE status.",
	})
	m.activeThoughts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "thought", Name: "active", Help: "Thoughts in PROCESSING status.",
	})

	m.registry.MustRegister(
		m.llmCalls, m.llmCallDuration, m.llmTokens, m.llmErrors,
		m.breakerState, m.resourceUsage, m.resourceAlerts,
		m.thoughtRounds, m.activeTasks, m.activeThoughts,
	)
	return m
}

// Registry exposes the underlying registry for an HTTP exporter
// (github.com/prometheus/client_golang/prometheus/promhttp) to serve.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordLLMCall(model string, seconds float64, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(model).Inc()
	m.llmCallDuration.WithLabelValues(model).Observe(seconds)
	m.llmTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	m.llmTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
}

func (m *Metrics) RecordLLMError(model, kind string) {
	if m == nil {
		return
	}
	m.llmErrors.WithLabelValues(model, kind).Inc()
}

func (m *Metrics) SetBreakerState(service string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(service).Set(float64(state))
}

func (m *Metrics) SetResourceUsage(budget string, ratio float64) {
	if m == nil {
		return
	}
	m.resourceUsage.WithLabelValues(budget).Set(ratio)
}

func (m *Metrics) RecordResourceAlert(budget, severity string) {
	if m == nil {
		return
	}
	m.resourceAlerts.WithLabelValues(budget, severity).Inc()
}

func (m *Metrics) RecordRound() {
	if m == nil {
		return
	}
	m.thoughtRounds.Inc()
}

func (m *Metrics) SetActiveTasks(n int) {
	if m == nil {
		return
	}
	m.activeTasks.Set(float64(n))
}

func (m *Metrics) SetActiveThoughts(n int) {
	if m == nil {
		return
	}
	m.activeThoughts.Set(float64(n))
}
