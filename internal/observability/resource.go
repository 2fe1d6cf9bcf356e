package observability

import "sync"

// BudgetAction is what a breach of a ResourceBudget should trigger,
// per spec.md §5's "{limit, warning, critical, action}" budget shape.
type BudgetAction string

const (
	ActionThrottle BudgetAction = "throttle"
	ActionDefer    BudgetAction = "defer"
	ActionReject   BudgetAction = "reject"
	ActionShutdown BudgetAction = "shutdown"
)

// Budget declares the thresholds for one tracked resource (memory,
// cpu, tokens/hour, tokens/day, thoughts per spec.md §5).
type Budget struct {
	Name     string
	Limit    float64
	Warning  float64
	Critical float64
	Action   BudgetAction
}

// Breach describes one budget currently over a threshold.
type Breach struct {
	Budget   string
	Value    float64
	Severity string // "warning" or "critical"
	Action   BudgetAction
}

// Report is the resource monitor's answer to "how are we doing right
// now", consulted once per batch by the context builder (C6).
type Report struct {
	Healthy  bool
	Warnings []Breach
	Critical []Breach
}

// ResourceMonitor tracks budget usage and classifies breaches.
// Grounded on original_source's ResourceMonitorService (supplemented
// per SPEC_FULL.md §9.1): a declared set of budgets, each sampled and
// compared against warning/critical thresholds, surfaced as alerts
// that persist in every SystemSnapshot until resolved.
type ResourceMonitor struct {
	mu      sync.RWMutex
	budgets map[string]Budget
	usage   map[string]float64
	metrics *Metrics
}

func NewResourceMonitor(metrics *Metrics, budgets ...Budget) *ResourceMonitor {
	m := &ResourceMonitor{
		budgets: make(map[string]Budget, len(budgets)),
		usage:   make(map[string]float64, len(budgets)),
		metrics: metrics,
	}
	for _, b := range budgets {
		m.budgets[b.Name] = b
	}
	return m
}

// DefaultBudgets returns the five budgets spec.md §5 names, with
// conservative placeholder thresholds a deployment is expected to
// override via internal/config.
func DefaultBudgets() []Budget {
	return []Budget{
		{Name: "memory_mb", Limit: 1024, Warning: 768, Critical: 960, Action: ActionThrottle},
		{Name: "cpu_percent", Limit: 100, Warning: 80, Critical: 95, Action: ActionThrottle},
		{Name: "tokens_per_hour", Limit: 100_000, Warning: 80_000, Critical: 95_000, Action: ActionDefer},
		{Name: "tokens_per_day", Limit: 1_000_000, Warning: 800_000, Critical: 950_000, Action: ActionReject},
		{Name: "active_thoughts", Limit: 50, Warning: 40, Critical: 48, Action: ActionShutdown},
	}
}

// Record sets the current sampled value for a budget.
func (m *ResourceMonitor) Record(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[name] = value
	if b, ok := m.budgets[name]; ok && b.Limit > 0 {
		m.metrics.SetResourceUsage(name, value/b.Limit)
	}
}

// Check classifies every budget's current usage against its
// thresholds. Healthy is false whenever any budget is at or past its
// critical threshold.
func (m *ResourceMonitor) Check() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := Report{Healthy: true}
	for name, b := range m.budgets {
		v := m.usage[name]
		switch {
		case v >= b.Critical:
			report.Healthy = false
			breach := Breach{Budget: name, Value: v, Severity: "critical", Action: b.Action}
			report.Critical = append(report.Critical, breach)
			m.metrics.RecordResourceAlert(name, "critical")
		case v >= b.Warning:
			breach := Breach{Budget: name, Value: v, Severity: "warning", Action: b.Action}
			report.Warnings = append(report.Warnings, breach)
			m.metrics.RecordResourceAlert(name, "warning")
		}
	}
	return report
}
