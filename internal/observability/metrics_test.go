package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersCollectors(t *testing.T) {
	m := NewMetrics()
	require.NotNil(t, m)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsMethodsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLLMCall("model", 0.1, 1, 1)
		m.RecordLLMError("model", "transport")
		m.SetBreakerState("svc", 1)
		m.SetResourceUsage("memory_mb", 0.5)
		m.RecordResourceAlert("memory_mb", "warning")
		m.RecordRound()
		m.SetActiveTasks(1)
		m.SetActiveThoughts(1)
	})
}
