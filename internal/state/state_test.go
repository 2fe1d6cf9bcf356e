package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialStateIsShutdown(t *testing.T) {
	m := New()
	assert.Equal(t, StateShutdown, m.Current())
}

func TestValidTransitionSequence(t *testing.T) {
	m := New()
	require.True(t, m.Transition(StateWakeup))
	assert.Equal(t, StateWakeup, m.Current())

	require.True(t, m.Transition(StateWork))
	require.True(t, m.Transition(StateSolitude))
	require.True(t, m.Transition(StateWork))
	require.True(t, m.Transition(StatePlay))
	require.True(t, m.Transition(StateShutdown))
	assert.Equal(t, StateShutdown, m.Current())

	history := m.History()
	require.Len(t, history, 5)
	assert.Equal(t, StateShutdown, history[0].From)
	assert.Equal(t, StateWakeup, history[0].To)
}

func TestRejectedTransitionLeavesStateUnchanged(t *testing.T) {
	m := New()
	require.True(t, m.Transition(StateWakeup))

	ok := m.Transition(StateSolitude)
	assert.False(t, ok)
	assert.Equal(t, StateWakeup, m.Current())
	assert.Empty(t, m.History()[1:])
	assert.Len(t, m.History(), 1)
}

func TestDreamOnlyReturnsToWork(t *testing.T) {
	assert.True(t, CanTransition(StateDream, StateWork))
	assert.True(t, CanTransition(StateDream, StateShutdown))
	assert.False(t, CanTransition(StateDream, StatePlay))
	assert.False(t, CanTransition(StateDream, StateSolitude))
}

func TestShouldAutoTransitionOnlyWakeupToWork(t *testing.T) {
	m := New()
	require.True(t, m.Transition(StateWakeup))

	_, ok := m.ShouldAutoTransition()
	assert.False(t, ok)

	m.SetWakeupComplete(true)
	to, ok := m.ShouldAutoTransition()
	assert.True(t, ok)
	assert.Equal(t, StateWork, to)

	require.True(t, m.Transition(StateWork))
	require.True(t, m.Transition(StateSolitude))
	_, ok = m.ShouldAutoTransition()
	assert.False(t, ok, "only WAKEUP->WORK is automatic")
}

func TestCounters(t *testing.T) {
	m := New()
	require.True(t, m.Transition(StateWakeup))
	m.IncrementCounter("rounds")
	m.IncrementCounter("rounds")
	assert.Equal(t, 2, m.Metadata().Counters["rounds"])

	require.True(t, m.Transition(StateWork))
	assert.Equal(t, 0, m.Metadata().Counters["rounds"], "counters reset on state entry")
}
