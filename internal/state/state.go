// Package state implements the agent state machine (C11): the fixed
// WAKEUP/WORK/PLAY/SOLITUDE/DREAM/SHUTDOWN transition table plus
// per-state metadata and transition history.
package state

import (
	"sync"
	"time"
)

// State is one of the six agent lifecycle states.
type State string

const (
	StateWakeup   State = "WAKEUP"
	StateWork     State = "WORK"
	StatePlay     State = "PLAY"
	StateSolitude State = "SOLITUDE"
	StateDream    State = "DREAM"
	StateShutdown State = "SHUTDOWN"
)

// validTransitions is the fixed table from spec.md §4: SHUTDOWN may
// transition to any state (the runtime's initial SHUTDOWN->WAKEUP
// move) and any state may transition to SHUTDOWN; beyond that WAKEUP
// may only proceed to WORK or DREAM, and so on. All transitions not
// listed are rejected.
var validTransitions = map[State]map[State]bool{
	StateShutdown: {StateWakeup: true, StateWork: true, StatePlay: true, StateSolitude: true, StateDream: true},
	StateWakeup:   {StateWork: true, StateDream: true, StateShutdown: true},
	StateWork:     {StateDream: true, StatePlay: true, StateSolitude: true, StateShutdown: true},
	StateDream:    {StateWork: true, StateShutdown: true},
	StatePlay:     {StateWork: true, StateSolitude: true, StateShutdown: true},
	StateSolitude: {StateWork: true, StateShutdown: true},
}

// Metadata is carried per-state across its lifetime in that state.
type Metadata struct {
	EnteredAt time.Time
	Counters  map[string]int
}

// Transition is one accepted entry in the machine's history.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Machine is the agent's state machine. Initial state is SHUTDOWN per
// spec.md §4: the runtime explicitly transitions to WAKEUP once
// initialization completes.
type Machine struct {
	mu              sync.Mutex
	current         State
	meta            Metadata
	history         []Transition
	wakeupComplete  bool
}

// New creates a machine in SHUTDOWN state.
func New() *Machine {
	return &Machine{
		current: StateShutdown,
		meta:    Metadata{EnteredAt: time.Now(), Counters: map[string]int{}},
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CanTransition reports whether from -> to is in the valid table.
func CanTransition(from, to State) bool {
	return validTransitions[from][to]
}

// Transition attempts from -> to. Rejected transitions leave state and
// history unchanged and return false.
func (m *Machine) Transition(to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !validTransitions[m.current][to] {
		return false
	}
	now := time.Now()
	m.history = append(m.history, Transition{From: m.current, To: to, At: now})
	m.current = to
	m.meta = Metadata{EnteredAt: now, Counters: map[string]int{}}
	return true
}

// SetWakeupComplete records the wakeup_complete flag consulted by
// ShouldAutoTransition.
func (m *Machine) SetWakeupComplete(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wakeupComplete = v
}

// ShouldAutoTransition reports whether the main loop should transition
// automatically this round. Only WAKEUP->WORK is automatic, gated on
// wakeup_complete; every other transition must be driven explicitly by
// a sub-processor's decision.
func (m *Machine) ShouldAutoTransition() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == StateWakeup && m.wakeupComplete {
		return StateWork, true
	}
	return "", false
}

// History returns a copy of the accepted transition log.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// Metadata returns a copy of the current state's metadata.
func (m *Machine) Metadata() Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	counters := make(map[string]int, len(m.meta.Counters))
	for k, v := range m.meta.Counters {
		counters[k] = v
	}
	return Metadata{EnteredAt: m.meta.EnteredAt, Counters: counters}
}

// IncrementCounter bumps a named counter on the current state's
// metadata (e.g. WORK's round count).
func (m *Machine) IncrementCounter(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta.Counters[name]++
}
