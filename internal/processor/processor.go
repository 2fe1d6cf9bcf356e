// Package processor implements the sub-processors and main loop (C12)
// that drive the agent through WAKEUP/WORK/PLAY/SOLITUDE/DREAM. Each
// sub-processor owns one state's round logic; the Loop consults the
// state machine (C11) each iteration and hands control to whichever
// sub-processor supports the current state. Grounded on the teacher's
// ParallelAgent/sequential workflow step dispatch (pkg/agent/workflowagent)
// for the "one round, one bounded unit of work" shape, generalized onto
// spec.md §4.8's five named sub-processors instead of a fixed pipeline.
package processor

import (
	"context"

	"github.com/ciris-ai/ciris-core/internal/state"
)

// Result is what a sub-processor reports back after one round.
type Result struct {
	ThoughtsProcessed int
	TasksActivated    int
	Idle              bool
	Notes             string

	// ExitRequested signals the main loop that this sub-processor
	// wants to leave its state this round (e.g. Solitude's backlog
	// threshold, Dream's pulse budget). The loop decides the target
	// state; the sub-processor only raises the request.
	ExitRequested bool
	ExitReason    string
}

// Status is a point-in-time report a sub-processor can be asked for
// outside the round loop (e.g. for a health endpoint).
type Status struct {
	State             state.State
	RoundsCompleted   int
	LastResult        Result
	SupportedStates   []state.State
}

// SubProcessor is the base contract every state's processor satisfies,
// per spec.md §4.8.
type SubProcessor interface {
	Initialize(ctx context.Context) error
	Process(ctx context.Context, round int) (Result, error)
	Cleanup(ctx context.Context) error
	GetSupportedStates() []state.State
	CanProcess(s state.State) bool
	GetStatus() Status
}

// supports is the shared CanProcess implementation every sub-processor
// embeds rather than reimplementing the same linear scan.
func supports(states []state.State, s state.State) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}
