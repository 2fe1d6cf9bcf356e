package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/ciris-ai/ciris-core/internal/state"
)

// interRoundDelay returns spec.md §4.8's state-dependent pause between
// rounds.
func interRoundDelay(s state.State) time.Duration {
	switch s {
	case state.StateWork:
		return 3 * time.Second
	case state.StateSolitude:
		return 10 * time.Second
	case state.StateDream:
		return 5 * time.Second
	default:
		return 1 * time.Second
	}
}

// Loop is the main processing loop (C12): each iteration consults the
// state machine's auto-transition rule, dispatches to the
// sub-processor registered for the current state, and sleeps the
// state-dependent inter-round delay. It exits when SHUTDOWN is reached
// or ctx is cancelled/stopCh fires, per spec.md §4.8/§5's cancellation
// model (wait(FIRST_COMPLETED) over the agent task and the stop signal).
type Loop struct {
	Machine    *state.Machine
	Processors map[state.State]SubProcessor
	Log        *slog.Logger
	StopCh     <-chan struct{}

	round        int
	initialized  state.State
	haveInitialized bool
}

// Run blocks until SHUTDOWN is reached, ctx is done, or StopCh fires.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopCh():
			return nil
		default:
		}

		if to, ok := l.Machine.ShouldAutoTransition(); ok {
			l.Machine.Transition(to)
		}

		current := l.Machine.Current()
		if current == state.StateShutdown {
			return nil
		}

		proc, ok := l.Processors[current]
		if !ok {
			if l.Log != nil {
				l.Log.Warn("no sub-processor registered for state", "state", current)
			}
			if !l.sleep(ctx, interRoundDelay(current)) {
				return nil
			}
			continue
		}

		if !l.haveInitialized || l.initialized != current {
			if l.haveInitialized {
				if oldProc, ok := l.Processors[l.initialized]; ok {
					_ = oldProc.Cleanup(ctx)
				}
			}
			if err := proc.Initialize(ctx); err != nil {
				if l.Log != nil {
					l.Log.Error("sub-processor initialize failed", "state", current, "error", err)
				}
				return err
			}
			l.initialized = current
			l.haveInitialized = true
		}

		l.round++
		result, err := proc.Process(ctx, l.round)
		if err != nil && l.Log != nil {
			l.Log.Error("sub-processor round failed", "state", current, "round", l.round, "error", err)
		}

		if result.ExitRequested {
			if l.Log != nil {
				l.Log.Info("sub-processor requested exit", "state", current, "reason", result.ExitReason)
			}
			l.Machine.Transition(state.StateWork)
		}

		if !l.sleep(ctx, interRoundDelay(current)) {
			return nil
		}
	}
}

func (l *Loop) stopCh() <-chan struct{} {
	if l.StopCh != nil {
		return l.StopCh
	}
	return nil
}

// sleep waits for d, ctx cancellation, or StopCh, returning false if
// the loop should exit.
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-l.stopCh():
		return false
	case <-timer.C:
		return true
	}
}
