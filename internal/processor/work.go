package processor

import (
	"context"

	"github.com/ciris-ai/ciris-core/internal/state"
)

var workSupportedStates = []state.State{state.StateWork}

// WorkProcessor runs the normal operating round: activate, seed,
// populate, batch-process, per spec.md §4.8. An idle round (empty
// queue) increments a counter; by default idle rounds never trigger an
// automatic state transition — that decision is left to a higher-level
// policy the runtime can opt into later.
type WorkProcessor struct {
	Engine *Engine

	rounds      int
	idleStreak  int
}

func NewWorkProcessor(engine *Engine) *WorkProcessor {
	return &WorkProcessor{Engine: engine}
}

func (p *WorkProcessor) Initialize(context.Context) error { return nil }

func (p *WorkProcessor) Process(ctx context.Context, round int) (Result, error) {
	p.rounds++
	result, err := p.Engine.RunBatch(ctx, round, DefaultBatchSize)
	if err != nil {
		return result, err
	}
	if result.Idle {
		p.idleStreak++
	} else {
		p.idleStreak = 0
	}
	return result, nil
}

func (p *WorkProcessor) Cleanup(context.Context) error { return nil }

func (p *WorkProcessor) GetSupportedStates() []state.State { return workSupportedStates }

func (p *WorkProcessor) CanProcess(s state.State) bool { return supports(workSupportedStates, s) }

func (p *WorkProcessor) IdleStreak() int { return p.idleStreak }

func (p *WorkProcessor) GetStatus() Status {
	return Status{State: state.StateWork, RoundsCompleted: p.rounds, SupportedStates: workSupportedStates}
}
