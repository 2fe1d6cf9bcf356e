package processor

import (
	"context"

	"github.com/ciris-ai/ciris-core/internal/state"
)

var playSupportedStates = []state.State{state.StatePlay}

// PlayProcessor runs the same round mechanics as Work. The creativity
// bias spec.md §4.8 names is expressed by giving this processor its
// own Engine whose DMA pipeline is built with a domain profile tuned
// toward exploration (a distinct dma.Profile.DomainPromptOverride) —
// Play never shares a pipeline instance with Work.
type PlayProcessor struct {
	Engine *Engine

	rounds      int
	ideasPlayed int
}

func NewPlayProcessor(engine *Engine) *PlayProcessor {
	return &PlayProcessor{Engine: engine}
}

func (p *PlayProcessor) Initialize(context.Context) error { return nil }

func (p *PlayProcessor) Process(ctx context.Context, round int) (Result, error) {
	p.rounds++
	result, err := p.Engine.RunBatch(ctx, round, DefaultBatchSize)
	if err != nil {
		return result, err
	}
	p.ideasPlayed += result.ThoughtsProcessed
	result.Notes = "play round"
	return result, nil
}

func (p *PlayProcessor) Cleanup(context.Context) error { return nil }

func (p *PlayProcessor) GetSupportedStates() []state.State { return playSupportedStates }

func (p *PlayProcessor) CanProcess(s state.State) bool { return supports(playSupportedStates, s) }

func (p *PlayProcessor) IdeasPlayed() int { return p.ideasPlayed }

func (p *PlayProcessor) GetStatus() Status {
	return Status{State: state.StatePlay, RoundsCompleted: p.rounds, SupportedStates: playSupportedStates}
}
