package processor

import (
	"context"
	"errors"

	"github.com/ciris-ai/ciris-core/internal/state"
	coretask "github.com/ciris-ai/ciris-core/internal/task"
)

var wakeupSupportedStates = []state.State{state.StateWakeup}

var wakeupStepIDs = []coretask.WakeupStepID{
	coretask.StepVerifyIdentity,
	coretask.StepValidateIntegrity,
	coretask.StepEvaluateResilience,
	coretask.StepAcceptIncompleteness,
	coretask.StepExpressGratitude,
}

// Machine is the subset of state.Machine the Wakeup processor needs:
// setting the wakeup_complete flag the main loop's auto-transition
// checks.
type Machine interface {
	SetWakeupComplete(v bool)
}

// WakeupProcessor creates the wakeup sequence on first entry and
// iterates rounds until every step task is COMPLETED, per spec.md
// §4.8. It reuses Engine.RunBatch for the actual seed/dispatch work —
// wakeup thoughts go through the identical DMA/conscience/dispatch
// chain as any other thought.
type WakeupProcessor struct {
	Engine    *Engine
	Machine   Machine
	ChannelID string

	rounds int
}

func NewWakeupProcessor(engine *Engine, machine Machine, channelID string) *WakeupProcessor {
	return &WakeupProcessor{Engine: engine, Machine: machine, ChannelID: channelID}
}

func (p *WakeupProcessor) Initialize(ctx context.Context) error {
	_, err := p.Engine.Tasks.Store.GetTask(ctx, coretask.WakeupRootID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, coretask.ErrNotFound) {
		return err
	}
	_, err = p.Engine.Tasks.CreateWakeupSequence(ctx, p.ChannelID)
	return err
}

func (p *WakeupProcessor) Process(ctx context.Context, round int) (Result, error) {
	p.rounds++
	result, err := p.Engine.RunBatch(ctx, round, DefaultBatchSize)
	if err != nil {
		return result, err
	}

	complete, err := p.allStepsComplete(ctx)
	if err != nil {
		return result, err
	}
	if complete {
		p.Machine.SetWakeupComplete(true)
		result.Notes = "wakeup sequence complete"
	}
	return result, nil
}

func (p *WakeupProcessor) allStepsComplete(ctx context.Context) (bool, error) {
	for _, id := range wakeupStepIDs {
		t, err := p.Engine.Tasks.Store.GetTask(ctx, string(id))
		if err != nil {
			return false, err
		}
		if t.Status != coretask.StatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

func (p *WakeupProcessor) Cleanup(context.Context) error { return nil }

func (p *WakeupProcessor) GetSupportedStates() []state.State { return wakeupSupportedStates }

func (p *WakeupProcessor) CanProcess(s state.State) bool { return supports(wakeupSupportedStates, s) }

func (p *WakeupProcessor) GetStatus() Status {
	return Status{State: state.StateWakeup, RoundsCompleted: p.rounds, SupportedStates: wakeupSupportedStates}
}
