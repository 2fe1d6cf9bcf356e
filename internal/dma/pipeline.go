package dma

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ciris-ai/ciris-core/internal/llm"
	"github.com/ciris-ai/ciris-core/internal/observability"
	"github.com/ciris-ai/ciris-core/internal/snapshot"
	"github.com/ciris-ai/ciris-core/internal/task"
	"github.com/ciris-ai/ciris-core/internal/thought"
)

// Pipeline wires the four DMA evaluators together: ethical, common
// sense, and domain run concurrently, then action selection awaits all
// three — the ordering guarantee spec.md §5 states explicitly.
// Grounded on the teacher's workflowagent.ParallelAgent concurrent
// fan-out (golang.org/x/sync/errgroup), specialized to the DMA's fixed
// three-then-one shape.
type Pipeline struct {
	Ethical         *EthicalEvaluator
	CommonSense     *CommonSenseEvaluator
	Domain          *DomainEvaluator
	ActionSelection *ActionSelectionEvaluator
}

// New builds a Pipeline sharing one LLM service, metrics sink, call
// config, and agent profile across all four evaluators.
func New(svc llm.Service, metrics *observability.Metrics, cfg Config, profile Profile) *Pipeline {
	return &Pipeline{
		Ethical:         &EthicalEvaluator{LLM: svc, Metrics: metrics, Config: cfg},
		CommonSense:     &CommonSenseEvaluator{LLM: svc, Metrics: metrics, Config: cfg},
		Domain:          &DomainEvaluator{LLM: svc, Metrics: metrics, Config: cfg, Profile: profile},
		ActionSelection: &ActionSelectionEvaluator{LLM: svc, Metrics: metrics, Config: cfg, Profile: profile},
	}
}

// Evaluate runs the full pipeline for one thought, returning both the
// three evaluators' raw results (for conscience/audit) and the final
// action-selection result.
func (p *Pipeline) Evaluate(ctx context.Context, th *thought.Thought, tsk *task.Task, snap *snapshot.SystemSnapshot) (*ActionSelectionResult, *EvaluatorResults) {
	results := &EvaluatorResults{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results.Ethical = p.Ethical.Evaluate(gctx, th, tsk, snap)
		return nil
	})
	g.Go(func() error {
		results.CommonSense = p.CommonSense.Evaluate(gctx, th, tsk, snap)
		return nil
	})
	g.Go(func() error {
		results.Domain = p.Domain.Evaluate(gctx, th, tsk, snap)
		return nil
	})
	// None of the three evaluators returns an error (they self-resolve
	// to fallback results), so Wait only propagates ctx cancellation.
	_ = g.Wait()

	selection := p.ActionSelection.Evaluate(ctx, results, th, tsk, snap, "")
	return selection, results
}
