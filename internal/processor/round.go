package processor

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ciris-ai/ciris-core/internal/conscience"
	"github.com/ciris-ai/ciris-core/internal/dispatch"
	"github.com/ciris-ai/ciris-core/internal/dma"
	"github.com/ciris-ai/ciris-core/internal/observability"
	"github.com/ciris-ai/ciris-core/internal/snapshot"
	coretask "github.com/ciris-ai/ciris-core/internal/task"
	corethought "github.com/ciris-ai/ciris-core/internal/thought"
)

// DefaultBatchSize is the Work/Play per-round thought batch size
// spec.md §4.8 names.
const DefaultBatchSize = 5

// Engine bundles every dependency a round of thought processing needs:
// task/thought managers for queue bookkeeping, the context builder for
// snapshots, the DMA pipeline, the conscience guard, and the
// dispatcher. Wakeup/Work/Play all drive the same Engine; Solitude and
// Dream use only the parts they need.
type Engine struct {
	Tasks     *coretask.Manager
	Thoughts  *corethought.Manager
	Snapshots *snapshot.Builder
	DMA       *dma.Pipeline
	Guard     *conscience.Guard
	Dispatch  *dispatch.Dispatcher
	Metrics   *observability.Metrics

	HandlerName   string
	OriginService string
}

// RunBatch executes one round: activate pending tasks, seed thoughts
// for tasks that need one, populate the queue, then process up to
// batchSize thoughts end to end (context build -> DMA -> conscience ->
// dispatch). Grounded on spec.md §4.8's Work processor phase list.
func (e *Engine) RunBatch(ctx context.Context, round, batchSize int) (Result, error) {
	activated, err := e.Tasks.ActivatePendingTasks(ctx)
	if err != nil {
		return Result{}, err
	}

	needingSeed, err := e.Tasks.GetTasksNeedingSeed(ctx, batchSize)
	if err != nil {
		return Result{}, err
	}
	if _, err := e.Thoughts.GenerateSeedThoughts(ctx, needingSeed, round); err != nil {
		return Result{}, err
	}

	queued, err := e.Thoughts.PopulateQueue(ctx, round)
	if err != nil {
		return Result{}, err
	}
	if len(queued) > batchSize {
		queued = queued[:batchSize]
	}
	if len(queued) == 0 {
		return Result{TasksActivated: activated, Idle: true}, nil
	}

	if _, err := e.Thoughts.MarkThoughtsProcessing(ctx, queued, round); err != nil {
		return Result{}, err
	}

	batch, err := e.Snapshots.BuildBatch(ctx)
	if err != nil {
		return Result{}, err
	}

	processed := 0
	for _, th := range queued {
		if err := e.processOne(ctx, round, batch, th); err != nil {
			_ = e.Thoughts.FailThought(ctx, th, "processing_failure", err.Error())
			continue
		}
		processed++
	}
	if e.Metrics != nil {
		e.Metrics.RecordRound()
	}

	return Result{ThoughtsProcessed: processed, TasksActivated: activated}, nil
}

// processOne runs the full context-build -> DMA -> conscience ->
// dispatch chain for a single thought.
func (e *Engine) processOne(ctx context.Context, round int, batch *snapshot.Batch, th *corethought.Thought) error {
	tsk, err := e.Tasks.Store.GetTask(ctx, th.SourceTaskID)
	if err != nil {
		return err
	}

	tctx, err := e.Snapshots.BuildForThought(ctx, batch, th)
	if err != nil {
		return err
	}

	selection, results := e.DMA.Evaluate(ctx, th, tsk, tctx.Snapshot)

	guarded := selection
	var guardrailResult string
	if e.Guard != nil {
		guardResult := e.Guard.Run(ctx, selection, results, th, tsk, tctx.Snapshot)
		guarded = guardResult.Action
		guardrailResult = summarizeOutcomes(guardResult.Outcomes)
	}

	dctx := dispatch.DispatchContext{
		ChannelID:       tctx.Snapshot.Channel.ChannelID,
		AuthorID:        tsk.Context.UserID,
		AuthorName:      tsk.Context.UserName,
		OriginService:   e.OriginService,
		HandlerName:     e.HandlerName,
		ActionType:      string(guarded.SelectedAction),
		ThoughtID:       th.ID,
		TaskID:          tsk.ID,
		SourceTaskID:    th.SourceTaskID,
		EventSummary:    guarded.Rationale,
		EventTimestamp:  time.Now().UTC(),
		CorrelationID:   uuid.NewString(),
		RoundNumber:     round,
		GuardrailResult: guardrailResult,
	}
	return e.Dispatch.Dispatch(ctx, guarded, th, tsk, dctx)
}

// summarizeOutcomes renders conscience.Guard.Run's recorded outcomes
// into the single string dispatch.DispatchContext.GuardrailResult
// carries for the audit trail (spec.md §4.6/§4.7 step 1); passing
// checks are omitted, only failures are worth recording per thought.
func summarizeOutcomes(outcomes []conscience.Outcome) string {
	var failed []string
	for _, o := range outcomes {
		if o.Passed {
			continue
		}
		entry := o.CheckName + ":" + string(o.Severity) + ":" + o.Reason
		if o.Overridden {
			entry += ":overridden"
		}
		failed = append(failed, entry)
	}
	if len(failed) == 0 {
		return "pass:" + strconv.Itoa(len(outcomes))
	}
	return strings.Join(failed, "|")
}
