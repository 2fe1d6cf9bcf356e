package processor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-core/internal/conscience"
	"github.com/ciris-ai/ciris-core/internal/dispatch"
	"github.com/ciris-ai/ciris-core/internal/dma"
	"github.com/ciris-ai/ciris-core/internal/llm/llmtest"
	"github.com/ciris-ai/ciris-core/internal/persistence/sqlite"
	"github.com/ciris-ai/ciris-core/internal/processor"
	"github.com/ciris-ai/ciris-core/internal/registry"
	"github.com/ciris-ai/ciris-core/internal/snapshot"
	"github.com/ciris-ai/ciris-core/internal/state"
	coretask "github.com/ciris-ai/ciris-core/internal/task"
	corethought "github.com/ciris-ai/ciris-core/internal/thought"
)

// passingPipeline builds a DMA pipeline whose Ethical/CommonSense/Domain
// evaluators always pass, with the given action-selection response
// driving the round under test. Mirrors round_test.go's newTestEngine
// pipeline wiring.
func passingPipeline(actionSelectionJSON string) *dma.Pipeline {
	profile := dma.Profile{PermittedActions: dma.AllActions}
	p := dma.New(nil, nil, dma.DefaultConfig(), profile)
	p.Ethical = &dma.EthicalEvaluator{LLM: llmtest.New(`{"context":"c","alignment_check":"ok","decision":"proceed","monitoring":{}}`), Config: dma.DefaultConfig()}
	p.CommonSense = &dma.CommonSenseEvaluator{LLM: llmtest.New(`{"plausibility_score":0.9,"flags":[],"reasoning":"fine"}`), Config: dma.DefaultConfig()}
	p.Domain = &dma.DomainEvaluator{LLM: llmtest.New(`{"domain":"general","score":0.9,"flags":[],"reasoning":"fine"}`), Config: dma.DefaultConfig()}
	p.ActionSelection = &dma.ActionSelectionEvaluator{LLM: llmtest.New(actionSelectionJSON), Config: dma.DefaultConfig(), Profile: profile}
	return p
}

// TestWakeupSequenceCompletesWithinRoundBudget is end-to-end scenario 1:
// a fresh wakeup sequence runs to completion through the ordinary
// Engine.RunBatch path, driving all five step tasks to COMPLETED and
// flipping wakeup_complete, within spec.md §8's 20-round budget.
func TestWakeupSequenceCompletesWithinRoundBudget(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tasks := coretask.NewManager(db, 10)
	engine := &processor.Engine{
		Tasks:         tasks,
		Thoughts:      corethought.NewManager(db, db, 50),
		Snapshots:     &snapshot.Builder{Tasks: db, Thoughts: db, Graph: db},
		DMA:           passingPipeline(`{"selected_action":"TASK_COMPLETE","rationale":"step affirmed"}`),
		Guard:         &conscience.Guard{},
		Dispatch:      &dispatch.Dispatcher{Services: registry.NewServiceBus(), Tasks: db, Thoughts: db},
		HandlerName:   "wakeup",
		OriginService: "wakeup",
	}

	machine := state.New()
	machine.Transition(state.StateWakeup)
	wp := processor.NewWakeupProcessor(engine, machine, "home")
	require.NoError(t, wp.Initialize(ctx))

	completed := false
	for round := 0; round < 20 && !completed; round++ {
		_, err := wp.Process(ctx, round)
		require.NoError(t, err)
		if to, ok := machine.ShouldAutoTransition(); ok {
			machine.Transition(to)
			completed = true
		}
	}

	require.True(t, completed, "wakeup must complete within the 20-round budget")
	assert.Equal(t, state.StateWork, machine.Current())

	steps := []coretask.WakeupStepID{
		coretask.StepVerifyIdentity,
		coretask.StepValidateIntegrity,
		coretask.StepEvaluateResilience,
		coretask.StepAcceptIncompleteness,
		coretask.StepExpressGratitude,
	}
	for _, id := range steps {
		st, err := tasks.Store.GetTask(ctx, string(id))
		require.NoError(t, err)
		assert.Equal(t, coretask.StatusCompleted, st.Status, "step %s must be COMPLETED", id)
	}
}

// TestActionSelectionPondersOnValidationFailure is end-to-end scenario 3:
// an ActionSelection response choosing MEMORIZE without the required
// knowledge_unit_description falls back to PONDER with a key question
// naming the validation failure. The thought itself reaches
// StatusCompleted for this round, but dispatch requeues a PENDING
// follow-up thought one depth deeper (dispatch.Dispatcher.requeuePonder)
// so the source task's lineage keeps advancing and the task stays
// ACTIVE rather than going dead.
func TestActionSelectionPondersOnValidationFailure(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tasks := coretask.NewManager(db, 10)
	engine := &processor.Engine{
		Tasks:         tasks,
		Thoughts:      corethought.NewManager(db, db, 50),
		Snapshots:     &snapshot.Builder{Tasks: db, Thoughts: db, Graph: db},
		DMA:           passingPipeline(`{"selected_action":"MEMORIZE","action_parameters":{"data":{}},"rationale":"remember this"}`),
		Guard:         &conscience.Guard{},
		Dispatch:      &dispatch.Dispatcher{Services: registry.NewServiceBus(), Tasks: db, Thoughts: db},
		HandlerName:   "work",
		OriginService: "work-adapter",
	}

	tsk, err := tasks.CreateTask(ctx, "remember something important", "chan-1", 5, "")
	require.NoError(t, err)

	result, err := engine.RunBatch(ctx, 1, processor.DefaultBatchSize)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ThoughtsProcessed)

	thoughts, err := db.GetThoughtsByTask(ctx, tsk.ID)
	require.NoError(t, err)
	require.Len(t, thoughts, 2, "the original thought plus its requeued PONDER follow-up")

	var th, child *corethought.Thought
	for _, candidate := range thoughts {
		if candidate.ParentThoughtID == "" {
			th = candidate
		} else {
			child = candidate
		}
	}
	require.NotNil(t, th)
	require.NotNil(t, child, "PONDER must requeue a follow-up thought")

	require.NotNil(t, th.FinalAction)
	assert.Equal(t, string(dma.ActionPonder), th.FinalAction.ActionType)
	assert.Equal(t, corethought.StatusCompleted, th.Status)

	questions, ok := th.FinalAction.Params["key_questions"]
	require.True(t, ok, "PONDER outcome must record key_questions")
	require.NotEmpty(t, questions.List)
	assert.Contains(t, questions.List[0].Str, "validation")

	assert.Equal(t, corethought.StatusPending, child.Status)
	assert.Equal(t, th.ThoughtDepth+1, child.ThoughtDepth)
	assert.Equal(t, th.ID, child.ParentThoughtID)
	assert.Contains(t, child.Content, "validation")

	reloaded, err := tasks.Store.GetTask(ctx, tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, coretask.StatusActive, reloaded.Status, "task must remain ACTIVE after a PONDER")
}

// TestConscienceCriticalVetoOverridesToDefer is end-to-end scenario 4:
// a non-overridable critical conscience check vetoes SPEAK, and Guard.Run
// overrides the action to DEFER per spec.md §4.6.
func TestConscienceCriticalVetoOverridesToDefer(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tasks := coretask.NewManager(db, 10)
	engine := &processor.Engine{
		Tasks:         tasks,
		Thoughts:      corethought.NewManager(db, db, 50),
		Snapshots:     &snapshot.Builder{Tasks: db, Thoughts: db, Graph: db},
		DMA:           passingPipeline(`{"selected_action":"SPEAK","action_parameters":{"content":"hi there"},"rationale":"greeting"}`),
		Guard:         &conscience.Guard{Checks: []conscience.Check{&speakVetoCheck{}}},
		Dispatch:      &dispatch.Dispatcher{Services: registry.NewServiceBus(), Tasks: db, Thoughts: db},
		HandlerName:   "work",
		OriginService: "work-adapter",
	}

	tsk, err := tasks.CreateTask(ctx, "greet the channel", "chan-1", 5, "")
	require.NoError(t, err)

	result, err := engine.RunBatch(ctx, 1, processor.DefaultBatchSize)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ThoughtsProcessed)

	thoughts, err := db.GetThoughtsByTask(ctx, tsk.ID)
	require.NoError(t, err)
	require.Len(t, thoughts, 1)
	th := thoughts[0]

	require.NotNil(t, th.FinalAction)
	assert.Equal(t, string(dma.ActionDefer), th.FinalAction.ActionType)
	assert.Equal(t, corethought.StatusDeferred, th.Status)

	reloaded, err := tasks.Store.GetTask(ctx, tsk.ID)
	require.NoError(t, err)
	assert.Equal(t, coretask.StatusActive, reloaded.Status, "task must remain ACTIVE after a DEFER")
}

// speakVetoCheck is a test-only conscience.Check standing in for a
// registered guardrail; no concrete Check ships in this codebase yet
// (see DESIGN.md).
type speakVetoCheck struct{}

func (c *speakVetoCheck) Name() string { return "speak-veto" }

func (c *speakVetoCheck) Evaluate(_ context.Context, action *dma.ActionSelectionResult, _ *corethought.Thought, _ *snapshot.SystemSnapshot) conscience.Outcome {
	if action.SelectedAction != dma.ActionSpeak {
		return conscience.Outcome{CheckName: "speak-veto", Passed: true}
	}
	return conscience.Outcome{
		CheckName:   "speak-veto",
		Passed:      false,
		Severity:    conscience.SeverityCritical,
		Reason:      "policy X",
		CanOverride: false,
	}
}
