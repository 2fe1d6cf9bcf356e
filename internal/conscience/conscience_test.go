package conscience

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-core/internal/dma"
	"github.com/ciris-ai/ciris-core/internal/llm/llmtest"
	"github.com/ciris-ai/ciris-core/internal/snapshot"
	coretask "github.com/ciris-ai/ciris-core/internal/task"
	corethought "github.com/ciris-ai/ciris-core/internal/thought"
)

type fixedCheck struct {
	name    string
	outcome Outcome
}

func (f fixedCheck) Name() string { return f.name }
func (f fixedCheck) Evaluate(context.Context, *dma.ActionSelectionResult, *corethought.Thought, *snapshot.SystemSnapshot) Outcome {
	o := f.outcome
	o.CheckName = f.name
	return o
}

func newFixture(t *testing.T) (*coretask.Task, *corethought.Thought, *snapshot.SystemSnapshot) {
	t.Helper()
	tsk, err := coretask.New("greet the user", "test_channel", 1, "")
	require.NoError(t, err)
	th := corethought.New(tsk.ID, "", corethought.TypeSeed, "say hello", 0, 0)
	return tsk, th, &snapshot.SystemSnapshot{}
}

func speakSelection() *dma.ActionSelectionResult {
	return &dma.ActionSelectionResult{SelectedAction: dma.ActionSpeak, Parameters: dma.ActionParameters{Speak: &dma.SpeakParams{Content: "Hello."}}}
}

func TestGuardPassesThroughOnAllPassingChecks(t *testing.T) {
	tsk, th, snap := newFixture(t)
	g := &Guard{Checks: []Check{fixedCheck{name: "policy", outcome: Outcome{Passed: true}}}}

	result := g.Run(context.Background(), speakSelection(), &dma.EvaluatorResults{}, th, tsk, snap)
	assert.Equal(t, dma.ActionSpeak, result.Action.SelectedAction)
	require.Len(t, result.Outcomes, 1)
	assert.True(t, result.Outcomes[0].Passed)
}

func TestGuardOverridesToDeferOnNonOverridableCritical(t *testing.T) {
	tsk, th, snap := newFixture(t)
	g := &Guard{Checks: []Check{
		fixedCheck{name: "policy-x", outcome: Outcome{Passed: false, Severity: SeverityCritical, CanOverride: false, Reason: "policy X"}},
	}}

	result := g.Run(context.Background(), speakSelection(), &dma.EvaluatorResults{}, th, tsk, snap)
	assert.Equal(t, dma.ActionDefer, result.Action.SelectedAction)
	require.NotNil(t, result.Action.Parameters.Defer)
	assert.Equal(t, "policy X", result.Action.Parameters.Defer.Reason)
	require.Len(t, result.Outcomes, 1)
	assert.True(t, result.Outcomes[0].Overridden)
}

func TestGuardRecursivelyReevaluatesOnErrorThenSucceeds(t *testing.T) {
	tsk, th, snap := newFixture(t)
	actionFake := llmtest.New("")
	actionFake.Enqueue(llmtest.Response{Text: `{"selected_action":"SPEAK","action_parameters":{"content":"Hi there."},"rationale":"revised"}`})

	calls := 0
	check := checkFunc(func(_ context.Context, action *dma.ActionSelectionResult, _ *corethought.Thought, _ *snapshot.SystemSnapshot) Outcome {
		calls++
		if calls == 1 {
			return Outcome{CheckName: "tone", Passed: false, Severity: SeverityError, Reason: "tone too curt"}
		}
		return Outcome{CheckName: "tone", Passed: true}
	})

	g := &Guard{
		Checks:          []Check{check},
		ActionSelection: &dma.ActionSelectionEvaluator{LLM: actionFake, Config: dma.DefaultConfig(), Profile: dma.Profile{PermittedActions: dma.AllActions}},
	}

	result := g.Run(context.Background(), speakSelection(), &dma.EvaluatorResults{}, th, tsk, snap)
	assert.Equal(t, dma.ActionSpeak, result.Action.SelectedAction)
	require.NotNil(t, result.Action.Parameters.Speak)
	assert.Equal(t, "Hi there.", result.Action.Parameters.Speak.Content)
	require.Len(t, result.Outcomes, 2)
}

func TestGuardForcesPonderWhenErrorPersistsAfterReevaluation(t *testing.T) {
	tsk, th, snap := newFixture(t)
	actionFake := llmtest.New("")
	actionFake.Enqueue(llmtest.Response{Text: `{"selected_action":"SPEAK","action_parameters":{"content":"Still curt."},"rationale":"revised"}`})

	check := checkFunc(func(context.Context, *dma.ActionSelectionResult, *corethought.Thought, *snapshot.SystemSnapshot) Outcome {
		return Outcome{CheckName: "tone", Passed: false, Severity: SeverityError, Reason: "tone too curt"}
	})

	g := &Guard{
		Checks:          []Check{check},
		ActionSelection: &dma.ActionSelectionEvaluator{LLM: actionFake, Config: dma.DefaultConfig(), Profile: dma.Profile{PermittedActions: dma.AllActions}},
	}

	result := g.Run(context.Background(), speakSelection(), &dma.EvaluatorResults{}, th, tsk, snap)
	assert.Equal(t, dma.ActionPonder, result.Action.SelectedAction)
}

type checkFunc func(context.Context, *dma.ActionSelectionResult, *corethought.Thought, *snapshot.SystemSnapshot) Outcome

func (f checkFunc) Name() string { return "checkFunc" }
func (f checkFunc) Evaluate(ctx context.Context, action *dma.ActionSelectionResult, th *corethought.Thought, snap *snapshot.SystemSnapshot) Outcome {
	return f(ctx, action, th, snap)
}
