package dma

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-core/internal/llm/llmtest"
	"github.com/ciris-ai/ciris-core/internal/snapshot"
	coretask "github.com/ciris-ai/ciris-core/internal/task"
	corethought "github.com/ciris-ai/ciris-core/internal/thought"
)

func newFixture(t *testing.T) (*coretask.Task, *corethought.Thought, *snapshot.SystemSnapshot) {
	t.Helper()
	tsk, err := coretask.New("greet the user", "test_channel", 1, "")
	require.NoError(t, err)
	th := corethought.New(tsk.ID, "", corethought.TypeSeed, "say hello", 0, 0)
	snap := &snapshot.SystemSnapshot{Channel: snapshot.ChannelContext{ChannelID: "test_channel", Resolved: true}}
	return tsk, th, snap
}

func fullProfile() Profile {
	return Profile{DomainID: "general", PermittedActions: AllActions}
}

func TestPipelineHappyPathSelectsSpeak(t *testing.T) {
	tsk, th, snap := newFixture(t)

	ethicalFake := llmtest.New("")
	ethicalFake.Enqueue(llmtest.Response{Text: `{"context":"ok","alignment_check":"aligned","decision":"proceed"}`})
	csFake := llmtest.New("")
	csFake.Enqueue(llmtest.Response{Text: `{"plausibility_score":0.9,"reasoning":"sensible"}`})
	domainFake := llmtest.New("")
	domainFake.Enqueue(llmtest.Response{Text: `{"domain":"general","score":0.8,"reasoning":"fits"}`})
	actionFake := llmtest.New("")
	actionFake.Enqueue(llmtest.Response{Text: `{"selected_action":"SPEAK","action_parameters":{"content":"Hello."},"rationale":"greet back"}`})

	p := &Pipeline{
		Ethical:         &EthicalEvaluator{LLM: ethicalFake, Config: DefaultConfig()},
		CommonSense:     &CommonSenseEvaluator{LLM: csFake, Config: DefaultConfig()},
		Domain:          &DomainEvaluator{LLM: domainFake, Config: DefaultConfig(), Profile: fullProfile()},
		ActionSelection: &ActionSelectionEvaluator{LLM: actionFake, Config: DefaultConfig(), Profile: fullProfile()},
	}

	selection, results := p.Evaluate(context.Background(), th, tsk, snap)

	require.NotNil(t, results.Ethical)
	require.NotNil(t, results.CommonSense)
	require.NotNil(t, results.Domain)
	assert.Equal(t, ActionSpeak, selection.SelectedAction)
	require.NotNil(t, selection.Parameters.Speak)
	assert.Equal(t, "Hello.", selection.Parameters.Speak.Content)
}

func TestActionSelectionFallsBackToPonderOnValidationFailure(t *testing.T) {
	tsk, th, _ := newFixture(t)
	actionFake := llmtest.New("")
	actionFake.Enqueue(llmtest.Response{Text: `{"selected_action":"MEMORIZE","action_parameters":{},"rationale":"remember this"}`})

	e := &ActionSelectionEvaluator{LLM: actionFake, Config: DefaultConfig(), Profile: fullProfile()}
	result := e.Evaluate(context.Background(), &EvaluatorResults{}, th, tsk, &snapshot.SystemSnapshot{}, "")

	assert.Equal(t, ActionPonder, result.SelectedAction)
	require.NotNil(t, result.Parameters.Ponder)
	assert.Contains(t, result.Parameters.Ponder.KeyQuestions[0], "validation failed")
	assert.True(t, result.HasFlag(FlagInstructorValidationError))
}

func TestActionSelectionEmptyPermittedSetYieldsDefer(t *testing.T) {
	tsk, th, _ := newFixture(t)
	e := &ActionSelectionEvaluator{LLM: llmtest.New(""), Config: DefaultConfig(), Profile: Profile{}}
	result := e.Evaluate(context.Background(), &EvaluatorResults{}, th, tsk, &snapshot.SystemSnapshot{}, "")

	assert.Equal(t, ActionDefer, result.SelectedAction)
	require.NotNil(t, result.Parameters.Defer)
}

func TestActionSelectionRejectsUnpermittedAction(t *testing.T) {
	tsk, th, _ := newFixture(t)
	actionFake := llmtest.New("")
	actionFake.Enqueue(llmtest.Response{Text: `{"selected_action":"TOOL","action_parameters":{"tool_name":"x"},"rationale":"use tool"}`})

	e := &ActionSelectionEvaluator{LLM: actionFake, Config: DefaultConfig(), Profile: Profile{PermittedActions: []ActionType{ActionSpeak}}}
	result := e.Evaluate(context.Background(), &EvaluatorResults{}, th, tsk, &snapshot.SystemSnapshot{}, "")

	assert.Equal(t, ActionPonder, result.SelectedAction)
}

func TestEthicalEvaluatorFallsBackOnTransportFailure(t *testing.T) {
	tsk, th, snap := newFixture(t)
	fake := llmtest.New("")
	fake.Enqueue(llmtest.Response{Err: assertError("boom")})

	e := &EthicalEvaluator{LLM: fake, Config: Config{RetryLimit: 0, Timeout: DefaultConfig().Timeout}}
	result := e.Evaluate(context.Background(), th, tsk, snap)

	assert.Equal(t, "defer_to_ponder", result.Decision)
	assert.Equal(t, FlagInstructorValidationError, result.Monitoring["flag"])
}

type assertError string

func (e assertError) Error() string { return string(e) }
