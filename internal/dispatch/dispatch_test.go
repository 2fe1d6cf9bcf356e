package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-core/internal/dma"
	"github.com/ciris-ai/ciris-core/internal/errs"
	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/registry"
	coretask "github.com/ciris-ai/ciris-core/internal/task"
	corethought "github.com/ciris-ai/ciris-core/internal/thought"
)

type fakeActionService struct {
	resp map[string]graph.AttrValue
	err  error
	got  DispatchContext
}

func (f *fakeActionService) Invoke(_ context.Context, dctx DispatchContext, _ dma.ActionParameters) (map[string]graph.AttrValue, error) {
	f.got = dctx
	return f.resp, f.err
}

type fakeAudit struct {
	calls int
	err   error
}

func (f *fakeAudit) LogAction(context.Context, string, DispatchContext, map[string]graph.AttrValue, error) error {
	f.calls++
	return f.err
}

type fakeTaskStore struct {
	coretask.Store
	tasks map[string]*coretask.Task
}

func newFakeTaskStore(tasks ...*coretask.Task) *fakeTaskStore {
	m := make(map[string]*coretask.Task, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t
	}
	return &fakeTaskStore{tasks: m}
}

func (f *fakeTaskStore) UpdateTask(_ context.Context, t *coretask.Task) error {
	f.tasks[t.ID] = t
	return nil
}

type fakeThoughtStore struct {
	corethought.Store
	thoughts map[string]*corethought.Thought
}

func newFakeThoughtStore() *fakeThoughtStore {
	return &fakeThoughtStore{thoughts: map[string]*corethought.Thought{}}
}

func (f *fakeThoughtStore) UpdateThought(_ context.Context, t *corethought.Thought) error {
	f.thoughts[t.ID] = t
	return nil
}

func (f *fakeThoughtStore) InsertThought(_ context.Context, t *corethought.Thought) error {
	f.thoughts[t.ID] = t
	return nil
}

func newFixtureTaskThought(t *testing.T) (*coretask.Task, *corethought.Thought) {
	t.Helper()
	tsk, err := coretask.New("greet the channel", "chan-1", 1, "")
	require.NoError(t, err)
	tsk.Status = coretask.StatusActive
	th := corethought.New(tsk.ID, "", corethought.TypeStandard, "say hello", 0, 0)
	return tsk, th
}

func baseDispatchContext(channel string) DispatchContext {
	return DispatchContext{ChannelID: channel, HandlerName: "test-handler"}
}

func TestDispatchSpeakHappyPath(t *testing.T) {
	bus := registry.NewServiceBus()
	svc := &fakeActionService{resp: map[string]graph.AttrValue{"sent": graph.BoolAttr(true)}}
	require.NoError(t, bus.Comm.Register("cli-adapter", svc, 10, []string{"speak"}, registry.BreakerConfig{}))

	tasks := newFakeTaskStore()
	thoughts := newFakeThoughtStore()
	audit := &fakeAudit{}
	d := &Dispatcher{Services: bus, Tasks: tasks, Thoughts: thoughts, Audit: audit}

	tsk, th := newFixtureTaskThought(t)
	selection := &dma.ActionSelectionResult{SelectedAction: dma.ActionSpeak, Parameters: dma.ActionParameters{Speak: &dma.SpeakParams{Content: "hi"}}, Rationale: "greeting"}

	err := d.Dispatch(context.Background(), selection, th, tsk, baseDispatchContext("chan-1"))
	require.NoError(t, err)

	assert.Equal(t, corethought.StatusCompleted, thoughts.thoughts[th.ID].Status)
	require.NotNil(t, thoughts.thoughts[th.ID].FinalAction)
	assert.Equal(t, "SPEAK", thoughts.thoughts[th.ID].FinalAction.ActionType)
	assert.Equal(t, 1, audit.calls)
	assert.Equal(t, "chan-1", svc.got.ChannelID)
}

func TestDispatchTaskCompleteMarksSourceTask(t *testing.T) {
	bus := registry.NewServiceBus()
	tsk, th := newFixtureTaskThought(t)
	tasks := newFakeTaskStore(tsk)
	thoughts := newFakeThoughtStore()
	d := &Dispatcher{Services: bus, Tasks: tasks, Thoughts: thoughts}

	selection := &dma.ActionSelectionResult{SelectedAction: dma.ActionTaskComplete, Parameters: dma.ActionParameters{Complete: &dma.TaskCompleteParams{Summary: "done"}}, Rationale: "done"}

	err := d.Dispatch(context.Background(), selection, th, tsk, baseDispatchContext("chan-1"))
	require.NoError(t, err)

	assert.Equal(t, coretask.StatusCompleted, tasks.tasks[tsk.ID].Status)
	require.NotNil(t, tasks.tasks[tsk.ID].Outcome)
	assert.Equal(t, corethought.StatusCompleted, thoughts.thoughts[th.ID].Status)
}

func TestDispatchDeferLeavesTaskActive(t *testing.T) {
	bus := registry.NewServiceBus()
	tsk, th := newFixtureTaskThought(t)
	tasks := newFakeTaskStore(tsk)
	thoughts := newFakeThoughtStore()
	d := &Dispatcher{Services: bus, Tasks: tasks, Thoughts: thoughts}

	selection := &dma.ActionSelectionResult{SelectedAction: dma.ActionDefer, Parameters: dma.ActionParameters{Defer: &dma.DeferParams{Reason: "needs guidance"}}}

	err := d.Dispatch(context.Background(), selection, th, tsk, baseDispatchContext("chan-1"))
	require.NoError(t, err)

	assert.Equal(t, corethought.StatusDeferred, thoughts.thoughts[th.ID].Status)
	assert.Equal(t, coretask.StatusActive, tasks.tasks[tsk.ID].Status)
}

func TestDispatchMissingChannelIDIsFatal(t *testing.T) {
	d := &Dispatcher{Services: registry.NewServiceBus(), Tasks: newFakeTaskStore(), Thoughts: newFakeThoughtStore()}
	tsk, th := newFixtureTaskThought(t)
	selection := &dma.ActionSelectionResult{SelectedAction: dma.ActionSpeak, Parameters: dma.ActionParameters{Speak: &dma.SpeakParams{Content: "hi"}}}

	err := d.Dispatch(context.Background(), selection, th, tsk, DispatchContext{})
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindDispatchFailure, kind)
}

func TestDispatchNoCapableServiceFailsThought(t *testing.T) {
	bus := registry.NewServiceBus()
	tasks := newFakeTaskStore()
	thoughts := newFakeThoughtStore()
	d := &Dispatcher{Services: bus, Tasks: tasks, Thoughts: thoughts}

	tsk, th := newFixtureTaskThought(t)
	selection := &dma.ActionSelectionResult{SelectedAction: dma.ActionSpeak, Parameters: dma.ActionParameters{Speak: &dma.SpeakParams{Content: "hi"}}}

	err := d.Dispatch(context.Background(), selection, th, tsk, baseDispatchContext("chan-1"))
	require.NoError(t, err) // Dispatch itself only errors on audit/persistence failure
	assert.Equal(t, corethought.StatusFailed, thoughts.thoughts[th.ID].Status)
}

func TestDispatchRecordsBreakerOutcome(t *testing.T) {
	bus := registry.NewServiceBus()
	svc := &fakeActionService{err: errs.New(errs.KindDispatchFailure, "boom")}
	require.NoError(t, bus.Comm.Register("cli-adapter", svc, 10, []string{"speak"}, registry.BreakerConfig{MaxFailures: 1}))

	tasks := newFakeTaskStore()
	thoughts := newFakeThoughtStore()
	d := &Dispatcher{Services: bus, Tasks: tasks, Thoughts: thoughts}

	tsk, th := newFixtureTaskThought(t)
	selection := &dma.ActionSelectionResult{SelectedAction: dma.ActionSpeak, Parameters: dma.ActionParameters{Speak: &dma.SpeakParams{Content: "hi"}}}

	require.NoError(t, d.Dispatch(context.Background(), selection, th, tsk, baseDispatchContext("chan-1")))
	assert.Equal(t, corethought.StatusFailed, thoughts.thoughts[th.ID].Status)

	health := bus.Comm.Health()
	assert.Equal(t, registry.StateOpen, health["cli-adapter"])
}

func TestDispatchPureActionsNeedNoService(t *testing.T) {
	for _, action := range []dma.ActionType{dma.ActionPonder, dma.ActionReject} {
		bus := registry.NewServiceBus()
		tasks := newFakeTaskStore()
		thoughts := newFakeThoughtStore()
		d := &Dispatcher{Services: bus, Tasks: tasks, Thoughts: thoughts}

		tsk, th := newFixtureTaskThought(t)
		selection := &dma.ActionSelectionResult{SelectedAction: action, Parameters: dma.ActionParameters{Ponder: &dma.PonderParams{KeyQuestions: []string{"why?"}}, Reject: &dma.RejectParams{Reason: "no"}}}

		err := d.Dispatch(context.Background(), selection, th, tsk, baseDispatchContext("chan-1"))
		require.NoError(t, err)
		assert.Equal(t, corethought.StatusCompleted, thoughts.thoughts[th.ID].Status)
	}
}

// TestDispatchPonderRequeuesChildThought covers the PONDER follow-up
// mechanic: a PONDER within the depth bound leaves th COMPLETED but
// inserts a PENDING child one depth below, seeded from key_questions,
// so the source task's lineage keeps advancing.
func TestDispatchPonderRequeuesChildThought(t *testing.T) {
	bus := registry.NewServiceBus()
	tasks := newFakeTaskStore()
	thoughts := newFakeThoughtStore()
	d := &Dispatcher{Services: bus, Tasks: tasks, Thoughts: thoughts}

	tsk, th := newFixtureTaskThought(t)
	selection := &dma.ActionSelectionResult{SelectedAction: dma.ActionPonder, Parameters: dma.ActionParameters{Ponder: &dma.PonderParams{KeyQuestions: []string{"why?"}}}}

	err := d.Dispatch(context.Background(), selection, th, tsk, baseDispatchContext("chan-1"))
	require.NoError(t, err)
	assert.Equal(t, corethought.StatusCompleted, thoughts.thoughts[th.ID].Status)

	var child *corethought.Thought
	for _, c := range thoughts.thoughts {
		if c.ParentThoughtID == th.ID {
			child = c
		}
	}
	require.NotNil(t, child, "PONDER must insert a follow-up thought")
	assert.Equal(t, corethought.StatusPending, child.Status)
	assert.Equal(t, th.ThoughtDepth+1, child.ThoughtDepth)
	assert.Equal(t, th.SourceTaskID, child.SourceTaskID)
	assert.Contains(t, child.Content, "why?")
}

// TestDispatchPonderAutoDefersPastDepthBound is the boundary test:
// with MaxThoughtDepth=1, a lineage's second PONDER (th already at
// depth 1) auto-defers instead of requeuing a depth-2 child.
func TestDispatchPonderAutoDefersPastDepthBound(t *testing.T) {
	bus := registry.NewServiceBus()
	tsk, th := newFixtureTaskThought(t)
	th.ThoughtDepth = 1
	tasks := newFakeTaskStore(tsk)
	thoughts := newFakeThoughtStore()
	d := &Dispatcher{Services: bus, Tasks: tasks, Thoughts: thoughts, MaxThoughtDepth: 1}
	selection := &dma.ActionSelectionResult{SelectedAction: dma.ActionPonder, Parameters: dma.ActionParameters{Ponder: &dma.PonderParams{KeyQuestions: []string{"still unsure"}}}}

	err := d.Dispatch(context.Background(), selection, th, tsk, baseDispatchContext("chan-1"))
	require.NoError(t, err)

	assert.Equal(t, corethought.StatusDeferred, thoughts.thoughts[th.ID].Status)
	require.NotNil(t, thoughts.thoughts[th.ID].FinalAction)
	assert.Equal(t, "DEFER", thoughts.thoughts[th.ID].FinalAction.ActionType)
	for _, c := range thoughts.thoughts {
		assert.NotEqual(t, th.ID, c.ParentThoughtID, "no child thought should be requeued past the depth bound")
	}
	assert.Equal(t, coretask.StatusActive, tasks.tasks[tsk.ID].Status)
}
