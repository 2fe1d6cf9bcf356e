package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/observability"
	coretask "github.com/ciris-ai/ciris-core/internal/task"
	corethought "github.com/ciris-ai/ciris-core/internal/thought"
)

type fakeTaskStore struct {
	tasks map[string]*coretask.Task
}

func (f *fakeTaskStore) InsertTask(context.Context, *coretask.Task) error { return nil }
func (f *fakeTaskStore) UpdateTask(context.Context, *coretask.Task) error { return nil }
func (f *fakeTaskStore) GetTask(_ context.Context, id string) (*coretask.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, coretask.ErrNotFound
	}
	return t, nil
}
func (f *fakeTaskStore) GetPendingTasksForActivation(context.Context, int) ([]*coretask.Task, error) {
	return nil, nil
}
func (f *fakeTaskStore) GetTasksNeedingSeedThought(context.Context, int) ([]*coretask.Task, error) {
	return nil, nil
}
func (f *fakeTaskStore) GetRecentCompletedTasks(context.Context, int) ([]*coretask.Task, error) {
	return nil, nil
}
func (f *fakeTaskStore) GetTopTasks(context.Context, int) ([]*coretask.Task, error) { return nil, nil }
func (f *fakeTaskStore) CountActiveTasks(context.Context) (int, error)              { return 0, nil }
func (f *fakeTaskStore) CountTasks(context.Context, coretask.Status) (int, error)   { return 0, nil }
func (f *fakeTaskStore) DeleteTasksByIDs(context.Context, []string) error           { return nil }
func (f *fakeTaskStore) GetTasksOlderThan(context.Context, string) ([]*coretask.Task, error) {
	return nil, nil
}

type fakeGraphStore struct {
	nodes map[string]*graph.Node
	edges map[string][]*graph.Edge
}

func (g *fakeGraphStore) PutNode(context.Context, *graph.Node) error { return nil }
func (g *fakeGraphStore) GetNode(_ context.Context, id string) (*graph.Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, assertNotFound{}
	}
	return n, nil
}
func (g *fakeGraphStore) DeleteNode(context.Context, string) error    { return nil }
func (g *fakeGraphStore) PutEdge(context.Context, *graph.Edge) error  { return nil }
func (g *fakeGraphStore) EdgesFrom(_ context.Context, id string) ([]*graph.Edge, error) {
	return g.edges[id], nil
}
func (g *fakeGraphStore) NodesByType(context.Context, graph.NodeType, graph.Scope) ([]*graph.Node, error) {
	return nil, nil
}

type assertNotFound struct{}

func (assertNotFound) Error() string { return "not found" }

func TestBuildForThoughtResolvesChannelAndEnrichesProfile(t *testing.T) {
	tsk, err := coretask.New("help the user", "channel-1", 1, "")
	require.NoError(t, err)

	th := corethought.New(tsk.ID, "", corethought.TypeStandard, "hello <@42>", 0, 0)

	friendNode := &graph.Node{ID: "user/99", Type: graph.NodeUser, Attributes: graph.Attributes{"name": graph.StringAttr("friend")}}
	userNode := &graph.Node{ID: "user/42", Type: graph.NodeUser, Attributes: graph.Attributes{"name": graph.StringAttr("alice")}}

	b := &Builder{
		Tasks: &fakeTaskStore{tasks: map[string]*coretask.Task{tsk.ID: tsk}},
		Graph: &fakeGraphStore{
			nodes: map[string]*graph.Node{"user/42": userNode, "user/99": friendNode},
			edges: map[string][]*graph.Edge{"user/42": {{Source: "user/42", Target: "user/99", Relationship: graph.RelTemporalNext}}},
		},
		Profile: NoProfileProvider,
	}

	batch := &Batch{Resources: observability.Report{Healthy: true}}
	pctx, err := b.BuildForThought(context.Background(), batch, th)
	require.NoError(t, err)

	assert.Equal(t, "channel-1", pctx.Snapshot.Channel.ChannelID)
	require.Len(t, pctx.Snapshot.UserProfiles, 1)
	assert.Equal(t, "42", pctx.Snapshot.UserProfiles[0].UserID)
	require.Len(t, pctx.Snapshot.UserProfiles[0].Connected, 1)
	assert.Equal(t, "user/99", pctx.Snapshot.UserProfiles[0].Connected[0].ID)
}

func TestBuildForThoughtNoMentionsYieldsNoProfiles(t *testing.T) {
	tsk, err := coretask.New("help the user", "channel-1", 1, "")
	require.NoError(t, err)
	th := corethought.New(tsk.ID, "", corethought.TypeStandard, "no mentions", 0, 0)

	b := &Builder{
		Tasks: &fakeTaskStore{tasks: map[string]*coretask.Task{tsk.ID: tsk}},
		Graph: &fakeGraphStore{nodes: map[string]*graph.Node{}, edges: map[string][]*graph.Edge{}},
	}

	pctx, err := b.BuildForThought(context.Background(), &Batch{}, th)
	require.NoError(t, err)
	assert.Empty(t, pctx.Snapshot.UserProfiles)
}

func TestResourceAlertStringsMarksCriticalWithEmoji(t *testing.T) {
	alerts := resourceAlertStrings(observability.Report{
		Healthy:  false,
		Critical: []observability.Breach{{Budget: "memory_mb", Value: 99, Action: observability.ActionThrottle}},
	})
	require.NotEmpty(t, alerts)
	assert.Contains(t, alerts[0], "🚨 CRITICAL!")
}

func TestCheckResourcesMissingMonitorIsCritical(t *testing.T) {
	b := &Builder{}
	report := b.checkResources()
	assert.False(t, report.Healthy)
	require.Len(t, report.Critical, 1)
	assert.Equal(t, "resource_monitor", report.Critical[0].Budget)
}

