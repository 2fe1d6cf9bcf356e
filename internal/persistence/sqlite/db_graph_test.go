package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-core/internal/graph"
)

func TestGraphNodeAndEdgeCRUD(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	n := &graph.Node{
		ID:    "user/123",
		Type:  graph.NodeUser,
		Scope: graph.ScopeLocal,
		Attributes: graph.Attributes{
			"name": graph.StringAttr("alice"),
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.PutNode(ctx, n))

	got, err := db.GetNode(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, graph.NodeUser, got.Type)
	require.Equal(t, "alice", got.Attributes["name"].Str)

	edge := &graph.Edge{Source: n.ID, Target: "channel/general", Relationship: graph.RelTemporalNext, Scope: graph.ScopeLocal}
	require.NoError(t, db.PutEdge(ctx, edge))

	edges, err := db.EdgesFrom(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, "channel/general", edges[0].Target)

	byType, err := db.NodesByType(ctx, graph.NodeUser, graph.ScopeLocal)
	require.NoError(t, err)
	require.Len(t, byType, 1)

	require.NoError(t, db.DeleteNode(ctx, n.ID))
	_, err = db.GetNode(ctx, n.ID)
	require.Error(t, err)

	remaining, err := db.EdgesFrom(ctx, n.ID)
	require.NoError(t, err)
	require.Empty(t, remaining)
}
