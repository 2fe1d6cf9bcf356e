package graph

import "context"

// Store is the persistence contract the graph memory service depends
// on, implemented by internal/persistence/sqlite.DB.
type Store interface {
	PutNode(ctx context.Context, n *Node) error
	GetNode(ctx context.Context, id string) (*Node, error)
	DeleteNode(ctx context.Context, id string) error
	PutEdge(ctx context.Context, e *Edge) error
	EdgesFrom(ctx context.Context, nodeID string) ([]*Edge, error)
	NodesByType(ctx context.Context, typ NodeType, scope Scope) ([]*Node, error)
}
