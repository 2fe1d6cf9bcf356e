package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ciris-ai/ciris-core/internal/graph"
)

var _ graph.Store = (*DB)(nil)

func (d *DB) PutNode(ctx context.Context, n *graph.Node) error {
	attrsJSON, err := json.Marshal(n.Attributes)
	if err != nil {
		return fmt.Errorf("marshal node attributes: %w", err)
	}
	_, err = d.conn.ExecContext(ctx, `
INSERT INTO graph_nodes (id, node_type, scope, attrs_json, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET node_type=excluded.node_type, scope=excluded.scope, attrs_json=excluded.attrs_json`,
		n.ID, string(n.Type), string(n.Scope), string(attrsJSON), n.CreatedAt)
	if err != nil {
		return fmt.Errorf("put node %s: %w", n.ID, err)
	}
	return nil
}

func (d *DB) GetNode(ctx context.Context, id string) (*graph.Node, error) {
	row := d.conn.QueryRowContext(ctx, `
SELECT id, node_type, scope, attrs_json, created_at FROM graph_nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("graph node not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	return n, nil
}

func (d *DB) DeleteNode(ctx context.Context, id string) error {
	if _, err := d.conn.ExecContext(ctx, "DELETE FROM graph_nodes WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	if _, err := d.conn.ExecContext(ctx, "DELETE FROM graph_edges WHERE source = ? OR target = ?", id, id); err != nil {
		return fmt.Errorf("delete edges for node %s: %w", id, err)
	}
	return nil
}

func (d *DB) PutEdge(ctx context.Context, e *graph.Edge) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO graph_edges (source, target, relationship, scope)
VALUES (?, ?, ?, ?)
ON CONFLICT(source, target, relationship) DO UPDATE SET scope=excluded.scope`,
		e.Source, e.Target, string(e.Relationship), string(e.Scope))
	if err != nil {
		return fmt.Errorf("put edge %s->%s: %w", e.Source, e.Target, err)
	}
	return nil
}

func (d *DB) EdgesFrom(ctx context.Context, nodeID string) ([]*graph.Edge, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT source, target, relationship, scope FROM graph_edges WHERE source = ?`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("edges from %s: %w", nodeID, err)
	}
	defer rows.Close()
	var out []*graph.Edge
	for rows.Next() {
		var e graph.Edge
		var rel, scope string
		if err := rows.Scan(&e.Source, &e.Target, &rel, &scope); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Relationship = graph.Relationship(rel)
		e.Scope = graph.Scope(scope)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (d *DB) NodesByType(ctx context.Context, typ graph.NodeType, scope graph.Scope) ([]*graph.Node, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, node_type, scope, attrs_json, created_at FROM graph_nodes WHERE node_type = ? AND scope = ?`,
		string(typ), string(scope))
	if err != nil {
		return nil, fmt.Errorf("nodes by type %s/%s: %w", typ, scope, err)
	}
	defer rows.Close()
	var out []*graph.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNode(row rowScanner) (*graph.Node, error) {
	var n graph.Node
	var typeStr, scopeStr, attrsJSON string
	if err := row.Scan(&n.ID, &typeStr, &scopeStr, &attrsJSON, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.Type = graph.NodeType(typeStr)
	n.Scope = graph.Scope(scopeStr)
	if err := json.Unmarshal([]byte(attrsJSON), &n.Attributes); err != nil {
		return nil, fmt.Errorf("unmarshal node attributes: %w", err)
	}
	return &n, nil
}
