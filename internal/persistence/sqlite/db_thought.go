package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ciris-ai/ciris-core/internal/thought"
)

var _ thought.Store = (*DB)(nil)

const thoughtSelectSQL = `
SELECT id, source_task_id, parent_thought_id, thought_type, status, round_number, thought_depth, content, context_json, final_action_json, created_at, updated_at
FROM thoughts`

func (d *DB) InsertThought(ctx context.Context, t *thought.Thought) error {
	ctxJSON, err := json.Marshal(t.Context)
	if err != nil {
		return fmt.Errorf("marshal thought context: %w", err)
	}
	finalJSON, err := marshalFinalAction(t.FinalAction)
	if err != nil {
		return err
	}
	_, err = d.conn.ExecContext(ctx, `
INSERT INTO thoughts (id, source_task_id, parent_thought_id, thought_type, status, round_number, thought_depth, content, context_json, final_action_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SourceTaskID, t.ParentThoughtID, string(t.ThoughtType), string(t.Status),
		t.RoundNumber, t.ThoughtDepth, t.Content, string(ctxJSON), finalJSON, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert thought %s: %w", t.ID, err)
	}
	return nil
}

func (d *DB) UpdateThought(ctx context.Context, t *thought.Thought) error {
	ctxJSON, err := json.Marshal(t.Context)
	if err != nil {
		return fmt.Errorf("marshal thought context: %w", err)
	}
	finalJSON, err := marshalFinalAction(t.FinalAction)
	if err != nil {
		return err
	}
	res, err := d.conn.ExecContext(ctx, `
UPDATE thoughts SET status=?, round_number=?, thought_depth=?, content=?, context_json=?, final_action_json=?, updated_at=?
WHERE id=?`,
		string(t.Status), t.RoundNumber, t.ThoughtDepth, t.Content, string(ctxJSON), finalJSON, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update thought %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return thought.ErrNotFound
	}
	return nil
}

func (d *DB) GetThought(ctx context.Context, id string) (*thought.Thought, error) {
	row := d.conn.QueryRowContext(ctx, thoughtSelectSQL+" WHERE id = ?", id)
	t, err := scanThought(row)
	if err == sql.ErrNoRows {
		return nil, thought.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thought %s: %w", id, err)
	}
	return t, nil
}

func (d *DB) GetPendingThoughtsForActiveTasks(ctx context.Context, limit int) ([]*thought.Thought, error) {
	return d.queryThoughts(ctx, thoughtSelectSQL+`
JOIN tasks ON tasks.id = thoughts.source_task_id
WHERE thoughts.status = ? AND tasks.status = ?
ORDER BY thoughts.round_number ASC, thoughts.created_at ASC LIMIT ?`,
		string(thought.StatusPending), "ACTIVE", limit)
}

func (d *DB) GetThoughtsByTask(ctx context.Context, taskID string) ([]*thought.Thought, error) {
	return d.queryThoughts(ctx, thoughtSelectSQL+" WHERE source_task_id = ? ORDER BY created_at ASC", taskID)
}

func (d *DB) MarkThoughtsProcessing(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, string(thought.StatusProcessing))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf(`UPDATE thoughts SET status = ? WHERE status = 'PENDING' AND id IN (%s)`,
		strings.Join(placeholders, ","))
	res, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark thoughts processing: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (d *DB) CountThoughts(ctx context.Context, status thought.Status) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM thoughts WHERE status = ?", string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count thoughts %s: %w", status, err)
	}
	return n, nil
}

func (d *DB) DeleteThoughtsByTaskIDs(ctx context.Context, taskIDs []string) error {
	for _, id := range taskIDs {
		if _, err := d.conn.ExecContext(ctx, "DELETE FROM thoughts WHERE source_task_id = ?", id); err != nil {
			return fmt.Errorf("delete thoughts for task %s: %w", id, err)
		}
	}
	return nil
}

func scanThought(row rowScanner) (*thought.Thought, error) {
	var t thought.Thought
	var typeStr, statusStr, ctxJSON string
	var finalJSON sql.NullString
	if err := row.Scan(&t.ID, &t.SourceTaskID, &t.ParentThoughtID, &typeStr, &statusStr,
		&t.RoundNumber, &t.ThoughtDepth, &t.Content, &ctxJSON, &finalJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.ThoughtType = thought.Type(typeStr)
	t.Status = thought.Status(statusStr)
	if err := json.Unmarshal([]byte(ctxJSON), &t.Context); err != nil {
		return nil, fmt.Errorf("unmarshal thought context: %w", err)
	}
	if finalJSON.Valid && finalJSON.String != "" {
		var fa thought.FinalAction
		if err := json.Unmarshal([]byte(finalJSON.String), &fa); err != nil {
			return nil, fmt.Errorf("unmarshal thought final action: %w", err)
		}
		t.FinalAction = &fa
	}
	return &t, nil
}

func (d *DB) queryThoughts(ctx context.Context, query string, args ...any) ([]*thought.Thought, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query thoughts: %w", err)
	}
	defer rows.Close()
	var out []*thought.Thought
	for rows.Next() {
		t, err := scanThought(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thought: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func marshalFinalAction(fa *thought.FinalAction) (any, error) {
	if fa == nil {
		return nil, nil
	}
	b, err := json.Marshal(fa)
	if err != nil {
		return nil, fmt.Errorf("marshal thought final action: %w", err)
	}
	return string(b), nil
}
