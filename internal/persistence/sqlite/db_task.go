package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ciris-ai/ciris-core/internal/task"
)

var _ task.Store = (*DB)(nil)

func (d *DB) InsertTask(ctx context.Context, t *task.Task) error {
	ctxJSON, err := json.Marshal(t.Context)
	if err != nil {
		return fmt.Errorf("marshal task context: %w", err)
	}
	outcomeJSON, err := marshalOutcome(t.Outcome)
	if err != nil {
		return err
	}
	_, err = d.conn.ExecContext(ctx, `
INSERT INTO tasks (id, channel_id, description, status, priority, parent_task_id, context_json, outcome_json, fail_reason, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ChannelID, t.Description, string(t.Status), t.Priority, t.ParentTaskID,
		string(ctxJSON), outcomeJSON, t.FailReason, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

func (d *DB) UpdateTask(ctx context.Context, t *task.Task) error {
	ctxJSON, err := json.Marshal(t.Context)
	if err != nil {
		return fmt.Errorf("marshal task context: %w", err)
	}
	outcomeJSON, err := marshalOutcome(t.Outcome)
	if err != nil {
		return err
	}
	res, err := d.conn.ExecContext(ctx, `
UPDATE tasks SET channel_id=?, description=?, status=?, priority=?, parent_task_id=?, context_json=?, outcome_json=?, fail_reason=?, updated_at=?
WHERE id=?`,
		t.ChannelID, t.Description, string(t.Status), t.Priority, t.ParentTaskID,
		string(ctxJSON), outcomeJSON, t.FailReason, t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return task.ErrNotFound
	}
	return nil
}

func (d *DB) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := d.conn.QueryRowContext(ctx, taskSelectSQL+" WHERE id = ?", id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, task.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

func (d *DB) GetPendingTasksForActivation(ctx context.Context, limit int) ([]*task.Task, error) {
	return d.queryTasks(ctx, taskSelectSQL+" WHERE status = ? ORDER BY priority DESC, created_at ASC LIMIT ?",
		string(task.StatusPending), limit)
}

func (d *DB) GetTasksNeedingSeedThought(ctx context.Context, limit int) ([]*task.Task, error) {
	return d.queryTasks(ctx, `
`+taskSelectSQL+`
WHERE status = ?
AND id NOT IN (SELECT DISTINCT source_task_id FROM thoughts)
ORDER BY created_at ASC LIMIT ?`, string(task.StatusActive), limit)
}

func (d *DB) GetRecentCompletedTasks(ctx context.Context, n int) ([]*task.Task, error) {
	return d.queryTasks(ctx, taskSelectSQL+" WHERE status = ? ORDER BY updated_at DESC LIMIT ?",
		string(task.StatusCompleted), n)
}

func (d *DB) GetTopTasks(ctx context.Context, n int) ([]*task.Task, error) {
	return d.queryTasks(ctx, taskSelectSQL+" WHERE status = ? ORDER BY priority DESC, created_at ASC LIMIT ?",
		string(task.StatusActive), n)
}

func (d *DB) CountActiveTasks(ctx context.Context) (int, error) {
	return d.CountTasks(ctx, task.StatusActive)
}

func (d *DB) CountTasks(ctx context.Context, status task.Status) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE status = ?", string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks %s: %w", status, err)
	}
	return n, nil
}

func (d *DB) DeleteTasksByIDs(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := d.conn.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete task %s: %w", id, err)
		}
	}
	return nil
}

func (d *DB) GetTasksOlderThan(ctx context.Context, iso string) ([]*task.Task, error) {
	return d.queryTasks(ctx, taskSelectSQL+" WHERE created_at < ? ORDER BY created_at ASC", iso)
}

const taskSelectSQL = `
SELECT id, channel_id, description, status, priority, parent_task_id, context_json, outcome_json, fail_reason, created_at, updated_at
FROM tasks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var statusStr string
	var ctxJSON string
	var outcomeJSON sql.NullString
	if err := row.Scan(&t.ID, &t.ChannelID, &t.Description, &statusStr, &t.Priority, &t.ParentTaskID,
		&ctxJSON, &outcomeJSON, &t.FailReason, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = task.Status(statusStr)
	if err := json.Unmarshal([]byte(ctxJSON), &t.Context); err != nil {
		return nil, fmt.Errorf("unmarshal task context: %w", err)
	}
	if outcomeJSON.Valid && outcomeJSON.String != "" {
		var o task.Outcome
		if err := json.Unmarshal([]byte(outcomeJSON.String), &o); err != nil {
			return nil, fmt.Errorf("unmarshal task outcome: %w", err)
		}
		t.Outcome = &o
	}
	return &t, nil
}

func (d *DB) queryTasks(ctx context.Context, query string, args ...any) ([]*task.Task, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func marshalOutcome(o *task.Outcome) (any, error) {
	if o == nil {
		return nil, nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal task outcome: %w", err)
	}
	return string(b), nil
}
