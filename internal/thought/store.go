package thought

import "context"

// Store is the persistence contract the thought manager depends on,
// implemented by internal/persistence/sqlite.DB.
type Store interface {
	InsertThought(ctx context.Context, t *Thought) error
	UpdateThought(ctx context.Context, t *Thought) error
	GetThought(ctx context.Context, id string) (*Thought, error)
	GetPendingThoughtsForActiveTasks(ctx context.Context, limit int) ([]*Thought, error)
	GetThoughtsByTask(ctx context.Context, taskID string) ([]*Thought, error)
	MarkThoughtsProcessing(ctx context.Context, ids []string) (int, error)
	CountThoughts(ctx context.Context, status Status) (int, error)
	DeleteThoughtsByTaskIDs(ctx context.Context, taskIDs []string) error
}
