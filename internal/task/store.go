package task

import "context"

// Store is the persistence contract the task manager depends on (a
// narrow slice of the full persistence contract in spec.md §6,
// implemented by internal/persistence/sqlite.DB).
type Store interface {
	InsertTask(ctx context.Context, t *Task) error
	UpdateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	GetPendingTasksForActivation(ctx context.Context, limit int) ([]*Task, error)
	GetTasksNeedingSeedThought(ctx context.Context, limit int) ([]*Task, error)
	GetRecentCompletedTasks(ctx context.Context, n int) ([]*Task, error)
	GetTopTasks(ctx context.Context, n int) ([]*Task, error)
	CountActiveTasks(ctx context.Context) (int, error)
	CountTasks(ctx context.Context, status Status) (int, error)
	DeleteTasksByIDs(ctx context.Context, ids []string) error
	GetTasksOlderThan(ctx context.Context, iso string) ([]*Task, error)
}
