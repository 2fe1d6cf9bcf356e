package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-core/internal/task"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestTaskCRUD(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	tk, err := task.New("greet the user", "test_channel", 10, "")
	require.NoError(t, err)
	require.NoError(t, db.InsertTask(ctx, tk))

	got, err := db.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	require.Equal(t, tk.ID, got.ID)
	require.Equal(t, task.StatusPending, got.Status)
	require.Equal(t, "test_channel", got.Context.ChannelID)

	got.Status = task.StatusActive
	require.NoError(t, db.UpdateTask(ctx, got))

	reloaded, err := db.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	require.Equal(t, task.StatusActive, reloaded.Status)

	n, err := db.CountActiveTasks(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	pending, err := db.GetPendingTasksForActivation(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	require.NoError(t, db.DeleteTasksByIDs(ctx, []string{tk.ID}))
	_, err = db.GetTask(ctx, tk.ID)
	require.ErrorIs(t, err, task.ErrNotFound)
}

func TestUpdateTaskNotFound(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	tk, err := task.New("x", "c", 0, "")
	require.NoError(t, err)
	tk.ID = "missing"
	require.ErrorIs(t, db.UpdateTask(ctx, tk), task.ErrNotFound)
}
