package task_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-core/internal/persistence/sqlite"
	"github.com/ciris-ai/ciris-core/internal/task"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestActivatePendingTasksRespectsHeadroom(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	mgr := task.NewManager(db, 2)

	for i := 0; i < 3; i++ {
		_, err := mgr.CreateTask(ctx, "do thing", "chan", i, "")
		require.NoError(t, err)
	}

	activated, err := mgr.ActivatePendingTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, activated)

	active, err := db.CountActiveTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, active)
}

func TestActivatePendingTasksPrefersHighestPriority(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	mgr := task.NewManager(db, 1)

	low, err := mgr.CreateTask(ctx, "low", "chan", 1, "")
	require.NoError(t, err)
	high, err := mgr.CreateTask(ctx, "high", "chan", 9, "")
	require.NoError(t, err)

	activated, err := mgr.ActivatePendingTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, activated)

	gotHigh, err := db.GetTask(ctx, high.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusActive, gotHigh.Status)

	gotLow, err := db.GetTask(ctx, low.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, gotLow.Status)
}

func TestGetTasksNeedingSeedExcludesSpecialTasks(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	mgr := task.NewManager(db, 10)

	_, err := mgr.CreateWakeupSequence(ctx, "chan")
	require.NoError(t, err)

	normal, err := mgr.CreateTask(ctx, "normal work", "chan", 5, "")
	require.NoError(t, err)
	normal.Status = task.StatusActive
	require.NoError(t, db.UpdateTask(ctx, normal))

	needing, err := mgr.GetTasksNeedingSeed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, needing, 1)
	assert.Equal(t, normal.ID, needing[0].ID)
}

func TestCompleteTaskIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	mgr := task.NewManager(db, 10)

	tk, err := mgr.CreateTask(ctx, "do thing", "chan", 0, "")
	require.NoError(t, err)

	require.NoError(t, mgr.CompleteTask(ctx, tk.ID, &task.Outcome{Summary: "done"}))
	got, err := db.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)

	// second call on an already-terminal task is a silent no-op
	require.NoError(t, mgr.CompleteTask(ctx, tk.ID, &task.Outcome{Summary: "done again"}))
	got2, err := db.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", got2.Outcome.Summary)
}

func TestFailTaskTransitionsToFailed(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	mgr := task.NewManager(db, 10)

	tk, err := mgr.CreateTask(ctx, "do thing", "chan", 0, "")
	require.NoError(t, err)

	require.NoError(t, mgr.FailTask(ctx, tk.ID, "llm unavailable"))
	got, err := db.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, "llm unavailable", got.FailReason)
}

func TestCreateWakeupSequenceCreatesRootAndFiveSteps(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	mgr := task.NewManager(db, 10)

	tasks, err := mgr.CreateWakeupSequence(ctx, "chan")
	require.NoError(t, err)
	require.Len(t, tasks, 6)

	root := tasks[0]
	assert.Equal(t, task.WakeupRootID, root.ID)

	for _, step := range tasks[1:] {
		assert.Equal(t, root.ID, step.ParentTaskID)
		assert.Equal(t, task.StatusActive, step.Status)
	}
}
