package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/ciris-ai/ciris-core/internal/graph"
)

// WakeupStepID names one of the five children create_wakeup_sequence
// attaches to the wakeup root, in the order a human operator would
// walk through a startup checklist.
type WakeupStepID string

const (
	StepVerifyIdentity      WakeupStepID = "VERIFY_IDENTITY"
	StepValidateIntegrity   WakeupStepID = "VALIDATE_INTEGRITY"
	StepEvaluateResilience  WakeupStepID = "EVALUATE_RESILIENCE"
	StepAcceptIncompleteness WakeupStepID = "ACCEPT_INCOMPLETENESS"
	StepExpressGratitude    WakeupStepID = "EXPRESS_GRATITUDE"
)

var wakeupStepDescriptions = []struct {
	id          WakeupStepID
	description string
}{
	{StepVerifyIdentity, "Verify my identity and purpose are intact."},
	{StepValidateIntegrity, "Validate the integrity of my core processes."},
	{StepEvaluateResilience, "Evaluate my resilience against disruption."},
	{StepAcceptIncompleteness, "Accept that my self-knowledge is incomplete."},
	{StepExpressGratitude, "Express gratitude for the opportunity to serve."},
}

// Manager implements the task manager (C10): lifecycle, activation,
// and the wakeup sequence, grounded on the teacher's task-queue
// orchestration in pkg/agent/workflowagent (sequential step expansion)
// generalized onto a persisted Store instead of an in-memory slice.
type Manager struct {
	Store          Store
	MaxActiveTasks int
}

// NewManager builds a Manager with MaxActiveTasks defaulted to 10 if unset.
func NewManager(store Store, maxActiveTasks int) *Manager {
	if maxActiveTasks <= 0 {
		maxActiveTasks = 10
	}
	return &Manager{Store: store, MaxActiveTasks: maxActiveTasks}
}

// CreateTask inserts a new PENDING task.
func (m *Manager) CreateTask(ctx context.Context, description, channelID string, priority int, parentTaskID string) (*Task, error) {
	t, err := New(description, channelID, priority, parentTaskID)
	if err != nil {
		return nil, err
	}
	if err := m.Store.InsertTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ActivatePendingTasks promotes PENDING tasks to ACTIVE up to the
// available headroom under MaxActiveTasks, highest priority first and
// FIFO within equal priority — the ordering GetPendingTasksForActivation
// already guarantees, so this method only enforces the headroom limit
// and performs the transition.
func (m *Manager) ActivatePendingTasks(ctx context.Context) (int, error) {
	active, err := m.Store.CountActiveTasks(ctx)
	if err != nil {
		return 0, err
	}
	headroom := m.MaxActiveTasks - active
	if headroom <= 0 {
		return 0, nil
	}
	pending, err := m.Store.GetPendingTasksForActivation(ctx, headroom)
	if err != nil {
		return 0, err
	}
	activated := 0
	for _, t := range pending {
		t.Status = StatusActive
		t.UpdatedAt = time.Now().UTC()
		if err := m.Store.UpdateTask(ctx, t); err != nil {
			return activated, err
		}
		activated++
	}
	return activated, nil
}

// GetTasksNeedingSeed returns ACTIVE tasks with no associated thought
// yet, excluding the special wakeup/system tasks.
func (m *Manager) GetTasksNeedingSeed(ctx context.Context, limit int) ([]*Task, error) {
	tasks, err := m.Store.GetTasksNeedingSeedThought(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		if t.IsSpecial() {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// CompleteTask transitions a task to COMPLETED. Idempotent: calling it
// again on an already-terminal task is a no-op with a warning, not an
// error, since a race between dispatch and a cleanup sweep is
// expected rather than exceptional.
func (m *Manager) CompleteTask(ctx context.Context, id string, outcome *Outcome) error {
	t, err := m.Store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		slog.Warn("task manager: complete_task on already-terminal task", "task_id", id, "status", t.Status)
		return nil
	}
	t.Status = StatusCompleted
	t.Outcome = outcome
	t.UpdatedAt = time.Now().UTC()
	return m.Store.UpdateTask(ctx, t)
}

// FailTask transitions a task to FAILED, recording reason. Idempotent
// like CompleteTask.
func (m *Manager) FailTask(ctx context.Context, id, reason string) error {
	t, err := m.Store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		slog.Warn("task manager: fail_task on already-terminal task", "task_id", id, "status", t.Status)
		return nil
	}
	t.Status = StatusFailed
	t.FailReason = reason
	t.UpdatedAt = time.Now().UTC()
	return m.Store.UpdateTask(ctx, t)
}

// CreateWakeupSequence creates the WAKEUP_ROOT task plus its five step
// children, each carrying the same channel so the identity-check
// conversation stays in one place.
func (m *Manager) CreateWakeupSequence(ctx context.Context, channelID string) ([]*Task, error) {
	root := &Task{
		ID:          WakeupRootID,
		ChannelID:   channelID,
		Description: "Wakeup: verify the agent is fit to begin work.",
		Status:      StatusActive,
		Priority:    100,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
		Context:     Context{ChannelID: channelID, Custom: map[string]graph.AttrValue{}},
	}
	if err := m.Store.InsertTask(ctx, root); err != nil {
		return nil, err
	}

	tasks := make([]*Task, 0, len(wakeupStepDescriptions)+1)
	tasks = append(tasks, root)
	for i, step := range wakeupStepDescriptions {
		t, err := New(step.description, channelID, 100-i-1, root.ID)
		if err != nil {
			return tasks, err
		}
		t.ID = string(step.id)
		t.Status = StatusActive
		if err := m.Store.InsertTask(ctx, t); err != nil {
			return tasks, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
