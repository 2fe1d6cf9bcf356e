package thought

import (
	"context"
	"sort"

	"github.com/ciris-ai/ciris-core/internal/graph"
	coretask "github.com/ciris-ai/ciris-core/internal/task"
)

// Manager implements the thought manager (C10): seed generation, queue
// population, and processing-state transitions, grounded on the
// teacher's batch scheduling in pkg/agent/workflowagent (fetch a
// candidate set, sort, take the head) generalized onto persisted
// Store/task.Store instead of an in-memory slice.
type Manager struct {
	Thoughts          Store
	Tasks             coretask.Store
	MaxActiveThoughts int
}

// NewManager builds a Manager with MaxActiveThoughts defaulted to 50 if unset.
func NewManager(thoughts Store, tasks coretask.Store, maxActiveThoughts int) *Manager {
	if maxActiveThoughts <= 0 {
		maxActiveThoughts = 50
	}
	return &Manager{Thoughts: thoughts, Tasks: tasks, MaxActiveThoughts: maxActiveThoughts}
}

// GenerateSeedThoughts creates one SEED thought per task, PENDING, depth 0.
func (m *Manager) GenerateSeedThoughts(ctx context.Context, tasks []*coretask.Task, round int) (int, error) {
	n := 0
	for _, t := range tasks {
		seed := New(t.ID, "", TypeSeed, "Seed thought for task: "+t.Description, 0, round)
		if err := m.Thoughts.InsertThought(ctx, seed); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// PopulateQueue pulls up to MaxActiveThoughts PENDING thoughts from
// active tasks for round, preserving priority (from the owning task)
// then creation order. MEMORY_META thoughts get exclusive rounds: if
// any is pending, only MEMORY_META thoughts are queued this round.
func (m *Manager) PopulateQueue(ctx context.Context, round int) ([]*Thought, error) {
	candidates, err := m.Thoughts.GetPendingThoughtsForActiveTasks(ctx, m.MaxActiveThoughts*4)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	memoryMeta := make([]*Thought, 0)
	rest := make([]*Thought, 0, len(candidates))
	for _, th := range candidates {
		if th.ThoughtType == TypeMemoryMeta {
			memoryMeta = append(memoryMeta, th)
		} else {
			rest = append(rest, th)
		}
	}

	pool := rest
	if len(memoryMeta) > 0 {
		pool = memoryMeta
	}

	priority, err := m.taskPriorities(ctx, pool)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(pool, func(i, j int) bool {
		pi, pj := priority[pool[i].SourceTaskID], priority[pool[j].SourceTaskID]
		if pi != pj {
			return pi > pj
		}
		return pool[i].CreatedAt.Before(pool[j].CreatedAt)
	})

	if len(pool) > m.MaxActiveThoughts {
		pool = pool[:m.MaxActiveThoughts]
	}
	return pool, nil
}

// taskPriorities resolves the priority of the owning task for each
// thought in batch, one lookup per distinct task.
func (m *Manager) taskPriorities(ctx context.Context, batch []*Thought) (map[string]int, error) {
	out := map[string]int{}
	for _, th := range batch {
		if _, ok := out[th.SourceTaskID]; ok {
			continue
		}
		t, err := m.Tasks.GetTask(ctx, th.SourceTaskID)
		if err != nil {
			out[th.SourceTaskID] = 0
			continue
		}
		out[th.SourceTaskID] = t.Priority
	}
	return out, nil
}

// MarkThoughtsProcessing atomically transitions batch from PENDING to
// PROCESSING, returning how many were actually transitioned (a
// thought already claimed by a concurrent round is silently excluded).
func (m *Manager) MarkThoughtsProcessing(ctx context.Context, batch []*Thought, round int) (int, error) {
	ids := make([]string, len(batch))
	for i, th := range batch {
		ids[i] = th.ID
	}
	n, err := m.Thoughts.MarkThoughtsProcessing(ctx, ids)
	if err != nil {
		return 0, err
	}
	for _, th := range batch {
		th.Status = StatusProcessing
		th.RoundNumber = round
	}
	return n, nil
}

// FailThought marks th FAILED with the error kind carried in
// final_action, per spec.md §4.3's failure-thought handling (validation
// errors, dispatch errors never leave a thought stuck PENDING/PROCESSING).
func (m *Manager) FailThought(ctx context.Context, th *Thought, errorKind, reason string) error {
	th.Status = StatusFailed
	th.FinalAction = &FinalAction{
		ActionType: errorKind,
		Params:     map[string]graph.AttrValue{"reason": graph.StringAttr(reason)},
		Rationale:  reason,
	}
	return m.Thoughts.UpdateThought(ctx, th)
}
