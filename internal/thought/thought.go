// Package thought implements the thought manager (part of C10): queue
// population, seed generation, and processing-state transitions.
package thought

import (
	"time"

	"github.com/google/uuid"

	"github.com/ciris-ai/ciris-core/internal/graph"
)

// Type discriminates why a thought was created.
type Type string

const (
	TypeStandard    Type = "STANDARD"
	TypeSeed        Type = "SEED"
	TypeGuidance    Type = "GUIDANCE"
	TypeMemoryMeta  Type = "MEMORY_META"
	TypeObservation Type = "OBSERVATION"
)

// Status is the thought processing state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusDeferred   Status = "DEFERRED"
)

// IsTerminal reports whether the status admits no further processing.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusDeferred
}

// MaxThoughtDepth bounds PONDER-driven re-thought chains (§3, default 7).
const MaxThoughtDepth = 7

// Context carries the typed extension points a thought's processing
// needs, mirroring task.Context but scoped to a single round.
type Context struct {
	ChannelID  string
	SnapshotID string
	RoundSpan  int
	Custom     map[string]graph.AttrValue
}

// FinalAction records the action a dispatched thought resolved to, for
// audit/history purposes. Populated by internal/dispatch.
type FinalAction struct {
	ActionType string
	Params     map[string]graph.AttrValue
	Rationale  string
}

// Thought is the unit the DMA pipeline evaluates.
type Thought struct {
	ID              string
	SourceTaskID    string
	ParentThoughtID string
	ThoughtType     Type
	Status          Status
	RoundNumber     int
	ThoughtDepth    int
	Content         string
	Context         Context
	FinalAction     *FinalAction
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// New creates a PENDING thought. ThoughtDepth is the parent's depth+1,
// or 0 for a seed/root thought; callers enforce MaxThoughtDepth.
func New(sourceTaskID, parentThoughtID string, typ Type, content string, depth, round int) *Thought {
	now := time.Now()
	return &Thought{
		ID:              uuid.NewString(),
		SourceTaskID:    sourceTaskID,
		ParentThoughtID: parentThoughtID,
		ThoughtType:     typ,
		Status:          StatusPending,
		RoundNumber:     round,
		ThoughtDepth:    depth,
		Content:         content,
		Context:         Context{Custom: map[string]graph.AttrValue{}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
