// Package task implements the task manager (part of C10): lifecycle,
// activation, and the wakeup sequence.
package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/ciris-ai/ciris-core/internal/graph"
)

// Status is the task lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusDeferred  Status = "DEFERRED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Special task ids excluded from seed-thought generation (§4.2).
const (
	WakeupRootID = "WAKEUP_ROOT"
	SystemTaskID = "SYSTEM_TASK"
)

// Context carries the typed extension points a task's processing
// needs — never an untyped map, per DESIGN NOTES §9.
type Context struct {
	ChannelID  string
	UserID     string
	UserName   string
	SnapshotID string
	Custom     map[string]graph.AttrValue
}

// Outcome records the terminal result of a task.
type Outcome struct {
	Summary   string
	Data      map[string]graph.AttrValue
	Timestamp time.Time
}

// Task is the top-level unit of agent-authored work.
type Task struct {
	ID           string
	ChannelID    string
	Description  string
	Status       Status
	Priority     int
	ParentTaskID string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Context      Context
	Outcome      *Outcome
	FailReason   string
}

// New creates a PENDING task. ChannelID must be non-empty.
func New(description, channelID string, priority int, parentTaskID string) (*Task, error) {
	if channelID == "" {
		return nil, ErrInvalidChannel
	}
	now := time.Now()
	return &Task{
		ID:           uuid.NewString(),
		ChannelID:    channelID,
		Description:  description,
		Status:       StatusPending,
		Priority:     priority,
		ParentTaskID: parentTaskID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Context:      Context{ChannelID: channelID, Custom: map[string]graph.AttrValue{}},
	}, nil
}

// IsSpecial reports whether this is one of the special tasks excluded
// from seed-thought generation (§4.2).
func (t *Task) IsSpecial() bool {
	return t.ID == WakeupRootID || t.ID == SystemTaskID
}
