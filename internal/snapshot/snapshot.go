// Package snapshot implements the context builder (C6): assembling a
// SystemSnapshot and ProcessingThoughtContext per thought from the
// persistence, graph, registry, and observability layers. Grounded on
// original_source's system_snapshot.py for field shape and the
// batch/per-thought split spec.md §4.4 names explicitly.
package snapshot

import (
	"time"

	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/identity"
	"github.com/ciris-ai/ciris-core/internal/registry"
	"github.com/ciris-ai/ciris-core/internal/secrets"
)

// TaskSummary is the trimmed view of a task carried in a snapshot —
// never the full Task, per "never hide information loss" read
// narrowly: summaries name exactly the fields downstream evaluators
// need, not a silent subset of an otherwise-complete struct.
type TaskSummary struct {
	ID          string
	ChannelID   string
	Description string
	Status      string
	Priority    int
}

// ThoughtSummary is the trimmed view of a thought.
type ThoughtSummary struct {
	ID           string
	SourceTaskID string
	ThoughtType  string
	Content      string
	RoundNumber  int
	ThoughtDepth int
}

// UserProfile is what the context builder assembled about one user
// mentioned in a thought: the graph node plus nodes reached within two
// hops, optionally merged with an external ProfileProvider's data.
type UserProfile struct {
	UserID    string
	Node      *graph.Node
	Connected []*graph.Node
	External  map[string]graph.AttrValue
}

// ChannelContext is the resolved channel plus how it was resolved, so
// callers can tell a real channel from the "UNKNOWN" fallback.
type ChannelContext struct {
	ChannelID string
	Resolved  bool // false only for the terminal "UNKNOWN" fallback
}

// ServiceHealth summarizes one capability bus's circuit breaker
// states, keyed "<kind>/<name>".
type ServiceHealth map[string]registry.BreakerState

// SecretsSummary mirrors original_source's build_secrets_snapshot:
// how many secrets are currently vaulted and under what filter
// version, without exposing plaintext.
type SecretsSummary struct {
	FilterVersion int
	Count         int
	References    []secrets.Reference
}

// TelemetrySummary is a coarse rollup of recent correlation activity.
type TelemetrySummary struct {
	RecentCallCount int
	RecentErrors    int
}

// SystemSnapshot is the per-thought immutable aggregate spec.md §3
// names. Batch-scoped fields (everything but ChannelContext, Thought,
// CurrentTask, UserProfiles) are fetched once per batch and shared
// across every thought in it.
type SystemSnapshot struct {
	BuiltAt time.Time

	Channel ChannelContext

	CurrentTask    *TaskSummary
	CurrentThought *ThoughtSummary

	RecentCompletedTasks []TaskSummary
	TopPendingTasks      []TaskSummary

	Identity *identity.Identity

	ServiceHealth ServiceHealth

	ResourceHealthy  bool
	ResourceAlerts   []string
	TelemetrySummary TelemetrySummary
	Secrets          SecretsSummary

	UserProfiles []UserProfile

	AdapterChannels []string
	AvailableTools  []string
}

// ProcessingThoughtContext bundles the snapshot with the thought/task
// ids it was built for, the shape DMAs and conscience actually consume.
type ProcessingThoughtContext struct {
	Snapshot     *SystemSnapshot
	ThoughtID    string
	SourceTaskID string
}
