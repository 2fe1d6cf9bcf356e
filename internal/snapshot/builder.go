package snapshot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/identity"
	"github.com/ciris-ai/ciris-core/internal/observability"
	"github.com/ciris-ai/ciris-core/internal/registry"
	"github.com/ciris-ai/ciris-core/internal/secrets"
	"github.com/ciris-ai/ciris-core/internal/task"
	"github.com/ciris-ai/ciris-core/internal/thought"
)

const graphTraversalDepth = 2

// Builder assembles SystemSnapshots and ProcessingThoughtContexts from
// every read-side dependency the context builder (C6) needs. One
// Builder is created per runtime and shared across rounds; batch-scope
// data is re-fetched on each BuildBatch call, never cached across
// rounds.
type Builder struct {
	Tasks         task.Store
	Thoughts      thought.Store
	Graph         graph.Store
	Correlations  observability.Store
	SecretsFilter *secrets.Filter
	SecretsStore  interface {
		ListAll(ctx context.Context) ([]secrets.Reference, error)
	}
	Services     *registry.ServiceBus
	Resources    *observability.ResourceMonitor
	Identity     *identity.Identity
	HomeChannels map[string]string
	Profile      ProfileProvider
	Log          *slog.Logger

	AdapterChannels func() []string
	AvailableTools  func() []string
}

// Batch is the fetch-once-per-round data shared by every thought in a
// processing batch.
type Batch struct {
	RecentCompletedTasks []TaskSummary
	TopPendingTasks      []TaskSummary
	ServiceHealth        ServiceHealth
	Resources            observability.Report
	Telemetry            TelemetrySummary
	Secrets              SecretsSummary
}

// BuildBatch fetches everything spec.md §4.4 says is fetched once per
// batch: agent identity (already held on the Builder), recent
// completed tasks (≤10), top pending tasks (≤10), service health,
// resource alerts, telemetry summary, and the secrets snapshot.
func (b *Builder) BuildBatch(ctx context.Context) (*Batch, error) {
	recent, err := b.Tasks.GetRecentCompletedTasks(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("fetch recent completed tasks: %w", err)
	}
	top, err := b.Tasks.GetTopTasks(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("fetch top pending tasks: %w", err)
	}

	var health ServiceHealth
	if b.Services != nil {
		health = b.Services.HealthSnapshot(ctx)
	}

	resourceReport := b.checkResources()

	telemetry := b.buildTelemetrySummary(ctx)
	secretsSummary := b.buildSecretsSummary(ctx)

	return &Batch{
		RecentCompletedTasks: toTaskSummaries(recent),
		TopPendingTasks:      toTaskSummaries(top),
		ServiceHealth:        health,
		Resources:            resourceReport,
		Telemetry:            telemetry,
		Secrets:              secretsSummary,
	}, nil
}

// checkResources consults the resource monitor; a failure to consult
// it is itself a critical alert, never silently dropped, per spec.md
// §4.4's explicit instruction.
func (b *Builder) checkResources() observability.Report {
	if b.Resources == nil {
		return observability.Report{
			Healthy: false,
			Critical: []observability.Breach{
				{Budget: "resource_monitor", Severity: "critical", Action: observability.ActionDefer},
			},
		}
	}
	return b.Resources.Check()
}

func (b *Builder) buildTelemetrySummary(ctx context.Context) TelemetrySummary {
	if b.Correlations == nil {
		return TelemetrySummary{}
	}
	recent, err := b.Correlations.RecentCorrelations(ctx, "", 50)
	if err != nil {
		if b.Log != nil {
			b.Log.Warn("failed to load recent correlations for telemetry summary", "error", err)
		}
		return TelemetrySummary{}
	}
	summary := TelemetrySummary{RecentCallCount: len(recent)}
	for _, c := range recent {
		if c.Status == "error" {
			summary.RecentErrors++
		}
	}
	return summary
}

func (b *Builder) buildSecretsSummary(ctx context.Context) SecretsSummary {
	if b.SecretsFilter == nil || b.SecretsStore == nil {
		return SecretsSummary{}
	}
	refs, err := b.SecretsStore.ListAll(ctx)
	if err != nil {
		if b.Log != nil {
			b.Log.Warn("failed to load secrets summary", "error", err)
		}
		return SecretsSummary{FilterVersion: b.SecretsFilter.Version()}
	}
	return SecretsSummary{FilterVersion: b.SecretsFilter.Version(), Count: len(refs), References: refs}
}

// BuildForThought does the per-thought work spec.md §4.4 names: thought
// summary, current-task summary, channel-context resolution, and
// user-profile enrichment, combined with the already-fetched batch
// data into one SystemSnapshot.
func (b *Builder) BuildForThought(ctx context.Context, batch *Batch, th *thought.Thought) (*ProcessingThoughtContext, error) {
	t, err := b.Tasks.GetTask(ctx, th.SourceTaskID)
	if err != nil {
		return nil, fmt.Errorf("fetch source task %s: %w", th.SourceTaskID, err)
	}

	channel := resolveChannelID(t, th, b.HomeChannels, b.Log)

	profiles, err := b.buildUserProfiles(ctx, th)
	if err != nil {
		return nil, err
	}

	snap := &SystemSnapshot{
		Channel:              channel,
		CurrentTask:          toTaskSummary(t),
		CurrentThought:       toThoughtSummary(th),
		RecentCompletedTasks: batch.RecentCompletedTasks,
		TopPendingTasks:      batch.TopPendingTasks,
		Identity:             b.Identity,
		ServiceHealth:        batch.ServiceHealth,
		ResourceHealthy:      batch.Resources.Healthy,
		ResourceAlerts:       resourceAlertStrings(batch.Resources),
		TelemetrySummary:     batch.Telemetry,
		Secrets:              batch.Secrets,
		UserProfiles:         profiles,
	}
	if b.AdapterChannels != nil {
		snap.AdapterChannels = b.AdapterChannels()
	}
	if b.AvailableTools != nil {
		snap.AvailableTools = b.AvailableTools()
	}

	return &ProcessingThoughtContext{Snapshot: snap, ThoughtID: th.ID, SourceTaskID: th.SourceTaskID}, nil
}

// resourceAlertStrings renders a Report into the human-readable alert
// strings a snapshot carries, using the "🚨 CRITICAL!" marker spec.md
// §4.4 specifies for critical breaches.
func resourceAlertStrings(r observability.Report) []string {
	var alerts []string
	if !r.Healthy {
		alerts = append(alerts, "🚨 CRITICAL! one or more resource budgets are in critical breach")
	}
	for _, c := range r.Critical {
		alerts = append(alerts, fmt.Sprintf("🚨 CRITICAL! budget %s at %.1f (action=%s)", c.Budget, c.Value, c.Action))
	}
	for _, w := range r.Warnings {
		alerts = append(alerts, fmt.Sprintf("warning: budget %s at %.1f (action=%s)", w.Budget, w.Value, w.Action))
	}
	return alerts
}

// buildUserProfiles extracts mentioned user ids from the thought,
// queries the graph for each, follows edges two hops deep, and merges
// in external profile data (merged first, overridden by graph data).
func (b *Builder) buildUserProfiles(ctx context.Context, th *thought.Thought) ([]UserProfile, error) {
	contextUserID, _ := nestedString(th.Context.Custom, "user_id")
	ids := extractMentionedUserIDs(th.Content, contextUserID)
	if len(ids) == 0 {
		return nil, nil
	}

	provider := b.Profile
	if provider == nil {
		provider = NoProfileProvider
	}

	profiles := make([]UserProfile, 0, len(ids))
	for _, id := range ids {
		nodeID := "user/" + id
		external, err := provider.FetchProfile(ctx, id)
		if err != nil && b.Log != nil {
			b.Log.Warn("external profile provider failed", "user_id", id, "error", err)
		}

		node, err := b.Graph.GetNode(ctx, nodeID)
		if err != nil {
			if b.Log != nil {
				b.Log.Warn("no graph node for mentioned user", "user_id", id, "error", err)
			}
			profiles = append(profiles, UserProfile{UserID: id, External: external})
			continue
		}

		connected, err := b.traverse(ctx, nodeID, graphTraversalDepth)
		if err != nil {
			return nil, fmt.Errorf("traverse profile graph for user %s: %w", id, err)
		}

		merged := mergeAttrs(external, node.Attributes)
		profiles = append(profiles, UserProfile{UserID: id, Node: node, Connected: connected, External: merged})
	}
	return profiles, nil
}

// traverse walks edges from nodeID outward to the given depth,
// collecting every reached node, grounded on the breadth-first
// "connected nodes" requirement in spec.md §4.4.
func (b *Builder) traverse(ctx context.Context, nodeID string, depth int) ([]*graph.Node, error) {
	visited := map[string]bool{nodeID: true}
	frontier := []string{nodeID}
	var collected []*graph.Node

	for d := 0; d < depth; d++ {
		var next []string
		for _, id := range frontier {
			edges, err := b.Graph.EdgesFrom(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				if visited[e.Target] {
					continue
				}
				visited[e.Target] = true
				node, err := b.Graph.GetNode(ctx, e.Target)
				if err != nil {
					continue
				}
				collected = append(collected, node)
				next = append(next, e.Target)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return collected, nil
}

// mergeAttrs layers graph attributes over external ones: external
// values are the base, graph values take precedence for any
// overlapping key, per spec.md §4.4's "merged in first, overridden by
// graph data".
func mergeAttrs(external map[string]graph.AttrValue, graphAttrs graph.Attributes) map[string]graph.AttrValue {
	merged := make(map[string]graph.AttrValue, len(external)+len(graphAttrs))
	for k, v := range external {
		merged[k] = v
	}
	for k, v := range graphAttrs {
		merged[k] = v
	}
	return merged
}

func toTaskSummary(t *task.Task) *TaskSummary {
	if t == nil {
		return nil
	}
	return &TaskSummary{ID: t.ID, ChannelID: t.ChannelID, Description: t.Description, Status: string(t.Status), Priority: t.Priority}
}

func toTaskSummaries(tasks []*task.Task) []TaskSummary {
	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, *toTaskSummary(t))
	}
	return out
}

func toThoughtSummary(th *thought.Thought) *ThoughtSummary {
	if th == nil {
		return nil
	}
	return &ThoughtSummary{
		ID:           th.ID,
		SourceTaskID: th.SourceTaskID,
		ThoughtType:  string(th.ThoughtType),
		Content:      th.Content,
		RoundNumber:  th.RoundNumber,
		ThoughtDepth: th.ThoughtDepth,
	}
}
