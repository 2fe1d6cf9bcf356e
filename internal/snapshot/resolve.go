package snapshot

import (
	"log/slog"

	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/task"
	"github.com/ciris-ai/ciris-core/internal/thought"
)

const unknownChannel = "UNKNOWN"

// resolveChannelID implements spec.md §4.4's six-step resolution
// order, first hit wins. homeChannels maps an adapter kind ("cli",
// "discord", ...) to its configured home channel; any non-empty entry
// satisfies step 5 since the builder is not told which adapter
// originated this thought.
func resolveChannelID(t *task.Task, th *thought.Thought, homeChannels map[string]string, log *slog.Logger) ChannelContext {
	if id, ok := nestedString(t.Context.Custom, "system_snapshot", "channel_id"); ok && id != "" {
		return ChannelContext{ChannelID: id, Resolved: true}
	}
	if th.Context.ChannelID != "" {
		return ChannelContext{ChannelID: th.Context.ChannelID, Resolved: true}
	}
	if id, ok := nestedString(th.Context.Custom, "system_snapshot", "channel_context", "channel_id"); ok && id != "" {
		return ChannelContext{ChannelID: id, Resolved: true}
	}
	if t.ChannelID != "" {
		return ChannelContext{ChannelID: t.ChannelID, Resolved: true}
	}
	for _, channel := range homeChannels {
		if channel != "" {
			return ChannelContext{ChannelID: channel, Resolved: true}
		}
	}

	if log != nil {
		log.Warn("channel id could not be resolved, falling back to UNKNOWN", "task_id", t.ID, "thought_id", th.ID)
	}
	return ChannelContext{ChannelID: unknownChannel, Resolved: false}
}

// nestedString walks a chain of map keys through AttrValue maps and
// returns the string at the final key, if the whole path exists.
func nestedString(m map[string]graph.AttrValue, path ...string) (string, bool) {
	if len(path) == 0 || m == nil {
		return "", false
	}
	cur := m
	for i, key := range path {
		v, ok := cur[key]
		if !ok {
			return "", false
		}
		if i == len(path)-1 {
			if v.Kind != graph.AttrString {
				return "", false
			}
			return v.Str, true
		}
		if v.Kind != graph.AttrMap {
			return "", false
		}
		cur = v.Map
	}
	return "", false
}
