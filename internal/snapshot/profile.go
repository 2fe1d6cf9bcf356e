package snapshot

import (
	"context"
	"regexp"

	"github.com/ciris-ai/ciris-core/internal/graph"
)

// ProfileProvider is the "GraphQL-like external profile provider"
// spec.md §4.4 describes: an optional, adapter-specific source of
// user profile data merged in before graph data, and overridden by
// it. NoProfileProvider is the default no-op implementation.
type ProfileProvider interface {
	FetchProfile(ctx context.Context, userID string) (map[string]graph.AttrValue, error)
}

type noProfileProvider struct{}

func (noProfileProvider) FetchProfile(context.Context, string) (map[string]graph.AttrValue, error) {
	return nil, nil
}

// NoProfileProvider is the zero-value ProfileProvider: always empty,
// never an error.
var NoProfileProvider ProfileProvider = noProfileProvider{}

var (
	mentionTag    = regexp.MustCompile(`<@(\d+)>`)
	mentionIDHint = regexp.MustCompile(`(?i)ID:\s*(\d+)`)
)

// extractMentionedUserIDs pulls user ids out of thought content using
// the two textual patterns spec.md §4.4 names, plus any explicit
// context.user_id the caller already knows about.
func extractMentionedUserIDs(content string, contextUserID string) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	for _, m := range mentionTag.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range mentionIDHint.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	add(contextUserID)

	return ids
}
