// Package identity models the agent's own profile: the set of
// permitted actions, restricted capabilities, and the hash-chained
// history of modifications to that profile. Grounded on the teacher's
// immutable, re-hashed config-version pattern in pkg/config (every
// load produces a content hash); generalized here to cover the
// agent-identity invariants spec.md §3 names (created once,
// modification increments a counter and rewrites the hash).
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/ciris-ai/ciris-core/internal/graph"
)

// Metadata tracks provenance of the identity record.
type Metadata struct {
	ModificationCount int
	Creator           string
	Lineage           []string
}

// Identity is the agent's self-description, stored as the singleton
// IDENTITY-scoped graph node at graph.IdentityNodeID.
type Identity struct {
	AgentID                string
	IdentityHash           string
	CoreProfile            string
	PermittedActions       []string
	RestrictedCapabilities []string
	Metadata               Metadata
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// New creates the agent's identity for the first time: modification
// count starts at 1 and the hash is computed over the initial state.
func New(agentID, coreProfile, creator string, permittedActions []string) *Identity {
	now := time.Now().UTC()
	id := &Identity{
		AgentID:          agentID,
		CoreProfile:      coreProfile,
		PermittedActions: permittedActions,
		Metadata:         Metadata{ModificationCount: 1, Creator: creator, Lineage: []string{creator}},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	id.IdentityHash = id.computeHash()
	return id
}

// Modify applies fn to the identity, then increments the modification
// counter and rewrites the hash. Per spec.md §3, an identity
// modification requires wise-authority approval upstream of this
// call; Modify itself only enforces the bookkeeping invariant.
func (id *Identity) Modify(fn func(*Identity)) {
	fn(id)
	id.Metadata.ModificationCount++
	id.UpdatedAt = time.Now().UTC()
	id.IdentityHash = id.computeHash()
}

// computeHash hashes the identity's content excluding the hash field
// itself, so re-hashing after a modification always changes it.
func (id *Identity) computeHash() string {
	snapshot := struct {
		AgentID                string
		CoreProfile            string
		PermittedActions       []string
		RestrictedCapabilities []string
		ModificationCount      int
	}{id.AgentID, id.CoreProfile, id.PermittedActions, id.RestrictedCapabilities, id.Metadata.ModificationCount}

	b, _ := json.Marshal(snapshot)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ToNode converts the identity into its graph representation for
// persistence via graph.Store.
func (id *Identity) ToNode() graph.Node {
	lineage := make([]graph.AttrValue, len(id.Metadata.Lineage))
	for i, l := range id.Metadata.Lineage {
		lineage[i] = graph.StringAttr(l)
	}
	permitted := make([]graph.AttrValue, len(id.PermittedActions))
	for i, a := range id.PermittedActions {
		permitted[i] = graph.StringAttr(a)
	}
	restricted := make([]graph.AttrValue, len(id.RestrictedCapabilities))
	for i, c := range id.RestrictedCapabilities {
		restricted[i] = graph.StringAttr(c)
	}

	return graph.Node{
		ID:    graph.IdentityNodeID,
		Type:  graph.NodeIdentity,
		Scope: graph.ScopeIdentity,
		Attributes: graph.Attributes{
			"agent_id":                graph.StringAttr(id.AgentID),
			"identity_hash":           graph.StringAttr(id.IdentityHash),
			"core_profile":            graph.StringAttr(id.CoreProfile),
			"permitted_actions":       graph.ListAttr(permitted),
			"restricted_capabilities": graph.ListAttr(restricted),
			"modification_count":      graph.NumberAttr(float64(id.Metadata.ModificationCount)),
			"creator":                 graph.StringAttr(id.Metadata.Creator),
			"lineage":                 graph.ListAttr(lineage),
		},
		CreatedAt: id.CreatedAt,
	}
}

// FromNode reconstructs an Identity from its persisted graph node.
func FromNode(n graph.Node) *Identity {
	id := &Identity{CreatedAt: n.CreatedAt, UpdatedAt: n.CreatedAt}
	if v, ok := n.Attributes["agent_id"]; ok {
		id.AgentID, _ = v.ToAny().(string)
	}
	if v, ok := n.Attributes["identity_hash"]; ok {
		id.IdentityHash, _ = v.ToAny().(string)
	}
	if v, ok := n.Attributes["core_profile"]; ok {
		id.CoreProfile, _ = v.ToAny().(string)
	}
	if v, ok := n.Attributes["creator"]; ok {
		id.Metadata.Creator, _ = v.ToAny().(string)
	}
	if v, ok := n.Attributes["modification_count"]; ok {
		if f, ok := v.ToAny().(float64); ok {
			id.Metadata.ModificationCount = int(f)
		}
	}
	id.PermittedActions = stringList(n.Attributes["permitted_actions"])
	id.RestrictedCapabilities = stringList(n.Attributes["restricted_capabilities"])
	id.Metadata.Lineage = stringList(n.Attributes["lineage"])
	return id
}

func stringList(v graph.AttrValue) []string {
	if v.Kind != graph.AttrList {
		return nil
	}
	out := make([]string, 0, len(v.List))
	for _, item := range v.List {
		if s, ok := item.ToAny().(string); ok {
			out = append(out, s)
		}
	}
	return out
}
