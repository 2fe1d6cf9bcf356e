package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetsInitialModificationCount(t *testing.T) {
	id := New("agent-1", "a helpful assistant", "operator", []string{"SPEAK", "OBSERVE"})
	assert.Equal(t, 1, id.Metadata.ModificationCount)
	assert.NotEmpty(t, id.IdentityHash)
}

func TestModifyIncrementsCountAndRewritesHash(t *testing.T) {
	id := New("agent-1", "a helpful assistant", "operator", []string{"SPEAK"})
	original := id.IdentityHash

	id.Modify(func(i *Identity) {
		i.PermittedActions = append(i.PermittedActions, "TOOL")
	})

	assert.Equal(t, 2, id.Metadata.ModificationCount)
	assert.NotEqual(t, original, id.IdentityHash)
	assert.Contains(t, id.PermittedActions, "TOOL")
}

func TestNodeRoundTrip(t *testing.T) {
	id := New("agent-1", "a helpful assistant", "operator", []string{"SPEAK", "OBSERVE"})
	id.RestrictedCapabilities = []string{"SHELL_EXEC"}

	node := id.ToNode()
	restored := FromNode(node)

	require.Equal(t, id.AgentID, restored.AgentID)
	assert.Equal(t, id.IdentityHash, restored.IdentityHash)
	assert.Equal(t, id.PermittedActions, restored.PermittedActions)
	assert.Equal(t, id.RestrictedCapabilities, restored.RestrictedCapabilities)
	assert.Equal(t, id.Metadata.ModificationCount, restored.Metadata.ModificationCount)
}
