package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseRegistryLifecycle(t *testing.T) {
	r := NewBaseRegistry[string]()
	require.NoError(t, r.Register("a", "alpha"))
	require.Error(t, r.Register("a", "again"))

	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", v)

	assert.Equal(t, 1, r.Count())
	assert.ElementsMatch(t, []string{"alpha"}, r.List())

	require.NoError(t, r.Remove("a"))
	require.Error(t, r.Remove("a"))
	assert.Equal(t, 0, r.Count())
}

func TestBaseRegistryRejectsEmptyName(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.Error(t, r.Register("", 1))
}

func TestBaseRegistryClear(t *testing.T) {
	r := NewBaseRegistry[int]()
	require.NoError(t, r.Register("a", 1))
	require.NoError(t, r.Register("b", 2))
	r.Clear()
	assert.Equal(t, 0, r.Count())
}
