package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("rejects empty channel", func(t *testing.T) {
		_, err := New("do a thing", "", 0, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidChannel)
	})

	t.Run("creates a pending task", func(t *testing.T) {
		tk, err := New("greet the user", "test_channel", 5, "")
		require.NoError(t, err)
		assert.NotEmpty(t, tk.ID)
		assert.Equal(t, StatusPending, tk.Status)
		assert.Equal(t, "test_channel", tk.ChannelID)
		assert.Equal(t, 5, tk.Priority)
		assert.False(t, tk.CreatedAt.IsZero())
		assert.Equal(t, tk.CreatedAt, tk.UpdatedAt)
	})
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusActive.IsTerminal())
	assert.False(t, StatusDeferred.IsTerminal())
}

func TestIsSpecial(t *testing.T) {
	wakeup := &Task{ID: WakeupRootID}
	system := &Task{ID: SystemTaskID}
	normal := &Task{ID: "some-uuid"}

	assert.True(t, wakeup.IsSpecial())
	assert.True(t, system.IsSpecial())
	assert.False(t, normal.IsSpecial())
}
