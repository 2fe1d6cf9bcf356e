package cliadapter_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-core/internal/adapter/cliadapter"
	"github.com/ciris-ai/ciris-core/internal/dispatch"
	"github.com/ciris-ai/ciris-core/internal/dma"
	"github.com/ciris-ai/ciris-core/internal/persistence/sqlite"
	"github.com/ciris-ai/ciris-core/internal/task"
)

func TestInvokeSpeakWritesToOut(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var out bytes.Buffer
	a := cliadapter.New(cliadapter.Config{ChannelID: "cli", In: strings.NewReader(""), Out: &out}, task.NewManager(db, 10))

	_, err = a.Invoke(ctx, dispatch.DispatchContext{ChannelID: "cli"}, dma.ActionParameters{Speak: &dma.SpeakParams{Content: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.String())
}

func TestStartReadsInputAsTasks(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mgr := task.NewManager(db, 10)
	in := strings.NewReader("greet me\nask a question\n")
	var out bytes.Buffer
	a := cliadapter.New(cliadapter.Config{ChannelID: "cli", In: in, Out: &out}, mgr)

	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Stop(ctx))

	count, err := db.CountTasks(ctx, task.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInvokeObserveReturnsRecentBacklog(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	in := strings.NewReader("first message\n")
	var out bytes.Buffer
	a := cliadapter.New(cliadapter.Config{ChannelID: "cli", In: in, Out: &out}, task.NewManager(db, 10))
	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Stop(ctx))

	outcome, err := a.Invoke(ctx, dispatch.DispatchContext{ChannelID: "cli"}, dma.ActionParameters{Observe: &dma.ObserveParams{ChannelID: "cli"}})
	require.NoError(t, err)
	assert.Len(t, outcome["messages"].List, 1)
	assert.Equal(t, "first message", outcome["messages"].List[0].Str)
}

func TestServicesAdvertisesSpeakAndObserve(t *testing.T) {
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	a := cliadapter.New(cliadapter.Config{ChannelID: "cli", In: strings.NewReader(""), Out: &bytes.Buffer{}}, task.NewManager(db, 10))
	regs := a.Services()
	require.Len(t, regs, 1)
	assert.ElementsMatch(t, []string{"speak", "observe"}, regs[0].Capabilities)
}
