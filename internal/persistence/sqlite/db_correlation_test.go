package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/observability"
)

func TestCorrelationInsertAndQuery(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	c := &observability.Correlation{
		CorrelationID: "c1",
		Type:          observability.CorrelationRequest,
		ServiceType:   "llm",
		HandlerName:   "dma.ethical",
		ActionType:    "generate_structured",
		RequestData:   map[string]graph.AttrValue{"prompt": graph.StringAttr("hi")},
		Status:        "OK",
		DurationMS:    42,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, db.InsertCorrelation(ctx, c))

	recent, err := db.RecentCorrelations(ctx, "llm", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "c1", recent[0].CorrelationID)
	require.Equal(t, "hi", recent[0].RequestData["prompt"].Str)
}
